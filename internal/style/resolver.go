// Tilewarm - Map Style Resource Warm-up Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tilewarm

package style

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// glyphRanges are the fixed glyph-range buckets warmed for every font stack:
// the first 512 Unicode code points in two 256-wide ranges. These cover the
// Basic Latin and Latin-1 ranges virtually every label falls into.
var glyphRanges = []string{"0-255", "256-511"}

// spriteSuffixes are the four concrete resources derived from one sprite
// base URL: metadata and image, standard and double density.
var spriteSuffixes = []string{".json", ".png", "@2x.json", "@2x.png"}

// Resources holds the resolved absolute URL sets for one style manifest.
type Resources struct {
	// Sprite holds exactly four URLs when the manifest declares a sprite,
	// otherwise none.
	Sprite []string

	// Glyphs holds one URL per (distinct font stack, glyph range) pair.
	Glyphs []string

	// TileTemplates holds every tile URL template across all sources.
	// Duplicate templates are preserved; each is later treated as an
	// independent full tile pyramid.
	TileTemplates []string
}

// Resolve transforms a manifest into its resolved resource URL sets.
//
// Every relative URL is resolved against styleURL, the manifest's own source
// URL, with standard base-URL semantics. Resolve performs no network I/O.
func Resolve(m *Manifest, styleURL string) (*Resources, error) {
	base, err := url.Parse(styleURL)
	if err != nil {
		return nil, fmt.Errorf("parse style URL: %w", err)
	}

	res := &Resources{}

	if m.Sprite != "" {
		spriteBase := resolveRef(base, m.Sprite)
		for _, suffix := range spriteSuffixes {
			res.Sprite = append(res.Sprite, spriteBase+suffix)
		}
	}

	if m.Glyphs != "" {
		glyphTemplate := resolveRef(base, m.Glyphs)
		for _, stack := range distinctFontStacks(m.Layers) {
			for _, rng := range glyphRanges {
				u := strings.ReplaceAll(glyphTemplate, "{fontstack}", url.PathEscape(stack))
				u = strings.ReplaceAll(u, "{range}", rng)
				res.Glyphs = append(res.Glyphs, u)
			}
		}
	}

	for _, name := range sortedSourceNames(m.Sources) {
		for _, tmpl := range m.Sources[name].Tiles {
			res.TileTemplates = append(res.TileTemplates, resolveRef(base, tmpl))
		}
	}

	return res, nil
}

// resolveRef resolves ref against base. An unparsable ref (rare, since tile
// templates with {z} braces parse fine) is returned as-is rather than dropped.
func resolveRef(base *url.URL, ref string) string {
	u, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return base.ResolveReference(u).String()
}

// distinctFontStacks collects the set of font-stack names referenced across
// all layers, sorted for deterministic output. A font used by ten layers
// contributes one entry.
func distinctFontStacks(layers []Layer) []string {
	seen := make(map[string]struct{})
	for _, layer := range layers {
		for _, stack := range layer.Layout.TextFont {
			seen[stack] = struct{}{}
		}
	}

	stacks := make([]string, 0, len(seen))
	for stack := range seen {
		stacks = append(stacks, stack)
	}
	sort.Strings(stacks)
	return stacks
}

// sortedSourceNames returns source names in deterministic order so resolved
// tile templates do not reshuffle between passes.
func sortedSourceNames(sources map[string]Source) []string {
	names := make([]string, 0, len(sources))
	for name := range sources {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
