// Tilewarm - Map Style Resource Warm-up Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tilewarm

// Package style parses map style manifests and resolves the auxiliary
// resource URLs a renderer would fetch: sprite sheets, glyph ranges, and
// tile URL templates.
package style

// Manifest is the subset of a MapLibre/Mapbox style document Tilewarm
// consumes. Every field is optional; an absent field contributes nothing to
// the resolved resource sets.
type Manifest struct {
	// Glyphs is a URL template with {fontstack} and {range} placeholders.
	Glyphs string `json:"glyphs,omitempty"`

	// Sprite is the base sprite URL, without extension or density suffix.
	Sprite string `json:"sprite,omitempty"`

	// Sources maps source names to their tile declarations.
	Sources map[string]Source `json:"sources,omitempty"`

	// Layers declare, among other things, the font stacks used for labels.
	Layers []Layer `json:"layers,omitempty"`
}

// Source is a named tile source. Only raster/vector tile URL templates are
// relevant for warm-up.
type Source struct {
	// Tiles are URL templates with {z}, {x} and {y} placeholders.
	Tiles []string `json:"tiles,omitempty"`
}

// Layer is a style layer. Only the text-font layout property matters here.
type Layer struct {
	Layout Layout `json:"layout,omitempty"`
}

// Layout carries the layer layout properties Tilewarm reads.
type Layout struct {
	// TextFont is the font stack used to render this layer's labels.
	TextFont []string `json:"text-font,omitempty"`
}
