// Tilewarm - Map Style Resource Warm-up Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tilewarm

// Package tiles enumerates Web Mercator tile pyramids. Zoom level z holds
// 4^z tiles in a 2^z by 2^z grid; a full pyramid from zoom 0 to Z is every
// tile of every level. The pyramid is never materialized: coordinates exist
// only transiently while request URLs are generated.
package tiles

import (
	"strconv"
	"strings"
)

// Coord is one tile coordinate. Invariant: 0 <= X,Y < 2^Z.
type Coord struct {
	Z int
	X int
	Y int
}

// CountUpToZoom returns the number of tiles in one complete pyramid from
// zoom 0 to maxZoom inclusive: sum of 4^i for i in 0..maxZoom, in closed
// form (4^(maxZoom+1) - 1) / 3.
//
// This matches the count produced by Enumerate exactly and is used for
// progress and ETA estimation. Negative zoom yields 0.
func CountUpToZoom(maxZoom int) uint64 {
	if maxZoom < 0 {
		return 0
	}
	// 4^(z+1) = 2^(2z+2)
	return ((uint64(1) << uint(2*maxZoom+2)) - 1) / 3
}

// Enumerate yields every coordinate of the pyramid from zoom 0 to maxZoom in
// lexicographic (z, x, y) ascending order, coarse levels first so context
// tiles are requested before fine detail. Enumeration stops early when fn
// returns false.
func Enumerate(maxZoom int, fn func(Coord) bool) {
	for z := 0; z <= maxZoom; z++ {
		side := 1 << uint(z)
		for x := 0; x < side; x++ {
			for y := 0; y < side; y++ {
				if !fn(Coord{Z: z, X: x, Y: y}) {
					return
				}
			}
		}
	}
}

// URL substitutes the coordinate into a tile URL template with {z}, {x} and
// {y} placeholders.
func URL(template string, c Coord) string {
	r := strings.NewReplacer(
		"{z}", strconv.Itoa(c.Z),
		"{x}", strconv.Itoa(c.X),
		"{y}", strconv.Itoa(c.Y),
	)
	return r.Replace(template)
}
