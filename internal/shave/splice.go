// Copyright (C) 2020 Markus L. Noga
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package shave

import "github.com/balco-astro/balco/internal/catalog"

// Overwrites data with the original pixels of each cookie, in order.
// Overlapping cookies are resolved last write wins
func Splice(data []float32, width int32, cookies []Cookie) {
	for _, c := range cookies {
		w := c.Bounds.Width()
		for row := c.Bounds.Top; row < c.Bounds.Bottom; row++ {
			dest := data[row*width+c.Bounds.Left : row*width+c.Bounds.Right]
			copy(dest, c.Pixels[(row-c.Bounds.Top)*w:(row-c.Bounds.Top+1)*w])
		}
	}
}

// An original pixel value captured for exact restoration
type Residual struct {
	Row   int32   `json:"row"`
	Col   int32   `json:"col"`
	Value float32 `json:"value"`
}

// Zeroes the window of each catalog entry in a working copy of data, and captures
// the difference between original and masked copy for every pixel inside a window,
// in row-major order. Pixels which are zero in the original are captured too.
// Does not modify data. Nil for non-positive width
func MaskResiduals(data []float32, width int32, entries []catalog.Entry, tiers SizeTiers) ([]Residual, TierCounts) {
	if width <= 0 {
		return nil, TierCounts{}
	}
	height := int32(len(data)) / width
	masked := make([]float32, len(data))
	copy(masked, data)
	inside := make([]bool, len(data))

	var counts TierCounts
	for _, e := range entries {
		bounds, tier := tiers.CookieBounds(e.A, e.B, e.X, e.Y, width, height)
		counts.add(tier)
		for row := bounds.Top; row < bounds.Bottom; row++ {
			for col := bounds.Left; col < bounds.Right; col++ {
				masked[row*width+col] = 0
				inside[row*width+col] = true
			}
		}
	}

	var residuals []Residual
	for i, in := range inside {
		if !in {
			continue
		}
		residuals = append(residuals, Residual{
			Row:   int32(i) / width,
			Col:   int32(i) % width,
			Value: data[i] - masked[i],
		})
	}
	return residuals, counts
}

// Writes each captured residual back at its recorded position
func RestoreResiduals(data []float32, width int32, residuals []Residual) {
	for _, r := range residuals {
		data[r.Row*width+r.Col] = r.Value
	}
}
