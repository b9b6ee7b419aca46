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

// Pixels above this value do not survive byte-oriented encoding losslessly
const DefaultThreshold float32 = 255

// A pixel whose value exceeds the flag threshold
type FlaggedPixel struct {
	Value float32 `json:"value"`
	Row   int32   `json:"row"`
	Col   int32   `json:"col"`
}

// Returns all pixels with values strictly greater than threshold, in row-major order.
// Does not modify data. Nil for non-positive width
func Locate(data []float32, width int32, threshold float32) []FlaggedPixel {
	var flags []FlaggedPixel
	if width <= 0 {
		return nil
	}
	for i, d := range data {
		if d > threshold {
			flags = append(flags, FlaggedPixel{
				Value: d,
				Row:   int32(i) / width,
				Col:   int32(i) % width,
			})
		}
	}
	return flags
}

// Writes the flagged values back into data at their recorded positions
func RestoreFlags(data []float32, width int32, flags []FlaggedPixel) {
	for _, f := range flags {
		data[f.Row*width+f.Col] = f.Value
	}
}
