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

// Package median provides small-neighbourhood medians for local pixel statistics.
package median

import (
	"math"

	"github.com/balco-astro/balco/internal/qsort"
)

// Calculates the median of a float32 slice of length nine
// Modifies the elements in place
// From https://stackoverflow.com/questions/45453537/optimal-9-element-sorting-network-that-reduces-to-an-optimal-median-of-9-network
// See also http://ndevilla.free.fr/median/median/src/optmed.c for other sizes
// Array must not contain IEEE NaN
func MedianFloat32Slice9(a []float32) float32 { // 30x min/max
	if a[0] > a[1] {
		a[0], a[1] = a[1], a[0]
	}
	if a[3] > a[4] {
		a[3], a[4] = a[4], a[3]
	}
	if a[6] > a[7] {
		a[6], a[7] = a[7], a[6]
	}
	if a[1] > a[2] {
		a[1], a[2] = a[2], a[1]
	}
	if a[4] > a[5] {
		a[4], a[5] = a[5], a[4]
	}
	if a[7] > a[8] {
		a[7], a[8] = a[8], a[7]
	}
	if a[0] > a[1] {
		a[0], a[1] = a[1], a[0]
	}
	if a[3] > a[4] {
		a[3], a[4] = a[4], a[3]
	}
	if a[6] > a[7] {
		a[6], a[7] = a[7], a[6]
	}
	if a[0] > a[3] {
		a[3] = a[0]
	}
	if a[3] > a[6] {
		a[6] = a[3]
	}
	if a[1] > a[4] {
		a[1], a[4] = a[4], a[1]
	}
	if a[4] > a[7] {
		a[4] = a[7]
	}
	if a[1] > a[4] {
		a[4] = a[1]
	}
	if a[5] > a[8] {
		a[5] = a[8]
	}
	if a[2] > a[5] {
		a[2] = a[5]
	}
	if a[2] > a[4] {
		a[2], a[4] = a[4], a[2]
	}
	if a[4] > a[6] {
		a[4] = a[6]
	}
	if a[2] > a[4] {
		a[4] = a[2]
	}
	return a[4]
}

// Calculates the median of a float32 slice
// Modifies the elements in place
// Array must not contain IEEE NaN
func Median(a []float32) float32 {
	if len(a) == 0 {
		return float32(math.NaN())
	}
	if len(a) == 9 {
		return MedianFloat32Slice9(a)
	}
	return qsort.QSelectMedian(a)
}

// Gathers the values at index plus each mask offset into buffer, and returns their median.
// Offsets which fall outside the data are skipped. Buffer must be at least as long as mask
func GatherAndMedian(data []float32, index int32, mask []int32, buffer []float32) float32 {
	num := 0
	for _, offset := range mask {
		i := index + offset
		if i >= 0 && i < int32(len(data)) {
			buffer[num] = data[i]
			num++
		}
	}
	return Median(buffer[:num])
}
