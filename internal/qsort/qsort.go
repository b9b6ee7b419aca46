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

// Package qsort implements in-place quicksort and quickselect for pixel values.
package qsort

// Numeric pixel value types
type Number interface {
	~int16 | ~uint16 | ~int32 | ~int64 | ~float32 | ~float64
}

// Sorts a in ascending order. Must not contain IEEE NaN
func QSort[T Number](a []T) {
	for len(a) > 1 {
		p := partition(a)
		// recurse into the smaller half, loop on the larger
		if p+1 < len(a)-p-1 {
			QSort(a[:p+1])
			a = a[p+1:]
		} else {
			QSort(a[p+1:])
			a = a[:p+1]
		}
	}
}

// Hoare partition around the middle element. Afterwards every element in a[:p+1] is
// less than or equal to every element in a[p+1:]
func partition[T Number](a []T) (p int) {
	pivot := a[(len(a)-1)>>1]
	l, r := -1, len(a)
	for {
		for l++; a[l] < pivot; l++ {
		}
		for r--; a[r] > pivot; r-- {
		}
		if l >= r {
			return r
		}
		a[l], a[r] = a[r], a[l]
	}
}

// Returns the k-th smallest element, k counting from 1. Partially reorders a.
// Must not contain IEEE NaN
func QSelect[T Number](a []T, k int) T {
	for len(a) > 1 {
		p := partition(a)
		if k <= p+1 {
			a = a[:p+1]
		} else {
			k -= p + 1
			a = a[p+1:]
		}
	}
	return a[0]
}

// Median of a, the mean of the two middle elements for even lengths. Partially
// reorders a. Zero for empty input
func QSelectMedian[T Number](a []T) T {
	n := len(a)
	if n == 0 {
		return 0
	}
	upper := QSelect(a, n/2+1)
	if n%2 == 1 {
		return upper
	}
	// selection left the lower half in a[:n/2], unordered
	lower := a[0]
	for _, v := range a[1 : n/2] {
		lower = max(lower, v)
	}
	return T((float64(lower) + float64(upper)) * 0.5)
}

// Median of a without modifying it
func Median[T Number](a []T) T {
	return QSelectMedian(append([]T(nil), a...))
}
