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

import (
	"fmt"
	"math"

	"github.com/balco-astro/balco/internal/qsort"
)

const (
	MinBits = 1
	MaxBits = 5
)

// Scaled values which are rounded up to 2^(8-bits) instead of to the nearest
// integer, indexed by the number of bits shaved
type Boundaries map[int]float64

// Returns the boundary values just below 2^(8-bits) used in production
func DefaultBoundaries() Boundaries {
	return Boundaries{1: 127.75, 2: 63.75, 3: 31.75, 4: 15.875, 5: 7.9375}
}

type QuantizeOptions struct {
	ZeroNegatives bool       `json:"zeroNegatives" yaml:"zeroNegatives"`               // set negative samples to zero before quantizing
	Boundaries    Boundaries `json:"boundaries,omitempty" yaml:"boundaries,omitempty"` // nil selects DefaultBoundaries
}

// Outcome of a quantization, including the centering values used
type QuantizeResult struct {
	Data        []float32
	Bits        int
	Median      float64
	Min         float64 // minimum after subtracting the median
	Corrections int     // number of samples rounded up at the boundary
	Negatives   int     // number of negative samples set to zero
}

// Bit-shaves the given data: subtracts the median and then the minimum, divides by
// 2^bits, rounds half to even, multiplies back and re-adds minimum and median.
// Returns a new slice; data is not modified. Fails with ErrInvalidParameter unless
// 1<=bits<=5
func Quantize(data []float32, bits int, opts QuantizeOptions) ([]float32, error) {
	res, err := QuantizeDetailed(data, bits, opts)
	if err != nil {
		return nil, err
	}
	return res.Data, nil
}

// Like Quantize, but also reports the centering values and correction counts
func QuantizeDetailed(data []float32, bits int, opts QuantizeOptions) (*QuantizeResult, error) {
	if bits < MinBits || bits > MaxBits {
		return nil, fmt.Errorf("%w: bits must be in %d..%d, got %d", ErrInvalidParameter, MinBits, MaxBits, bits)
	}
	boundaries := opts.Boundaries
	if boundaries == nil {
		boundaries = DefaultBoundaries()
	}
	boundary, ok := boundaries[bits]
	if !ok {
		return nil, fmt.Errorf("%w: no boundary value for %d bits", ErrInvalidParameter, bits)
	}

	res := &QuantizeResult{Data: make([]float32, len(data)), Bits: bits}
	if len(data) == 0 {
		return res, nil
	}

	src := data
	if opts.ZeroNegatives {
		src = make([]float32, len(data))
		for i, d := range data {
			if d < 0 {
				d = 0
				res.Negatives++
			}
			src[i] = d
		}
	}

	// NaN pixels are left out of median and minimum, and passed through
	finite := make([]float32, 0, len(src))
	for _, d := range src {
		if !math.IsNaN(float64(d)) {
			finite = append(finite, d)
		}
	}
	median := float64(qsort.QSelectMedian(finite))
	work := make([]float64, len(src))
	min := math.MaxFloat64
	for i, d := range src {
		w := float64(d) - median
		work[i] = w
		if math.IsNaN(w) {
			continue
		}
		if w < min {
			min = w
		}
	}

	scale := float64(int(1) << bits)
	roundedUp := float64(int(1) << (8 - bits))
	for i, w := range work {
		if math.IsNaN(w) {
			res.Data[i] = float32(w)
			continue
		}
		v := (w - min) / scale
		if v == boundary {
			v = roundedUp
			res.Corrections++
		}
		v = math.RoundToEven(v) * scale
		res.Data[i] = float32(v + min + median)
	}

	res.Median, res.Min = median, min
	return res, nil
}
