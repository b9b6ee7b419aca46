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

package stats

import (
	"fmt"
	"math"

	"github.com/balco-astro/balco/internal/qsort"
	"gonum.org/v1/gonum/stat"
)

// Basic statistics of a set of pixel values. Standard deviation is the population
// standard deviation
type Stats struct {
	Min    float32 `json:"min"`
	Max    float32 `json:"max"`
	Mean   float32 `json:"mean"`
	Median float32 `json:"median"`
	StdDev float32 `json:"stdDev"`
}

// Calculates basic statistics for the given data. Does not modify data
func NewStats(data []float32) *Stats {
	if len(data) == 0 {
		return &Stats{}
	}
	xs := make([]float64, len(data))
	min, max := float32(math.MaxFloat32), float32(-math.MaxFloat32)
	for i, d := range data {
		xs[i] = float64(d)
		if d < min {
			min = d
		}
		if d > max {
			max = d
		}
	}
	mean, stdDev := stat.PopMeanStdDev(xs, nil)
	xs = nil

	return &Stats{
		Min:    min,
		Max:    max,
		Mean:   float32(mean),
		Median: qsort.Median(data),
		StdDev: float32(stdDev),
	}
}

func (s *Stats) String() string {
	return fmt.Sprintf("Min %.6g Max %.6g Mean %.6g Median %.6g StdDev %.6g",
		s.Min, s.Max, s.Mean, s.Median, s.StdDev)
}

// Header line for CSV or TSV exports, with the given separator
func (s *Stats) Header(prefix, sep string) string {
	return fmt.Sprintf("%sMin%s%sMax%s%sMean%s%sMedian%s%sStdDev", prefix, sep, prefix, sep, prefix, sep, prefix, sep, prefix)
}

// Values line for CSV or TSV exports, with the given separator
func (s *Stats) Line(sep string) string {
	return fmt.Sprintf("%g%s%g%s%g%s%g%s%g", s.Min, sep, s.Max, sep, s.Mean, sep, s.Median, sep, s.StdDev)
}

// Difference of mean, median and standard deviation, a minus b
func Difference(a, b *Stats) (mean, median, stdDev float32) {
	return a.Mean - b.Mean, a.Median - b.Median, a.StdDev - b.StdDev
}

// Maximum absolute pixelwise difference between a and b, which must have equal length
func MaxAbsDiff(a, b []float32) float32 {
	maxDiff := float32(0)
	for i := range a {
		d := a[i] - b[i]
		if d < 0 {
			d = -d
		}
		if d > maxDiff {
			maxDiff = d
		}
	}
	return maxDiff
}
