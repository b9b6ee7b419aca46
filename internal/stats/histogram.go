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
	"math"
	"sort"

	"gonum.org/v1/gonum/optimize"
)

// Calculate histogram of data between min and max into given bins
func Histogram(data []float32, min, max float32, bins []int32) {
	for i := range bins {
		bins[i] = 0
	}
	if max <= min {
		bins[0] = int32(len(data))
		return
	}
	scale := float32(len(bins)-1) / (max - min)
	for _, d := range data {
		index := int((d - min) * scale)
		if index < 0 || index >= len(bins) {
			continue
		}
		bins[index]++
	}
}

// Returns the location and the value of the histogram peak
func GetPeak(bins []int32, min, max float32) (x, y float32) {
	maxIndex, maxValue := -1, int32(math.MinInt32)
	for i, v := range bins {
		if v > maxValue {
			maxIndex, maxValue = i, v
		}
	}

	x = min + (float32(maxIndex)+0.5)*(max-min)/float32(len(bins)-1)
	if maxIndex+1 < len(bins) {
		y = 0.5 * float32(bins[maxIndex]+bins[maxIndex+1])
	} else {
		y = float32(bins[maxIndex])
	}
	return x, y
}

// Calculates the mode and the standard deviation of the given histogram
// by fitting a normal distribution to it
func GetModeStdDevFromHistogram(bins []int32, min, max float32) (mode, stdDev float32, err error) {
	// Take an educated initial guess: the maximum value of the histogram
	peak, peakVal := GetPeak(bins, min, max)

	// Now minimize the distance between the histogram and a normal distribution
	x0 := []float64{float64(peakVal), float64(peak), 5.0}
	problem := optimize.Problem{
		Func: func(x []float64) float64 {
			alpha, mu, sigma := float32(x[0]), float32(x[1]), float32(x[2])
			scaler := alpha / (sigma * float32(math.Sqrt(2*math.Pi)))
			sumSqDiff := float32(0)

			for i, y := range bins {
				x := min + (float32(i)+0.5)*(max-min)/float32(len(bins)-1)

				xmusig := (x - mu) / sigma
				yPredict := scaler * float32(math.Exp(float64(-0.5*xmusig*xmusig)))

				diff := float32(y) - yPredict
				sumSqDiff += diff * diff
			}
			variance := sumSqDiff / float32(len(bins))
			return math.Sqrt(float64(variance))
		},
	}
	result, err := optimize.Minimize(problem, x0, nil, &optimize.NelderMead{})
	if err != nil {
		return -1, -1, err
	}
	return float32(result.X[1]), float32(result.X[2]), nil
}

// Histogram peak height and full width at half maximum, with numBins equal-width
// bins spanning [min, max] of the data. The width is the distance between the
// left edges of the two bins whose counts are closest to half the peak count.
func PeakFWHM(data []float32, numBins int) (peak int32, fwhm float32) {
	if len(data) == 0 || numBins < 2 {
		return 0, 0
	}
	min, max := data[0], data[0]
	for _, d := range data {
		if d < min {
			min = d
		}
		if d > max {
			max = d
		}
	}
	if max <= min {
		return int32(len(data)), 0
	}

	bins := make([]int32, numBins)
	width := (max - min) / float32(numBins)
	for _, d := range data {
		index := int((d - min) / width)
		if index >= numBins {
			index = numBins - 1 // right edge is inclusive
		}
		bins[index]++
	}

	for _, b := range bins {
		if b > peak {
			peak = b
		}
	}
	half := float64(peak) / 2
	indices := make([]int, numBins)
	for i := range indices {
		indices[i] = i
	}
	sort.SliceStable(indices, func(i, j int) bool {
		return math.Abs(float64(bins[indices[i]])-half) < math.Abs(float64(bins[indices[j]])-half)
	})
	d := indices[0] - indices[1]
	if d < 0 {
		d = -d
	}
	return peak, float32(d) * width
}
