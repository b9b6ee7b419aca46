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

// Package star detects stars on monochrome images, as a built-in alternative to
// external source extraction.
package star

import (
	"cmp"
	"fmt"
	"io"
	"math"
	"slices"

	"github.com/balco-astro/balco/internal/median"
	"github.com/balco-astro/balco/internal/qsort"
	"github.com/valyala/fastrand"
)

// A star, as found on an image by star detection
type Star struct {
	Index int32   // Index of the star in the data array. int32(x)+width*int32(y)
	Value float32 // Value of the star in the data array. data[index]
	X     float32 // Precise star x position via center of mass
	Y     float32 // Precise star y position via center of mass
	Mass  float32 // Star mass. Summed pixel values above location estimate, within given radius
	HFR   float32 // Half-Flux Radius of the star, in pixels
}

// Star detection parameters
type Params struct {
	Sigma         float32 `json:"sigma" yaml:"sigma"`                 // detection threshold in standard deviations above the background
	BadPixelSigma float32 `json:"badPixelSigma" yaml:"badPixelSigma"` // reject pixels this far from their local median, 0 disables
	InOut         float32 `json:"inOut" yaml:"inOut"`                 // minimal ratio of brightness inside HFR to outside HFR
	Radius        int32   `json:"radius" yaml:"radius"`               // radius for star detection in pixels
}

func DefaultParams() Params {
	return Params{Sigma: 15, BadPixelSigma: 5, InOut: 1.4, Radius: 16}
}

// Prints given array of stars as CSV
func PrintStars(w io.Writer, stars []Star) {
	fmt.Fprintln(w, "Index,Value,X,Y,Mass,HFR")
	for _, s := range stars {
		fmt.Fprintf(w, "%d,%g,%g,%g,%g,%g\n", s.Index, s.Value, s.X, s.Y, s.Mass, s.HFR)
	}
}

// Sorts stars by descending mass
func SortByMass(stars []Star) {
	slices.SortStableFunc(stars, func(a, b Star) int { return cmp.Compare(b.Mass, a.Mass) })
}

// Estimates background location and scale from a random sample of pixels, using the
// median and the scaled median absolute deviation. Stars barely move either estimate
func EstimateBackground(data []float32, rng *fastrand.RNG) (location, scale float32) {
	numSamples := len(data) / 10
	if numSamples < 1000 {
		numSamples = len(data)
	}
	samples := make([]float32, numSamples)
	if numSamples == len(data) {
		copy(samples, data)
	} else {
		for i := range samples {
			samples[i] = data[rng.Uint32n(uint32(len(data)))]
		}
	}
	location = qsort.QSelectMedian(samples)
	for i, s := range samples {
		samples[i] = float32(math.Abs(float64(s - location)))
	}
	scale = 1.4826 * qsort.QSelectMedian(samples)
	return location, scale
}

// Detects stars with background location and scale estimated from the data
func Detect(data []float32, width int32, p Params) (stars []Star, location, scale, avgHFR float32) {
	rng := fastrand.RNG{}
	location, scale = EstimateBackground(data, &rng)
	if scale == 0 {
		scale = 1
	}
	stars, _, avgHFR = FindStars(data, width, location, scale, p, &rng)
	return stars, location, scale, avgHFR
}

// State of one detection run over an image
type detector struct {
	data          []float32
	width, height int32
	p             Params
	rng           *fastrand.RNG
}

// Finds stars in the given image, given the background location and scale.
// Returns the stars sorted by descending mass, the total distance candidates moved
// while centering, and the average half-flux radius
func FindStars(data []float32, width int32, location, scale float32, p Params, rng *fastrand.RNG) (stars []Star, sumOfShifts, avgHFR float32) {
	d := &detector{data: data, width: width, height: int32(len(data)) / width, p: p, rng: rng}
	threshold := location + scale*p.Sigma

	stars = d.brightPixels(threshold)
	if p.BadPixelSigma > 0 {
		stars = d.rejectBadPixels(stars)
	}

	SortByMass(stars)
	stars = d.dropOverlaps(stars)

	for i := range stars {
		var shift float32
		stars[i], shift = d.centroid(stars[i], location+scale*p.Sigma*0.5)
		sumOfShifts += shift
	}

	SortByMass(stars)
	stars = d.dropOverlaps(stars)

	stars, avgHFR = d.measure(stars, location)
	SortByMass(stars)
	return slices.Clone(stars), sumOfShifts, avgHFR
}

// Pixels above the threshold as candidate stars, keeping only the brightest of
// candidates closer than the radius on the same row. Mass starts out as the pixel value
func (d *detector) brightPixels(threshold float32) []Star {
	stars := make([]Star, 0, len(d.data)/100)
	for i, v := range d.data {
		if v <= threshold {
			continue
		}
		c := Star{Index: int32(i), Value: v, X: float32(int32(i) % d.width), Y: float32(int32(i) / d.width), Mass: v, HFR: 1}
		if n := len(stars); n > 0 {
			last := &stars[n-1]
			if last.Y == c.Y && last.X >= c.X-float32(d.p.Radius) {
				if c.Value > last.Value {
					*last = c
				}
				continue
			}
		}
		stars = append(stars, c)
	}
	return stars
}

// Drops candidates which deviate from their 3x3 median by more than BadPixelSigma
// times the typical deviation, estimated on a random 1% of pixels. Filters in place
func (d *detector) rejectBadPixels(stars []Star) []Star {
	mask := CreateMask(d.width, 1.5)
	buffer := make([]float32, len(mask))
	deviation := func(index int32) float32 {
		return d.data[index] - median.GatherAndMedian(d.data, index, mask, buffer)
	}

	numSamples := len(d.data) / 100
	if numSamples < 100 {
		numSamples = len(d.data)
	}
	sumSq := 0.0
	for i := 0; i < numSamples; i++ {
		dev := float64(deviation(int32(d.rng.Uint32n(uint32(len(d.data))))))
		sumSq += dev * dev
	}
	limit := float32(math.Sqrt(sumSq/float64(numSamples))) * d.p.BadPixelSigma

	return slices.DeleteFunc(stars, func(s Star) bool {
		dev := deviation(s.Index)
		return dev >= limit || -dev >= limit
	})
}

// Creates a mask of given radius. Returns a list of index offsets
func CreateMask(width int32, radius float32) []int32 {
	mask := []int32{}
	rad := int32(radius)
	for y := -rad; y <= rad; y++ {
		for x := -rad; x <= rad; x++ {
			if float32(math.Sqrt(float64(y*y+x*x))) <= radius+1e-8 {
				mask = append(mask, y*width+x)
			}
		}
	}
	return mask
}

const overlapCell = 256

// Keeps each star unless it lies within the radius of a star kept before it.
// Stars are binned into a coarse grid so only neighbouring cells are searched
func (d *detector) dropOverlaps(stars []Star) []Star {
	cols := (d.width + overlapCell - 1) / overlapCell
	rows := (d.height + overlapCell - 1) / overlapCell
	cells := make([][]int, cols*rows)
	cellOf := func(v float32, n int32) int32 {
		return min(max(int32(v+0.5)/overlapCell, 0), n-1)
	}
	r2 := d.p.Radius * d.p.Radius

	kept := 0
	for _, s := range stars {
		cx, cy := cellOf(s.X, cols), cellOf(s.Y, rows)
		if d.overlaps(s, stars, cells, cx, cy, cols, rows, r2) {
			continue
		}
		stars[kept] = s
		cells[cx+cy*cols] = append(cells[cx+cy*cols], kept)
		kept++
	}
	return stars[:kept]
}

func (d *detector) overlaps(s Star, stars []Star, cells [][]int, cx, cy, cols, rows, r2 int32) bool {
	for y := max(cy-1, 0); y <= min(cy+1, rows-1); y++ {
		for x := max(cx-1, 0); x <= min(cx+1, cols-1); x++ {
			for _, k := range cells[x+y*cols] {
				dx, dy := s.X-stars[k].X, s.Y-stars[k].Y
				if int32(dx*dx+dy*dy+0.5) <= r2 {
					return true
				}
			}
		}
	}
	return false
}

// Value at index minus base, clamped to zero. Zero outside the image
func (d *detector) above(index int32, base float32) float32 {
	if index < 0 || int(index) >= len(d.data) {
		return 0
	}
	return max(d.data[index]-base, 0)
}

// Moves the star to its center of mass above the threshold within the radius,
// iterating until the position changes by less than 0.01 pixels or for ten rounds.
// Returns the updated star and the length of the final step
func (d *detector) centroid(s Star, threshold float32) (Star, float32) {
	radius := d.p.Radius
	step2 := float32(math.MaxFloat32)
	for round := 0; step2 > 0.0001 && round < 10; round++ {
		var xMoment, yMoment, mass float32
		for y := -radius; y <= radius; y++ {
			for x := -radius; x <= radius; x++ {
				v := d.above(s.Index+y*d.width+x, threshold)
				xMoment += float32(x) * v
				yMoment += float32(y) * v
				mass += v
			}
		}
		if mass == 0 {
			mass = 1e-8
		}
		dx, dy := xMoment/mass, yMoment/mass
		newX := float32(s.Index%d.width) + dx
		newY := float32(s.Index/d.width) + dy
		step2 = (newX-s.X)*(newX-s.X) + (newY-s.Y)*(newY-s.Y)

		index := s.Index + d.width*int32(math.Round(float64(dy))) + int32(math.Round(float64(dx)))
		value := float32(0)
		if index >= 0 && int(index) < len(d.data) {
			value = d.data[index]
		} else {
			index = s.Index
		}
		s = Star{Index: index, Value: value, X: newX, Y: newY, Mass: mass}
	}
	return s, float32(math.Sqrt(float64(step2)))
}

// Calls fn for every pixel within the given radius of the star, with its distance
// from the center and its value above the location
func (d *detector) disc(s Star, radius float32, location float32, fn func(dist, v float32)) {
	rad := int32(math.Ceil(float64(radius)))
	limit := int32(math.Ceil(float64(radius) * float64(radius)))
	for y := -rad; y <= rad; y++ {
		for x := -rad; x <= rad; x++ {
			if dist2 := x*x + y*y; dist2 <= limit {
				fn(float32(math.Sqrt(float64(dist2))), d.above(s.Index+y*d.width+x, location))
			}
		}
	}
}

// Computes the half-flux radius and mass of each star, and drops candidates whose
// HFR exceeds the detection radius or whose average brightness inside the HFR is
// not at least InOut times the brightness outside. See
// https://en.wikipedia.org/wiki/Half_flux_diameter
func (d *detector) measure(stars []Star, location float32) (res []Star, avgHFR float32) {
	radius := float32(d.p.Radius) + 1e-8
	kept := 0
	for _, s := range stars {
		var moment, mass float32
		var pixels int32
		d.disc(s, radius, location, func(dist, v float32) {
			moment += dist * v
			mass += v
			pixels++
		})
		if mass == 0 {
			mass = 1e-8
		}
		hfr := moment / mass
		if hfr > float32(d.p.Radius) {
			continue
		}

		var innerMass float32
		var innerPixels int32
		d.disc(s, hfr, location, func(_, v float32) {
			innerMass += v
			innerPixels++
		})
		outerMass, outerPixels := mass-innerMass, pixels-innerPixels
		if innerMass*float32(outerPixels) <= d.p.InOut*outerMass*float32(innerPixels) {
			continue
		}

		s.HFR, s.Mass = hfr, mass
		stars[kept] = s
		kept++
		avgHFR += hfr
	}
	if kept > 0 {
		avgHFR /= float32(kept)
	}
	return stars[:kept], avgHFR
}
