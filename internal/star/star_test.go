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

package star

import (
	"math"
	"testing"

	"github.com/valyala/fastrand"
)

// Flat background of 1000 with uniform noise in [-10,10]
func noisyBackground(width, height int) []float32 {
	data := make([]float32, width*height)
	for i := range data {
		data[i] = 1000 + float32(fastrand.Uint32n(21)) - 10
	}
	return data
}

func addGaussian(data []float32, width int, x0, y0, sigma, peak float64) {
	height := len(data) / width
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			dx, dy := float64(x)-x0, float64(y)-y0
			data[y*width+x] += float32(peak * math.Exp(-(dx*dx+dy*dy)/(2*sigma*sigma)))
		}
	}
}

func TestDetect(t *testing.T) {
	width, height := 128, 128
	data := noisyBackground(width, height)
	want := [][2]float64{{30, 20}, {80.3, 60.7}, {50, 90}}
	for _, w := range want {
		addGaussian(data, width, w[0], w[1], 1.5, 20000)
	}

	p := DefaultParams()
	p.BadPixelSigma = 0
	p.Radius = 8
	stars, location, scale, avgHFR := Detect(data, int32(width), p)
	if math.Abs(float64(location)-1000) > 2 || scale <= 0 || scale > 15 {
		t.Errorf("background: got location %g scale %g", location, scale)
	}
	if len(stars) != len(want) {
		t.Fatalf("got %d stars, want %d: %v", len(stars), len(want), stars)
	}
	for _, w := range want {
		found := false
		for _, s := range stars {
			if math.Abs(float64(s.X)-w[0]) < 0.25 && math.Abs(float64(s.Y)-w[1]) < 0.25 {
				found = true
			}
		}
		if !found {
			t.Errorf("no star found near %v in %v", w, stars)
		}
	}
	if avgHFR < 1 || avgHFR > 3 {
		t.Errorf("average HFR: got %g", avgHFR)
	}
	for i := 1; i < len(stars); i++ {
		if stars[i].Mass > stars[i-1].Mass {
			t.Errorf("stars not sorted by descending mass: %v", stars)
		}
	}
}

func TestHotPixelRejection(t *testing.T) {
	width, height := 100, 100
	data := noisyBackground(width, height)
	data[50*width+40] = 20000

	p := DefaultParams()
	p.Radius = 8
	p.BadPixelSigma = 0
	if stars, _, _, _ := Detect(data, int32(width), p); len(stars) != 1 {
		t.Errorf("without rejection: got %d stars, want 1", len(stars))
	}
	p.BadPixelSigma = 5
	if stars, _, _, _ := Detect(data, int32(width), p); len(stars) != 0 {
		t.Errorf("with rejection: got %d stars, want 0", len(stars))
	}
}

func TestSortByMass(t *testing.T) {
	stars := make([]Star, 200)
	for i := range stars {
		stars[i].Mass = float32(fastrand.Uint32n(1000))
	}
	SortByMass(stars)
	for i := 1; i < len(stars); i++ {
		if stars[i].Mass > stars[i-1].Mass {
			t.Fatalf("position %d: %g after %g", i, stars[i].Mass, stars[i-1].Mass)
		}
	}
}

func TestCreateMask(t *testing.T) {
	if m := CreateMask(10, 1.5); len(m) != 9 {
		t.Errorf("radius 1.5: got %d offsets, want 9", len(m))
	}
	if m := CreateMask(10, 1); len(m) != 5 {
		t.Errorf("radius 1: got %d offsets, want 5", len(m))
	}
}
