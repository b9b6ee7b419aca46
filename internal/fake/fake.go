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

// Package fake generates synthetic star fields with known source positions,
// for exercising the shaving pipeline without real telescope data.
package fake

import (
	"errors"
	"fmt"
	"math"

	"github.com/valyala/fastrand"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/balco-astro/balco/internal/catalog"
)

var ErrInvalidParams = errors.New("invalid field parameters")

// Field generation parameters. Defaults follow the expected SuperBIT sky:
// a background of 1250 counts with gaussian read noise of 29
type Params struct {
	Width      int32   `json:"width"      yaml:"width"`
	Height     int32   `json:"height"     yaml:"height"`
	Background float64 `json:"background" yaml:"background"`
	Noise      float64 `json:"noise"      yaml:"noise"` // standard deviation of white noise

	Stars     int     `json:"stars"     yaml:"stars"`     // number of gaussian stars
	StarSize  int32   `json:"starSize"  yaml:"starSize"`  // side of the square stamp each star is rendered into
	FWHMX     float64 `json:"fwhmX"     yaml:"fwhmX"`     // full width at half maximum along x
	FWHMY     float64 `json:"fwhmY"     yaml:"fwhmY"`     // full width at half maximum along y
	Amplitude float64 `json:"amplitude" yaml:"amplitude"` // peak brightness above background
	Margin    int32   `json:"margin"    yaml:"margin"`    // keep stars this far from the borders

	PointStars int     `json:"pointStars" yaml:"pointStars"` // single hot pixels
	PointMin   float64 `json:"pointMin"   yaml:"pointMin"`
	PointMax   float64 `json:"pointMax"   yaml:"pointMax"`

	CosmicRays int `json:"cosmicRays" yaml:"cosmicRays"` // diagonal or horizontal streaks

	Seed uint64 `json:"seed" yaml:"seed"` // zero places sources at random
}

func DefaultParams() Params {
	return Params{
		Width:      1024,
		Height:     1024,
		Background: 1250,
		Noise:      29,
		Stars:      100,
		StarSize:   20,
		FWHMX:      10,
		FWHMY:      10,
		Amplitude:  200,
		Margin:     100,
		PointStars: 0,
		PointMin:   6000,
		PointMax:   60000,
		CosmicRays: 0,
		Seed:       1,
	}
}

func (p Params) Validate() error {
	if p.Width <= 0 || p.Height <= 0 {
		return fmt.Errorf("%w: size %dx%d", ErrInvalidParams, p.Width, p.Height)
	}
	if p.Noise < 0 {
		return fmt.Errorf("%w: noise %g", ErrInvalidParams, p.Noise)
	}
	if p.Stars > 0 {
		if p.StarSize <= 0 || p.FWHMX <= 0 || p.FWHMY <= 0 {
			return fmt.Errorf("%w: star size %d fwhm %gx%g", ErrInvalidParams, p.StarSize, p.FWHMX, p.FWHMY)
		}
		if p.Width-2*p.Margin-p.StarSize < 0 || p.Height-2*p.Margin-p.StarSize < 0 {
			return fmt.Errorf("%w: no room for %d px stars with %d px margin in %dx%d", ErrInvalidParams,
				p.StarSize, p.Margin, p.Width, p.Height)
		}
	}
	if p.PointStars > 0 && p.PointMax < p.PointMin {
		return fmt.Errorf("%w: point star range %g..%g", ErrInvalidParams, p.PointMin, p.PointMax)
	}
	return nil
}

// A synthetic image together with the catalog of the sources rendered into it
type Field struct {
	Width, Height int32
	Data          []float32
	Truth         []catalog.Entry
}

// Naxisn of the field, for building FITS images
func (f *Field) Naxisn() []int32 {
	return []int32{f.Width, f.Height}
}

// Generates a field. The same parameters including the seed give the same field
func Generate(p Params) (*Field, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	f := &Field{
		Width:  p.Width,
		Height: p.Height,
		Data:   make([]float32, p.Width*p.Height),
	}
	acc := make([]float64, len(f.Data))

	var rng fastrand.RNG
	rng.Seed(uint32(p.Seed) ^ uint32(p.Seed>>32))

	for i := 0; i < p.Stars; i++ {
		f.addStar(acc, p, &rng)
	}
	for i := 0; i < p.PointStars; i++ {
		x, y := rng.Uint32n(uint32(p.Width)), rng.Uint32n(uint32(p.Height))
		v := p.PointMin + float64(rng.Uint32n(uint32(p.PointMax-p.PointMin)+1))
		acc[int32(y)*p.Width+int32(x)] += v
		f.Truth = append(f.Truth, catalog.Entry{Flux: float32(v), X: float32(x), Y: float32(y), A: 0.5, B: 0.5, Elongation: 1})
	}
	for i := 0; i < p.CosmicRays; i++ {
		f.addCosmicRay(acc, &rng)
	}

	// integer valued like a camera readout
	noise := distuv.Normal{Mu: 0, Sigma: p.Noise, Src: rand.NewSource(p.Seed)}
	for i := range acc {
		v := math.RoundToEven(acc[i]) + math.RoundToEven(p.Background)
		if p.Noise > 0 {
			v += math.RoundToEven(noise.Rand())
		}
		if v < 0 {
			v = 0
		}
		f.Data[i] = float32(v)
	}
	return f, nil
}

// Renders a gaussian stamp of StarSize pixels with its top left corner at a
// random position inside the margins
func (f *Field) addStar(acc []float64, p Params, rng *fastrand.RNG) {
	left := p.Margin + int32(rng.Uint32n(uint32(p.Width-2*p.Margin-p.StarSize+1)))
	top := p.Margin + int32(rng.Uint32n(uint32(p.Height-2*p.Margin-p.StarSize+1)))
	c := p.StarSize / 2
	ln4 := 4 * math.Ln2
	for dy := int32(0); dy < p.StarSize; dy++ {
		ry := float64(dy-c) * float64(dy-c) / (p.FWHMY * p.FWHMY)
		for dx := int32(0); dx < p.StarSize; dx++ {
			rx := float64(dx-c) * float64(dx-c) / (p.FWHMX * p.FWHMX)
			acc[(top+dy)*f.Width+left+dx] += p.Amplitude * math.Exp(-ln4*(rx+ry))
		}
	}

	sigmaX, sigmaY := p.FWHMX/(2*math.Sqrt(2*math.Ln2)), p.FWHMY/(2*math.Sqrt(2*math.Ln2))
	a, b := math.Max(sigmaX, sigmaY), math.Min(sigmaX, sigmaY)
	f.Truth = append(f.Truth, catalog.Entry{
		Flux:        float32(2 * math.Pi * p.Amplitude * sigmaX * sigmaY),
		X:           float32(left + c),
		Y:           float32(top + c),
		A:           float32(a),
		B:           float32(b),
		FluxRadius:  float32(math.Sqrt(sigmaX * sigmaY * 2 * math.Ln2)),
		Ellipticity: float32(1 - b/a),
		Elongation:  float32(a / b),
	})
}

const (
	rayLength     = 40
	rayBrightness = 8000
	rayFade       = 16
)

// Adds a fading streak going down-left, down-right or straight right
func (f *Field) addCosmicRay(acc []float64, rng *fastrand.RNG) {
	x, y := int32(rng.Uint32n(uint32(f.Width))), int32(rng.Uint32n(uint32(f.Height)))
	dy := []int32{-1, 1, 0}[rng.Uint32n(3)]
	brightness := float64(rayBrightness)
	for i := 0; i < rayLength; i++ {
		if x < 0 || x >= f.Width || y < 0 || y >= f.Height {
			break
		}
		acc[y*f.Width+x] += brightness
		x, y = x+1, y+dy
		brightness -= rayFade
	}
}
