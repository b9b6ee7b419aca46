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

	"github.com/balco-astro/balco/internal/catalog"
)

// Size class of a source, which determines the half-width of its cookie
type Tier int

const (
	TierSmall Tier = iota
	TierMedium
	TierDefault
)

func (t Tier) String() string {
	switch t {
	case TierSmall:
		return "small"
	case TierMedium:
		return "medium"
	default:
		return "default"
	}
}

// Thresholds on the source axis sizes and the resulting cookie half-widths.
// A source is small if A<=SmallMaxA and B<=SmallMaxB, else medium if A>MediumMinA
type SizeTiers struct {
	SmallMaxA        float32 `json:"smallMaxA" yaml:"smallMaxA"`
	SmallMaxB        float32 `json:"smallMaxB" yaml:"smallMaxB"`
	SmallHalfWidth   int32   `json:"smallHalfWidth" yaml:"smallHalfWidth"`
	MediumMinA       float32 `json:"mediumMinA" yaml:"mediumMinA"`
	MediumHalfWidth  int32   `json:"mediumHalfWidth" yaml:"mediumHalfWidth"`
	DefaultHalfWidth int32   `json:"defaultHalfWidth" yaml:"defaultHalfWidth"`
}

// Empirical tiers for SuperBIT frames
func DefaultSizeTiers() SizeTiers {
	return SizeTiers{
		SmallMaxA:        1.2,
		SmallMaxB:        0.95,
		SmallHalfWidth:   3,
		MediumMinA:       10,
		MediumHalfWidth:  65,
		DefaultHalfWidth: 10,
	}
}

func (st SizeTiers) Validate() error {
	if st.SmallHalfWidth <= 0 || st.MediumHalfWidth <= 0 || st.DefaultHalfWidth <= 0 {
		return fmt.Errorf("%w: cookie half-widths must be positive, got %d/%d/%d", ErrInvalidParameter,
			st.SmallHalfWidth, st.MediumHalfWidth, st.DefaultHalfWidth)
	}
	return nil
}

// Classifies a source by its major and minor axis sizes
func (st SizeTiers) Classify(a, b float32) (Tier, int32) {
	if a <= st.SmallMaxA && b <= st.SmallMaxB {
		return TierSmall, st.SmallHalfWidth
	} else if a > st.MediumMinA {
		return TierMedium, st.MediumHalfWidth
	}
	return TierDefault, st.DefaultHalfWidth
}

// Pixel index bounds of a region, for slicing [Top:Bottom, Left:Right]
type Bounds struct {
	Left   int32 `json:"left"`
	Right  int32 `json:"right"`
	Top    int32 `json:"top"`
	Bottom int32 `json:"bottom"`
}

func (b Bounds) Width() int32  { return b.Right - b.Left }
func (b Bounds) Height() int32 { return b.Bottom - b.Top }

// Computes the square cookie around the source at (x, y) with axis sizes a and b.
// The window has side 2*halfWidth and is shifted inward at the image edges so its
// size is kept. If the image is smaller than the window along an axis, the window
// covers that whole axis.
func (st SizeTiers) CookieBounds(a, b, x, y float32, width, height int32) (Bounds, Tier) {
	tier, s := st.Classify(a, b)
	left, right := axisBounds(float64(x), s, width)
	top, bottom := axisBounds(float64(y), s, height)
	return Bounds{Left: left, Right: right, Top: top, Bottom: bottom}, tier
}

func axisBounds(c float64, s, max int32) (lo, hi int32) {
	fs, fmax := float64(s), float64(max)
	if c-fs < 0 {
		lo, hi = 0, 2*s
	} else if c+fs > fmax {
		lo, hi = int32(math.Floor(fmax-2*fs)), max
	} else {
		lo, hi = int32(math.RoundToEven(c-fs)), int32(math.RoundToEven(c+fs))
	}
	if lo < 0 {
		lo = 0
	}
	if hi > max {
		hi = max
	}
	return lo, hi
}

// Number of sources per tier
type TierCounts struct {
	Small   int `json:"small"`
	Medium  int `json:"medium"`
	Default int `json:"default"`
}

func (tc *TierCounts) add(t Tier) {
	switch t {
	case TierSmall:
		tc.Small++
	case TierMedium:
		tc.Medium++
	default:
		tc.Default++
	}
}

func (tc TierCounts) Total() int { return tc.Small + tc.Medium + tc.Default }

// A copy of the original pixels around one source
type Cookie struct {
	Bounds Bounds
	Pixels []float32 // row-major, Bounds.Width() pixels per row
	X, Y   float32
	A, B   float32
	Tier   Tier
}

// Cuts a cookie from data around every catalog entry, in catalog order.
// Does not modify data. Nil for non-positive width
func CutCookies(data []float32, width int32, entries []catalog.Entry, tiers SizeTiers) ([]Cookie, TierCounts) {
	if width <= 0 {
		return nil, TierCounts{}
	}
	height := int32(len(data)) / width
	cookies := make([]Cookie, 0, len(entries))
	var counts TierCounts
	for _, e := range entries {
		bounds, tier := tiers.CookieBounds(e.A, e.B, e.X, e.Y, width, height)
		counts.add(tier)

		w := bounds.Width()
		pixels := make([]float32, int(w)*int(bounds.Height()))
		for row := bounds.Top; row < bounds.Bottom; row++ {
			src := data[row*width+bounds.Left : row*width+bounds.Right]
			copy(pixels[(row-bounds.Top)*w:], src)
		}
		cookies = append(cookies, Cookie{
			Bounds: bounds,
			Pixels: pixels,
			X:      e.X,
			Y:      e.Y,
			A:      e.A,
			B:      e.B,
			Tier:   tier,
		})
	}
	return cookies, counts
}
