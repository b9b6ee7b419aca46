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

package fits

import (
	"errors"
	"fmt"
	"strings"

	"github.com/balco-astro/balco/internal/stats"
)

// Returned, wrapped, for unreadable or unwritable images
var ErrIO = errors.New("i/o failure")

// A FITS image.
// Spec here:   https://fits.gsfc.nasa.gov/standard40/fits_standard40aa-le.pdf
// Primer here: https://fits.gsfc.nasa.gov/fits_primer.html
type Image struct {
	ID       int    // Sequential ID number, for log output. Counted upwards from 0
	FileName string // Original file name, if any, for log output.

	Header Header  // The header with all keys, values, comments, history entries etc.
	Bitpix int32   // Bits per pixel value on disk. Positive values are integral, negative floating.
	Bzero  float32 // Zero offset on disk. True pixel value is Bzero + Bscale * raw value.
	Bscale float32 // Value scaler on disk. Helps implement unsigned values with signed data types.
	Naxisn []int32 // Axis dimensions. Most quickly varying dimension first (i.e. X,Y)
	Pixels int32   // Number of pixels in the image. Product of Naxisn[]

	Data []float32 // The image data, with Bzero and Bscale applied

	Original []float32 // Data before lossy processing, if retained for comparison

	Stats *stats.Stats // Basic image statistics, if calculated
}

// Creates a FITS image initialized with empty header
func NewImage() *Image {
	return &Image{
		Header: NewHeader(),
		Bscale: 1,
	}
}

// Creates a FITS image from given naxisn. Data is not copied, allocated if nil. naxisn is deep copied
func NewImageFromNaxisn(naxisn []int32, data []float32) *Image {
	numPixels := int32(1)
	for _, naxis := range naxisn {
		numPixels *= naxis
	}
	if data == nil {
		data = make([]float32, numPixels)
	}
	return &Image{
		Header: NewHeader(),
		Bitpix: -32,
		Bzero:  0,
		Bscale: 1,
		Naxisn: append([]int32(nil), naxisn...), // clone slice
		Pixels: numPixels,
		Data:   data,
	}
}

// Creates a FITS image with the metadata of the given image and the given data,
// which must match its dimensions. Allocates new data if nil
func NewImageFromImage(img *Image, data []float32) *Image {
	if data == nil {
		data = make([]float32, img.Pixels)
	}
	return &Image{
		ID:       img.ID,
		FileName: img.FileName,
		Header:   img.Header.Clone(),
		Bitpix:   img.Bitpix,
		Bzero:    img.Bzero,
		Bscale:   img.Bscale,
		Naxisn:   append([]int32(nil), img.Naxisn...), // clone slice
		Pixels:   img.Pixels,
		Data:     data,
	}
}

// Deep copy of the image including its data
func (f *Image) Clone() *Image {
	return NewImageFromImage(f, append([]float32(nil), f.Data...))
}

func (f *Image) Width() int32 {
	if len(f.Naxisn) == 0 {
		return 0
	}
	return f.Naxisn[0]
}

func (f *Image) Height() int32 {
	if len(f.Naxisn) < 2 {
		return 1
	}
	return f.Naxisn[1]
}

func (f *Image) DimensionsToString() string {
	b := strings.Builder{}
	for i, naxis := range f.Naxisn {
		if i > 0 {
			fmt.Fprintf(&b, "x%d", naxis)
		} else {
			fmt.Fprintf(&b, "%d", naxis)
		}
	}
	return b.String()
}

// Returns a new image with border pixels removed on each side.
// Only two-dimensional images can be cropped
func (f *Image) Crop(border int32) (*Image, error) {
	if len(f.Naxisn) != 2 {
		return nil, fmt.Errorf("%d: cannot crop %d-dimensional image", f.ID, len(f.Naxisn))
	}
	width, height := f.Naxisn[0], f.Naxisn[1]
	if border < 0 || 2*border >= width || 2*border >= height {
		return nil, fmt.Errorf("%d: crop border %d too large for %s image", f.ID, border, f.DimensionsToString())
	}
	newWidth, newHeight := width-2*border, height-2*border
	data := make([]float32, newWidth*newHeight)
	for y := int32(0); y < newHeight; y++ {
		src := f.Data[(y+border)*width+border : (y+border)*width+border+newWidth]
		copy(data[y*newWidth:], src)
	}
	res := NewImageFromImage(f, data)
	res.Naxisn[0], res.Naxisn[1] = newWidth, newHeight
	res.Pixels = newWidth * newHeight
	return res, nil
}

// Calculates and stores basic statistics
func (f *Image) UpdateStats() *stats.Stats {
	f.Stats = stats.NewStats(f.Data)
	return f.Stats
}

// Equal tells whether a and b contain the same elements.
// A nil argument is equivalent to an empty slice.
func EqualInt32Slice(a, b []int32) bool {
	if len(a) != len(b) {
		return false
	}
	for i, v := range a {
		if v != b[i] {
			return false
		}
	}
	return true
}
