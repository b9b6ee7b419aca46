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
	"bufio"
	"fmt"
	"image"
	"image/color"
	"io"
	"math"
	"os"

	"golang.org/x/image/tiff"
)

func (f *Image) WriteMonoTIFF16ToFile(fileName string, min, max, gamma float32) error {
	file, err := os.Create(fileName)
	if err != nil {
		return fmt.Errorf("%d: %w: %v", f.ID, ErrIO, err)
	}
	defer file.Close()

	writer := bufio.NewWriter(file)
	defer writer.Flush()

	return f.WriteMonoTIFF16(writer, min, max, gamma)
}

// Writes the first plane of the image as 16-bit grayscale TIFF, mapping [min,max] to the full range
func (f *Image) WriteMonoTIFF16(writer io.Writer, min, max, gamma float32) error {
	width, height := int(f.Width()), int(f.Height())
	img := image.NewGray16(image.Rectangle{image.Point{0, 0}, image.Point{width, height}})
	scale := 1 / (max - min)
	gammaInv := float64(1.0 / gamma)
	for y := 0; y < height; y++ {
		yoffset := y * width
		for x := 0; x < width; x++ {
			gray := f.Data[yoffset+x]
			gray = (gray - min) * scale
			// replace NaNs with zeros for export, else TIFF output breaks
			if math.IsNaN(float64(gray)) || gray < 0 {
				gray = 0
			}
			if gray > 1 {
				gray = 1
			}
			if gammaInv != 1.0 {
				gray = float32(math.Pow(float64(gray), gammaInv))
			}
			img.SetGray16(x, y, color.Gray16{uint16(gray * 65535)})
		}
	}

	return tiff.Encode(writer, img, &tiff.Options{Compression: tiff.Deflate, Predictor: true})
}

func (f *Image) ReadTIFFFile(fileName string) error {
	file, err := os.Open(fileName)
	if err != nil {
		return fmt.Errorf("%d: %w: %v", f.ID, ErrIO, err)
	}
	defer file.Close()
	return f.ReadTIFF(bufio.NewReader(file))
}

// Reads a TIFF image as 16-bit grayscale. Colour images are converted to luminance.
// The image is marked as unsigned 16 bit, so it is written back as BITPIX 16 with BZERO 32768
func (f *Image) ReadTIFF(reader io.Reader) error {
	t, err := tiff.Decode(reader)
	if err != nil {
		return fmt.Errorf("%d: %w: %v", f.ID, ErrIO, err)
	}

	width, height := t.Bounds().Dx(), t.Bounds().Dy()
	minX, minY := t.Bounds().Min.X, t.Bounds().Min.Y

	f.Bitpix = 16
	f.Bzero, f.Bscale = 32768, 1
	f.Naxisn = []int32{int32(width), int32(height)}
	f.Pixels = int32(width) * int32(height)
	f.Data = make([]float32, f.Pixels)

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			c := color.Gray16Model.Convert(t.At(minX+x, minY+y)).(color.Gray16)
			f.Data[y*width+x] = float32(c.Y)
		}
	}
	return nil
}
