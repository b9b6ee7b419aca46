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
	"image/jpeg"
	"io"
	"math"
	"os"

	colorful "github.com/lucasb-eyer/go-colorful"
)

func (f *Image) WriteMonoJPGToFile(fileName string, min, max, gamma float32, quality int) error {
	file, err := os.Create(fileName)
	if err != nil {
		return fmt.Errorf("%d: %w: %v", f.ID, ErrIO, err)
	}
	defer file.Close()

	writer := bufio.NewWriter(file)
	defer writer.Flush()

	return f.WriteMonoJPG(writer, min, max, gamma, quality)
}

// Writes the image as grayscale JPEG, mapping [min,max] to black and white
func (f *Image) WriteMonoJPG(writer io.Writer, min, max, gamma float32, quality int) error {
	// convert pixels into Golang Image
	width, height := int(f.Width()), int(f.Height())
	img := image.NewGray(image.Rectangle{image.Point{0, 0}, image.Point{width, height}})
	scale := 1.0 / (max - min)
	gammaInv := float64(1.0 / gamma)
	for y := 0; y < height; y++ {
		yoffset := y * width
		for x := 0; x < width; x++ {
			gray := f.Data[yoffset+x]
			gray = (gray - min) * scale
			// replace NaNs with zeros for export, else JPG output breaks
			if math.IsNaN(float64(gray)) || gray < 0 {
				gray = 0
			}
			if gray > 1 {
				gray = 1
			}
			if gammaInv != 1.0 {
				gray = float32(math.Pow(float64(gray), gammaInv))
			}
			img.SetGray(x, y, color.Gray{uint8(gray * 255)})
		}
	}

	return jpeg.Encode(writer, img, &jpeg.Options{Quality: quality})
}

var (
	heatNegative = colorful.Color{R: 0.1, G: 0.3, B: 0.9}
	heatZero     = colorful.Color{R: 1, G: 1, B: 1}
	heatPositive = colorful.Color{R: 0.9, G: 0.15, B: 0.1}
)

// Maps a residual in [-1,1] to a diverging blue-white-red colour, blended in CIE L*a*b*
func heatColor(v float64) color.RGBA {
	var c colorful.Color
	if v < 0 {
		c = heatZero.BlendLab(heatNegative, math.Min(-v, 1))
	} else {
		c = heatZero.BlendLab(heatPositive, math.Min(v, 1))
	}
	r, g, b := c.Clamped().RGB255()
	return color.RGBA{r, g, b, 255}
}

func WriteResidualJPGToFile(fileName string, residual []float32, width int32, quality int) error {
	file, err := os.Create(fileName)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrIO, err)
	}
	defer file.Close()

	writer := bufio.NewWriter(file)
	defer writer.Flush()

	return WriteResidualJPG(writer, residual, width, quality)
}

// Writes a heatmap of the given residual, scaled by its maximum absolute value
func WriteResidualJPG(writer io.Writer, residual []float32, width int32, quality int) error {
	height := int32(len(residual)) / width
	maxAbs := float32(0)
	for _, r := range residual {
		if r > maxAbs {
			maxAbs = r
		} else if -r > maxAbs {
			maxAbs = -r
		}
	}
	scale := float64(1)
	if maxAbs > 0 {
		scale = 1 / float64(maxAbs)
	}

	img := image.NewRGBA(image.Rect(0, 0, int(width), int(height)))
	for y := int32(0); y < height; y++ {
		for x := int32(0); x < width; x++ {
			img.SetRGBA(int(x), int(y), heatColor(float64(residual[y*width+x])*scale))
		}
	}
	return jpeg.Encode(writer, img, &jpeg.Options{Quality: quality})
}
