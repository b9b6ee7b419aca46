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

package ops

import (
	"fmt"

	"github.com/balco-astro/balco/internal/fits"
)

// Writes JPEG previews of the shaved image and, if the original was kept, a heat
// map of the residuals. Patterns expand like save patterns, empty disables.
// Takes one input, produces one output (the unchanged input)
type OpPreview struct {
	OpUnaryBase
	FilePattern     string `json:"filePattern"`
	ResidualPattern string `json:"residualPattern"`
	Quality         int    `json:"quality"`
}

func init() { SetOperatorFactory(func() Operator { return NewOpPreviewDefault() }) } // register the operator for JSON decoding

func NewOpPreviewDefault() *OpPreview { return NewOpPreview("", "", 95) }

func NewOpPreview(filePattern, residualPattern string, quality int) *OpPreview {
	op := OpPreview{
		OpUnaryBase:     OpUnaryBase{OpBase: OpBase{Type: "preview", Active: filePattern != "" || residualPattern != ""}},
		FilePattern:     filePattern,
		ResidualPattern: residualPattern,
		Quality:         quality,
	}
	op.OpUnaryBase.Apply = op.Apply // assign class method to superclass abstract method
	return &op
}

func (op *OpPreview) Apply(f *fits.Image, c *Context) (result *fits.Image, err error) {
	if !op.Active {
		return f, nil
	}
	if len(f.Naxisn) != 2 {
		fmt.Fprintf(c.Log, "%d: Skipping preview of %s pixel image\n", f.ID, f.DimensionsToString())
		return f, nil
	}

	if op.FilePattern != "" {
		fileName := ExpandPattern(op.FilePattern, f)
		if err := c.checkPath(fileName); err != nil {
			return nil, fmt.Errorf("%d: %w", f.ID, err)
		}
		min, max := displayRange(f)
		fmt.Fprintf(c.Log, "%d: Writing preview to %s\n", f.ID, fileName)
		if err := f.WriteMonoJPGToFile(fileName, min, max, 1, op.Quality); err != nil {
			return nil, fmt.Errorf("%d: error writing preview %s: %w", f.ID, fileName, err)
		}
	}

	if op.ResidualPattern != "" {
		if f.Original == nil {
			fmt.Fprintf(c.Log, "%d: No original data kept, skipping residual preview\n", f.ID)
			return f, nil
		}
		fileName := ExpandPattern(op.ResidualPattern, f)
		if err := c.checkPath(fileName); err != nil {
			return nil, fmt.Errorf("%d: %w", f.ID, err)
		}
		residual := make([]float32, len(f.Data))
		for i := range residual {
			residual[i] = f.Original[i] - f.Data[i]
		}
		fmt.Fprintf(c.Log, "%d: Writing residual heat map to %s\n", f.ID, fileName)
		if err := fits.WriteResidualJPGToFile(fileName, residual, f.Width(), op.Quality); err != nil {
			return nil, fmt.Errorf("%d: error writing residual preview %s: %w", f.ID, fileName, err)
		}
	}
	return f, nil
}
