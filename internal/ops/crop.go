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

// Removes a border of the given number of pixels on each side. Records the
// offset in the IRAF LTV1/LTV2 keywords, so catalog positions measured on the
// uncropped frame can be mapped. Takes one input, produces one output
type OpCrop struct {
	OpUnaryBase
	Border int32 `json:"border"`
}

func init() { SetOperatorFactory(func() Operator { return NewOpCropDefault() }) } // register the operator for JSON decoding

func NewOpCropDefault() *OpCrop { return NewOpCrop(0) }

func NewOpCrop(border int32) *OpCrop {
	op := OpCrop{
		OpUnaryBase: OpUnaryBase{OpBase: OpBase{Type: "crop", Active: border > 0}},
		Border:      border,
	}
	op.OpUnaryBase.Apply = op.Apply // assign class method to superclass abstract method
	return &op
}

func (op *OpCrop) Apply(f *fits.Image, c *Context) (result *fits.Image, err error) {
	if !op.Active || op.Border <= 0 {
		return f, nil
	}
	result, err = f.Crop(op.Border)
	if err != nil {
		return nil, err
	}
	for _, key := range []string{"LTV1", "LTV2"} {
		ltv, _ := f.Header.Float(key)
		result.Header.Set(key, ltv-float32(op.Border), "offset of image to physical coordinates")
	}
	fmt.Fprintf(c.Log, "%d: Cropped %d pixels per side, %s to %s\n", f.ID, op.Border,
		f.DimensionsToString(), result.DimensionsToString())
	return result, nil
}
