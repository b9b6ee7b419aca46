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
	"path/filepath"
	"strings"

	"github.com/balco-astro/balco/internal/catalog"
	"github.com/balco-astro/balco/internal/config"
	"github.com/balco-astro/balco/internal/fits"
	"github.com/balco-astro/balco/internal/shave"
	"github.com/balco-astro/balco/internal/star"
)

// Bit-shaves an image, preserving catalog sources as the mode requires.
// Takes one input, produces one output with the shaved data
type OpShave struct {
	OpUnaryBase
	Params       shave.Params `json:"params"`
	Catalog      string       `json:"catalog"` // file name pattern, %auto or %stars
	Star         star.Params  `json:"star"`    // detector settings for %stars
	KeepOriginal bool         `json:"keepOriginal"`
}

func init() { SetOperatorFactory(func() Operator { return NewOpShaveDefault() }) } // register the operator for JSON decoding

func NewOpShaveDefault() *OpShave { return NewOpShave(shave.DefaultParams(), "", star.DefaultParams()) }

func NewOpShave(params shave.Params, cat string, starParams star.Params) *OpShave {
	op := OpShave{
		OpUnaryBase: OpUnaryBase{OpBase: OpBase{Type: "shave", Active: true}},
		Params:      params,
		Catalog:     cat,
		Star:        starParams,
	}
	op.OpUnaryBase.Apply = op.Apply // assign class method to superclass abstract method
	return &op
}

func (op *OpShave) Apply(f *fits.Image, c *Context) (result *fits.Image, err error) {
	if !op.Active {
		return f, nil
	}
	if err := op.Params.Validate(); err != nil {
		return nil, fmt.Errorf("%d: %w", f.ID, err)
	}
	if len(f.Naxisn) == 0 {
		return nil, fmt.Errorf("%d: %w: image has no axes", f.ID, shave.ErrInvalidParameter)
	}

	var entries []catalog.Entry
	if op.Params.Mode.NeedsCatalog() {
		if entries, err = op.loadCatalog(f, c); err != nil {
			return nil, err
		}
	}

	res, err := shave.Run(f.Data, f.Width(), entries, op.Params)
	if err != nil {
		return nil, fmt.Errorf("%d: %w", f.ID, err)
	}
	q := res.Quantize
	fmt.Fprintf(c.Log, "%d: Shaved %d bits in %s mode, median %g min %g, %d flagged pixels above %g, %d boundary corrections\n",
		f.ID, op.Params.Bits, op.Params.Mode, q.Median, q.Min, len(res.Flags), op.Params.Threshold, q.Corrections)
	if q.Negatives > 0 {
		fmt.Fprintf(c.Log, "%d: Set %d negative pixels to zero\n", f.ID, q.Negatives)
	}
	switch op.Params.Mode {
	case shave.CookieCut:
		fmt.Fprintf(c.Log, "%d: Spliced %d cookies (small %d, medium %d, default %d)\n",
			f.ID, res.Cookies, res.Tiers.Small, res.Tiers.Medium, res.Tiers.Default)
	case shave.Masking:
		fmt.Fprintf(c.Log, "%d: Restored %d residual pixels of %d sources\n", f.ID, res.Residuals, res.Tiers.Total())
	}

	result = fits.NewImageFromImage(f, res.Data)
	result.Header.AddHistory(fmt.Sprintf("balco: shaved %d bits, mode %s, threshold %g", op.Params.Bits, op.Params.Mode, op.Params.Threshold))
	if op.KeepOriginal {
		result.Original = f.Data
	}
	return result, nil
}

// Reads or detects the catalog for the given image. Positions from catalog files
// are shifted by the LTV1/LTV2 offsets a crop recorded
func (op *OpShave) loadCatalog(f *fits.Image, c *Context) ([]catalog.Entry, error) {
	switch op.Catalog {
	case "":
		return nil, fmt.Errorf("%d: %w: %s mode needs a catalog", f.ID, shave.ErrInvalidParameter, op.Params.Mode)
	case config.CatalogDetect:
		stars, location, scale, hfr := star.Detect(f.Data, f.Width(), op.Star)
		fmt.Fprintf(c.Log, "%d: Detected %d stars, background %g scale %g, average HFR %.2f\n",
			f.ID, len(stars), location, scale, hfr)
		return catalog.FromStars(stars), nil
	}

	fileName := CatalogFileName(op.Catalog, f)
	if err := c.checkPath(fileName); err != nil {
		return nil, fmt.Errorf("%d: %w", f.ID, err)
	}
	entries, err := catalog.ReadFile(fileName)
	if err != nil {
		return nil, fmt.Errorf("%d: catalog %s: %w: %w", f.ID, fileName, fits.ErrIO, err)
	}
	ltv1, _ := f.Header.Float("LTV1")
	ltv2, _ := f.Header.Float("LTV2")
	if ltv1 != 0 || ltv2 != 0 {
		for i := range entries {
			entries[i].X += ltv1
			entries[i].Y += ltv2
		}
	}
	fmt.Fprintf(c.Log, "%d: Read %d sources from %s\n", f.ID, len(entries), fileName)
	return entries, nil
}

// Catalog file name for the image. %auto maps a.fits to a.cat in the same
// directory, other patterns expand like save patterns
func CatalogFileName(pattern string, f *fits.Image) string {
	if pattern == config.CatalogAuto {
		dir := filepath.Dir(f.FileName)
		return filepath.Join(dir, BaseName(f.FileName)+".cat")
	}
	if strings.Contains(pattern, "%") {
		return ExpandPattern(pattern, f)
	}
	return pattern
}
