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

	"github.com/balco-astro/balco/internal/catalog"
)

// Tuning parameters for one shaving run
type Params struct {
	Mode         Mode            `json:"mode" yaml:"mode"`
	Bits         int             `json:"bits" yaml:"bits"`
	Threshold    float32         `json:"threshold" yaml:"threshold"`
	Tiers        SizeTiers       `json:"tiers" yaml:"tiers"`
	Quantize     QuantizeOptions `json:"quantize" yaml:"quantize"`
	RestoreFlags bool            `json:"restoreFlags" yaml:"restoreFlags"`
}

func DefaultParams() Params {
	return Params{
		Mode:      WholeImage,
		Bits:      4,
		Threshold: DefaultThreshold,
		Tiers:     DefaultSizeTiers(),
	}
}

func (p Params) Validate() error {
	if p.Bits < MinBits || p.Bits > MaxBits {
		return fmt.Errorf("%w: bits must be in %d..%d, got %d", ErrInvalidParameter, MinBits, MaxBits, p.Bits)
	}
	if _, ok := modeNames[p.Mode]; !ok {
		return fmt.Errorf("%w: unknown mode %d", ErrInvalidParameter, int(p.Mode))
	}
	if p.Mode.NeedsCatalog() {
		return p.Tiers.Validate()
	}
	return nil
}

// Outcome of a shaving run
type Result struct {
	Data      []float32
	Flags     []FlaggedPixel
	Quantize  *QuantizeResult
	Tiers     TierCounts
	Cookies   int
	Residuals int
}

// Runs the shaving pipeline on one image of the given width: locate flagged pixels,
// preserve source regions according to the mode, quantize, and restore. Entries
// are ignored in WholeImage mode. Does not modify data
func Run(data []float32, width int32, entries []catalog.Entry, p Params) (*Result, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if width <= 0 || len(data)%int(width) != 0 {
		return nil, fmt.Errorf("%w: %d pixels do not fill rows of width %d", ErrInvalidParameter, len(data), width)
	}

	res := &Result{Flags: Locate(data, width, p.Threshold)}

	var cookies []Cookie
	var residuals []Residual
	switch p.Mode {
	case CookieCut:
		cookies, res.Tiers = CutCookies(data, width, entries, p.Tiers)
		res.Cookies = len(cookies)
	case Masking:
		residuals, res.Tiers = MaskResiduals(data, width, entries, p.Tiers)
		res.Residuals = len(residuals)
	}

	q, err := QuantizeDetailed(data, p.Bits, p.Quantize)
	if err != nil {
		return nil, err
	}
	res.Quantize, res.Data = q, q.Data

	switch p.Mode {
	case CookieCut:
		Splice(res.Data, width, cookies)
	case Masking:
		RestoreResiduals(res.Data, width, residuals)
	}
	if p.RestoreFlags {
		RestoreFlags(res.Data, width, res.Flags)
	}
	return res, nil
}
