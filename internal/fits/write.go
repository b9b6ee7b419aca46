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
	"io"
	"math"
	"os"
	"path"
	"regexp"
	"strings"

	"github.com/astrogo/fitsio"
	"github.com/klauspost/compress/gzip"
)

// Keys the FITS writer generates from the image structure itself
var reStructuralKey = regexp.MustCompile(`^(SIMPLE|XTENSION|BITPIX|NAXIS[0-9]*|EXTEND|PCOUNT|GCOUNT|BZERO|BSCALE|END)$`)

// Writes the image to the named file. Compresses with gzip if the name ends in .gz
func (f *Image) WriteFile(fileName string, logWriter io.Writer) (err error) {
	file, err := os.Create(fileName)
	if err != nil {
		return fmt.Errorf("%d: %w: %v", f.ID, ErrIO, err)
	}
	defer func() {
		if cerr := file.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("%d: %w: %v", f.ID, ErrIO, cerr)
		}
	}()

	bw := bufio.NewWriter(file)
	var w io.Writer = bw
	var gz *gzip.Writer
	if strings.ToLower(path.Ext(fileName)) == ".gz" {
		gz = gzip.NewWriter(bw)
		w = gz
	}
	if err = f.Write(w, logWriter); err != nil {
		return err
	}
	if gz != nil {
		if err = gz.Close(); err != nil {
			return fmt.Errorf("%d: %w: %v", f.ID, ErrIO, err)
		}
	}
	if err = bw.Flush(); err != nil {
		return fmt.Errorf("%d: %w: %v", f.ID, ErrIO, err)
	}
	return nil
}

// Writes the image as a primary HDU in the on-disk encoding given by Bitpix,
// Bzero and Bscale. Integer values are rounded half to even and clamped to the
// encodable range. All non-structural header cards are preserved in order
func (f *Image) Write(w io.Writer, logWriter io.Writer) error {
	axes := make([]int, len(f.Naxisn))
	for i, n := range f.Naxisn {
		axes[i] = int(n)
	}
	raw, err := f.encodeData()
	if err != nil {
		return err
	}

	file, err := fitsio.Create(w)
	if err != nil {
		return fmt.Errorf("%d: %w: %v", f.ID, ErrIO, err)
	}
	im := fitsio.NewImage(int(f.Bitpix), axes)
	defer im.Close()

	hdr := im.Header()
	if f.Bitpix > 0 && (f.Bzero != 0 || f.Bscale != 1) {
		scaling := []fitsio.Card{
			{Name: "BZERO", Value: float64(f.Bzero), Comment: "physical = BZERO + BSCALE * array"},
			{Name: "BSCALE", Value: float64(f.Bscale)},
		}
		if err := hdr.Append(scaling...); err != nil {
			return fmt.Errorf("%d: %w: %v", f.ID, ErrIO, err)
		}
	}
	for _, c := range f.Header.Cards {
		if reStructuralKey.MatchString(c.Key) {
			continue
		}
		card := fitsio.Card{Name: c.Key, Value: c.Value, Comment: c.Comment}
		if v, ok := c.Value.(int64); ok {
			card.Value = int(v)
		}
		if err := hdr.Append(card); err != nil {
			fmt.Fprintf(logWriter, "%d: Warning: dropping header card %s: %v\n", f.ID, c.Key, err)
		}
	}

	if err := im.Write(raw); err != nil {
		return fmt.Errorf("%d: %w: %v", f.ID, ErrIO, err)
	}
	if err := file.Write(im); err != nil {
		return fmt.Errorf("%d: %w: %v", f.ID, ErrIO, err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("%d: %w: %v", f.ID, ErrIO, err)
	}
	return nil
}

// Converts the physical pixel values to the on-disk representation
func (f *Image) encodeData() (interface{}, error) {
	bzero, bscale := float64(f.Bzero), float64(f.Bscale)
	if bscale == 0 {
		bscale = 1
	}
	toRaw := func(v float32, min, max float64) float64 {
		r := math.RoundToEven((float64(v) - bzero) / bscale)
		if math.IsNaN(r) {
			return 0
		}
		return math.Max(min, math.Min(max, r))
	}

	switch f.Bitpix {
	case 8:
		raw := make([]uint8, len(f.Data))
		for i, v := range f.Data {
			raw[i] = uint8(toRaw(v, 0, math.MaxUint8))
		}
		return raw, nil
	case 16:
		raw := make([]int16, len(f.Data))
		for i, v := range f.Data {
			raw[i] = int16(toRaw(v, math.MinInt16, math.MaxInt16))
		}
		return raw, nil
	case 32:
		raw := make([]int32, len(f.Data))
		for i, v := range f.Data {
			raw[i] = int32(toRaw(v, math.MinInt32, math.MaxInt32))
		}
		return raw, nil
	case 64:
		raw := make([]int64, len(f.Data))
		for i, v := range f.Data {
			raw[i] = int64(toRaw(v, math.MinInt64, math.MaxInt64))
		}
		return raw, nil
	case -32:
		return append([]float32(nil), f.Data...), nil
	case -64:
		raw := make([]float64, len(f.Data))
		for i, v := range f.Data {
			raw[i] = float64(v)
		}
		return raw, nil
	}
	return nil, fmt.Errorf("%d: %w: unknown BITPIX value %d", f.ID, ErrIO, f.Bitpix)
}
