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

	"github.com/balco-astro/balco/internal/fits"
)

// Saves the image under a file name pattern. %s expands to the input base name,
// %d to the image id. The suffix selects the format: FITS optionally gzipped,
// 16-bit TIFF or JPEG. Takes one input, produces one output (the unchanged input)
type OpSave struct {
	OpUnaryBase
	FilePattern string `json:"filePattern"`
}

func init() { SetOperatorFactory(func() Operator { return NewOpSaveDefault() }) } // register the operator for JSON decoding

func NewOpSaveDefault() *OpSave { return NewOpSave("") }

func NewOpSave(filenamePattern string) *OpSave {
	op := OpSave{
		OpUnaryBase: OpUnaryBase{OpBase: OpBase{Type: "save", Active: filenamePattern != ""}},
		FilePattern: filenamePattern,
	}
	op.OpUnaryBase.Apply = op.Apply // assign class method to superclass abstract method
	return &op
}

func (op *OpSave) Apply(f *fits.Image, c *Context) (result *fits.Image, err error) {
	if !op.Active || op.FilePattern == "" {
		return f, nil
	}
	fileName := ExpandPattern(op.FilePattern, f)
	if err := c.checkPath(fileName); err != nil {
		return nil, fmt.Errorf("%d: %w", f.ID, err)
	}
	fnLower := strings.ToLower(fileName)

	switch {
	case hasAnySuffix(fnLower, ".fits", ".fit", ".fts", ".fits.gz", ".fit.gz", ".fts.gz", ".fits.gzip", ".fit.gzip", ".fts.gzip"):
		fmt.Fprintf(c.Log, "%d: Writing %s pixel FITS to %s\n", f.ID, f.DimensionsToString(), fileName)
		err = f.WriteFile(fileName, c.Log)
	case hasAnySuffix(fnLower, ".tif", ".tiff"):
		min, max := displayRange(f)
		fmt.Fprintf(c.Log, "%d: Writing %s pixel 16-bit TIFF to %s\n", f.ID, f.DimensionsToString(), fileName)
		err = f.WriteMonoTIFF16ToFile(fileName, min, max, 1)
	case hasAnySuffix(fnLower, ".jpeg", ".jpg"):
		if len(f.Naxisn) != 2 {
			return nil, fmt.Errorf("%d: unable to write %s pixel image as JPEG to %s", f.ID, f.DimensionsToString(), fileName)
		}
		min, max := displayRange(f)
		fmt.Fprintf(c.Log, "%d: Writing %s pixel mono JPEG to %s\n", f.ID, f.DimensionsToString(), fileName)
		err = f.WriteMonoJPGToFile(fileName, min, max, 1, 95)
	default:
		err = fmt.Errorf("unknown suffix")
	}
	if err != nil {
		return nil, fmt.Errorf("%d: error writing to file %s: %w", f.ID, fileName, err)
	}
	return f, nil
}

func hasAnySuffix(s string, suffixes ...string) bool {
	for _, suffix := range suffixes {
		if strings.HasSuffix(s, suffix) {
			return true
		}
	}
	return false
}

// Expands %s in pattern to the base name of the image file without directory and
// extensions, and %d to the image id
func ExpandPattern(pattern string, f *fits.Image) string {
	name := strings.ReplaceAll(pattern, "%s", BaseName(f.FileName))
	if strings.Contains(name, "%d") {
		name = strings.ReplaceAll(name, "%d", fmt.Sprintf("%d", f.ID))
	}
	return name
}

// Returns the file name without directory and without image or compression extensions
func BaseName(fileName string) string {
	base := filepath.Base(fileName)
	for _, ext := range []string{".gz", ".gzip", ".fits", ".fit", ".fts", ".tiff", ".tif"} {
		if strings.HasSuffix(strings.ToLower(base), ext) {
			base = base[:len(base)-len(ext)]
		}
	}
	return base
}

// Display range for previews: from three sigma below the median up to
// twenty sigma above, clamped to the data range
func displayRange(f *fits.Image) (min, max float32) {
	s := f.Stats
	if s == nil {
		s = f.UpdateStats()
	}
	min, max = s.Median-3*s.StdDev, s.Median+20*s.StdDev
	if min < s.Min {
		min = s.Min
	}
	if max > s.Max {
		max = s.Max
	}
	if max <= min {
		max = min + 1
	}
	return min, max
}
