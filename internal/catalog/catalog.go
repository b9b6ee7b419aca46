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

// Package catalog reads source catalogs as produced by SExtractor in ASCII_HEAD format.
package catalog

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/balco-astro/balco/internal/star"
)

// Returned for catalog rows which cannot be parsed
var ErrFormat = errors.New("malformed catalog")

// Minimum number of columns per row: FLUX_AUTO X_IMAGE Y_IMAGE A_IMAGE B_IMAGE
const MinColumns = 5

// A detected source. Positions are in pixels, axis sizes in pixels.
// The optional columns are zero when the catalog does not provide them
type Entry struct {
	Flux        float32 `json:"flux"`
	X           float32 `json:"x"`
	Y           float32 `json:"y"`
	A           float32 `json:"a"`
	B           float32 `json:"b"`
	FluxRadius  float32 `json:"fluxRadius,omitempty"`
	Ellipticity float32 `json:"ellipticity,omitempty"`
	Elongation  float32 `json:"elongation,omitempty"`
	Alpha       float64 `json:"alpha,omitempty"`
	Delta       float64 `json:"delta,omitempty"`
}

// Reads a catalog from the file with the given name
func ReadFile(fileName string) ([]Entry, error) {
	f, err := os.Open(fileName)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Read(f)
}

// Reads a whitespace-delimited catalog, one source per row. Lines starting with #
// and blank lines are skipped. A catalog with a single row is valid
func Read(r io.Reader) ([]Entry, error) {
	entries := []Entry{}
	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || line[0] == '#' {
			continue
		}
		e, err := parseLine(line)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
		entries = append(entries, e)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

func parseLine(line string) (e Entry, err error) {
	fields := strings.Fields(line)
	if len(fields) < MinColumns {
		return e, fmt.Errorf("%w: %d columns, need at least %d", ErrFormat, len(fields), MinColumns)
	}
	vals := make([]float64, len(fields))
	for i, f := range fields {
		if vals[i], err = strconv.ParseFloat(f, 64); err != nil {
			return e, fmt.Errorf("%w: column %d: %v", ErrFormat, i+1, err)
		}
	}

	e = Entry{
		Flux: float32(vals[0]),
		X:    float32(vals[1]),
		Y:    float32(vals[2]),
		A:    float32(vals[3]),
		B:    float32(vals[4]),
	}
	optional := []*float32{&e.FluxRadius, &e.Ellipticity, &e.Elongation}
	for i, p := range optional {
		if MinColumns+i < len(vals) {
			*p = float32(vals[MinColumns+i])
		}
	}
	if len(vals) > 8 {
		e.Alpha = vals[8]
	}
	if len(vals) > 9 {
		e.Delta = vals[9]
	}
	return e, nil
}

// Writes entries in the same format Read accepts, with a SExtractor style column header
func Write(w io.Writer, entries []Entry) error {
	bw := bufio.NewWriter(w)
	for i, name := range columnNames {
		fmt.Fprintf(bw, "#%4d %s\n", i+1, name)
	}
	for _, e := range entries {
		fmt.Fprintf(bw, "%g %g %g %g %g %g %g %g %.7f %.7f\n", e.Flux, e.X, e.Y, e.A, e.B,
			e.FluxRadius, e.Ellipticity, e.Elongation, e.Alpha, e.Delta)
	}
	return bw.Flush()
}

var columnNames = []string{"FLUX_AUTO", "X_IMAGE", "Y_IMAGE", "A_IMAGE", "B_IMAGE",
	"FLUX_RADIUS", "ELLIPTICITY", "ELONGATION", "ALPHA_J2000", "DELTA_J2000"}

// Converts star detections into catalog entries. Uses the star mass as flux and
// the half-flux radius for both axes, as the detector finds round sources only
func FromStars(stars []star.Star) []Entry {
	entries := make([]Entry, len(stars))
	for i, s := range stars {
		entries[i] = Entry{
			Flux:       s.Mass,
			X:          s.X,
			Y:          s.Y,
			A:          s.HFR,
			B:          s.HFR,
			FluxRadius: s.HFR,
			Elongation: 1,
		}
	}
	return entries
}
