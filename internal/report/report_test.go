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

package report

import (
	"bytes"
	"io"
	"math"
	"strings"
	"testing"

	"github.com/balco-astro/balco/internal/codec"
	"github.com/balco-astro/balco/internal/fits"
)

func TestCompare(t *testing.T) {
	original := []float32{10, 20, 30, 40}
	shaved := []float32{8, 20, 32, 40}
	c, err := Compare("test", original, shaved, []int32{2, 2}, Options{HistogramBins: 4, Spectrum: true}, io.Discard)
	if err != nil {
		t.Fatal(err)
	}
	if c.MaxAbsDiff != 2 {
		t.Errorf("MaxAbsDiff: got %v want 2", c.MaxAbsDiff)
	}
	res := c.StatsOf(Residual)
	if res.Min != -2 || res.Max != 2 || res.Mean != 0 {
		t.Errorf("residual stats: got %v", res)
	}
	mean, median, _ := c.Difference()
	if mean != 0 || median != -1 {
		t.Errorf("difference: got mean %v median %v want 0, -1", mean, median)
	}
	if c.StatsOf(Original).Median != 25 {
		t.Errorf("original median: got %v", c.StatsOf(Original).Median)
	}
	if c.Peak != 1 {
		t.Errorf("peak: got %d want 1", c.Peak)
	}
	// mean power equals the mean squared residual
	if !c.HasSpectrum || math.Abs(c.ResidualPower-2) > 1e-9 {
		t.Errorf("residual power: got %v %v want 2", c.HasSpectrum, c.ResidualPower)
	}
	if c.ResidualPSDMin > c.ResidualPSDMax {
		t.Errorf("psd range: %v > %v", c.ResidualPSDMin, c.ResidualPSDMax)
	}
}

func TestCompareErrors(t *testing.T) {
	if _, err := Compare("bad", []float32{1, 2}, []float32{1}, []int32{2}, DefaultOptions(), io.Discard); err == nil {
		t.Errorf("expected length mismatch error")
	}

	var log bytes.Buffer
	data := make([]float32, 8)
	c, err := Compare("cube", data, data, []int32{2, 2, 2}, Options{Spectrum: true}, &log)
	if err != nil {
		t.Fatal(err)
	}
	if c.HasSpectrum || !strings.Contains(log.String(), "dimension mismatch") {
		t.Errorf("expected logged spectrum skip, got %v %q", c.HasSpectrum, log.String())
	}

	line := make([]float32, 512)
	for i := range line {
		line[i] = float32(i % 3)
	}
	c, err = Compare("line", line, make([]float32, 512), []int32{512}, Options{Spectrum: true}, io.Discard)
	if err != nil || !c.HasSpectrum {
		t.Errorf("1D spectrum: got %v %v", c.HasSpectrum, err)
	}
}

func TestTSV(t *testing.T) {
	c, err := Compare("img.fits", []float32{1, 2, 3, 4}, []float32{1, 2, 3, 4}, []int32{2, 2}, DefaultOptions(), io.Discard)
	if err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	if err := WriteTSV(&buf, []*Comparison{c, nil}, true); err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines want 2", len(lines))
	}
	head, vals := strings.Split(lines[0], "\t"), strings.Split(lines[1], "\t")
	if len(head) != len(vals) {
		t.Errorf("header has %d columns, line has %d", len(head), len(vals))
	}
	if vals[0] != "img.fits" || vals[1] != "none" || vals[len(vals)-1] != "NaN" {
		t.Errorf("unexpected line %q", lines[1])
	}
}

func TestMeasureFactor(t *testing.T) {
	data := make([]float32, 64*64)
	for i := range data {
		data[i] = float32(1024 + 16*(i%2))
	}
	img := fits.NewImageFromNaxisn([]int32{64, 64}, data)
	img.Bitpix, img.Bzero = 16, 32768
	c, err := Compare("flat", data, data, img.Naxisn, Options{}, io.Discard)
	if err != nil {
		t.Fatal(err)
	}
	if err := c.MeasureFactor(img, codec.Zstd, io.Discard); err != nil {
		t.Fatal(err)
	}
	if c.Codec != codec.Zstd || c.Factor <= 1 {
		t.Errorf("got codec %v factor %v", c.Codec, c.Factor)
	}
}

func TestParseVersion(t *testing.T) {
	for _, v := range []Version{Original, Compressed, Residual} {
		got, err := ParseVersion(strings.ToUpper(v.String()))
		if err != nil || got != v {
			t.Errorf("%v: got %v, %v", v, got, err)
		}
	}
	if _, err := ParseVersion("difference"); err == nil {
		t.Errorf("expected error")
	}
}
