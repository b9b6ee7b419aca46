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

// Package report compares original and shaved images and writes the results as TSV.
package report

import (
	"bytes"
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/balco-astro/balco/internal/codec"
	"github.com/balco-astro/balco/internal/fits"
	"github.com/balco-astro/balco/internal/stats"
)

// Which of the images of a comparison to look at
type Version int

const (
	Original Version = iota
	Compressed
	Residual
)

var versionNames = []string{"original", "compressed", "residual"}

func (v Version) String() string {
	if v < 0 || int(v) >= len(versionNames) {
		return fmt.Sprintf("Version(%d)", int(v))
	}
	return versionNames[v]
}

func ParseVersion(s string) (Version, error) {
	for i, n := range versionNames {
		if strings.EqualFold(s, n) {
			return Version(i), nil
		}
	}
	return Original, fmt.Errorf("unknown version %q", s)
}

// Settings for a comparison
type Options struct {
	HistogramBins int  `json:"histogramBins" yaml:"histogramBins"` // Bins for peak and FWHM, 0 to skip
	Spectrum      bool `json:"spectrum"      yaml:"spectrum"`      // Compute the residual power spectrum
}

func DefaultOptions() Options {
	return Options{HistogramBins: 10000, Spectrum: false}
}

// Comparison of an original image with its shaved version
type Comparison struct {
	Name      string
	Naxisn    []int32
	Original  []float32 `json:"-"`
	Shaved    []float32 `json:"-"`
	Residuals []float32 `json:"-"` // original minus shaved

	Stats      [3]*stats.Stats // indexed by Version
	MaxAbsDiff float32

	Peak int32   // histogram peak count of the original
	FWHM float32 // histogram full width at half maximum of the original

	HasSpectrum    bool
	ResidualPower  float64 // mean power of the residual spectrum
	ResidualPSDMin float64
	ResidualPSDMax float64

	Codec  codec.Codec
	Factor float32 // raw over compressed size of the shaved FITS stream
}

// Compares original and shaved pixel data of the given dimensions. Spectrum
// failures are logged and skipped, they do not fail the comparison
func Compare(name string, original, shaved []float32, naxisn []int32, opts Options, logWriter io.Writer) (*Comparison, error) {
	if len(original) != len(shaved) {
		return nil, fmt.Errorf("%s: %w: %d original vs %d shaved pixels", name, stats.ErrDimensionMismatch, len(original), len(shaved))
	}
	c := &Comparison{
		Name:      name,
		Naxisn:    append([]int32(nil), naxisn...),
		Original:  original,
		Shaved:    shaved,
		Residuals: make([]float32, len(original)),
	}
	for i := range original {
		c.Residuals[i] = original[i] - shaved[i]
	}
	c.Stats[Original] = stats.NewStats(original)
	c.Stats[Compressed] = stats.NewStats(shaved)
	c.Stats[Residual] = stats.NewStats(c.Residuals)
	c.MaxAbsDiff = stats.MaxAbsDiff(original, shaved)

	if opts.HistogramBins > 1 {
		c.Peak, c.FWHM = stats.PeakFWHM(original, opts.HistogramBins)
	}
	if opts.Spectrum {
		if err := c.spectrum(); err != nil {
			fmt.Fprintf(logWriter, "%s: skipping residual spectrum: %v\n", name, err)
		}
	}
	return c, nil
}

func (c *Comparison) spectrum() error {
	var psd []float64
	var err error
	if len(c.Naxisn) == 2 {
		psd, err = stats.PowerSpectrum2D(c.Residuals, c.Naxisn, 1)
		if err == nil {
			c.ResidualPower = stats.MeanPower(psd)
		}
	} else {
		_, psd, err = stats.PowerSpectrum1D(c.Residuals, c.Naxisn)
		if err == nil {
			c.ResidualPower = stats.MeanPower(psd)
		}
	}
	if err != nil {
		return err
	}
	c.ResidualPSDMin, c.ResidualPSDMax = math.Inf(1), math.Inf(-1)
	for _, p := range psd {
		a := math.Abs(p)
		c.ResidualPSDMin = math.Min(c.ResidualPSDMin, a)
		c.ResidualPSDMax = math.Max(c.ResidualPSDMax, a)
	}
	c.HasSpectrum = true
	return nil
}

// Returns the statistics of the given version
func (c *Comparison) StatsOf(v Version) *stats.Stats {
	return c.Stats[v]
}

// Difference of mean, median and standard deviation, original minus shaved
func (c *Comparison) Difference() (mean, median, stdDev float32) {
	return stats.Difference(c.Stats[Original], c.Stats[Compressed])
}

// Serializes the shaved image to FITS and measures its compression factor with
// the given codec. Stores codec and factor in the comparison
func (c *Comparison) MeasureFactor(img *fits.Image, cd codec.Codec, logWriter io.Writer) error {
	var buf bytes.Buffer
	if err := img.Write(&buf, logWriter); err != nil {
		return err
	}
	f, err := codec.Factor(cd, buf.Bytes())
	if err != nil {
		return fmt.Errorf("%d: %s: %w", img.ID, cd, err)
	}
	c.Codec, c.Factor = cd, f
	return nil
}

// Prints human readable statistics of the given version
func (c *Comparison) Print(w io.Writer, v Version) {
	s := c.Stats[v]
	title := strings.ToUpper(v.String()[:1]) + v.String()[1:] + " image"
	fmt.Fprintf(w, "\n%s\n%s\nMean: %g\nMedian: %g\nStandard Deviation: %g\n",
		title, strings.Repeat("-", 22), s.Mean, s.Median, s.StdDev)
}

// Column names of the TSV report, in the order Line writes them
func Header() string {
	var s stats.Stats
	cols := []string{"Name", "Codec", "Factor",
		s.Header("Orig", "\t"), s.Header("Shaved", "\t"), s.Header("Resid", "\t"),
		"MaxAbsDiff", "Peak", "FWHM", "ResidPower", "ResidPSDMin", "ResidPSDMax"}
	return strings.Join(cols, "\t")
}

// One TSV line for this comparison. Unavailable spectrum values are written as NaN
func (c *Comparison) Line() string {
	power, psdMin, psdMax := math.NaN(), math.NaN(), math.NaN()
	if c.HasSpectrum {
		power, psdMin, psdMax = c.ResidualPower, c.ResidualPSDMin, c.ResidualPSDMax
	}
	cols := []string{c.Name, c.Codec.String(), fmt.Sprintf("%g", c.Factor),
		c.Stats[Original].Line("\t"), c.Stats[Compressed].Line("\t"), c.Stats[Residual].Line("\t"),
		fmt.Sprintf("%g", c.MaxAbsDiff), fmt.Sprintf("%d", c.Peak), fmt.Sprintf("%g", c.FWHM),
		fmt.Sprintf("%g", power), fmt.Sprintf("%g", psdMin), fmt.Sprintf("%g", psdMax)}
	return strings.Join(cols, "\t")
}

// Writes a TSV report, with header line if requested
func WriteTSV(w io.Writer, comparisons []*Comparison, header bool) error {
	if header {
		if _, err := fmt.Fprintln(w, Header()); err != nil {
			return err
		}
	}
	for _, c := range comparisons {
		if c == nil {
			continue
		}
		if _, err := fmt.Fprintln(w, c.Line()); err != nil {
			return err
		}
	}
	return nil
}
