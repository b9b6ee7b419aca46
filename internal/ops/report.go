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
	"bufio"
	"fmt"
	"os"
	"sync"

	"github.com/balco-astro/balco/internal/codec"
	"github.com/balco-astro/balco/internal/fits"
	"github.com/balco-astro/balco/internal/report"
)

// Compares the shaved image with its original, logs the statistics and appends a
// line to a TSV report file. Needs the original kept by the shave operator.
// Takes one input, produces one output (the unchanged input)
type OpReport struct {
	OpUnaryBase
	FileName string         `json:"fileName"` // TSV file, empty to log only
	Options  report.Options `json:"options"`
	Codec    codec.Codec    `json:"codec"`
}

func init() { SetOperatorFactory(func() Operator { return NewOpReportDefault() }) } // register the operator for JSON decoding

func NewOpReportDefault() *OpReport { return NewOpReport("", report.DefaultOptions(), codec.Gzip) }

func NewOpReport(fileName string, opts report.Options, cd codec.Codec) *OpReport {
	op := OpReport{
		OpUnaryBase: OpUnaryBase{OpBase: OpBase{Type: "report", Active: true}},
		FileName:    fileName,
		Options:     opts,
		Codec:       cd,
	}
	op.OpUnaryBase.Apply = op.Apply // assign class method to superclass abstract method
	return &op
}

func (op *OpReport) Apply(f *fits.Image, c *Context) (result *fits.Image, err error) {
	if !op.Active {
		return f, nil
	}
	if f.Original == nil {
		fmt.Fprintf(c.Log, "%d: No original data kept, skipping report\n", f.ID)
		return f, nil
	}
	cmp, err := report.Compare(f.FileName, f.Original, f.Data, f.Naxisn, op.Options, c.Log)
	if err != nil {
		return nil, fmt.Errorf("%d: %w", f.ID, err)
	}
	if op.Codec != codec.None {
		if err := cmp.MeasureFactor(f, op.Codec, c.Log); err != nil {
			return nil, err
		}
	}

	mean, median, stdDev := cmp.Difference()
	fmt.Fprintf(c.Log, "%d: Original %v\n%d: Shaved   %v\n%d: Difference mean %g median %g stddev %g, max abs %g, %s factor %.3f\n",
		f.ID, cmp.StatsOf(report.Original), f.ID, cmp.StatsOf(report.Compressed),
		f.ID, mean, median, stdDev, cmp.MaxAbsDiff, cmp.Codec, cmp.Factor)
	if cmp.HasSpectrum {
		fmt.Fprintf(c.Log, "%d: Residual power %g, PSD range %g..%g\n", f.ID, cmp.ResidualPower, cmp.ResidualPSDMin, cmp.ResidualPSDMax)
	}

	if op.FileName != "" {
		if err := c.checkPath(op.FileName); err != nil {
			return nil, fmt.Errorf("%d: %w", f.ID, err)
		}
		sink, err := c.reportSink(op.FileName)
		if err != nil {
			return nil, fmt.Errorf("%d: %w: %v", f.ID, fits.ErrIO, err)
		}
		if err := sink.write(cmp); err != nil {
			return nil, fmt.Errorf("%d: %w: %v", f.ID, fits.ErrIO, err)
		}
	}
	return f, nil
}

// A TSV report file shared by all images of a batch
type reportSink struct {
	mu   sync.Mutex
	file *os.File
	w    *bufio.Writer
}

// Returns the sink for the named report, creating the file with a header line on first use
func (c *Context) reportSink(fileName string) (*reportSink, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if r, ok := c.reports[fileName]; ok {
		return r, nil
	}
	file, err := os.Create(fileName)
	if err != nil {
		return nil, err
	}
	r := &reportSink{file: file, w: bufio.NewWriter(file)}
	if err := report.WriteTSV(r.w, nil, true); err != nil {
		file.Close()
		return nil, err
	}
	if c.reports == nil {
		c.reports = map[string]*reportSink{}
	}
	c.reports[fileName] = r
	return r, nil
}

func (r *reportSink) write(cmp *report.Comparison) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := report.WriteTSV(r.w, []*report.Comparison{cmp}, false); err != nil {
		return err
	}
	return r.w.Flush()
}

func (r *reportSink) close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	err := r.w.Flush()
	if cerr := r.file.Close(); err == nil {
		err = cerr
	}
	return err
}
