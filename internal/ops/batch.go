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

	"github.com/balco-astro/balco/internal/config"
	"github.com/balco-astro/balco/internal/fits"
)

// Builds the shaving pipeline for the given file patterns from the configuration:
// load, then per image crop, shave, save, preview and report
func NewBatch(cfg *config.Config, patterns []string) *OpSequence {
	opShave := NewOpShave(cfg.Shave, cfg.Input.Catalog, cfg.Star)
	opShave.KeepOriginal = cfg.Output.Report != "" || cfg.Output.Residual

	dir := filepath.Dir(cfg.Output.Pattern)
	previewPattern, residualPattern := "", ""
	if cfg.Output.Preview {
		previewPattern = filepath.Join(dir, "%s_preview.jpg")
	}
	if cfg.Output.Residual {
		residualPattern = filepath.Join(dir, "%s_residual.jpg")
	}

	opReport := NewOpReport(cfg.Output.Report, cfg.Report.Options, cfg.Report.Codec)
	opReport.Active = cfg.Output.Report != ""

	perImage := NewOpSequence(
		NewOpCrop(cfg.Input.Crop),
		opShave,
		NewOpSave(cfg.Output.Pattern),
		NewOpPreview(previewPattern, residualPattern, cfg.Output.JPGQuality),
		opReport,
	)
	return NewOpSequence(NewOpLoadMany(patterns), NewOpForEach(perImage))
}

// Runs a pipeline which starts by loading files, with concurrency limited by the
// context and by the memory the first image needs. Failing images are logged and
// skipped. Returns the number of failed images, and an error if the pipeline could
// not be set up at all
func RunBatch(seq *OpSequence, c *Context) (failed int, err error) {
	promises, err := seq.MakePromises(nil, c)
	if err != nil {
		return 0, err
	}
	threads := c.ThreadsFor(estimatePixels(seq, c))
	fmt.Fprintf(c.Log, "Physical memory is %d MB, using up to %d MB for %d images in flight.\n",
		c.MemoryMB, c.ImageMemoryMB, threads)

	_, errs := materialize(promises, threads, true)
	for _, e := range errs {
		fmt.Fprintf(c.Log, "Error: %v\n", e)
	}
	if err := c.Close(); err != nil {
		fmt.Fprintf(c.Log, "Error: closing reports: %v\n", err)
	}
	fmt.Fprintf(c.Log, "Processed %d images, %d failed.\n", len(promises), len(errs))
	return len(errs), nil
}

// Reads the header of the first file the pipeline loads to estimate image size
func estimatePixels(seq *OpSequence, c *Context) int64 {
	if len(seq.Steps) == 0 {
		return 0
	}
	loader, ok := seq.Steps[0].(*OpLoadMany)
	if !ok {
		return 0
	}
	names, err := loader.FileNames(c)
	if err != nil || len(names) == 0 {
		return 0
	}
	f := fits.NewImage()
	if err := f.ReadFile(names[0], false, c.Log); err != nil {
		return 0
	}
	return int64(f.Pixels)
}
