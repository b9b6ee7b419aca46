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

package main

import (
	"errors"
	"flag"
	"io"
	"path/filepath"
	"testing"

	"github.com/balco-astro/balco/internal/catalog"
	"github.com/balco-astro/balco/internal/codec"
	"github.com/balco-astro/balco/internal/config"
	"github.com/balco-astro/balco/internal/fits"
	"github.com/balco-astro/balco/internal/shave"
)

func TestLoadConfigFlags(t *testing.T) {
	*cfgFile = filepath.Join(t.TempDir(), "missing.yaml")
	for name, value := range map[string]string{
		"bits": "2", "mode": "cc", "codec": "rice", "crop": "50", "threads": "3", "zeroNegatives": "true",
	} {
		if err := flag.Set(name, value); err != nil {
			t.Fatal(err)
		}
	}
	defer flag.Set("mode", "bs")

	cfg, err := loadConfig()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Shave.Bits != 2 || cfg.Shave.Mode != shave.CookieCut || !cfg.Shave.Quantize.ZeroNegatives {
		t.Errorf("shave params %+v", cfg.Shave)
	}
	if cfg.Report.Codec != codec.S2 || cfg.Input.Crop != 50 || cfg.Processing.MaxThreads != 3 {
		t.Errorf("codec %v crop %d threads %d", cfg.Report.Codec, cfg.Input.Crop, cfg.Processing.MaxThreads)
	}
	// unset flags keep the configured defaults
	if cfg.Output.Pattern != config.DefaultConfig().Output.Pattern {
		t.Errorf("pattern %q", cfg.Output.Pattern)
	}

	flag.Set("mode", "unsharp")
	if _, err := loadConfig(); err == nil {
		t.Errorf("expected error for unknown mode")
	}
	flag.Set("mode", "bs")
	flag.Set("bits", "7")
	defer flag.Set("bits", "4")
	if _, err := loadConfig(); !errors.Is(err, shave.ErrInvalidParameter) {
		t.Errorf("expected ErrInvalidParameter, got %v", err)
	}
}

func TestCmdFake(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Fake.Width, cfg.Fake.Height = 64, 48
	cfg.Fake.Stars, cfg.Fake.StarSize, cfg.Fake.Margin = 2, 10, 5
	cfg.Fake.PointStars, cfg.Fake.CosmicRays = 3, 1

	fileName := filepath.Join(t.TempDir(), "field.fits")
	if err := cmdFake(cfg, fileName); err != nil {
		t.Fatal(err)
	}
	f, err := fits.NewImageFromFile(fileName, 0, io.Discard)
	if err != nil {
		t.Fatal(err)
	}
	if f.Width() != 64 || f.Height() != 48 || f.Bitpix != 16 {
		t.Errorf("got %s bitpix %d", f.DimensionsToString(), f.Bitpix)
	}
	entries, err := catalog.ReadFile(filepath.Join(filepath.Dir(fileName), "field.cat"))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 5 {
		t.Errorf("got %d catalog entries, want 5", len(entries))
	}
}
