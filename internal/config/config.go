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

// Package config loads and saves the YAML configuration of balco.
// Missing files yield the defaults, so a fresh install runs without one.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"gopkg.in/yaml.v3"

	"github.com/balco-astro/balco/internal/codec"
	"github.com/balco-astro/balco/internal/fake"
	"github.com/balco-astro/balco/internal/report"
	"github.com/balco-astro/balco/internal/shave"
	"github.com/balco-astro/balco/internal/star"
)

// Special catalog settings
const (
	CatalogAuto   = "%auto"  // input file name with .cat suffix
	CatalogDetect = "%stars" // run the built-in star detector
)

// Config represents the application configuration loaded from YAML
type Config struct {
	Shave shave.Params `yaml:"shave"`
	Star  star.Params  `yaml:"star"`

	Input struct {
		// Catalog file name, CatalogAuto or CatalogDetect. Empty means no catalog
		Catalog string `yaml:"catalog"`

		// Border pixels to crop on each side before shaving, 0 to disable
		Crop int32 `yaml:"crop"`
	} `yaml:"input"`

	Output struct {
		// File name pattern, %s is replaced by the input base name without extension
		Pattern string `yaml:"pattern"`

		// Write a JPEG preview of the shaved image and a heat map of the residuals
		Preview    bool `yaml:"preview"`
		Residual   bool `yaml:"residual"`
		JPGQuality int  `yaml:"jpgQuality"`

		// TSV report file, one line per image. Empty to disable
		Report string `yaml:"report"`
	} `yaml:"output"`

	Report struct {
		report.Options `yaml:",inline"`

		// Codec used to measure the compression factor
		Codec codec.Codec `yaml:"codec"`
	} `yaml:"report"`

	Processing struct {
		// Maximum number of images processed concurrently, 0 for the number of CPUs
		MaxThreads int `yaml:"maxThreads"`

		// Fraction of physical memory images in flight may occupy
		MemoryFraction float64 `yaml:"memoryFraction"`
	} `yaml:"processing"`

	Fake fake.Params `yaml:"fake"`

	Server struct {
		Addr string `yaml:"addr"`
	} `yaml:"server"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{
		Shave: shave.DefaultParams(),
		Star:  star.DefaultParams(),
		Fake:  fake.DefaultParams(),
	}
	cfg.Output.Pattern = "bs_%s.fits"
	cfg.Output.JPGQuality = 95
	cfg.Report.Options = report.DefaultOptions()
	cfg.Report.Codec = codec.Gzip
	cfg.Processing.MaxThreads = runtime.NumCPU()
	cfg.Processing.MemoryFraction = 0.7
	cfg.Server.Addr = ":8080"
	return cfg
}

// Checks the configuration for values the pipeline cannot run with
func (cfg *Config) Validate() error {
	if err := cfg.Shave.Validate(); err != nil {
		return err
	}
	if cfg.Input.Crop < 0 {
		return fmt.Errorf("%w: negative crop %d", shave.ErrInvalidParameter, cfg.Input.Crop)
	}
	if cfg.Output.JPGQuality < 1 || cfg.Output.JPGQuality > 100 {
		return fmt.Errorf("%w: jpg quality %d outside 1..100", shave.ErrInvalidParameter, cfg.Output.JPGQuality)
	}
	if f := cfg.Processing.MemoryFraction; f <= 0 || f > 1 {
		return fmt.Errorf("%w: memory fraction %g outside (0,1]", shave.ErrInvalidParameter, f)
	}
	return nil
}

// LoadConfig loads configuration from a YAML file.
// If the file doesn't exist, it returns the default configuration
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}
	return cfg, nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(cfg *Config, configPath string) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}
	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}
	return nil
}
