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
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"runtime/debug"
	"runtime/pprof"
	"strings"
	"time"

	"github.com/klauspost/cpuid"
	"github.com/pbnjay/memory"
	"gopkg.in/yaml.v3"

	"github.com/balco-astro/balco/internal/catalog"
	"github.com/balco-astro/balco/internal/codec"
	"github.com/balco-astro/balco/internal/config"
	"github.com/balco-astro/balco/internal/fake"
	"github.com/balco-astro/balco/internal/fits"
	"github.com/balco-astro/balco/internal/logging"
	"github.com/balco-astro/balco/internal/ops"
	"github.com/balco-astro/balco/internal/rest"
	"github.com/balco-astro/balco/internal/shave"
	"github.com/balco-astro/balco/internal/star"
	"github.com/balco-astro/balco/internal/stats"
)

const version = "0.3.0"

var cpuprofile = flag.String("cpuprofile", "", "write cpu profile to `file`")
var memprofile = flag.String("memprofile", "", "write memory profile to `file`")

var cfgFile = flag.String("config", "balco.yaml", "read settings from YAML `file`. Flags given on the command line take precedence")
var log = flag.String("log", "", "save log output to `file`")

var out = flag.String("out", "bs_%s.fits", "save shaved images with given filename pattern. `%s` is replaced by the input base name")
var preview = flag.Bool("preview", false, "save 8bit JPEG previews of the shaved images")
var residual = flag.Bool("residual", false, "save JPEG heat maps of the residuals between original and shaved images")
var quality = flag.Int("quality", 95, "JPEG `quality` for previews")
var report = flag.String("report", "", "append a TSV line with statistics and compression factor per image to `file`")

var bits = flag.Int("bits", 4, "number of low-order `bits` to shave, 1..5")
var mode = flag.String("mode", "bs", "shaving mode: bs (whole image), cc (cookie cut) or masking")
var threshold = flag.Float64("threshold", float64(shave.DefaultThreshold), "pixels above this `value` are flagged as sources")
var cat = flag.String("catalog", "", "source catalog `file`. %auto uses the input name with .cat suffix, %stars runs the built-in star detector")
var crop = flag.Int("crop", 0, "crop given number of `pixels` from each border before shaving")
var restoreFlags = flag.Bool("restoreFlags", false, "write flagged pixels back after shaving")
var zeroNegatives = flag.Bool("zeroNegatives", false, "set negative values to zero before quantizing")

var starSig = flag.Float64("starSig", 15, "sigma for star detection")
var starBpSig = flag.Float64("starBpSig", 5, "sigma for star detection bad pixel removal, 0 disables")
var starRadius = flag.Int("starRadius", 16, "radius for star detection")

var codecName = flag.String("codec", "gzip", "codec for measuring the compression factor: none, gzip, zstd or s2")
var spectrum = flag.Bool("spectrum", false, "add the mean residual power spectrum to the report")

var threads = flag.Int("threads", 0, "number of images to process in parallel, 0 for the number of CPUs")
var memFrac = flag.Float64("memory", 0.7, "`fraction` of physical memory images in flight may use")

var addr = flag.String("addr", ":8080", "listen `address` for the REST server")
var chroot = flag.String("chroot", "", "chroot to `directory` before serving")
var setuid = flag.Int("setuid", -1, "change user id to `uid` before serving")

var fakeOut = flag.String("fakeOut", "fake.fits", "save synthetic field to `file`, with its catalog next to it")
var seed = flag.Uint64("seed", 1, "random `seed` for synthetic fields, 0 for a random field")

func main() {
	logWriter := logging.Writer()
	debug.SetGCPercent(10)
	start := time.Now()
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, `Balco Copyright (c) 2020 Markus L. Noga
This program comes with ABSOLUTELY NO WARRANTY.
This is free software, and you are welcome to redistribute it under certain conditions.
Refer to https://www.gnu.org/licenses/gpl-3.0.en.html for details.

Usage: %s [-flag value] (shave|stats|fake|serve|config|legal|version) (img0.fits ... imgn.fits)

Commands:
  shave   Shave low-order bits off input images, preserving sources
  stats   Show input image statistics
  fake    Generate a synthetic star field and its catalog
  serve   Run the REST server
  config  Write the effective configuration as YAML to the given file, or to stdout
  legal   Show license and attribution information
  version Show version information

Flags:
`, os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	if *log != "" {
		if err := logging.LogAlsoToFile(*log); err != nil {
			logging.LogFatalf("Unable to open logfile '%s'\n", *log)
		}
	}

	// Enable CPU profiling if flagged
	if *cpuprofile != "" {
		f, err := os.Create(*cpuprofile)
		if err != nil {
			logging.LogFatal("Could not create CPU profile: ", err)
		}
		defer f.Close()
		if err := pprof.StartCPUProfile(f); err != nil {
			logging.LogFatal("Could not start CPU profile: ", err)
		}
		defer pprof.StopCPUProfile()
	}

	args := flag.Args()
	if len(args) < 1 {
		flag.Usage()
		return
	}

	cfg, err := loadConfig()
	if err != nil {
		logging.LogFatalf("Error: %v\n", err)
	}

	failed := 0
	switch args[0] {
	case "shave":
		logSystem()
		failed, err = cmdShave(cfg, args[1:])

	case "stats":
		failed = cmdStats(cfg, args[1:])

	case "fake":
		err = cmdFake(cfg, *fakeOut)

	case "serve":
		logSystem()
		err = cmdServe(cfg)

	case "config":
		err = cmdConfig(cfg, args[1:])

	case "legal":
		cmdLegal()

	case "version":
		logging.LogPrintf("Version %s\n", version)
		logSystem()

	case "help", "?":
		flag.Usage()

	default:
		fmt.Fprintf(os.Stderr, "Unknown command '%s'\n\n", args[0])
		flag.Usage()
		os.Exit(2)
	}

	if args[0] == "shave" || args[0] == "stats" {
		fmt.Fprintf(logWriter, "\nDone after %v\n", time.Since(start))
	}

	// Store memory profile if flagged
	if *memprofile != "" {
		f, err := os.Create(*memprofile)
		if err != nil {
			logging.LogFatal("Could not create memory profile: ", err)
		}
		defer f.Close()
		runtime.GC() // get up-to-date statistics
		if err := pprof.Lookup("allocs").WriteTo(f, 0); err != nil {
			logging.LogFatal("Could not write allocation profile: ", err)
		}
	}

	if err != nil {
		logging.LogPrintf("Error: %v\n", err)
		logging.LogSync()
		os.Exit(1)
	}
	logging.LogSync()
	if failed > 0 {
		os.Exit(1)
	}
}

// Loads the YAML configuration and applies the flags set on the command line
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfig(*cfgFile)
	if err != nil {
		return nil, err
	}
	var errs []string
	flag.Visit(func(f *flag.Flag) {
		if err := applyFlag(cfg, f.Name); err != nil {
			errs = append(errs, err.Error())
		}
	})
	if len(errs) > 0 {
		return nil, fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return cfg, cfg.Validate()
}

func applyFlag(cfg *config.Config, name string) (err error) {
	switch name {
	case "out":
		cfg.Output.Pattern = *out
	case "preview":
		cfg.Output.Preview = *preview
	case "residual":
		cfg.Output.Residual = *residual
	case "quality":
		cfg.Output.JPGQuality = *quality
	case "report":
		cfg.Output.Report = *report
	case "bits":
		cfg.Shave.Bits = *bits
	case "mode":
		cfg.Shave.Mode, err = shave.ParseMode(*mode)
	case "threshold":
		cfg.Shave.Threshold = float32(*threshold)
	case "catalog":
		cfg.Input.Catalog = *cat
	case "crop":
		cfg.Input.Crop = int32(*crop)
	case "restoreFlags":
		cfg.Shave.RestoreFlags = *restoreFlags
	case "zeroNegatives":
		cfg.Shave.Quantize.ZeroNegatives = *zeroNegatives
	case "starSig":
		cfg.Star.Sigma = float32(*starSig)
	case "starBpSig":
		cfg.Star.BadPixelSigma = float32(*starBpSig)
	case "starRadius":
		cfg.Star.Radius = int32(*starRadius)
	case "codec":
		cfg.Report.Codec, err = codec.ParseCodec(*codecName)
	case "spectrum":
		cfg.Report.Spectrum = *spectrum
	case "threads":
		cfg.Processing.MaxThreads = *threads
	case "memory":
		cfg.Processing.MemoryFraction = *memFrac
	case "addr":
		cfg.Server.Addr = *addr
	case "seed":
		cfg.Fake.Seed = *seed
	}
	return err
}

// Logs the CPU and memory the process runs on
func logSystem() {
	c := cpuid.CPU
	logging.LogPrintf("Running on %s with %d physical cores, %d logical cores and %d MB of memory.\n",
		c.BrandName, c.PhysicalCores, c.LogicalCores, memory.TotalMemory()/1024/1024)
	logging.LogPrintf("CPU features: %s\n", strings.Join(c.Features.Strings(), " "))
}

// Shaves all files matching the given patterns. Returns the number of failed images
func cmdShave(cfg *config.Config, patterns []string) (int, error) {
	if len(patterns) == 0 {
		return 0, fmt.Errorf("%w: no input files", shave.ErrInvalidParameter)
	}
	if cfg.Shave.Mode.NeedsCatalog() && cfg.Input.Catalog == "" {
		cfg.Input.Catalog = config.CatalogAuto
	}
	logging.LogPrintf("Shaving %d bits in %s mode, threshold %g, catalog '%s'\n",
		cfg.Shave.Bits, cfg.Shave.Mode, cfg.Shave.Threshold, cfg.Input.Catalog)

	c := ops.NewContext(logging.Writer(), cfg.Processing.MaxThreads, cfg.Processing.MemoryFraction)
	return ops.RunBatch(ops.NewBatch(cfg, patterns), c)
}

// Prints statistics, histogram peak and star count for each file. Returns the number of failed images
func cmdStats(cfg *config.Config, patterns []string) (failed int) {
	names, err := ops.NewOpLoadMany(patterns).FileNames(ops.NewContext(logging.Writer(), 1, 1))
	if err != nil {
		logging.LogPrintf("Error: %v\n", err)
		return 1
	}
	for id, name := range names {
		f, err := fits.NewImageFromFile(name, id, logging.Writer())
		if err != nil {
			logging.LogPrintf("Error: %v\n", err)
			failed++
			continue
		}
		s := f.UpdateStats()
		peak, fwhm := stats.PeakFWHM(f.Data, cfg.Report.HistogramBins)
		msg := fmt.Sprintf("%d: %s %s %s Peak %d FWHM %.4g", id, name, f.DimensionsToString(), s, peak, fwhm)
		if len(f.Naxisn) == 2 {
			stars, location, scale, hfr := star.Detect(f.Data, f.Width(), cfg.Star)
			msg += fmt.Sprintf(" Background %.6g Noise %.4g Stars %d HFR %.3g", location, scale, len(stars), hfr)
		}
		logging.LogPrintln(msg)
	}
	return failed
}

// Generates a synthetic field and writes it as FITS, with the catalog of its
// gaussian stars next to it
func cmdFake(cfg *config.Config, fileName string) error {
	field, err := fake.Generate(cfg.Fake)
	if err != nil {
		return err
	}
	img := fits.NewImageFromNaxisn(field.Naxisn(), field.Data)
	img.Bitpix = 16
	img.Bzero = 32768
	img.FileName = fileName
	if err := img.WriteFile(fileName, logging.Writer()); err != nil {
		return err
	}

	catName := ops.CatalogFileName(config.CatalogAuto, img)
	cf, err := os.Create(catName)
	if err != nil {
		return fmt.Errorf("%w: %w", fits.ErrIO, err)
	}
	defer cf.Close()
	if err := catalog.Write(cf, field.Truth); err != nil {
		return fmt.Errorf("%w: %w", fits.ErrIO, err)
	}
	logging.LogPrintf("Wrote %dx%d field with %d stars to %s and %s\n",
		field.Width, field.Height, len(field.Truth), fileName, catName)
	return cf.Close()
}

// Runs the REST server until it fails
func cmdServe(cfg *config.Config) error {
	if err := rest.MakeSandbox(*chroot, *setuid, logging.Writer()); err != nil {
		return err
	}
	return rest.NewServer(cfg, logging.Writer()).Serve(cfg.Server.Addr)
}

// Writes the effective configuration to the given file, or to stdout
func cmdConfig(cfg *config.Config, args []string) error {
	if len(args) > 0 {
		if err := config.SaveConfig(cfg, args[0]); err != nil {
			return err
		}
		logging.LogPrintf("Wrote configuration to %s\n", filepath.Clean(args[0]))
		return nil
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	logging.LogPrint(string(data))
	return nil
}
