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

// Package ops implements the JSON-serializable image processing operators which
// make up a shaving pipeline, and the promise machinery to run them concurrently.
package ops

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"github.com/pbnjay/memory"

	"github.com/balco-astro/balco/internal/fits"
)

// Bytes held per pixel while an image is in flight: original, shaved copy,
// quantizer work array, residuals and cookie pixels
const bytesPerPixelInFlight = 24

// An execution context for operators
type Context struct {
	Log           io.Writer
	MemoryMB      int  // memory.TotalMemory()/1024/1024
	ImageMemoryMB int  // share of MemoryMB images in flight may occupy
	MaxThreads    int  `json:"maxThreads"`
	RestrictPaths bool // only relative paths inside the working directory, for the REST server

	mu      sync.Mutex
	reports map[string]*reportSink
}

func NewContext(log io.Writer, maxThreads int, memoryFraction float64) *Context {
	memoryMB := int(memory.TotalMemory() / 1024 / 1024)
	if maxThreads <= 0 {
		maxThreads = runtime.GOMAXPROCS(0)
	}
	if memoryFraction <= 0 || memoryFraction > 1 {
		memoryFraction = 0.7
	}
	return &Context{
		Log:           log,
		MemoryMB:      memoryMB,
		ImageMemoryMB: int(float64(memoryMB) * memoryFraction),
		MaxThreads:    maxThreads,
	}
}

// Number of images of the given size which can be processed concurrently
// within the memory budget, at least one and at most MaxThreads
func (c *Context) ThreadsFor(pixels int64) int {
	threads := c.MaxThreads
	if pixels <= 0 || c.ImageMemoryMB <= 0 {
		return threads
	}
	fit := int(int64(c.ImageMemoryMB) * 1024 * 1024 / (pixels * bytesPerPixelInFlight))
	if fit < threads {
		threads = fit
	}
	if threads < 1 {
		threads = 1
	}
	return threads
}

// Flushes and closes all report files opened by operators in this context
func (c *Context) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	var errs []error
	for name, r := range c.reports {
		if err := r.close(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	c.reports = nil
	return errors.Join(errs...)
}

// A promise for a FITS image. Returns a materialized image, or an error
type Promise func() (f *fits.Image, err error)

// Materializes all promises with given concurrency limit. With forget, results are
// dropped as soon as they are complete and outs is nil. Errors of all failed promises
// are joined
func MaterializeAll(ins []Promise, maxThreads int, forget bool) (outs []*fits.Image, err error) {
	outs, errs := materialize(ins, maxThreads, forget)
	return outs, errors.Join(errs...)
}

// Like MaterializeAll, but returns the individual errors of failed promises
func materialize(ins []Promise, maxThreads int, forget bool) (outs []*fits.Image, errs []error) {
	if len(ins) == 0 {
		return nil, nil
	}
	if maxThreads < 1 {
		maxThreads = 1
	}
	if !forget {
		outs = make([]*fits.Image, len(ins))
	}
	limiter := make(chan bool, maxThreads)
	errCh := make(chan error, len(ins))
	for i, in := range ins {
		limiter <- true
		go func(i int, theIn Promise) {
			defer func() { <-limiter }()
			f, err := theIn() // materialize the promise
			if err != nil {
				errCh <- err
				return
			}
			if !forget {
				outs[i] = f
			}
			errCh <- nil
		}(i, in)
	}
	for i := 0; i < cap(limiter); i++ { // wait for goroutines to finish
		limiter <- true
	}
	for i := 0; i < len(ins); i++ { // collect errors
		if e := <-errCh; e != nil {
			errs = append(errs, e)
		}
	}
	return RemoveNils(outs), errs
}

// Remove nils from an array of fits.Images, editing the underlying array in place
func RemoveNils(images []*fits.Image) []*fits.Image {
	o := 0
	for i := 0; i < len(images); i++ {
		if images[i] != nil {
			images[o] = images[i]
			o++
		}
	}
	for i := o; i < len(images); i++ {
		images[i] = nil
	}
	return images[:o]
}

// An general image processing operator: takes n promises as inputs,
// and produces m promises as output or an error
type Operator interface {
	GetType() string
	IsActive() bool
	MakePromises(ins []Promise, c *Context) (outs []Promise, err error)
}

// Base type for operators, including type information for JSON serializing/deserializing
type OpBase struct {
	Type   string `json:"type"`
	Active bool   `json:"active"`
}

func (op *OpBase) GetType() string { return op.Type }
func (op *OpBase) IsActive() bool  { return op.Active }

// Factory method for subclasses of operators. For JSON serializing/deserializing
type OperatorFactory func() Operator

// Mapping from operator type strings to factory method for the type
var operatorFactories = map[string]OperatorFactory{}

// Returns the operator factory for a given type string
func GetOperatorFactory(t string) OperatorFactory {
	return operatorFactories[t]
}

// Registers a given type string for a given type of Operator, identified via an exemplar generator
func SetOperatorFactory(f OperatorFactory) {
	op := f()
	t := op.GetType()
	if GetOperatorFactory(t) != nil {
		panic(fmt.Sprintf("error: re-registering operator key %s\n", t))
	}
	operatorFactories[t] = f
}

// Decodes a single polymorphic operator from JSON using its type field
func UnmarshalOperator(raw []byte) (Operator, error) {
	var base OpBase
	if err := json.Unmarshal(raw, &base); err != nil {
		return nil, err
	}
	factory := GetOperatorFactory(base.Type)
	if factory == nil {
		return nil, fmt.Errorf("unknown operator type '%s' in raw JSON message '%s'", base.Type, string(raw))
	}
	op := factory()
	if err := json.Unmarshal(raw, op); err != nil {
		return nil, err
	}
	return op, nil
}

// A unary image processing operator: given n promises as inputs,
// applies itself to each of them individually and returns n output promises or an error
type OperatorUnary interface {
	Operator
	Apply(f *fits.Image, c *Context) (fOut *fits.Image, err error)
}

// Abstract base type for unary operators. Uses golang workaround for abstract classes
// from https://golangbyexample.com/go-abstract-class/
type OpUnaryBase struct {
	OpBase
	Apply func(f *fits.Image, c *Context) (fOut *fits.Image, err error) `json:"-"`
}

func (op *OpUnaryBase) MakePromises(ins []Promise, c *Context) (outs []Promise, err error) {
	if len(ins) == 0 {
		return nil, fmt.Errorf("%s operator with %d inputs", op.Type, len(ins))
	}
	outs = make([]Promise, len(ins))
	for i, in := range ins {
		outs[i] = op.MakePromise(in, c)
	}
	return outs, nil
}

func (op *OpUnaryBase) MakePromise(in Promise, c *Context) (out Promise) {
	return func() (f *fits.Image, err error) {
		if f, err = in(); err != nil { // materialize input promise
			return nil, err
		}
		if !op.Active {
			return f, nil
		}
		return op.Apply(f, c) // apply unary operator
	}
}

// Returns true if a path is considered safe, i.e. not an absolute path,
// and doesn't contain the ".." characters to change to a parent directory
func isPathAllowed(p string) bool {
	if filepath.IsAbs(p) {
		return false // relative paths only
	}
	if strings.Contains(p, "..") {
		return false // no going outside the tree
	}
	return true
}

// Returned for file names outside the working directory when paths are restricted
var ErrPathNotAllowed = errors.New("path not allowed")

func (c *Context) checkPath(p string) error {
	if c.RestrictPaths && !isPathAllowed(p) {
		return fmt.Errorf("%w: %s outside current directory tree, aborting", ErrPathNotAllowed, p)
	}
	return nil
}

// Starts processing from an image already in memory. Takes zero inputs, produces one output
type OpInMemory struct {
	OpBase
	Image *fits.Image `json:"-"`
}

func NewOpInMemory(f *fits.Image) *OpInMemory {
	return &OpInMemory{OpBase: OpBase{Type: "inMemory", Active: true}, Image: f}
}

func (op *OpInMemory) MakePromises(ins []Promise, c *Context) (outs []Promise, err error) {
	if len(ins) > 0 {
		return nil, fmt.Errorf("%s operator with non-zero input", op.Type)
	}
	f := op.Image
	return []Promise{func() (*fits.Image, error) { return f, nil }}, nil
}

// Load a single FITS image from a single filename. Takes zero inputs, produces one output
type OpLoad struct {
	OpBase
	ID       int    `json:"id"`
	FileName string `json:"fileName"`
}

func init() { SetOperatorFactory(func() Operator { return NewOpLoadDefault() }) } // register the operator for JSON decoding

func NewOpLoadDefault() *OpLoad { return NewOpLoad(0, "") }

func NewOpLoad(id int, fileName string) *OpLoad {
	return &OpLoad{
		OpBase:   OpBase{Type: "load", Active: true},
		ID:       id,
		FileName: fileName,
	}
}

// Load image from a file. Ignores any f argument provided
func (op *OpLoad) MakePromises(ins []Promise, c *Context) (outs []Promise, err error) {
	if len(ins) > 0 {
		return nil, fmt.Errorf("%s operator with non-zero input", op.Type)
	}
	if err := c.checkPath(op.FileName); err != nil {
		return nil, err
	}
	out := func() (f *fits.Image, err error) {
		// no inputs to materialize
		return op.Apply(nil, c)
	}
	return []Promise{out}, nil
}

func (op *OpLoad) Apply(f *fits.Image, c *Context) (result *fits.Image, err error) {
	f, err = fits.NewImageFromFile(op.FileName, op.ID, c.Log)
	if err != nil {
		return nil, err
	}
	s := f.UpdateStats()

	warning := ""
	if s.Max-s.Min < 1e-8 {
		warning = "; WARNING low dynamic range"
	}
	fmt.Fprintf(c.Log, "%d: Loaded %s image with %v from %s%s\n",
		f.ID, f.DimensionsToString(), s, f.FileName, warning)
	return f, nil
}

// Load many FITS images from a slice of filename patterns with wildcards.
// Takes zero inputs, produces n outputs
type OpLoadMany struct {
	OpBase
	FilePatterns []string `json:"filePatterns"`
}

func init() { SetOperatorFactory(func() Operator { return NewOpLoadManyDefault() }) } // register the operator for JSON decoding

func NewOpLoadManyDefault() *OpLoadMany { return NewOpLoadMany(nil) }

func NewOpLoadMany(filePatterns []string) *OpLoadMany {
	return &OpLoadMany{
		OpBase:       OpBase{Type: "loadMany", Active: true},
		FilePatterns: filePatterns,
	}
}

// Expands the file patterns into file names, in order, skipping disallowed paths
func (op *OpLoadMany) FileNames(c *Context) (names []string, err error) {
	for _, pattern := range op.FilePatterns {
		matches, err := filepath.Glob(pattern)
		if err != nil {
			return nil, err
		}
		for _, match := range matches {
			if err := c.checkPath(match); err != nil {
				fmt.Fprintf(c.Log, "Pattern match outside current directory tree, skipping\n")
				continue
			}
			names = append(names, match)
		}
	}
	return names, nil
}

// Turn filename wildcards into list of file load operators
func (op *OpLoadMany) MakePromises(ins []Promise, c *Context) (outs []Promise, err error) {
	if len(ins) > 0 {
		return nil, fmt.Errorf("%s operator with non-zero input", op.Type)
	}
	names, err := op.FileNames(c)
	if err != nil {
		return nil, err
	}
	for _, name := range names {
		opLoad := NewOpLoad(len(outs), name)
		promises, err := opLoad.MakePromises(nil, c)
		if err != nil {
			return nil, err
		}
		if len(promises) != 1 {
			return nil, fmt.Errorf("%s operator did not return exactly one promise", opLoad.Type)
		}
		outs = append(outs, promises[0])
	}
	if len(outs) == 0 {
		return nil, fmt.Errorf("%s operator with no files to load from pattern %v",
			op.Type, op.FilePatterns)
	}
	fmt.Fprintf(c.Log, "Found %d files.\n", len(outs))
	return outs, nil
}

// Applies a sequence of operators to a promise. Number of inputs, outputs as per the chained steps
type OpSequence struct {
	OpBase
	Steps    []Operator        `json:"-"`     // the actual steps
	StepsRaw []json.RawMessage `json:"steps"` // helper for unmarshaling
}

func init() { SetOperatorFactory(func() Operator { return NewOpSequenceDefault() }) } // register the operator for JSON decoding

func NewOpSequenceDefault() *OpSequence { return NewOpSequence() }

func NewOpSequence(steps ...Operator) *OpSequence {
	return &OpSequence{
		OpBase: OpBase{Type: "seq", Active: len(steps) > 0},
		Steps:  steps,
	}
}

// Unmarshals a sequence of polymorphic operators from JSON.
// Uses temporary op.StepsRaw inspired by https://alexkappa.medium.com/json-polymorphism-in-go-4cade1e58ed1
func (op *OpSequence) UnmarshalJSON(b []byte) error {
	type alias OpSequence
	if err := json.Unmarshal(b, (*alias)(op)); err != nil {
		return err
	}
	op.Steps = nil
	for _, raw := range op.StepsRaw {
		step, err := UnmarshalOperator(raw)
		if err != nil {
			return err
		}
		op.Steps = append(op.Steps, step)
	}
	op.StepsRaw = nil
	return nil
}

// Appends one or more operators to the existing sequence
func (op *OpSequence) Append(steps ...Operator) {
	op.Steps = append(op.Steps, steps...)
	op.Active = len(op.Steps) > 0
}

// Marshals a sequence with polymorphic operators to JSON.
// Uses the actual op.Steps with label "steps", and ignores op.StepsRaw
func (op *OpSequence) MarshalJSON() (bs []byte, err error) {
	buf := bytes.Buffer{}
	buf.WriteString("{\"type\":")
	inner, err := json.Marshal(op.Type)
	if err != nil {
		return nil, err
	}
	buf.Write(inner)
	fmt.Fprintf(&buf, ", \"active\":%v, \"steps\":", op.Active)
	inner, err = json.Marshal(op.Steps)
	if err != nil {
		return nil, err
	}
	buf.Write(inner)
	buf.WriteRune('}')
	return buf.Bytes(), nil
}

func (op *OpSequence) MakePromises(ins []Promise, c *Context) (outs []Promise, err error) {
	return op.applyRecursive(op.Steps, ins, c)
}

func (op *OpSequence) applyRecursive(steps []Operator, ins []Promise, c *Context) (outs []Promise, err error) {
	if len(steps) == 0 {
		return ins, nil
	}
	ins, err = steps[0].MakePromises(ins, c)
	if err != nil {
		return nil, err
	}
	return op.applyRecursive(steps[1:], ins, c)
}

// Applies a single operator to each input. Takes n inputs, produces n outputs
type OpForEach struct {
	OpBase
	Operation    Operator        `json:"-"`
	OperationRaw json.RawMessage `json:"operation"` // helper for unmarshaling
}

func init() { SetOperatorFactory(func() Operator { return NewOpForEachDefault() }) } // register the operator for JSON decoding

func NewOpForEachDefault() *OpForEach { return NewOpForEach(nil) }

func NewOpForEach(operation Operator) *OpForEach {
	return &OpForEach{
		OpBase:    OpBase{Type: "forEach", Active: operation != nil},
		Operation: operation,
	}
}

func (op *OpForEach) UnmarshalJSON(b []byte) error {
	type alias OpForEach
	if err := json.Unmarshal(b, (*alias)(op)); err != nil {
		return err
	}
	op.Operation = nil
	if len(op.OperationRaw) > 0 && string(op.OperationRaw) != "null" {
		operation, err := UnmarshalOperator(op.OperationRaw)
		if err != nil {
			return err
		}
		op.Operation = operation
	}
	op.OperationRaw = nil
	return nil
}

func (op *OpForEach) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type      string   `json:"type"`
		Active    bool     `json:"active"`
		Operation Operator `json:"operation"`
	}{op.Type, op.Active, op.Operation})
}

// Applies the operation to each input individually
func (op *OpForEach) MakePromises(ins []Promise, c *Context) (outs []Promise, err error) {
	if len(ins) == 0 {
		return ins, nil
	}
	if op.Operation == nil {
		return nil, fmt.Errorf("%s operator has no operation to apply", op.Type)
	}
	for _, in := range ins {
		out, err := op.Operation.MakePromises([]Promise{in}, c)
		if err != nil {
			return nil, err
		}
		if len(out) != 1 {
			return nil, fmt.Errorf("%s operator needs exactly one promise from embedded operation", op.Type)
		}
		outs = append(outs, out[0])
	}
	return outs, nil
}
