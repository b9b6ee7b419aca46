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

// Package logging is a singleton log writer. Writes to stdout, and optionally to a file.
// Does not add prefixes, or force newlines.
package logging

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"sync"
)

var (
	mu        sync.Mutex
	stdout    io.Writer     = os.Stdout
	logFile   *bufio.Writer // The optional additional file to log into
	logFileOS *os.File
)

// Enables logging to file. Closes a previously opened log file
func LogAlsoToFile(fileName string) (err error) {
	mu.Lock()
	defer mu.Unlock()
	if err = closeLocked(); err != nil {
		return err
	}
	f, err := os.OpenFile(fileName, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0666)
	if err != nil {
		return err
	}
	logFileOS, logFile = f, bufio.NewWriter(f)
	return nil
}

func closeLocked() error {
	if logFile == nil {
		return nil
	}
	err := logFile.Flush()
	if cerr := logFileOS.Close(); err == nil {
		err = cerr
	}
	logFile, logFileOS = nil, nil
	return err
}

// Closes the log file, if any. Further output goes to stdout only
func Close() error {
	mu.Lock()
	defer mu.Unlock()
	return closeLocked()
}

type tee struct{}

// Write sends p to stdout and the log file. Safe for concurrent use, so one
// writer can be shared by all images in flight
func (tee) Write(p []byte) (n int, err error) {
	mu.Lock()
	defer mu.Unlock()
	n, err = stdout.Write(p)
	if err != nil || logFile == nil {
		return n, err
	}
	return logFile.Write(p)
}

// Returns the singleton log as an io.Writer
func Writer() io.Writer { return tee{} }

// Serializes writes to an underlying writer, for streams shared by images in flight
type SyncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func NewSyncWriter(w io.Writer) *SyncWriter { return &SyncWriter{w: w} }

func (s *SyncWriter) Write(p []byte) (n int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}

func LogPrint(args ...interface{}) (n int, err error) {
	return fmt.Fprint(tee{}, args...)
}

func LogPrintln(args ...interface{}) (n int, err error) {
	return fmt.Fprintln(tee{}, args...)
}

func LogPrintf(format string, args ...interface{}) (n int, err error) {
	return fmt.Fprintf(tee{}, format, args...)
}

func LogFatal(args ...interface{}) {
	fmt.Fprintln(tee{}, args...)
	Close()
	os.Exit(1)
}

func LogFatalf(format string, args ...interface{}) {
	fmt.Fprintf(tee{}, format, args...)
	Close()
	os.Exit(1)
}

// Flushes the log file to disk
func LogSync() {
	mu.Lock()
	defer mu.Unlock()
	if logFile == nil {
		return
	}
	logFile.Flush()
	logFileOS.Sync()
}
