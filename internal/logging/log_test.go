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

package logging

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

func TestTeeToFile(t *testing.T) {
	var console bytes.Buffer
	stdout = &console
	defer func() { stdout = os.Stdout }()

	fileName := filepath.Join(t.TempDir(), "balco.log")
	if err := LogAlsoToFile(fileName); err != nil {
		t.Fatal(err)
	}
	LogPrintf("%d: Loaded %s\n", 3, "a.fits")
	LogPrintln("done")

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			fmt.Fprintf(Writer(), "%d: line\n", i)
		}(i)
	}
	wg.Wait()
	LogSync()
	if err := Close(); err != nil {
		t.Fatal(err)
	}

	onDisk, err := os.ReadFile(fileName)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(onDisk, console.Bytes()) {
		t.Errorf("file and console differ:\n%q\n%q", onDisk, console.Bytes())
	}
	if !bytes.HasPrefix(onDisk, []byte("3: Loaded a.fits\ndone\n")) {
		t.Errorf("unexpected log start %q", onDisk)
	}
	if got := bytes.Count(onDisk, []byte("\n")); got != 10 {
		t.Errorf("got %d lines want 10", got)
	}

	// after closing, output goes to the console only
	LogPrint("more")
	if !bytes.HasSuffix(console.Bytes(), []byte("more")) {
		t.Errorf("console missing output after close")
	}
}

func TestSyncWriter(t *testing.T) {
	var buf bytes.Buffer
	w := NewSyncWriter(&buf)
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				fmt.Fprintf(w, "%d: line %03d\n", g, i)
			}
		}(g)
	}
	wg.Wait()

	lines := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
	if len(lines) != 800 {
		t.Fatalf("got %d lines, want 800", len(lines))
	}
	for _, l := range lines {
		if len(l) != len("0: line 000") {
			t.Errorf("garbled line %q", l)
		}
	}
}
