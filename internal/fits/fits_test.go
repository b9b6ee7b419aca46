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

package fits

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"image"
	"image/color"
	"io"
	"path/filepath"
	"strings"
	"testing"

	"golang.org/x/image/tiff"
)

// Builds a FITS file from header lines and big-endian int16 data
func buildFITS(lines []string, data []int16) []byte {
	var buf bytes.Buffer
	for _, l := range append(lines, "END") {
		buf.WriteString(fmt.Sprintf("%-80s", l))
	}
	for buf.Len()%fitsBlockSize != 0 {
		buf.WriteByte(' ')
	}
	for _, d := range data {
		binary.Write(&buf, binary.BigEndian, d)
	}
	for buf.Len()%fitsBlockSize != 0 {
		buf.WriteByte(0)
	}
	return buf.Bytes()
}

var testLines = []string{
	"SIMPLE  =                    T / conforms to FITS standard",
	"BITPIX  =                   16 / array data type",
	"NAXIS   =                    2 / number of array dimensions",
	"NAXIS1  =                    3",
	"NAXIS2  =                    2",
	"BZERO   =                32768",
	"BSCALE  =                    1",
	"OBJECT  = 'NGC 1234'           / target",
	"EXPTIME =                 30.5 / seconds",
	"GAIN    =                    2",
	"FLIPPED =                    F",
	"COMMENT first comment",
	"HISTORY processed once",
	"CRVAL1  =        1.2345000D+02",
}

func TestReadHeaderAndData(t *testing.T) {
	raw := []int16{-32768, -32767, 0, 1, 32767, -100}
	img := NewImage()
	if err := img.Read(bytes.NewReader(buildFITS(testLines, raw)), true, io.Discard); err != nil {
		t.Fatal(err)
	}
	if img.Bitpix != 16 || !EqualInt32Slice(img.Naxisn, []int32{3, 2}) || img.Pixels != 6 {
		t.Errorf("structure: got bitpix %d naxisn %v pixels %d", img.Bitpix, img.Naxisn, img.Pixels)
	}
	if img.Bzero != 32768 || img.Bscale != 1 {
		t.Errorf("scaling: got %g/%g", img.Bzero, img.Bscale)
	}
	want := []float32{0, 1, 32768, 32769, 65535, 32668}
	for i := range want {
		if img.Data[i] != want[i] {
			t.Errorf("pixel %d: got %g, want %g", i, img.Data[i], want[i])
		}
	}

	h := &img.Header
	if h.Strings["OBJECT"] != "NGC 1234" {
		t.Errorf("OBJECT: got '%s'", h.Strings["OBJECT"])
	}
	if v, ok := h.Float("EXPTIME"); !ok || v != 30.5 {
		t.Errorf("EXPTIME: got %g %v", v, ok)
	}
	if v, ok := h.Float("CRVAL1"); !ok || v != 123.45 {
		t.Errorf("CRVAL1: got %g %v", v, ok)
	}
	if h.Ints["GAIN"] != 2 || h.Bools["FLIPPED"] {
		t.Errorf("GAIN/FLIPPED: got %d/%v", h.Ints["GAIN"], h.Bools["FLIPPED"])
	}
	if len(h.Comments) != 1 || h.Comments[0] != "first comment" || len(h.History) != 1 {
		t.Errorf("comments %v history %v", h.Comments, h.History)
	}

	keys := []string{}
	for _, c := range h.Cards {
		keys = append(keys, c.Key)
	}
	wantKeys := "SIMPLE BITPIX NAXIS NAXIS1 NAXIS2 BZERO BSCALE OBJECT EXPTIME GAIN FLIPPED COMMENT HISTORY CRVAL1"
	if got := strings.Join(keys, " "); got != wantKeys {
		t.Errorf("card order: got %s, want %s", got, wantKeys)
	}
	if h.Cards[7].Comment != "target" {
		t.Errorf("card comment: got '%s'", h.Cards[7].Comment)
	}
}

func TestReadErrors(t *testing.T) {
	img := NewImage()
	err := img.Read(bytes.NewReader([]byte("SIMPLE")), true, io.Discard)
	if !errors.Is(err, ErrIO) {
		t.Errorf("short header: got %v, want ErrIO", err)
	}

	truncated := buildFITS(testLines, nil)[:fitsBlockSize]
	err = NewImage().Read(bytes.NewReader(truncated), true, io.Discard)
	if !errors.Is(err, ErrIO) {
		t.Errorf("missing data: got %v, want ErrIO", err)
	}

	_, err = NewImageFromFile(filepath.Join(t.TempDir(), "missing.fits"), 3, io.Discard)
	if !errors.Is(err, ErrIO) {
		t.Errorf("missing file: got %v, want ErrIO", err)
	}
}

func roundTrip(t *testing.T, img *Image, name string) *Image {
	fileName := filepath.Join(t.TempDir(), name)
	if err := img.WriteFile(fileName, io.Discard); err != nil {
		t.Fatal(err)
	}
	back, err := NewImageFromFile(fileName, img.ID, io.Discard)
	if err != nil {
		t.Fatal(err)
	}
	return back
}

func TestWriteRoundTrip(t *testing.T) {
	src := NewImage()
	if err := src.Read(bytes.NewReader(buildFITS(testLines, []int16{0, 1, 2, 3, 4, 5})), true, io.Discard); err != nil {
		t.Fatal(err)
	}
	// values out of range are clamped on write
	copy(src.Data, []float32{0, 298, 65535, 70000, -3, 12.5})

	for _, name := range []string{"out.fits", "out.fits.gz"} {
		back := roundTrip(t, src, name)
		if back.Bitpix != 16 || back.Bzero != 32768 || !EqualInt32Slice(back.Naxisn, src.Naxisn) {
			t.Errorf("%s: structure bitpix %d bzero %g naxisn %v", name, back.Bitpix, back.Bzero, back.Naxisn)
		}
		want := []float32{0, 298, 65535, 65535, 0, 12}
		for i := range want {
			if back.Data[i] != want[i] {
				t.Errorf("%s: pixel %d: got %g, want %g", name, i, back.Data[i], want[i])
			}
		}
		if back.Header.Strings["OBJECT"] != "NGC 1234" || back.Header.Ints["GAIN"] != 2 {
			t.Errorf("%s: header cards lost: %v %v", name, back.Header.Strings, back.Header.Ints)
		}
		if v, ok := back.Header.Float("EXPTIME"); !ok || v != 30.5 {
			t.Errorf("%s: EXPTIME: got %g %v", name, v, ok)
		}
	}
}

func TestWriteFloat(t *testing.T) {
	img := NewImageFromNaxisn([]int32{2, 2}, []float32{0.5, -1.25, 1e6, 3})
	img.Header.Set("OBSERVER", "balco", "")
	back := roundTrip(t, img, "float.fits")
	if back.Bitpix != -32 {
		t.Errorf("bitpix: got %d", back.Bitpix)
	}
	for i := range img.Data {
		if back.Data[i] != img.Data[i] {
			t.Errorf("pixel %d: got %g, want %g", i, back.Data[i], img.Data[i])
		}
	}
	if back.Header.Strings["OBSERVER"] != "balco" {
		t.Errorf("OBSERVER: got '%s'", back.Header.Strings["OBSERVER"])
	}
}

func TestCrop(t *testing.T) {
	data := make([]float32, 6*5)
	for i := range data {
		data[i] = float32(i)
	}
	img := NewImageFromNaxisn([]int32{6, 5}, data)
	cropped, err := img.Crop(1)
	if err != nil {
		t.Fatal(err)
	}
	if !EqualInt32Slice(cropped.Naxisn, []int32{4, 3}) || cropped.Pixels != 12 {
		t.Errorf("got %v with %d pixels", cropped.Naxisn, cropped.Pixels)
	}
	want := []float32{7, 8, 9, 10, 13, 14, 15, 16, 19, 20, 21, 22}
	for i := range want {
		if cropped.Data[i] != want[i] {
			t.Errorf("pixel %d: got %g, want %g", i, cropped.Data[i], want[i])
		}
	}
	if img.Naxisn[0] != 6 {
		t.Errorf("source modified: %v", img.Naxisn)
	}
	if _, err := img.Crop(3); err == nil {
		t.Errorf("expected error for oversized border")
	}
}

func TestReadTIFF(t *testing.T) {
	src := image.NewGray16(image.Rect(0, 0, 3, 2))
	for i, v := range []uint16{0, 100, 255, 256, 40000, 65535} {
		src.SetGray16(i%3, i/3, color.Gray16{v})
	}
	var buf bytes.Buffer
	if err := tiff.Encode(&buf, src, nil); err != nil {
		t.Fatal(err)
	}

	img := NewImage()
	if err := img.ReadTIFF(&buf); err != nil {
		t.Fatal(err)
	}
	if !EqualInt32Slice(img.Naxisn, []int32{3, 2}) || img.Bitpix != 16 || img.Bzero != 32768 {
		t.Errorf("structure: %v %d %g", img.Naxisn, img.Bitpix, img.Bzero)
	}
	want := []float32{0, 100, 255, 256, 40000, 65535}
	for i := range want {
		if img.Data[i] != want[i] {
			t.Errorf("pixel %d: got %g, want %g", i, img.Data[i], want[i])
		}
	}
}

func TestWritePreviews(t *testing.T) {
	img := NewImageFromNaxisn([]int32{4, 4}, []float32{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15})
	var buf bytes.Buffer
	if err := img.WriteMonoJPG(&buf, 0, 15, 1, 90); err != nil || buf.Len() == 0 {
		t.Errorf("mono jpeg: %d bytes, %v", buf.Len(), err)
	}
	buf.Reset()
	if err := img.WriteMonoTIFF16(&buf, 0, 15, 2.2); err != nil || buf.Len() == 0 {
		t.Errorf("mono tiff: %d bytes, %v", buf.Len(), err)
	}
	buf.Reset()
	residual := []float32{-2, -1, 0, 1, 2, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 4}
	if err := WriteResidualJPG(&buf, residual, 4, 90); err != nil || buf.Len() == 0 {
		t.Errorf("residual jpeg: %d bytes, %v", buf.Len(), err)
	}

	if c := heatColor(0); c != (color.RGBA{255, 255, 255, 255}) {
		t.Errorf("zero residual: got %v, want white", c)
	}
	if c := heatColor(1); c.R <= c.B {
		t.Errorf("positive residual: got %v, want red", c)
	}
	if c := heatColor(-1); c.B <= c.R {
		t.Errorf("negative residual: got %v, want blue", c)
	}
}
