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
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"path"
	"strconv"
	"strings"

	"github.com/klauspost/compress/gzip"
)

func NewImageFromFile(fileName string, id int, logWriter io.Writer) (i *Image, err error) {
	i = NewImage()
	i.ID = id
	return i, i.ReadFile(fileName, true, logWriter)
}

// Read FITS data from the file with the given name. Decompresses gzip if .gz or gzip suffix is present.
// Reads 16-bit TIFF if .tif or .tiff suffix is present. Reads metadata only (fast) if readData is false.
func (fits *Image) ReadFile(fileName string, readData bool, logWriter io.Writer) error {
	fits.FileName = fileName
	ext := path.Ext(fileName)
	lExt := strings.ToLower(ext)
	if lExt == ".tif" || lExt == ".tiff" {
		return fits.ReadTIFFFile(fileName)
	}

	f, err := os.Open(fileName)
	if err != nil {
		return fmt.Errorf("%d: %w: %v", fits.ID, ErrIO, err)
	}
	defer f.Close()

	var r io.Reader = bufio.NewReader(f)
	if lExt == ".gz" || lExt == ".gzip" {
		// Decompress gzip if .gz or .gzip suffix is present
		gz, err := gzip.NewReader(r)
		if err != nil {
			return fmt.Errorf("%d: %w: %v", fits.ID, ErrIO, err)
		}
		defer gz.Close()
		r = gz
	}

	return fits.Read(r, readData, logWriter)
}

func (fits *Image) PopHeaderInt32(key string) (res int32, err error) {
	if val, ok := fits.Header.Ints[key]; ok {
		delete(fits.Header.Ints, key)
		return val, nil
	}
	return 0, fmt.Errorf("%d: FITS header does not contain key %s", fits.ID, key)
}

func (fits *Image) PopHeaderInt32OrFloat(key string) (res float32, err error) {
	if val, ok := fits.Header.Ints[key]; ok {
		delete(fits.Header.Ints, key)
		return float32(val), nil
	} else if val, ok := fits.Header.Floats[key]; ok {
		delete(fits.Header.Floats, key)
		return val, nil
	}
	return 0, fmt.Errorf("%d: FITS header does not contain key %s", fits.ID, key)
}

func (fits *Image) Read(f io.Reader, readData bool, logWriter io.Writer) (err error) {
	err = fits.Header.read(f, fits.ID, logWriter)
	if err != nil {
		return err
	}

	// check mandatory fields as per standard
	if !fits.Header.Bools["SIMPLE"] {
		return fmt.Errorf("%d: %w: not a valid FITS file; SIMPLE=T missing in header", fits.ID, ErrIO)
	}
	delete(fits.Header.Bools, "SIMPLE")

	if fits.Bitpix, err = fits.PopHeaderInt32("BITPIX"); err != nil {
		return err
	}
	var naxis int32
	if naxis, err = fits.PopHeaderInt32("NAXIS"); err != nil {
		return err
	}
	fits.Naxisn = make([]int32, naxis)
	fits.Pixels = int32(1)
	for i := int32(1); i <= naxis; i++ {
		name := "NAXIS" + strconv.FormatInt(int64(i), 10)
		var nai int32
		if nai, err = fits.PopHeaderInt32(name); err != nil {
			return err
		}
		fits.Naxisn[i-1] = nai
		fits.Pixels *= int32(nai)
	}
	if naxis == 0 {
		fits.Pixels = 0
	}

	// scaling of the on-disk values, kept for writing back
	if fits.Bzero, err = fits.PopHeaderInt32OrFloat("BZERO"); err != nil {
		fits.Bzero = 0
	}
	if fits.Bscale, err = fits.PopHeaderInt32OrFloat("BSCALE"); err != nil {
		fits.Bscale = 1
	}

	if !readData {
		return nil
	}
	return fits.readData(f, logWriter)
}

// Decodes one big-endian raw value into a float64
type decoder func(b []byte) float64

func decoderFor(bitpix int32) (dec decoder, bytesPerValue int) {
	switch bitpix {
	case 8:
		return func(b []byte) float64 { return float64(b[0]) }, 1
	case 16:
		return func(b []byte) float64 { return float64(int16(binary.BigEndian.Uint16(b))) }, 2
	case 32:
		return func(b []byte) float64 { return float64(int32(binary.BigEndian.Uint32(b))) }, 4
	case 64:
		return func(b []byte) float64 { return float64(int64(binary.BigEndian.Uint64(b))) }, 8
	case -32:
		return func(b []byte) float64 { return float64(math.Float32frombits(binary.BigEndian.Uint32(b))) }, 4
	case -64:
		return func(b []byte) float64 { return math.Float64frombits(binary.BigEndian.Uint64(b)) }, 8
	}
	return nil, 0
}

const bufLen int = 16 * 1024 // input buffer length for reading from file

// Read image data from file, convert to float32 data type and apply Bzero and Bscale.
func (fits *Image) readData(r io.Reader, logWriter io.Writer) (err error) {
	dec, bytesPerValue := decoderFor(fits.Bitpix)
	if dec == nil {
		return fmt.Errorf("%d: %w: unknown BITPIX value %d", fits.ID, ErrIO, fits.Bitpix)
	}
	if fits.Bitpix == 32 || fits.Bitpix == 64 || fits.Bitpix == -64 {
		fmt.Fprintf(logWriter, "%d: Warning: loss of precision converting BITPIX %d to float32 values\n", fits.ID, fits.Bitpix)
	}

	fits.Data = make([]float32, int(fits.Pixels))
	bscale, bzero := float64(fits.Bscale), float64(fits.Bzero)
	buf := make([]byte, (bufLen/bytesPerValue)*bytesPerValue)
	for dataIndex := 0; dataIndex < len(fits.Data); {
		bytesToRead := (len(fits.Data) - dataIndex) * bytesPerValue
		if bytesToRead > len(buf) {
			bytesToRead = len(buf)
		}
		if _, err := io.ReadFull(r, buf[:bytesToRead]); err != nil {
			return fmt.Errorf("%d: reading data: %w: %v", fits.ID, ErrIO, err)
		}
		for i := 0; i < bytesToRead; i += bytesPerValue {
			fits.Data[dataIndex] = float32(dec(buf[i:i+bytesPerValue])*bscale + bzero)
			dataIndex++
		}
	}
	return nil
}
