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

// Package codec measures how well shaved images compress with general purpose byte codecs.
package codec

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/s2"
	"github.com/klauspost/compress/zstd"
)

// Returned for codec names which are not known
var ErrUnknownCodec = errors.New("unknown codec")

// A byte level compression codec
type Codec int

const (
	None Codec = iota
	Gzip
	Zstd
	S2
)

var codecNames = []string{"none", "gzip", "zstd", "s2"}

func (c Codec) String() string {
	if c < 0 || int(c) >= len(codecNames) {
		return fmt.Sprintf("Codec(%d)", int(c))
	}
	return codecNames[c]
}

// Parses a codec name. Accepts the FITS tile compression names used by fpack style
// tools and maps them onto the closest byte codec: GZIP_1 and GZIP_2 to gzip,
// RICE_1 to s2 and HCOMPRESS_1 to zstd
func ParseCodec(name string) (Codec, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "none", "off":
		return None, nil
	case "gzip", "gzip_1", "gzip_2", "gz":
		return Gzip, nil
	case "zstd", "zst", "hcompress", "hcompress_1":
		return Zstd, nil
	case "s2", "snappy", "rice", "rice_1":
		return S2, nil
	}
	return None, fmt.Errorf("%w: %q", ErrUnknownCodec, name)
}

func (c Codec) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

func (c *Codec) UnmarshalText(text []byte) error {
	parsed, err := ParseCodec(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// Compresses src with the given codec
func Encode(c Codec, src []byte) ([]byte, error) {
	switch c {
	case None:
		return append([]byte(nil), src...), nil
	case Gzip:
		var buf bytes.Buffer
		w, err := gzip.NewWriterLevel(&buf, gzip.BestCompression)
		if err != nil {
			return nil, err
		}
		if _, err := w.Write(src); err != nil {
			w.Close()
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	case Zstd:
		enc, err := zstd.NewWriter(nil,
			zstd.WithEncoderConcurrency(1),
			zstd.WithEncoderLevel(zstd.SpeedBetterCompression),
		)
		if err != nil {
			return nil, err
		}
		defer enc.Close()
		return enc.EncodeAll(src, nil), nil
	case S2:
		return s2.EncodeBetter(nil, src), nil
	}
	return nil, fmt.Errorf("%w: %v", ErrUnknownCodec, c)
}

// Decompresses src which was compressed with the given codec
func Decode(c Codec, src []byte) ([]byte, error) {
	switch c {
	case None:
		return append([]byte(nil), src...), nil
	case Gzip:
		r, err := gzip.NewReader(bytes.NewReader(src))
		if err != nil {
			return nil, err
		}
		defer r.Close()
		return io.ReadAll(r)
	case Zstd:
		dec, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
		if err != nil {
			return nil, err
		}
		defer dec.Close()
		return dec.DecodeAll(src, nil)
	case S2:
		return s2.Decode(nil, src)
	}
	return nil, fmt.Errorf("%w: %v", ErrUnknownCodec, c)
}

// Wraps a reader so it decompresses a stream encoded with the given codec.
// Used for HTTP request bodies with a Content-Encoding
func NewReader(c Codec, r io.Reader) (io.ReadCloser, error) {
	switch c {
	case None:
		return io.NopCloser(r), nil
	case Gzip:
		return gzip.NewReader(r)
	case Zstd:
		dec, err := zstd.NewReader(r, zstd.WithDecoderConcurrency(1))
		if err != nil {
			return nil, err
		}
		return dec.IOReadCloser(), nil
	case S2:
		return io.NopCloser(s2.NewReader(r)), nil
	}
	return nil, fmt.Errorf("%w: %v", ErrUnknownCodec, c)
}

// Returns the ratio of raw to compressed size for src under the given codec
func Factor(c Codec, src []byte) (float32, error) {
	if len(src) == 0 {
		return 1, nil
	}
	enc, err := Encode(c, src)
	if err != nil {
		return 0, err
	}
	if len(enc) == 0 {
		return 0, fmt.Errorf("%v: empty output", c)
	}
	return float32(len(src)) / float32(len(enc)), nil
}
