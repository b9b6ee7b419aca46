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

package shave

import (
	"fmt"
	"strings"
)

// How original source pixels are preserved through quantization
type Mode int

const (
	WholeImage Mode = iota // quantize everything, no source preservation
	CookieCut              // splice rectangular cookies around catalog sources back in
	Masking                // restore captured per-pixel residuals of catalog sources
)

var modeNames = map[Mode]string{
	WholeImage: "bs",
	CookieCut:  "cc",
	Masking:    "masking",
}

func (m Mode) String() string {
	if s, ok := modeNames[m]; ok {
		return s
	}
	return fmt.Sprintf("Mode(%d)", int(m))
}

// Parses a mode name. Accepts the short names bs, cc and masking as well as
// wholeimage and cookiecut, case insensitive
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "bs", "wholeimage", "whole":
		return WholeImage, nil
	case "cc", "cookiecut", "cookie":
		return CookieCut, nil
	case "masking", "mask":
		return Masking, nil
	}
	return WholeImage, fmt.Errorf("%w: unknown mode '%s'", ErrInvalidParameter, s)
}

// Whether the mode needs a source catalog
func (m Mode) NeedsCatalog() bool {
	return m == CookieCut || m == Masking
}

func (m Mode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

func (m *Mode) UnmarshalText(text []byte) error {
	mode, err := ParseMode(string(text))
	if err != nil {
		return err
	}
	*m = mode
	return nil
}
