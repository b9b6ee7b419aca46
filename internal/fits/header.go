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
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
)

const fitsBlockSize int = 2880 // Block size of FITS header and data units
const HeaderLineSize int = 80  // Line size of a FITS header

var reParser *regexp.Regexp = compileRE() // Regexp parser for FITS header lines

// A single header card. Value is bool, int64, float64 or string, or nil for
// COMMENT and HISTORY cards which carry their text in Comment
type Card struct {
	Key     string
	Value   interface{}
	Comment string
}

// FITS header data. Cards holds every parsed card in file order, the maps index
// key/value cards by type
type Header struct {
	Cards    []Card
	Bools    map[string]bool
	Ints     map[string]int32
	Floats   map[string]float32
	Strings  map[string]string
	Dates    map[string]string
	Comments []string
	History  []string
	End      bool
	Length   int32
}

// Creates a FITS header initialized with empty maps and arrays
func NewHeader() Header {
	return Header{
		Cards:    make([]Card, 0),
		Bools:    make(map[string]bool),
		Ints:     make(map[string]int32),
		Floats:   make(map[string]float32),
		Strings:  make(map[string]string),
		Dates:    make(map[string]string),
		Comments: make([]string, 0),
		History:  make([]string, 0),
		End:      false,
	}
}

// Deep copy of the header
func (h *Header) Clone() Header {
	c := NewHeader()
	c.Cards = append(c.Cards, h.Cards...)
	for k, v := range h.Bools {
		c.Bools[k] = v
	}
	for k, v := range h.Ints {
		c.Ints[k] = v
	}
	for k, v := range h.Floats {
		c.Floats[k] = v
	}
	for k, v := range h.Strings {
		c.Strings[k] = v
	}
	for k, v := range h.Dates {
		c.Dates[k] = v
	}
	c.Comments = append(c.Comments, h.Comments...)
	c.History = append(c.History, h.History...)
	c.End, c.Length = h.End, h.Length
	return c
}

// Returns a numeric header value, whether stored as int or float
func (h *Header) Float(key string) (float32, bool) {
	if v, ok := h.Floats[key]; ok {
		return v, true
	}
	if v, ok := h.Ints[key]; ok {
		return float32(v), true
	}
	return 0, false
}

// Sets or replaces a key/value card, keeping the position of an existing card
func (h *Header) Set(key string, value interface{}, comment string) {
	switch v := value.(type) {
	case bool:
		h.Bools[key] = v
	case int:
		h.Ints[key] = int32(v)
		value = int64(v)
	case int32:
		h.Ints[key] = v
		value = int64(v)
	case int64:
		h.Ints[key] = int32(v)
	case float32:
		h.Floats[key] = v
		value = float64(v)
	case float64:
		h.Floats[key] = float32(v)
	case string:
		h.Strings[key] = v
	}
	for i := range h.Cards {
		if h.Cards[i].Key == key {
			h.Cards[i].Value, h.Cards[i].Comment = value, comment
			return
		}
	}
	h.Cards = append(h.Cards, Card{Key: key, Value: value, Comment: comment})
}

// Appends a HISTORY card
func (h *Header) AddHistory(text string) {
	h.History = append(h.History, text)
	h.Cards = append(h.Cards, Card{Key: "HISTORY", Comment: text})
}

func (h *Header) read(r io.Reader, id int, logWriter io.Writer) error {
	buf := make([]byte, fitsBlockSize)

	for h.Length = 0; !h.End; {
		// read next header unit
		bytesRead, err := io.ReadFull(r, buf)
		if err != nil || bytesRead != fitsBlockSize {
			return fmt.Errorf("%d: reading header: %w: %v", id, ErrIO, err)
		}
		h.Length += int32(bytesRead)

		// parse all lines in this header unit
		for lineNo := 0; lineNo < fitsBlockSize/HeaderLineSize && !h.End; lineNo++ {
			line := buf[lineNo*HeaderLineSize : (lineNo+1)*HeaderLineSize]
			subValues := reParser.FindSubmatch(line)
			if subValues == nil {
				fmt.Fprintf(logWriter, "%d: Warning:Cannot parse '%s', ignoring\n", id, string(line))
			} else {
				subNames := reParser.SubexpNames()
				h.readLine(subNames, subValues, id, lineNo, logWriter)
			}
		}
	}
	return nil
}

func (h *Header) readLine(subNames []string, subValues [][]byte, id, lineNo int, logWriter io.Writer) {
	card := Card{}
	hasCard := false
	// ignore index 0 which is the whole line
	for i := 1; i < len(subNames); i++ {
		if subValues[i] != nil && len(subNames[i]) == 1 {
			switch c := subNames[i][0]; c {
			case byte('E'): // end line
				h.End = true
			case byte('H'): // history line
				text := strings.TrimRight(string(subValues[i]), " ")
				h.History = append(h.History, text)
				card, hasCard = Card{Key: "HISTORY", Comment: text}, true
			case byte('C'): // comment line
				text := strings.TrimRight(string(subValues[i]), " ")
				h.Comments = append(h.Comments, text)
				card, hasCard = Card{Key: "COMMENT", Comment: text}, true
			case byte('k'): // key
				card.Key = string(subValues[i])
			case byte('b'): // boolean
				if len(subValues[i]) > 0 {
					v := subValues[i][0]
					b := v == byte('t') || v == byte('T')
					h.Bools[card.Key] = b
					card.Value, hasCard = b, true
				}
			case byte('i'): // int
				val, err := strconv.ParseInt(string(subValues[i]), 10, 64)
				if err == nil {
					h.Ints[card.Key] = int32(val)
					card.Value, hasCard = val, true
				}
			case byte('f'): // float
				s := strings.Replace(string(subValues[i]), "D", "E", 1)
				val, err := strconv.ParseFloat(s, 64)
				if err == nil {
					h.Floats[card.Key] = float32(val)
					card.Value, hasCard = val, true
				}
			case byte('s'): // string
				s := strings.TrimRight(string(subValues[i]), " ")
				h.Strings[card.Key] = s
				card.Value, hasCard = s, true
			case byte('d'): // date
				h.Dates[card.Key] = string(subValues[i])
				card.Value, hasCard = string(subValues[i]), true
			case byte('c'): // comment
				card.Comment = strings.TrimSpace(string(subValues[i]))
			default:
				fmt.Fprintf(logWriter, "%d:%d:Warning:Unknown token '%s'\n", id, lineNo, string(c))
			}
		}
	}
	if hasCard {
		h.Cards = append(h.Cards, card)
	}
}

// Build regexp parser for FITS header lines
func compileRE() *regexp.Regexp {
	white := "\\s+"
	whiteOpt := "\\s*"
	whiteLine := white

	hist := "HISTORY"
	rest := ".*"
	histLine := hist + "(?:" + white + "(?P<H>" + rest + "))?"

	commKey := "COMMENT"
	commLine := commKey + "(?:" + white + "(?P<C>" + rest + "))?"

	end := "(?P<E>END)"
	endLine := end + whiteOpt

	key := "(?P<k>[A-Z0-9_-]+)"
	equals := "="

	boo := "(?P<b>[TF])"
	inte := "(?P<i>[+-]?[0-9]+)"
	floa := "(?P<f>[+-]?[0-9]*\\.[0-9]*(?:[ED][-+]?[0-9]+)?|[+-]?[0-9]+[ED][-+]?[0-9]+)"
	stri := "'(?P<s>[^']*)'"
	date := "(?P<d>[0-9]{1,4}-?[012][0-9]-?[0123][0-9]T[012][0-9]:?[0-5][0-9]:?[0-5][0-9].?[0-9]*)" // FIXME: other variants possible, see ISO8601
	val := "(?:" + boo + "|" + inte + "|" + floa + "|" + stri + "|" + date + ")"

	// missing: CONTINUE for strings
	// missing: complex int: (nr, nr)
	// missing: complex float: (nr, nr)

	commOpt := "(?:/(?P<c>.*))?"
	keyLine := key + whiteOpt + equals + whiteOpt + val + whiteOpt + commOpt

	lineRe := "^(?:" + whiteLine + "|" + histLine + "|" + commLine + "|" + keyLine + "|" + endLine + ")$"
	return regexp.MustCompile(lineRe)
}
