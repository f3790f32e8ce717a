/*
Copyright (c) Facebook, Inc. and its affiliates.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package buffer

import (
	"strings"
	"unicode/utf16"
	"unicode/utf8"

	"github.com/pkg/errors"
)

// Codepage names a string encoding recognized by WriteString/ReadString.
// Names follow the historical set used on the wire; anything not matched by
// a known UCS2/UCS4 spelling takes the multibyte (UTF-8) path.
type Codepage string

// Recognized codepage spellings. UCS2/UCS4 without an explicit BE/LE suffix
// default to big-endian, matching the wire's historical convention.
const (
	UCS2   Codepage = "UCS2"
	UCS2Dash Codepage = "UCS-2"
	UCS2BE Codepage = "UCS2BE"
	UCS2BEDash Codepage = "UCS-2BE"
	UCS2LE Codepage = "UCS2LE"
	UCS2LEDash Codepage = "UCS-2LE"
	UCS4   Codepage = "UCS4"
	UCS4Dash Codepage = "UCS-4"
	UCS4BE Codepage = "UCS4BE"
	UCS4BEDash Codepage = "UCS-4BE"
	UCS4LE Codepage = "UCS4LE"
	UCS4LEDash Codepage = "UCS-4LE"
	UTF8   Codepage = "UTF8"
)

type cpWidth int

const (
	widthMB cpWidth = 1
	widthW2 cpWidth = 2
	widthW4 cpWidth = 4
)

func classify(cp Codepage) (width cpWidth, order Order) {
	switch strings.ToUpper(string(cp)) {
	case string(UCS2), string(UCS2Dash), string(UCS2BE), string(UCS2BEDash):
		return widthW2, Big
	case string(UCS2LE), string(UCS2LEDash):
		return widthW2, Little
	case string(UCS4), string(UCS4Dash), string(UCS4BE), string(UCS4BEDash):
		return widthW4, Big
	case string(UCS4LE), string(UCS4LEDash):
		return widthW4, Little
	default:
		return widthMB, Big
	}
}

// lengthPrefixThreshold is the first length that no longer fits the 15-bit
// short form; lengths from it upward use the 32-bit high-bit-tagged long form.
const lengthPrefixThreshold = 1 << 15

func (s *Stream) writeLengthPrefix(n int) {
	if n < lengthPrefixThreshold {
		s.WriteUint16(uint16(n), Big)
		return
	}
	s.WriteUint32(uint32(n)|0x80000000, Big)
}

func (s *Stream) readLengthPrefix() (int, error) {
	// Peek the first two bytes to decide short vs. long form without
	// consuming them twice.
	peek, err := s.readBytes(2)
	if err != nil {
		return 0, err
	}
	if peek[0]&0x80 == 0 {
		return int(Big.resolve().Uint16(peek)), nil
	}
	if err := s.Seek(-2, SeekRelative); err != nil {
		return 0, err
	}
	raw, err := s.ReadUint32(Big)
	if err != nil {
		return 0, err
	}
	return int(raw &^ 0x80000000), nil
}

// WriteString encodes s on the wire using the given codepage: a length
// prefix (byte count, not code-unit count) followed by the encoded body and
// a codepage-width null terminator.
func (s *Stream) WriteString(str string, cp Codepage, maxLen int) error {
	if maxLen > 0 && len([]rune(str)) > maxLen {
		str = string([]rune(str)[:maxLen])
	}
	width, order := classify(cp)
	var body []byte
	switch width {
	case widthW2:
		units := utf16.Encode([]rune(str))
		body = make([]byte, len(units)*2)
		for i, u := range units {
			order.resolve().PutUint16(body[i*2:], u)
		}
	case widthW4:
		runes := []rune(str)
		body = make([]byte, len(runes)*4)
		for i, r := range runes {
			order.resolve().PutUint32(body[i*4:], uint32(r))
		}
	default:
		body = []byte(str)
	}
	s.writeLengthPrefix(len(body))
	s.WriteBytes(body)
	switch width {
	case widthW2:
		s.WriteUint16(0, order)
	case widthW4:
		s.WriteUint32(0, order)
	default:
		s.WriteBytes([]byte{0})
	}
	return nil
}

// ReadString decodes a string previously written by WriteString.
func (s *Stream) ReadString(cp Codepage) (string, error) {
	n, err := s.readLengthPrefix()
	if err != nil {
		return "", err
	}
	if n > s.Remaining() {
		return "", errors.Wrap(ErrFormat, "string length exceeds remaining bytes")
	}
	body, err := s.readBytes(n)
	if err != nil {
		return "", err
	}
	width, order := classify(cp)
	var term int
	switch width {
	case widthW2:
		term = 2
	case widthW4:
		term = 4
	default:
		term = 1
	}
	if _, err := s.readBytes(term); err != nil {
		return "", err
	}
	switch width {
	case widthW2:
		if len(body)%2 != 0 {
			return "", errors.Wrap(ErrFormat, "odd byte count for UCS-2 string")
		}
		units := make([]uint16, len(body)/2)
		for i := range units {
			units[i] = order.resolve().Uint16(body[i*2:])
		}
		return string(utf16.Decode(units)), nil
	case widthW4:
		if len(body)%4 != 0 {
			return "", errors.Wrap(ErrFormat, "misaligned byte count for UCS-4 string")
		}
		runes := make([]rune, len(body)/4)
		for i := range runes {
			runes[i] = rune(order.resolve().Uint32(body[i*4:]))
		}
		return string(runes), nil
	default:
		if !utf8.Valid(body) {
			return "", errors.Wrap(ErrFormat, "invalid multibyte string")
		}
		return string(body), nil
	}
}
