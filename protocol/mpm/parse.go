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

package mpm

import (
	"encoding/binary"
	"math"
	"unicode/utf16"

	"github.com/pkg/errors"

	"github.com/mpmcore/mpmcore/buffer"
)

// ErrTruncated is returned when a frame is shorter than its own header or
// declared size.
var ErrTruncated = errors.New("mpm: truncated frame")

func decodeUCS2(value []byte) string {
	units := make([]uint16, len(value)/2)
	for i := range units {
		units[i] = uint16(value[i*2])<<8 | uint16(value[i*2+1])
	}
	return string(utf16.Decode(units))
}

// parseFields decodes the field region of a structured message, returning
// false (without error — the caller marks the message Invalid) the moment a
// record's bounds run past the end of payload.
func (m *Message) parseFields(payload []byte, numFields uint32, version byte) bool {
	pos := 0
	size := len(payload)

	for i := 0; i < int(numFields); i++ {
		if pos > size-8 {
			return false
		}
		id := binary.BigEndian.Uint32(payload[pos:])
		typ := FieldType(payload[pos+4])
		flagsB := payload[pos+5]
		f := &Field{ID: id, Type: typ, Signed: flagsB&0x01 != 0}

		var raw int
		switch typ {
		case TypeInt16:
			f.I64 = int64(int16(binary.BigEndian.Uint16(payload[pos+6:])))
			raw = 8
		case TypeInt32:
			if pos > size-12 {
				return false
			}
			f.I64 = int64(int32(binary.BigEndian.Uint32(payload[pos+8:])))
			raw = 12
		case TypeFloat:
			if pos > size-12 {
				return false
			}
			f.F64 = float64(math.Float32frombits(binary.BigEndian.Uint32(payload[pos+8:])))
			raw = 12
		case TypeInt64:
			if pos > size-16 {
				return false
			}
			f.I64 = int64(binary.BigEndian.Uint64(payload[pos+8:]))
			raw = 16
		case TypeInetAddress:
			if pos > size-28 {
				return false
			}
			v := payload[pos+8 : pos+28]
			f.Addr.Family = v[0]
			f.Addr.MaskBits = v[1]
			copy(f.Addr.Addr[:], v[4:20])
			raw = 28
		default: // TypeString, TypeUTF8String, TypeBinary
			if pos > size-12 {
				return false
			}
			length := int(binary.BigEndian.Uint32(payload[pos+8 : pos+12]))
			valueStart := pos + 12
			if valueStart+length > size {
				return false
			}
			value := payload[valueStart : valueStart+length]
			switch typ {
			case TypeString:
				f.Str = decodeUCS2(value)
			case TypeUTF8String:
				f.Str = string(value)
			case TypeBinary:
				f.Bin = append([]byte(nil), value...)
			}
			raw = 12 + length
		}

		if version >= 2 {
			pos += padTo8(raw)
		} else {
			pos += raw
		}
		m.fields.set(f)
	}
	return true
}

// Parse decodes a single MPM frame. A structurally short header or a
// declared size exceeding the supplied bytes yields an error; a field
// region whose records run past their own bounds yields a Message with
// Invalid set instead, matching the original's "discard, don't crash"
// handling of malformed peers.
func Parse(raw []byte) (*Message, error) {
	if len(raw) < HeaderSize {
		return nil, errors.Wrap(ErrTruncated, "mpm: frame shorter than header")
	}

	r := buffer.NewReader(raw)
	code, _ := r.ReadUint16(buffer.Big)
	flagsWord, _ := r.ReadUint16(buffer.Big)
	size, _ := r.ReadUint32(buffer.Big)
	id, _ := r.ReadUint32(buffer.Big)
	numFields, _ := r.ReadUint32(buffer.Big)

	if int(size) > len(raw) {
		return nil, errors.Wrap(ErrTruncated, "mpm: declared size exceeds frame")
	}

	flags, version := unpackFlags(flagsWord)
	m := NewMessage(code, id, version)
	m.flags = flags

	payload := raw[HeaderSize:size]

	switch {
	case flags&FlagControl != 0:
		m.ControlCode = numFields
		return m, nil

	case flags&FlagBinary != 0:
		body := payload
		if flags&FlagCompressed != 0 {
			inflated, err := inflate(body)
			if err != nil {
				m.Invalid = true
				return m, nil
			}
			body = inflated
		}
		m.BinaryPayload = append([]byte(nil), body...)
		return m, nil

	default:
		body := payload
		if flags&FlagCompressed != 0 {
			inflated, err := inflate(body)
			if err != nil {
				m.Invalid = true
				return m, nil
			}
			body = inflated
		}
		if !m.parseFields(body, numFields, version) {
			m.Invalid = true
		}
		return m, nil
	}
}
