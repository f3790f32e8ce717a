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
	"bytes"
	"compress/flate"
	"io"
	"math"
	"unicode/utf16"

	"github.com/hashicorp/go-version"
	"github.com/pkg/errors"

	"github.com/mpmcore/mpmcore/buffer"
)

// fieldHeaderSize is the id+type+flags+pad prefix shared by every field
// record except int16, which folds pad and value together.
const fieldHeaderSize = 4 + 1 + 1 + 2

func encodeFieldValue(f *Field) []byte {
	switch f.Type {
	case TypeInt16:
		w := buffer.NewWriter()
		w.WriteUint16(uint16(f.I64), buffer.Big)
		return w.Bytes()
	case TypeInt32:
		w := buffer.NewWriter()
		w.WriteUint32(uint32(f.I64), buffer.Big)
		return w.Bytes()
	case TypeFloat:
		w := buffer.NewWriter()
		w.WriteUint32(math.Float32bits(float32(f.F64)), buffer.Big)
		return w.Bytes()
	case TypeInt64:
		w := buffer.NewWriter()
		w.WriteUint64(uint64(f.I64), buffer.Big)
		return w.Bytes()
	case TypeString:
		units := utf16.Encode([]rune(f.Str))
		body := make([]byte, len(units)*2)
		for i, u := range units {
			body[i*2] = byte(u >> 8)
			body[i*2+1] = byte(u)
		}
		return body
	case TypeUTF8String:
		return []byte(f.Str)
	case TypeBinary:
		return f.Bin
	case TypeInetAddress:
		body := make([]byte, 4+16)
		body[0] = f.Addr.Family
		body[1] = f.Addr.MaskBits
		copy(body[4:], f.Addr.Addr[:])
		return body
	default:
		return nil
	}
}

// hasLengthPrefix reports whether a field's value is stored as a 4-byte
// length followed by the value bytes, as opposed to a fixed-size value.
func hasLengthPrefix(t FieldType) bool {
	return t == TypeString || t == TypeUTF8String || t == TypeBinary
}

// rawFieldSize is the encoded record size with no 8-byte padding applied.
func rawFieldSize(f *Field, value []byte) int {
	switch f.Type {
	case TypeInt16:
		return 4 + 1 + 1 + 2
	case TypeInt32, TypeFloat, TypeInt64, TypeInetAddress:
		return fieldHeaderSize + len(value)
	default:
		return fieldHeaderSize + 4 + len(value)
	}
}

func padTo8(n int) int {
	if n%8 == 0 {
		return n
	}
	return n + (8 - n%8)
}

func (m *Message) encodeFields(version byte) []byte {
	w := buffer.NewWriter()
	m.fields.each(func(f *Field) {
		value := encodeFieldValue(f)
		raw := rawFieldSize(f, value)
		w.WriteUint32(f.ID, buffer.Big)
		w.WriteBytes([]byte{byte(f.Type), flagsByte(f)})
		if f.Type != TypeInt16 {
			w.WriteUint16(0, buffer.Big) // pad
		}
		if hasLengthPrefix(f.Type) {
			w.WriteUint32(uint32(len(value)), buffer.Big)
		}
		w.WriteBytes(value)
		if version >= 2 {
			padded := padTo8(raw)
			if padded > raw {
				w.WriteBytes(make([]byte, padded-raw))
			}
		}
	})
	return w.Bytes()
}

// flagsByte is reserved for future per-field wire flags; the worked example
// this format is pinned against carries 0x00 here regardless of Signed.
func flagsByte(f *Field) byte {
	return 0
}

// Serialize encodes the message into its on-wire frame. If allowCompression
// is set and the protocol version, size, and flags permit it (version >= 4,
// encoded size > 128 bytes, neither stream nor don't-compress set), the
// field/payload region is deflated and the compressed flag is set — but
// only when doing so actually shrinks the frame.
func (m *Message) Serialize(allowCompression bool) ([]byte, error) {
	var payload []byte
	var numFields uint32

	switch {
	case m.IsControl():
		payload = nil
		numFields = m.ControlCode
	case m.IsBinary():
		payload = m.BinaryPayload
		numFields = uint32(len(m.BinaryPayload))
	default:
		payload = m.encodeFields(m.Version)
		numFields = uint32(m.fields.len())
	}

	flags := m.flags
	if allowCompression && !m.IsControl() && supportsCompression(m.Version) &&
		HeaderSize+len(payload) > 128 &&
		flags&FlagStream == 0 && flags&FlagDontCompress == 0 {
		if compPayload, ok := deflateIfSmaller(payload); ok {
			payload = compPayload
			flags |= FlagCompressed
		}
	}

	size := HeaderSize + len(payload)
	out := buffer.NewWriter()
	out.WriteUint16(m.Code, buffer.Big)
	out.WriteUint16(packFlags(flags, m.Version), buffer.Big)
	out.WriteUint32(uint32(size), buffer.Big)
	out.WriteUint32(m.ID, buffer.Big)
	out.WriteUint32(numFields, buffer.Big)
	out.WriteBytes(payload)
	return out.Bytes(), nil
}

func packFlags(flags uint16, ver byte) uint16 {
	return (flags & 0x0FFF) | (uint16(ver&0x0F) << 12)
}

func unpackFlags(word uint16) (flags uint16, ver byte) {
	return word & 0x0FFF, byte(word >> 12)
}

// supportsCompression reports whether the protocol version is high enough
// to carry the compressed-payload-length prefix (version >= 4), using a
// real version-constraint comparison rather than a bare integer check.
func supportsCompression(ver byte) bool {
	v, err := version.NewVersion(versionString(ver))
	if err != nil {
		return ver >= 4
	}
	constraint, err := version.NewConstraint(">= 4.0.0")
	if err != nil {
		return ver >= 4
	}
	return constraint.Check(v)
}

func versionString(ver byte) string {
	digits := "0123456789"
	if int(ver) < len(digits) {
		return string(digits[ver]) + ".0.0"
	}
	return "15.0.0"
}

// deflateIfSmaller returns the deflated form of payload prefixed with its
// big-endian uncompressed length, plus whether it is worth using.
func deflateIfSmaller(payload []byte) ([]byte, bool) {
	var buf bytes.Buffer
	zw, err := flate.NewWriter(&buf, flate.BestCompression)
	if err != nil {
		return nil, false
	}
	if _, err := zw.Write(payload); err != nil {
		return nil, false
	}
	if err := zw.Close(); err != nil {
		return nil, false
	}

	w := buffer.NewWriter()
	w.WriteUint32(uint32(len(payload)), buffer.Big)
	w.WriteBytes(buf.Bytes())
	raw := w.Bytes()
	if len(raw) >= len(payload) {
		return nil, false
	}
	padded := padTo8(len(raw))
	if padded > len(raw) {
		raw = append(raw, make([]byte, padded-len(raw))...)
	}
	return raw, true
}

func inflate(payload []byte) ([]byte, error) {
	r := buffer.NewReader(payload)
	uncompressedLen, err := r.ReadUint32(buffer.Big)
	if err != nil {
		return nil, errors.Wrap(err, "mpm: reading uncompressed length prefix")
	}
	rest, err := r.ReadBytes(r.Remaining())
	if err != nil {
		return nil, err
	}
	zr := flate.NewReader(bytes.NewReader(rest))
	defer zr.Close()
	out := make([]byte, uncompressedLen)
	if _, err := io.ReadFull(zr, out); err != nil {
		return nil, errors.Wrap(err, "mpm: inflating compressed payload")
	}
	return out, nil
}
