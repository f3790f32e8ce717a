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

// Package mpm implements the Management Protocol Message wire format: a
// framed, field-id-keyed binary message with optional deflate compression
// of its field body, used by the session layer for request/response and
// asynchronous-notification traffic.
package mpm

import (
	"net"

	log "github.com/sirupsen/logrus"
)

// FieldType identifies the on-wire encoding of a field's value. Numeric
// assignments are a wire-compatible convention of this implementation; the
// only externally-pinned value is Int32, fixed by the header/field dump in
// the worked example this format was specified against.
type FieldType byte

// Recognized field types.
const (
	TypeInt16 FieldType = 1
	TypeString FieldType = 2 // UCS-2 payload
	TypeInt64  FieldType = 3
	TypeInt32  FieldType = 4
	TypeFloat  FieldType = 5
	TypeUTF8String FieldType = 6
	TypeBinary      FieldType = 7
	TypeInetAddress FieldType = 8
)

// Address family tags for TypeInetAddress fields.
const (
	FamilyUnspec byte = 0
	FamilyV4     byte = 1
	FamilyV6     byte = 2
)

// InetAddress is the value carried by a TypeInetAddress field.
type InetAddress struct {
	Family   byte
	MaskBits byte
	Addr     [16]byte
}

// NewInetAddress builds an InetAddress field value from a net.IP.
func NewInetAddress(ip net.IP, maskBits byte) InetAddress {
	var a InetAddress
	a.MaskBits = maskBits
	if v4 := ip.To4(); v4 != nil {
		a.Family = FamilyV4
		copy(a.Addr[:4], v4)
	} else if v6 := ip.To16(); v6 != nil {
		a.Family = FamilyV6
		copy(a.Addr[:], v6)
	} else {
		a.Family = FamilyUnspec
	}
	return a
}

// IP renders the InetAddress back to a net.IP.
func (a InetAddress) IP() net.IP {
	switch a.Family {
	case FamilyV4:
		return net.IPv4(a.Addr[0], a.Addr[1], a.Addr[2], a.Addr[3])
	case FamilyV6:
		return append(net.IP(nil), a.Addr[:]...)
	default:
		return nil
	}
}

// Field is one typed (id, value) pair inside a Message. Exactly one of the
// value slots below is meaningful, selected by Type.
type Field struct {
	ID     uint32
	Type   FieldType
	Signed bool // preserved on round-trip, never interpreted

	I64  int64
	F64  float64
	Str  string
	Bin  []byte
	Addr InetAddress
}

// Low 12 bits of Message.flags.
const (
	FlagBinary         uint16 = 0x0001
	FlagEndOfSequence  uint16 = 0x0002
	FlagDontCompress   uint16 = 0x0004
	FlagControl        uint16 = 0x0008
	FlagCompressed     uint16 = 0x0010
	FlagStream         uint16 = 0x0020
	FlagReverseOrder   uint16 = 0x0040
)

// HeaderSize is the fixed size of an MPM frame header in bytes.
const HeaderSize = 16

// Message is a structured, field-id-keyed protocol message, or (in binary
// or control mode) an opaque blob / inline code.
type Message struct {
	Code    uint16
	Version byte
	flags   uint16
	ID      uint32

	fields *fieldMap

	// BinaryPayload holds the opaque blob carried by a binary-mode message.
	BinaryPayload []byte
	// ControlCode holds the inline 32-bit code carried by a control-mode
	// message.
	ControlCode uint32

	// Invalid is set by Parse when the frame failed validation; callers
	// must discard such messages rather than act on partial field data.
	Invalid bool
}

// NewMessage creates an empty structured message.
func NewMessage(code uint16, id uint32, version byte) *Message {
	return &Message{Code: code, ID: id, Version: version, fields: newFieldMap()}
}

// NewBinaryMessage creates a binary-mode message carrying an opaque blob.
func NewBinaryMessage(code uint16, id uint32, version byte, payload []byte) *Message {
	m := NewMessage(code, id, version)
	m.flags |= FlagBinary
	m.BinaryPayload = payload
	return m
}

// NewControlMessage creates a control-mode message carrying a single code.
func NewControlMessage(code uint16, id uint32, version byte, controlCode uint32) *Message {
	m := NewMessage(code, id, version)
	m.flags |= FlagControl
	m.ControlCode = controlCode
	return m
}

// Flags returns the low-12-bit flag set.
func (m *Message) Flags() uint16 { return m.flags }

// SetFlag sets one or more flag bits.
func (m *Message) SetFlag(f uint16) { m.flags |= f & 0x0FFF }

// ClearFlag clears one or more flag bits.
func (m *Message) ClearFlag(f uint16) { m.flags &^= f & 0x0FFF }

// HasFlag reports whether all bits in f are set.
func (m *Message) HasFlag(f uint16) bool { return m.flags&f == f }

// IsBinary reports whether the message is in binary mode.
func (m *Message) IsBinary() bool { return m.HasFlag(FlagBinary) }

// IsControl reports whether the message is in control mode.
func (m *Message) IsControl() bool { return m.HasFlag(FlagControl) }

// FieldCount returns the number of structured fields (0 for binary/control
// messages).
func (m *Message) FieldCount() int {
	if m.fields == nil {
		return 0
	}
	return m.fields.len()
}

// Clone returns a deep copy of the message, the Go analog of the original
// pool-backed deep message copy.
func (m *Message) Clone() *Message {
	cp := *m
	if m.fields != nil {
		cp.fields = m.fields.clone()
	}
	cp.BinaryPayload = append([]byte(nil), m.BinaryPayload...)
	return &cp
}

// SetProtocolVersion updates the message's protocol version, re-encoding
// every utf8-string field as a string (UCS-2) field in place when the new
// version drops below 5, preserving field id and order.
func (m *Message) SetProtocolVersion(v byte) {
	m.Version = v
	if v >= 5 || m.fields == nil {
		return
	}
	var downgraded []*Field
	m.fields.each(func(f *Field) {
		if f.Type == TypeUTF8String {
			downgraded = append(downgraded, f)
		}
	})
	for _, f := range downgraded {
		f.Type = TypeString
	}
	if len(downgraded) > 0 {
		log.WithField("count", len(downgraded)).Debug("mpm: downgraded utf8-string fields to string for protocol version < 5")
	}
}
