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

// Package ber implements the subset of ASN.1 Basic Encoding Rules used by
// SNMP v1/v2c: identifier and length decoding, and content encode/decode
// for the primitive types SNMP PDUs are built from. Multi-byte tags are
// rejected outright — SNMP v1/v2c never emits them.
package ber

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

// ASN.1 universal tag numbers used by SNMP.
const (
	TagInteger    = 0x02
	TagOctetString = 0x04
	TagNull       = 0x05
	TagObjectID   = 0x06
	TagSequence   = 0x30

	// Application-class tags (context bits set by the caller via Type).
	TagIPAddress  = 0x40
	TagCounter32  = 0x41
	TagGauge32    = 0x42
	TagTimeTicks  = 0x43
	TagOpaque     = 0x44
	TagCounter64  = 0x46
	TagUInteger32 = 0x47

	// Context-specific PDU tags.
	TagGetRequest     = 0xA0
	TagGetNextRequest = 0xA1
	TagGetResponse    = 0xA2
	TagSetRequest     = 0xA3
	TagTrapV1         = 0xA4
	TagGetBulkRequest = 0xA5
	TagInformRequest  = 0xA6
	TagTrapV2         = 0xA7
)

// ErrMultiByteTag is returned when an identifier octet's low 5 bits are all
// set — SNMP v1/v2c never uses the ASN.1 multi-byte tag extension.
var ErrMultiByteTag = errors.New("ber: multi-byte tags are not supported")

// ErrTruncated is returned when the buffer ends before a declared length.
var ErrTruncated = errors.New("ber: truncated BER data")

// ErrBufferTooSmall is returned by Encode when the caller-supplied buffer
// cannot hold the encoded type+length+content.
var ErrBufferTooSmall = errors.New("ber: buffer too small")

// DecodeIdentifier reads one BER tag and its length field from data. It
// returns the tag type, declared content length, the content itself, and
// the number of header bytes consumed (tag + length octets).
func DecodeIdentifier(data []byte) (tag byte, length int, content []byte, headerLen int, err error) {
	if len(data) < 1 {
		return 0, 0, nil, 0, errors.WithStack(ErrTruncated)
	}
	tag = data[0]
	if tag&0x1F == 0x1F {
		return 0, 0, nil, 0, errors.WithStack(ErrMultiByteTag)
	}
	if len(data) < 2 {
		return 0, 0, nil, 0, errors.WithStack(ErrTruncated)
	}
	lenByte := data[1]
	pos := 2
	if lenByte&0x80 == 0 {
		length = int(lenByte)
	} else {
		n := int(lenByte &^ 0x80)
		if n > 4 {
			return 0, 0, nil, 0, errors.New("ber: length field too wide")
		}
		if len(data) < pos+n {
			return 0, 0, nil, 0, errors.WithStack(ErrTruncated)
		}
		var v uint32
		for i := 0; i < n; i++ {
			v = v<<8 | uint32(data[pos+i])
		}
		length = int(v)
		pos += n
	}
	if len(data) < pos+length {
		return 0, 0, nil, 0, errors.WithStack(ErrTruncated)
	}
	return tag, length, data[pos : pos+length], pos, nil
}

// DecodeInteger decodes a (possibly sign-extended) BER INTEGER-family value
// (INTEGER, COUNTER32, GAUGE32, TIMETICKS, UINTEGER32) of length 1..5 into a
// 32-bit host value. A leading 0x00 at length 5 is consumed as the unsigned
// sign pad, matching the encoder's minimum-byte-with-sign-pad convention.
func DecodeInteger(content []byte) (uint32, error) {
	if len(content) == 0 {
		return 0, nil
	}
	if len(content) > 5 {
		return 0, errors.New("ber: integer content too long")
	}
	var v uint32
	negative := content[0]&0x80 != 0
	for _, b := range content {
		v = v<<8 | uint32(b)
	}
	if negative && len(content) < 5 {
		// Sign-extend into the unused high bytes.
		shift := uint(8 * (4 - len(content)))
		mask := ^uint32(0) << (32 - shift)
		v |= mask
	}
	return v, nil
}

// DecodeCounter64 decodes a COUNTER64 value of length 1..9 into a 64-bit
// host value (unsigned; COUNTER64 is never negative).
func DecodeCounter64(content []byte) (uint64, error) {
	if len(content) > 9 {
		return 0, errors.New("ber: counter64 content too long")
	}
	var v uint64
	for _, b := range content {
		v = v<<8 | uint64(b)
	}
	return v, nil
}

// DecodeObjectID decodes an OBJECT IDENTIFIER content body into its arcs.
// The first byte splits into the first two arcs as arc0*40+arc1; subsequent
// arcs use base-128 encoding with the high bit as a continuation flag.
func DecodeObjectID(content []byte) ([]uint32, error) {
	if len(content) == 0 {
		return nil, nil
	}
	arcs := make([]uint32, 0, len(content)+1)
	arcs = append(arcs, uint32(content[0])/40, uint32(content[0])%40)
	var v uint32
	for _, b := range content[1:] {
		v = v<<7 | uint32(b&0x7F)
		if b&0x80 == 0 {
			arcs = append(arcs, v)
			v = 0
		}
	}
	return arcs, nil
}

// EncodeInteger encodes a signed 32-bit value using the minimum number of
// bytes that preserves the sign bit, matching the decoder above.
func EncodeInteger(v int32) []byte {
	if v == 0 {
		return []byte{0}
	}
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], uint32(v))
	start := 0
	for start < 3 {
		b := buf[start]
		next := buf[start+1]
		// Stop trimming once trimming further would change the sign.
		allSameSign := (b == 0x00 && next&0x80 == 0) || (b == 0xFF && next&0x80 != 0)
		if !allSameSign {
			break
		}
		start++
	}
	return append([]byte(nil), buf[start:]...)
}

// EncodeUnsigned encodes an unsigned 32-bit value (COUNTER32/GAUGE32/
// TIMETICKS/UINTEGER32) with the minimum number of bytes, prefixing a 0x00
// pad byte when the high bit of the first significant byte would otherwise
// be mistaken for a sign bit.
func EncodeUnsigned(v uint32) []byte {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], v)
	start := 0
	for start < 3 && buf[start] == 0 {
		start++
	}
	enc := buf[start:]
	if enc[0]&0x80 != 0 {
		return append([]byte{0}, enc...)
	}
	return append([]byte(nil), enc...)
}

// EncodeCounter64 encodes an unsigned 64-bit value with the minimum number
// of bytes, padding with a leading 0x00 when needed to avoid an accidental
// sign bit, matching the decoder's 1..9 byte range.
func EncodeCounter64(v uint64) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], v)
	start := 0
	for start < 7 && buf[start] == 0 {
		start++
	}
	enc := buf[start:]
	if enc[0]&0x80 != 0 {
		return append([]byte{0}, enc...)
	}
	return append([]byte(nil), enc...)
}

// EncodeObjectID encodes an OID's arcs into BER content bytes. OIDs with
// fewer than two arcs encode as zero-length content (matching the original
// decoder, which never produces a single-arc OID either).
func EncodeObjectID(arcs []uint32) []byte {
	if len(arcs) < 2 {
		return nil
	}
	out := []byte{byte(arcs[0]*40 + arcs[1])}
	for _, arc := range arcs[2:] {
		out = append(out, encodeBase128(arc)...)
	}
	return out
}

func encodeBase128(v uint32) []byte {
	if v == 0 {
		return []byte{0}
	}
	var tmp []byte
	for v > 0 {
		tmp = append([]byte{byte(v & 0x7F)}, tmp...)
		v >>= 7
	}
	for i := 0; i < len(tmp)-1; i++ {
		tmp[i] |= 0x80
	}
	return tmp
}

// Encode assembles a full tag+length+content record into buf, returning the
// number of bytes written. It fails with ErrBufferTooSmall if buf cannot
// hold the result.
func Encode(buf []byte, tag byte, content []byte) (int, error) {
	lengthBytes := encodeLength(len(content))
	total := 1 + len(lengthBytes) + len(content)
	if len(buf) < total {
		return 0, errors.WithStack(ErrBufferTooSmall)
	}
	buf[0] = tag
	copy(buf[1:], lengthBytes)
	copy(buf[1+len(lengthBytes):], content)
	return total, nil
}

func encodeLength(n int) []byte {
	if n < 128 {
		return []byte{byte(n)}
	}
	var tmp []byte
	v := uint32(n)
	for v > 0 {
		tmp = append([]byte{byte(v & 0xFF)}, tmp...)
		v >>= 8
	}
	return append([]byte{0x80 | byte(len(tmp))}, tmp...)
}
