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
	"math"

	"github.com/pkg/errors"
)

// defaultGrowth is the minimum number of bytes a Stream grows its backing
// array by when a write would otherwise reallocate on every call.
const defaultGrowth = 4096

// ErrFormat is returned whenever a read runs past the end of the stream or a
// length prefix claims more bytes than remain. An unrecognized codepage name
// is not an error: it selects the multibyte (UTF-8) path.
var ErrFormat = errors.New("format-error")

// Whence selects the reference point for Seek.
type Whence int

// Seek reference points.
const (
	SeekAbsolute Whence = iota
	SeekRelative
	SeekEnd
)

// Stream is a read/write byte cursor over a growable buffer. Writes append
// at the current position (growing the buffer as needed); reads advance the
// position and fail with ErrFormat on underrun.
type Stream struct {
	data []byte
	pos  int
}

// NewWriter returns an empty Stream ready for writes.
func NewWriter() *Stream {
	return &Stream{data: make([]byte, 0, defaultGrowth)}
}

// NewReader returns a Stream positioned at the start of an existing buffer.
// The buffer is not copied.
func NewReader(data []byte) *Stream {
	return &Stream{data: data}
}

// Bytes returns the full underlying buffer (not just the unread tail).
func (s *Stream) Bytes() []byte {
	return s.data
}

// Len returns the total number of bytes in the stream.
func (s *Stream) Len() int {
	return len(s.data)
}

// Pos returns the current cursor position.
func (s *Stream) Pos() int {
	return s.pos
}

// Remaining returns the number of unread bytes.
func (s *Stream) Remaining() int {
	return len(s.data) - s.pos
}

// Eos reports whether the cursor has reached the end of the stream.
func (s *Stream) Eos() bool {
	return s.pos == len(s.data)
}

// Seek repositions the cursor. A SeekEnd offset is added to the stream
// length (so it is zero or negative for an in-range target); a resulting
// position below 0 or past the end is an ErrFormat.
func (s *Stream) Seek(offset int, whence Whence) error {
	var target int
	switch whence {
	case SeekAbsolute:
		target = offset
	case SeekRelative:
		target = s.pos + offset
	case SeekEnd:
		target = len(s.data) + offset
	default:
		return errors.Wrap(ErrFormat, "unknown whence")
	}
	if target < 0 || target > len(s.data) {
		return errors.Wrap(ErrFormat, "seek out of range")
	}
	s.pos = target
	return nil
}

func (s *Stream) grow(n int) {
	need := s.pos + n
	if need <= cap(s.data) {
		return
	}
	growth := need - cap(s.data)
	if growth < defaultGrowth {
		growth = defaultGrowth
	}
	next := make([]byte, len(s.data), cap(s.data)+growth)
	copy(next, s.data)
	s.data = next
}

func (s *Stream) ensureWrite(n int) []byte {
	s.grow(n)
	if s.pos+n > len(s.data) {
		s.data = s.data[:s.pos+n]
	}
	b := s.data[s.pos : s.pos+n]
	s.pos += n
	return b
}

func (s *Stream) readBytes(n int) ([]byte, error) {
	if n < 0 || s.pos+n > len(s.data) {
		return nil, errors.Wrap(ErrFormat, "read past end of stream")
	}
	b := s.data[s.pos : s.pos+n]
	s.pos += n
	return b, nil
}

// WriteBytes appends a raw byte run with no length prefix.
func (s *Stream) WriteBytes(b []byte) {
	copy(s.ensureWrite(len(b)), b)
}

// ReadBytes reads exactly n raw bytes with no length prefix.
func (s *Stream) ReadBytes(n int) ([]byte, error) {
	return s.readBytes(n)
}

// WriteUint16 writes a 16-bit unsigned integer in the given byte order.
func (s *Stream) WriteUint16(v uint16, order Order) {
	order.resolve().PutUint16(s.ensureWrite(2), v)
}

// ReadUint16 reads a 16-bit unsigned integer in the given byte order.
func (s *Stream) ReadUint16(order Order) (uint16, error) {
	b, err := s.readBytes(2)
	if err != nil {
		return 0, err
	}
	return order.resolve().Uint16(b), nil
}

// WriteUint32 writes a 32-bit unsigned integer in the given byte order.
func (s *Stream) WriteUint32(v uint32, order Order) {
	order.resolve().PutUint32(s.ensureWrite(4), v)
}

// ReadUint32 reads a 32-bit unsigned integer in the given byte order.
func (s *Stream) ReadUint32(order Order) (uint32, error) {
	b, err := s.readBytes(4)
	if err != nil {
		return 0, err
	}
	return order.resolve().Uint32(b), nil
}

// WriteUint64 writes a 64-bit unsigned integer in the given byte order.
func (s *Stream) WriteUint64(v uint64, order Order) {
	order.resolve().PutUint64(s.ensureWrite(8), v)
}

// ReadUint64 reads a 64-bit unsigned integer in the given byte order.
func (s *Stream) ReadUint64(order Order) (uint64, error) {
	b, err := s.readBytes(8)
	if err != nil {
		return 0, err
	}
	return order.resolve().Uint64(b), nil
}

// WriteFloat64 writes an IEEE-754 double in the given byte order.
func (s *Stream) WriteFloat64(v float64, order Order) {
	s.WriteUint64(math.Float64bits(v), order)
}

// ReadFloat64 reads an IEEE-754 double in the given byte order.
func (s *Stream) ReadFloat64(order Order) (float64, error) {
	bits, err := s.ReadUint64(order)
	if err != nil {
		return 0, err
	}
	return math.Float64frombits(bits), nil
}

// WriteUVarint writes an unsigned LEB128 varint.
func (s *Stream) WriteUVarint(v uint64) {
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			b |= 0x80
		}
		s.WriteBytes([]byte{b})
		if v == 0 {
			return
		}
	}
}

// ReadUVarint reads an unsigned LEB128 varint.
func (s *Stream) ReadUVarint() (uint64, error) {
	var result uint64
	var shift uint
	for {
		b, err := s.readBytes(1)
		if err != nil {
			return 0, err
		}
		result |= uint64(b[0]&0x7f) << shift
		if b[0]&0x80 == 0 {
			return result, nil
		}
		shift += 7
		if shift >= 64 {
			return 0, errors.Wrap(ErrFormat, "varint too long")
		}
	}
}

// WriteVarint writes a signed LEB128 varint using zigzag encoding.
func (s *Stream) WriteVarint(v int64) {
	s.WriteUVarint(uint64(uint64(v)<<1) ^ uint64(v>>63))
}

// ReadVarint reads a signed LEB128 varint using zigzag decoding.
func (s *Stream) ReadVarint() (int64, error) {
	u, err := s.ReadUVarint()
	if err != nil {
		return 0, err
	}
	return int64(u>>1) ^ -int64(u&1), nil
}
