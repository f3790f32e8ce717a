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

import "net"

// SetInt16 sets a signed 16-bit field, replacing any existing field with
// the same id.
func (m *Message) SetInt16(id uint32, v int16) {
	m.fields.set(&Field{ID: id, Type: TypeInt16, Signed: true, I64: int64(v)})
}

// SetInt32 sets a signed 32-bit field.
func (m *Message) SetInt32(id uint32, v int32) {
	m.fields.set(&Field{ID: id, Type: TypeInt32, Signed: true, I64: int64(v)})
}

// SetUInt32 sets an unsigned 32-bit field.
func (m *Message) SetUInt32(id uint32, v uint32) {
	m.fields.set(&Field{ID: id, Type: TypeInt32, I64: int64(v)})
}

// SetInt64 sets a signed 64-bit field.
func (m *Message) SetInt64(id uint32, v int64) {
	m.fields.set(&Field{ID: id, Type: TypeInt64, Signed: true, I64: v})
}

// SetUInt64 sets an unsigned 64-bit field.
func (m *Message) SetUInt64(id uint32, v uint64) {
	m.fields.set(&Field{ID: id, Type: TypeInt64, I64: int64(v)})
}

// SetFloat sets a float64 field.
func (m *Message) SetFloat(id uint32, v float64) {
	m.fields.set(&Field{ID: id, Type: TypeFloat, F64: v})
}

// SetString sets a legacy UCS-2 string field. maxLen, if > 0, truncates the
// value (in runes) before encoding.
func (m *Message) SetString(id uint32, v string, maxLen int) {
	if maxLen > 0 && len([]rune(v)) > maxLen {
		v = string([]rune(v)[:maxLen])
	}
	m.fields.set(&Field{ID: id, Type: TypeString, Str: v})
}

// SetUTF8String sets a utf8-string field. maxLen, if > 0, truncates the
// value (in runes) before encoding.
func (m *Message) SetUTF8String(id uint32, v string, maxLen int) {
	if maxLen > 0 && len([]rune(v)) > maxLen {
		v = string([]rune(v)[:maxLen])
	}
	m.fields.set(&Field{ID: id, Type: TypeUTF8String, Str: v})
}

// SetBinary sets an opaque byte-run field.
func (m *Message) SetBinary(id uint32, v []byte) {
	m.fields.set(&Field{ID: id, Type: TypeBinary, Bin: append([]byte(nil), v...)})
}

// SetInetAddress sets an inet-address field.
func (m *Message) SetInetAddress(id uint32, addr InetAddress) {
	m.fields.set(&Field{ID: id, Type: TypeInetAddress, Addr: addr})
}

// SetIPv4 is a convenience wrapper storing an IPv4 address as an
// inet-address field (the original's IPv4-as-INT32 special case is
// exposed instead as a typed inet-address here; GetIPv4AsInt32
// provides the legacy INT32 view for callers that need it).
func (m *Message) SetIPv4(id uint32, ip net.IP, maskBits byte) {
	m.SetInetAddress(id, NewInetAddress(ip, maskBits))
}

// GetField returns the raw field for id, or nil if not present.
func (m *Message) GetField(id uint32) *Field {
	if m.fields == nil {
		return nil
	}
	f, _ := m.fields.get(id)
	return f
}

// GetInt32 returns the field's value as int32, or 0 if absent. Fields of
// other integer widths are returned truncated/sign-extended, matching the
// original's permissive get(); non-integer fields yield 0.
func (m *Message) GetInt32(id uint32) int32 {
	f := m.GetField(id)
	if f == nil {
		return 0
	}
	return int32(f.I64)
}

// GetUInt32 returns the field's value as uint32.
func (m *Message) GetUInt32(id uint32) uint32 {
	return uint32(m.GetInt32(id))
}

// GetInt64 returns the field's value as int64.
func (m *Message) GetInt64(id uint32) int64 {
	f := m.GetField(id)
	if f == nil {
		return 0
	}
	return f.I64
}

// GetUInt64 returns the field's value as uint64.
func (m *Message) GetUInt64(id uint32) uint64 {
	return uint64(m.GetInt64(id))
}

// GetFloat returns the field's value as float64.
func (m *Message) GetFloat(id uint32) float64 {
	f := m.GetField(id)
	if f == nil {
		return 0
	}
	return f.F64
}

// GetString returns the field's value as a string, regardless of whether it
// was set as a legacy string or a utf8-string field.
func (m *Message) GetString(id uint32) string {
	f := m.GetField(id)
	if f == nil {
		return ""
	}
	return f.Str
}

// GetBinary returns the field's raw bytes.
func (m *Message) GetBinary(id uint32) []byte {
	f := m.GetField(id)
	if f == nil {
		return nil
	}
	return f.Bin
}

// GetInetAddress returns the field's inet-address value.
func (m *Message) GetInetAddress(id uint32) InetAddress {
	f := m.GetField(id)
	if f == nil {
		return InetAddress{}
	}
	return f.Addr
}

// GetIPv4AsInt32 returns an inet-address field's IPv4 portion packed into a
// host-order int32, matching the original's IPv4-as-INT32 convenience
// accessor used by legacy callers that never moved to the typed field.
func (m *Message) GetIPv4AsInt32(id uint32) int32 {
	addr := m.GetInetAddress(id)
	if addr.Family != FamilyV4 {
		return 0
	}
	return int32(uint32(addr.Addr[0])<<24 | uint32(addr.Addr[1])<<16 | uint32(addr.Addr[2])<<8 | uint32(addr.Addr[3]))
}
