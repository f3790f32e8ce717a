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

package snmp

import (
	"fmt"
	"net"

	"github.com/pkg/errors"

	"github.com/mpmcore/mpmcore/ber"
)

// ASN.1 types a Variable's raw value may carry. These mirror the ber
// package's tag constants but are re-exported here under SNMP-facing names.
const (
	TypeInteger    = ber.TagInteger
	TypeOctetString = ber.TagOctetString
	TypeNull       = ber.TagNull
	TypeObjectID   = ber.TagObjectID
	TypeIPAddress  = ber.TagIPAddress
	TypeCounter32  = ber.TagCounter32
	TypeGauge32    = ber.TagGauge32
	TypeTimeTicks  = ber.TagTimeTicks
	TypeOpaque     = ber.TagOpaque
	TypeCounter64  = ber.TagCounter64
	TypeUInteger32 = ber.TagUInteger32
)

// Variable is a single SNMP variable binding: an OID paired with a typed,
// raw-encoded value.
type Variable struct {
	OID   ObjectID
	Type  byte
	Value []byte
}

// NewInt returns an INTEGER variable binding.
func NewInt(oid ObjectID, v int32) Variable {
	return Variable{OID: oid, Type: TypeInteger, Value: ber.EncodeInteger(v)}
}

// NewUint returns a variable binding of the given unsigned 32-bit type
// (COUNTER32, GAUGE32, TIMETICKS, or UINTEGER32).
func NewUint(oid ObjectID, typ byte, v uint32) Variable {
	return Variable{OID: oid, Type: typ, Value: ber.EncodeUnsigned(v)}
}

// NewCounter64 returns a COUNTER64 variable binding.
func NewCounter64(oid ObjectID, v uint64) Variable {
	return Variable{OID: oid, Type: TypeCounter64, Value: ber.EncodeCounter64(v)}
}

// NewString returns an OCTET STRING variable binding.
func NewString(oid ObjectID, s string) Variable {
	return Variable{OID: oid, Type: TypeOctetString, Value: []byte(s)}
}

// NewObjectID returns an OBJECT IDENTIFIER variable binding.
func NewObjectID(oid ObjectID, value ObjectID) Variable {
	return Variable{OID: oid, Type: TypeObjectID, Value: ber.EncodeObjectID(value)}
}

// NewIPAddress returns an IP_ADDR variable binding (4-byte network order).
func NewIPAddress(oid ObjectID, ip net.IP) Variable {
	v4 := ip.To4()
	if v4 == nil {
		v4 = net.IPv4zero.To4()
	}
	return Variable{OID: oid, Type: TypeIPAddress, Value: append([]byte(nil), v4...)}
}

// AsInt interprets the value as a signed integer.
func (v Variable) AsInt() (int32, error) {
	u, err := ber.DecodeInteger(v.Value)
	if err != nil {
		return 0, err
	}
	return int32(u), nil
}

// AsUint interprets the value as an unsigned 32-bit integer.
func (v Variable) AsUint() (uint32, error) {
	return ber.DecodeInteger(v.Value)
}

// AsUint64 interprets the value as a 64-bit counter.
func (v Variable) AsUint64() (uint64, error) {
	if v.Type == TypeCounter64 {
		return ber.DecodeCounter64(v.Value)
	}
	u, err := ber.DecodeInteger(v.Value)
	return uint64(u), err
}

// AsString renders an OCTET STRING/Opaque value as a Go string. Non-ASCII
// bytes are passed through verbatim.
func (v Variable) AsString() string {
	return string(v.Value)
}

// AsObjectID interprets the value as an OBJECT IDENTIFIER.
func (v Variable) AsObjectID() (ObjectID, error) {
	arcs, err := ber.DecodeObjectID(v.Value)
	if err != nil {
		return nil, err
	}
	return ObjectID(arcs), nil
}

// AsIPAddress interprets a 4-byte IP_ADDR value as a dotted-quad net.IP.
func (v Variable) AsIPAddress() (net.IP, error) {
	if len(v.Value) != 4 {
		return nil, errors.New("snmp: IP_ADDR value is not 4 bytes")
	}
	return net.IPv4(v.Value[0], v.Value[1], v.Value[2], v.Value[3]), nil
}

// AsMACAddress formats an OCTET STRING of length >= 6 as a colon-separated
// MAC address, using the first six bytes.
func (v Variable) AsMACAddress() (string, error) {
	if len(v.Value) < 6 {
		return "", errors.New("snmp: value too short for a MAC address")
	}
	b := v.Value[:6]
	return fmt.Sprintf("%02X:%02X:%02X:%02X:%02X:%02X", b[0], b[1], b[2], b[3], b[4], b[5]), nil
}

// Encode serializes the variable binding as a BER SEQUENCE { OID, value }.
func (v Variable) Encode() ([]byte, error) {
	oidContent := ber.EncodeObjectID(v.OID)
	oidBuf := make([]byte, len(oidContent)+6)
	oidLen, err := ber.Encode(oidBuf, ber.TagObjectID, oidContent)
	if err != nil {
		return nil, err
	}
	valBuf := make([]byte, len(v.Value)+6)
	valLen, err := ber.Encode(valBuf, v.Type, v.Value)
	if err != nil {
		return nil, err
	}
	inner := append(append([]byte(nil), oidBuf[:oidLen]...), valBuf[:valLen]...)
	out := make([]byte, len(inner)+6)
	n, err := ber.Encode(out, ber.TagSequence, inner)
	if err != nil {
		return nil, err
	}
	return out[:n], nil
}

// ParseVariable decodes a single varbind SEQUENCE { OID, value }.
func ParseVariable(data []byte) (Variable, int, error) {
	tag, _, content, hdr, err := ber.DecodeIdentifier(data)
	if err != nil {
		return Variable{}, 0, err
	}
	if tag != ber.TagSequence {
		return Variable{}, 0, errors.New("snmp: varbind is not a SEQUENCE")
	}
	oidTag, _, oidContent, oidHdr, err := ber.DecodeIdentifier(content)
	if err != nil {
		return Variable{}, 0, err
	}
	if oidTag != ber.TagObjectID {
		return Variable{}, 0, errors.New("snmp: varbind first element is not an OBJECT IDENTIFIER")
	}
	oidArcs, err := ber.DecodeObjectID(oidContent)
	if err != nil {
		return Variable{}, 0, err
	}
	rest := content[oidHdr+len(oidContent):]
	valTag, _, valContent, _, err := ber.DecodeIdentifier(rest)
	if err != nil {
		return Variable{}, 0, err
	}
	return Variable{OID: ObjectID(oidArcs), Type: valTag, Value: append([]byte(nil), valContent...)}, hdr + len(content), nil
}
