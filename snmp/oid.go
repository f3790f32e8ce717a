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

// Package snmp implements SNMP v1/v2c object identifiers, variable
// bindings, and PDU assembly/parsing on top of the ber package.
package snmp

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// ObjectID is an ordered sequence of non-negative integer arcs identifying
// an ASN.1 object, e.g. {1,3,6,1,2,1,1,3,0} for sysUpTime.0.
type ObjectID []uint32

// ParseOID parses a dot-decimal textual OID such as "1.3.6.1.2.1.1.3.0".
// A leading dot is tolerated and ignored.
func ParseOID(text string) (ObjectID, error) {
	text = strings.TrimPrefix(text, ".")
	if text == "" {
		return nil, errors.New("snmp: empty OID text")
	}
	parts := strings.Split(text, ".")
	oid := make(ObjectID, len(parts))
	for i, p := range parts {
		v, err := strconv.ParseUint(p, 10, 32)
		if err != nil {
			return nil, errors.Wrapf(err, "snmp: invalid OID arc %q", p)
		}
		oid[i] = uint32(v)
	}
	return oid, nil
}

// String renders the OID in dot-decimal form, e.g. ".1.3.6.1.2.1.1.3.0"
// rendered without the leading dot as "1.3.6.1.2.1.1.3.0".
func (o ObjectID) String() string {
	var b strings.Builder
	for i, arc := range o {
		if i > 0 {
			b.WriteByte('.')
		}
		b.WriteString(strconv.FormatUint(uint64(arc), 10))
	}
	return b.String()
}

// Equal reports whether two OIDs have identical arcs.
func (o ObjectID) Equal(other ObjectID) bool {
	if len(o) != len(other) {
		return false
	}
	for i := range o {
		if o[i] != other[i] {
			return false
		}
	}
	return true
}

// HasPrefix reports whether o begins with all of prefix's arcs.
func (o ObjectID) HasPrefix(prefix ObjectID) bool {
	if len(o) < len(prefix) {
		return false
	}
	for i := range prefix {
		if o[i] != prefix[i] {
			return false
		}
	}
	return true
}

// Append returns a new OID with extra arcs appended.
func (o ObjectID) Append(arcs ...uint32) ObjectID {
	out := make(ObjectID, 0, len(o)+len(arcs))
	out = append(out, o...)
	out = append(out, arcs...)
	return out
}

// Clone returns an independent copy of the OID.
func (o ObjectID) Clone() ObjectID {
	out := make(ObjectID, len(o))
	copy(out, o)
	return out
}
