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
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/olekukonko/tablewriter"
)

func fieldTypeName(t FieldType) string {
	switch t {
	case TypeInt16:
		return "INT16"
	case TypeString:
		return "STRING"
	case TypeInt64:
		return "INT64"
	case TypeInt32:
		return "INT32"
	case TypeFloat:
		return "FLOAT"
	case TypeUTF8String:
		return "UTF8_STRING"
	case TypeBinary:
		return "BINARY"
	case TypeInetAddress:
		return "INETADDR"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", t)
	}
}

func fieldValueString(f *Field) string {
	switch f.Type {
	case TypeInt16, TypeInt32, TypeInt64:
		return fmt.Sprintf("%d", f.I64)
	case TypeFloat:
		return fmt.Sprintf("%g", f.F64)
	case TypeString, TypeUTF8String:
		return f.Str
	case TypeBinary:
		return hex.EncodeToString(f.Bin)
	case TypeInetAddress:
		return f.Addr.IP().String()
	default:
		return ""
	}
}

// Dump renders a human-readable summary of the message, one row per field,
// for diagnostic tooling.
func (m *Message) Dump() string {
	var b strings.Builder
	fmt.Fprintf(&b, "code=0x%04X id=%d version=%d flags=0x%03X", m.Code, m.ID, m.Version, m.flags)

	switch {
	case m.IsControl():
		fmt.Fprintf(&b, " control-code=%d\n", m.ControlCode)
		return b.String()
	case m.IsBinary():
		fmt.Fprintf(&b, " binary-payload=%d bytes\n", len(m.BinaryPayload))
		return b.String()
	}
	b.WriteString(fmt.Sprintf(" fields=%d\n", m.FieldCount()))

	table := tablewriter.NewWriter(&b)
	table.SetHeader([]string{"ID", "Type", "Value"})
	m.fields.each(func(f *Field) {
		table.Append([]string{fmt.Sprintf("%d", f.ID), fieldTypeName(f.Type), fieldValueString(f)})
	})
	table.Render()
	return b.String()
}
