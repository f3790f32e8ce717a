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

// Package mib implements the on-disk format for a compiled SNMP MIB tree:
// a small tagged, self-describing encoding of a name/OID/type/access tree.
// A file is read into memory whole before parsing, and written from a
// buffer built in memory.
package mib

import (
	"fmt"
	"io"
	"strings"

	"github.com/pkg/errors"
)

// Tag bytes. Bit 7 (EndOfTag) marks the closing half of a tagged span; the
// low 7 bits identify the tag kind.
const (
	TagObject      byte = 0x01
	TagName        byte = 0x02
	TagDescription byte = 0x03
	TagAccess      byte = 0x04
	TagStatus      byte = 0x05
	TagType        byte = 0x06
	TagByteOID     byte = 0x07 // OID arc < 256
	TagWordOID     byte = 0x08 // OID arc < 65536
	TagDwordOID    byte = 0x09

	EndOfTag byte = 0x80
)

// FileMagic is the fixed 6-byte file signature.
const FileMagic = "NXMIB "

// FileVersion is the only on-disk format version this package writes.
const FileVersion byte = 1

// HeaderSize is the fixed size of the file header in bytes.
const HeaderSize = 16

// SaveFlags controls WriteToFile's behavior.
type SaveFlags uint32

// SkipDescriptions omits each node's description string, shrinking the
// file when the text isn't needed by the reader.
const SkipDescriptions SaveFlags = 0x01

// Object is one node of a MIB tree: a named, typed OID arc with optional
// children, mirroring a single SNMP_MIBObject.
type Object struct {
	OID         uint32
	Name        string
	Description string
	Status      int8
	Access      int8
	Type        int8

	Children []*Object
}

// NewObject constructs a node with status/access/type left unset (-1, the
// original's "not applicable" sentinel).
func NewObject(oid uint32, name string) *Object {
	return &Object{OID: oid, Name: name, Status: -1, Access: -1, Type: -1}
}

// AddChild appends a child node.
func (o *Object) AddChild(child *Object) {
	o.Children = append(o.Children, child)
}

// FindChildByOID returns the direct child with the given arc, or nil.
func (o *Object) FindChildByOID(oid uint32) *Object {
	for _, c := range o.Children {
		if c.OID == oid {
			return c
		}
	}
	return nil
}

// Print renders the subtree as indented "name(oid)" lines.
func (o *Object) Print(w io.Writer, indent int) {
	if indent == 0 && o.Name == "" && o.OID == 0 {
		fmt.Fprintln(w, "[root]")
	} else {
		fmt.Fprintf(w, "%s%s(%d)\n", strings.Repeat(" ", indent), o.Name, o.OID)
	}
	for _, c := range o.Children {
		c.Print(w, indent+2)
	}
}

// ErrBadHeader is returned when a file's magic bytes don't match FileMagic.
var ErrBadHeader = errors.New("mib: bad file header")

// ErrBadData is returned when the tagged node stream is malformed.
var ErrBadData = errors.New("mib: malformed tree data")
