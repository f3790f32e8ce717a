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

package mib

import (
	"fmt"
	"io"
	"os"

	"github.com/go-ini/ini"
	"github.com/olekukonko/tablewriter"
	"golang.org/x/sync/singleflight"
)

// PrintTable renders a flattened view of the subtree as a table (name,
// OID, type, access, status), an alternative to Print's indented text for
// diagnostic CLIs.
func (o *Object) PrintTable(w io.Writer) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Name", "OID", "Type", "Access", "Status"})
	var walk func(n *Object)
	walk = func(n *Object) {
		if n.Name != "" || n.OID != 0 {
			table.Append([]string{
				n.Name,
				fmt.Sprintf("%d", n.OID),
				fmt.Sprintf("%d", n.Type),
				fmt.Sprintf("%d", n.Access),
				fmt.Sprintf("%d", n.Status),
			})
		}
		for _, c := range n.Children {
			walk(c)
		}
	}
	walk(o)
	table.Render()
}

// loader deduplicates concurrent ReadFromFile calls for the same path,
// since a MIB file is typically large and multiple goroutines (e.g.
// separate SNMP sessions resolving the same OID) may request it at once.
var loader singleflight.Group

// LoadDeduped is ReadFromFile with concurrent-call deduplication: callers
// that request the same path while a load is already in flight share its
// result instead of each reading the file independently.
func LoadDeduped(path string) (*Object, error) {
	v, err, _ := loader.Do(path, func() (interface{}, error) {
		return ReadFromFile(path)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Object), nil
}

// Override describes a manual correction applied on top of a loaded MIB
// tree — operators sometimes know a vendor MIB's access/status better than
// the compiled file shipped with a device.
type Override struct {
	OID    uint32
	Access int8
	Status int8
}

// LoadOverrides reads a simple INI file whose sections each carry an oid
// key plus access/status corrections (a missing value becomes -1), applied
// after loading the compiled tree. Section names are not interpreted, and a
// section without a valid oid key is skipped.
func LoadOverrides(path string) ([]Override, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, nil
	}
	cfg, err := ini.Load(path)
	if err != nil {
		return nil, err
	}
	var out []Override
	for _, section := range cfg.Sections() {
		oid, err := section.Key("oid").Uint()
		if err != nil {
			continue
		}
		out = append(out, Override{
			OID:    uint32(oid),
			Access: int8(section.Key("access").MustInt(-1)),
			Status: int8(section.Key("status").MustInt(-1)),
		})
	}
	return out, nil
}

// ApplyOverrides walks the tree applying any override whose OID matches a
// direct child at each level of the walk.
func ApplyOverrides(root *Object, overrides []Override) {
	byOID := make(map[uint32]Override, len(overrides))
	for _, ov := range overrides {
		byOID[ov.OID] = ov
	}
	var walk func(n *Object)
	walk = func(n *Object) {
		if ov, ok := byOID[n.OID]; ok {
			n.Access = ov.Access
			n.Status = ov.Status
		}
		for _, c := range n.Children {
			walk(c)
		}
	}
	walk(root)
}
