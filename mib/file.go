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
	"os"
	"time"

	"github.com/pkg/errors"

	"github.com/mpmcore/mpmcore/buffer"
)

func writeHeader(w *buffer.Stream, timestamp uint32) {
	w.WriteBytes([]byte(FileMagic))
	w.WriteBytes([]byte{HeaderSize, FileVersion, 0, 0, 0, 0})
	w.WriteUint32(timestamp, buffer.Big)
}

func writeTaggedString(w *buffer.Stream, tag byte, s string) {
	w.WriteBytes([]byte{tag})
	w.WriteUint16(uint16(len(s)), buffer.Big)
	w.WriteBytes([]byte(s))
	w.WriteBytes([]byte{tag | EndOfTag})
}

func writeOID(w *buffer.Stream, oid uint32) {
	switch {
	case oid < 256:
		w.WriteBytes([]byte{TagByteOID, byte(oid), TagByteOID | EndOfTag})
	case oid < 65536:
		w.WriteBytes([]byte{TagWordOID})
		w.WriteUint16(uint16(oid), buffer.Big)
		w.WriteBytes([]byte{TagWordOID | EndOfTag})
	default:
		w.WriteBytes([]byte{TagDwordOID})
		w.WriteUint32(oid, buffer.Big)
		w.WriteBytes([]byte{TagDwordOID | EndOfTag})
	}
}

func (o *Object) writeNode(w *buffer.Stream, flags SaveFlags) {
	w.WriteBytes([]byte{TagObject})

	writeTaggedString(w, TagName, o.Name)
	writeOID(w, o.OID)

	w.WriteBytes([]byte{TagStatus, byte(o.Status), TagStatus | EndOfTag})
	w.WriteBytes([]byte{TagAccess, byte(o.Access), TagAccess | EndOfTag})
	w.WriteBytes([]byte{TagType, byte(o.Type), TagType | EndOfTag})

	if flags&SkipDescriptions == 0 {
		writeTaggedString(w, TagDescription, o.Description)
	}

	for _, c := range o.Children {
		c.writeNode(w, flags)
	}

	w.WriteBytes([]byte{TagObject | EndOfTag})
}

// WriteToFile serializes root's subtree to path, preceded by a file header
// stamped with the given timestamp (pass time.Now().Unix() for a
// locally-generated file, or a server-supplied value to preserve
// staleness-check semantics across a transfer).
func WriteToFile(path string, root *Object, flags SaveFlags, timestamp time.Time) error {
	w := buffer.NewWriter()
	writeHeader(w, uint32(timestamp.Unix()))
	root.writeNode(w, flags)
	return errors.Wrap(os.WriteFile(path, w.Bytes(), 0644), "mib: writing file")
}

func readTaggedString(r *buffer.Stream, tag byte) (string, error) {
	length, err := r.ReadUint16(buffer.Big)
	if err != nil {
		return "", err
	}
	value, err := r.ReadBytes(int(length))
	if err != nil {
		return "", err
	}
	closing, err := r.ReadBytes(1)
	if err != nil {
		return "", err
	}
	if closing[0] != tag|EndOfTag {
		return "", ErrBadData
	}
	return string(value), nil
}

func readOID(r *buffer.Stream, tag byte) (uint32, error) {
	var oid uint32
	switch tag {
	case TagByteOID:
		b, err := r.ReadBytes(1)
		if err != nil {
			return 0, err
		}
		oid = uint32(b[0])
	case TagWordOID:
		v, err := r.ReadUint16(buffer.Big)
		if err != nil {
			return 0, err
		}
		oid = uint32(v)
	case TagDwordOID:
		v, err := r.ReadUint32(buffer.Big)
		if err != nil {
			return 0, err
		}
		oid = v
	default:
		return 0, ErrBadData
	}
	closing, err := r.ReadBytes(1)
	if err != nil {
		return 0, err
	}
	if closing[0] != tag|EndOfTag {
		return 0, ErrBadData
	}
	return oid, nil
}

func readByteField(r *buffer.Stream, tag byte) (int8, error) {
	b, err := r.ReadBytes(1)
	if err != nil {
		return 0, err
	}
	closing, err := r.ReadBytes(1)
	if err != nil {
		return 0, err
	}
	if closing[0] != tag|EndOfTag {
		return 0, ErrBadData
	}
	return int8(b[0]), nil
}

// readNode consumes one TagObject..TagObject|EndOfTag span, matching the
// original's state-machine parse: any unrecognized tag at the top of the
// loop stops the parse at the current node rather than erroring the whole
// tree, so a truncated or newer-format file still yields whatever prefix
// parsed cleanly.
func readNode(r *buffer.Stream) (*Object, error) {
	o := NewObject(0, "")
	for {
		tagByte, err := r.ReadBytes(1)
		if err != nil {
			return nil, err
		}
		switch tagByte[0] {
		case TagObject | EndOfTag:
			return o, nil
		case TagName:
			o.Name, err = readTaggedString(r, TagName)
		case TagDescription:
			o.Description, err = readTaggedString(r, TagDescription)
		case TagByteOID, TagWordOID, TagDwordOID:
			o.OID, err = readOID(r, tagByte[0])
		case TagStatus:
			o.Status, err = readByteField(r, TagStatus)
		case TagAccess:
			o.Access, err = readByteField(r, TagAccess)
		case TagType:
			o.Type, err = readByteField(r, TagType)
		case TagObject:
			var child *Object
			child, err = readNode(r)
			if err == nil {
				o.AddChild(child)
			}
		default:
			return nil, ErrBadData
		}
		if err != nil {
			return nil, err
		}
	}
}

// ReadFromFile loads a full MIB tree from path.
func ReadFromFile(path string) (*Object, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "mib: reading file")
	}
	if len(data) < HeaderSize {
		return nil, ErrBadHeader
	}
	if string(data[:6]) != FileMagic {
		return nil, ErrBadHeader
	}
	headerSize := data[6]

	r := buffer.NewReader(data)
	if err := skip(r, int(headerSize)); err != nil {
		return nil, err
	}

	tagByte, err := r.ReadBytes(1)
	if err != nil {
		return nil, errors.Wrap(ErrBadData, "mib: empty tree")
	}
	if tagByte[0] != TagObject {
		return nil, ErrBadData
	}
	root, err := readNode(r)
	if err != nil {
		return nil, errors.Wrap(err, "mib: parsing tree")
	}
	return root, nil
}

func skip(r *buffer.Stream, n int) error {
	return r.Seek(n, buffer.SeekAbsolute)
}

// ReadTimestamp reads only the file header's server timestamp, without
// loading the tree, for cheap staleness checks.
func ReadTimestamp(path string) (time.Time, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return time.Time{}, errors.Wrap(err, "mib: reading file")
	}
	if len(data) < HeaderSize || string(data[:6]) != FileMagic {
		return time.Time{}, ErrBadHeader
	}
	r := buffer.NewReader(data)
	if err := skip(r, 12); err != nil {
		return time.Time{}, err
	}
	ts, err := r.ReadUint32(buffer.Big)
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(int64(ts), 0), nil
}
