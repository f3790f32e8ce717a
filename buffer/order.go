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

// Package buffer implements a growable byte-stream reader/writer with
// explicit endianness and codepage-aware string encoding, used by the
// higher-level message and BER codecs to avoid ad hoc byte slicing.
package buffer

import (
	"encoding/binary"
	"unsafe"
)

// Order selects the byte order used by a Stream's fixed-width integer
// operations. Host resolves to the machine's native order at stream
// construction time; wire formats in this module never use Host directly.
type Order int

// Supported byte orders.
const (
	Big Order = iota
	Little
	Host
)

func (o Order) resolve() binary.ByteOrder {
	switch o {
	case Little:
		return binary.LittleEndian
	case Host:
		return hostOrder
	default:
		return binary.BigEndian
	}
}

// hostOrder is resolved once at init time by probing a known uint16 layout.
var hostOrder binary.ByteOrder = func() binary.ByteOrder {
	var x uint16 = 1
	b := (*[2]byte)(unsafe.Pointer(&x))
	if b[0] == 1 {
		return binary.LittleEndian
	}
	return binary.BigEndian
}()
