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

package ipc

import (
	"net"
	"sync"
)

// SerializedConn wraps a connection with a write mutex, so concurrent
// callers sharing one client connection don't interleave partial writes.
type SerializedConn struct {
	net.Conn
	mu sync.Mutex
}

// NewSerializedConn wraps conn for serialized writes.
func NewSerializedConn(conn net.Conn) *SerializedConn {
	return &SerializedConn{Conn: conn}
}

// Write serializes access to the underlying connection's Write.
func (c *SerializedConn) Write(b []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Conn.Write(b)
}
