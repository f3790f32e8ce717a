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

// Package tlsconn wraps a plain net.Conn with an optional, lazily-started
// TLS layer: a connection may be opened in the clear and upgraded to TLS
// later, or opened with TLS from the start. Handshake and I/O timeouts are
// expressed as plain durations and implemented with net.Conn deadlines —
// crypto/tls already retries an in-progress handshake or partial record
// internally across blocking reads, so there is no explicit want-read/
// want-write poll loop to write by hand.
package tlsconn

import (
	"crypto/tls"
	"net"
	"sync"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// DefaultTimeout is used by Connect, StartTLS, Read and Write when the
// caller passes a zero timeout.
const DefaultTimeout = 30 * time.Second

var (
	// ErrNotConnected is returned by StartTLS, Read and Write on a Conn
	// that has no underlying connection (never connected, or closed).
	ErrNotConnected = errors.New("tlsconn: not connected")
	// ErrHandshakeFailed wraps any error returned by the TLS handshake
	// itself; the underlying socket is left open for the caller to retry
	// or close explicitly.
	ErrHandshakeFailed = errors.New("tlsconn: tls handshake failed")
)

// Conn is a connection that may or may not have a TLS layer established
// over it yet. The zero value is not usable; create one with Connect.
type Conn struct {
	debugTag string

	mu  sync.Mutex
	raw net.Conn
	ssl *tls.Conn
}

// Connect dials network/address and, if useTLS is true, immediately starts a
// TLS handshake with the given SNI server name (sniServerName may be
// empty). debugTag labels this connection's log lines, mirroring the
// original's per-subsystem debug tag.
func Connect(network, address string, useTLS bool, timeout time.Duration, sniServerName, debugTag string) (*Conn, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	raw, err := net.DialTimeout(network, address, timeout)
	if err != nil {
		return nil, errors.Wrapf(err, "tlsconn: connecting to %s", address)
	}

	c := &Conn{raw: raw, debugTag: debugTag}
	if useTLS {
		if err := c.StartTLS(timeout, sniServerName); err != nil {
			raw.Close()
			return nil, err
		}
	}
	return c, nil
}

// IsTLS reports whether the TLS layer is currently established.
func (c *Conn) IsTLS() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ssl != nil
}

// StartTLS performs a TLS client handshake over the existing connection. It
// is idempotent: calling it again once TLS is already established is a
// no-op that returns nil, so a caller that does not track handshake state
// itself can call StartTLS unconditionally before sending.
//
// On handshake failure the TLS state is discarded but the underlying
// connection is left open — the original's stopTLS behavior — so the
// caller may retry StartTLS or fall back to a plain connection.
func (c *Conn) StartTLS(timeout time.Duration, sniServerName string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.raw == nil {
		return ErrNotConnected
	}
	if c.ssl != nil {
		return nil
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	// The handshake this wraps never calls SSL_CTX_set_verify with peer
	// verification, so OpenSSL's default (no certificate verification) is
	// what every existing caller already depends on; InsecureSkipVerify
	// preserves that rather than silently adding a check callers don't
	// expect and haven't provisioned a trust store for.
	config := &tls.Config{
		ServerName:         sniServerName,
		InsecureSkipVerify: true,
		MinVersion:         tls.VersionTLS12,
	}
	ssl := tls.Client(c.raw, config)

	if err := c.raw.SetDeadline(time.Now().Add(timeout)); err != nil {
		return errors.Wrap(err, "tlsconn: setting handshake deadline")
	}
	err := ssl.Handshake()
	c.raw.SetDeadline(time.Time{})

	if err != nil {
		log.WithError(err).WithField("tag", c.debugTag).Debug("tlsconn: handshake failed")
		return errors.Wrap(ErrHandshakeFailed, err.Error())
	}

	c.ssl = ssl
	log.WithField("tag", c.debugTag).Debug("tlsconn: handshake completed")
	return nil
}

// activeConn returns whichever of the TLS or raw connection is currently
// active for I/O.
func (c *Conn) activeConn() net.Conn {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ssl != nil {
		return c.ssl
	}
	return c.raw
}

// Read reads from the active connection (TLS if established, plain
// otherwise), bounded by timeout. A zero timeout uses DefaultTimeout.
func (c *Conn) Read(b []byte, timeout time.Duration) (int, error) {
	conn := c.activeConn()
	if conn == nil {
		return 0, ErrNotConnected
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if err := conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return 0, err
	}
	n, err := conn.Read(b)
	conn.SetReadDeadline(time.Time{})
	return n, err
}

// Write writes to the active connection, bounded by timeout. A zero
// timeout uses DefaultTimeout.
func (c *Conn) Write(b []byte, timeout time.Duration) (int, error) {
	conn := c.activeConn()
	if conn == nil {
		return 0, ErrNotConnected
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if err := conn.SetWriteDeadline(time.Now().Add(timeout)); err != nil {
		return 0, err
	}
	n, err := conn.Write(b)
	conn.SetWriteDeadline(time.Time{})
	return n, err
}

// Close closes the underlying connection. If a TLS layer is established,
// this sends a close_notify alert first (best-effort) via tls.Conn.Close.
func (c *Conn) Close() error {
	c.mu.Lock()
	ssl, raw := c.ssl, c.raw
	c.ssl, c.raw = nil, nil
	c.mu.Unlock()

	if ssl != nil {
		return ssl.Close()
	}
	if raw != nil {
		return raw.Close()
	}
	return nil
}

// LocalAddr and RemoteAddr expose the underlying socket's endpoints.
func (c *Conn) LocalAddr() net.Addr  { return c.activeConn().LocalAddr() }
func (c *Conn) RemoteAddr() net.Addr { return c.activeConn().RemoteAddr() }
