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

// Package ipc implements a local control-channel listener: a UNIX-domain
// socket at a fixed, name-derived path, with per-connection handler
// dispatch and an optional peer-uid allowlist check at accept time. The
// Windows named-pipe equivalent described alongside this in the original
// is not implemented; see this module's design notes.
package ipc

import (
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

// socketDir is where named local sockets are created, mirroring the
// original's fixed /tmp/.<name> convention.
const socketDir = "/tmp"

// SocketPath returns the well-known path for a named local listener.
func SocketPath(name string) string {
	return filepath.Join(socketDir, "."+name)
}

// ConnHandler processes one accepted connection. The listener closes the
// connection when it returns.
type ConnHandler func(conn net.Conn, peerUID uint32)

// Listener is a named local-socket server: one socket path, mode 0666,
// an optional allowed-uid restriction, and a handler invoked per
// connection in its own goroutine.
type Listener struct {
	Name        string
	AllowedUID  int64 // -1 (default) means any peer is accepted
	ErrorPause  time.Duration

	ln net.Listener

	wg       sync.WaitGroup
	stopOnce sync.Once
}

// NewListener creates (but does not yet bind) a named listener. AllowedUID
// defaults to -1 (accept any peer).
func NewListener(name string) *Listener {
	return &Listener{Name: name, AllowedUID: -1, ErrorPause: 500 * time.Millisecond}
}

// Listen binds the UNIX-domain socket, removing any stale socket file left
// behind by a prior crashed instance, and sets mode 0666 to match the
// original's Everyone-writable default.
func (l *Listener) Listen() error {
	path := SocketPath(l.Name)
	_ = os.Remove(path)

	ln, err := net.Listen("unix", path)
	if err != nil {
		return errors.Wrapf(err, "ipc: listening on %s", path)
	}
	if err := os.Chmod(path, 0666); err != nil {
		ln.Close()
		return errors.Wrap(err, "ipc: setting socket mode")
	}
	l.ln = ln
	log.WithField("path", path).Info("ipc: listening")
	return nil
}

// Serve accepts connections until the listener is closed, dispatching each
// to handler in its own goroutine. It blocks until Close is called or
// Listen failed outright.
func (l *Listener) Serve(handler ConnHandler) error {
	if l.ln == nil {
		return errors.New("ipc: Serve called without a successful Listen")
	}
	errorCount := 0
	for {
		conn, err := l.ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				l.wg.Wait()
				return nil
			}
			errorCount++
			log.WithError(err).Warn("ipc: accept failed")
			time.Sleep(l.ErrorPause)
			continue
		}
		errorCount = 0

		uid, err := peerUID(conn)
		if err != nil {
			log.WithError(err).Warn("ipc: could not determine peer credentials, rejecting")
			conn.Close()
			continue
		}
		if l.AllowedUID != -1 && int64(uid) != l.AllowedUID {
			log.WithField("uid", uid).Warn("ipc: connection rejected, peer uid not allowed")
			conn.Close()
			continue
		}

		l.wg.Add(1)
		go func() {
			defer l.wg.Done()
			defer conn.Close()
			handler(conn, uid)
		}()
	}
}

// Close stops accepting new connections and removes the socket file. It
// does not forcibly close connections already handed to handler.
func (l *Listener) Close() error {
	var err error
	l.stopOnce.Do(func() {
		if l.ln != nil {
			err = l.ln.Close()
		}
		_ = os.Remove(SocketPath(l.Name))
	})
	return err
}

// peerUID reads SO_PEERCRED off a UNIX-domain connection to recover the
// connecting process's uid.
func peerUID(conn net.Conn) (uint32, error) {
	unixConn, ok := conn.(*net.UnixConn)
	if !ok {
		return 0, errors.New("ipc: connection is not a unix socket")
	}
	raw, err := unixConn.SyscallConn()
	if err != nil {
		return 0, err
	}
	var cred *unix.Ucred
	var credErr error
	err = raw.Control(func(fd uintptr) {
		cred, credErr = unix.GetsockoptUcred(int(fd), unix.SOL_SOCKET, unix.SO_PEERCRED)
	})
	if err != nil {
		return 0, err
	}
	if credErr != nil {
		return 0, credErr
	}
	return cred.Uid, nil
}

// Dial connects to a named local listener as a client.
func Dial(name string) (net.Conn, error) {
	return net.Dial("unix", SocketPath(name))
}
