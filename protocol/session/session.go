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

// Package session implements one TCP-framed MPM connection: a dedicated
// receive goroutine that demultiplexes inbound frames between a wait queue
// (request/response correlation) and a caller-supplied asynchronous-event
// callback, and a mutex-serialized send path for the caller side.
package session

import (
	"context"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"

	"github.com/mpmcore/mpmcore/protocol/mpm"
	"github.com/mpmcore/mpmcore/waitqueue"
)

// State is the session's connection lifecycle stage.
type State int32

// Session states.
const (
	StateDisconnected State = iota
	StateConnected
	StateIdle
	StateSyncing
	StateTLSHandshake
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnected:
		return "connected"
	case StateIdle:
		return "idle"
	case StateSyncing:
		return "syncing"
	case StateTLSHandshake:
		return "tls-handshake"
	default:
		return "unknown"
	}
}

// DefaultMaxFrameSize is the per-session limit on a single frame's declared
// size. A frame declaring a larger size is not read into memory; it is
// logged and ends the receive loop with an error.
const DefaultMaxFrameSize = 4 << 20

// DefaultCommandTimeout is how long SendRequest waits for a correlated
// reply before returning a timeout error.
const DefaultCommandTimeout = 10 * time.Second

// asyncCodes are the message codes delivered to the async handler instead
// of the wait queue: object list/update, events, alarm/action updates,
// notifications, user/group records, DCI records and list-end markers, and
// syslog records.
var asyncCodes = map[uint16]bool{
	CodeObjectList:    true,
	CodeObjectUpdate:  true,
	CodeEvent:         true,
	CodeEventLogEnd:   true,
	CodeEventDBRecord: true,
	CodeAlarmUpdate:   true,
	CodeActionUpdate:  true,
	CodeNotify:        true,
	CodeUserRecord:    true,
	CodeGroupRecord:   true,
	CodeUserDBEnd:     true,
	CodeUserDBUpdate:  true,
	CodeDCIRecord:     true,
	CodeDCIListEnd:    true,
	CodeSyslogRecord:  true,
}

// Asynchronous-route message codes, assigned as an internally-consistent
// convention (not pinned by any worked wire example).
const (
	CodeObjectList Protoc = iota + 1000
	CodeObjectUpdate
	CodeEvent
	CodeEventLogEnd
	CodeEventDBRecord
	CodeAlarmUpdate
	CodeActionUpdate
	CodeNotify
	CodeUserRecord
	CodeGroupRecord
	CodeUserDBEnd
	CodeUserDBUpdate
	CodeDCIRecord
	CodeDCIListEnd
	CodeSyslogRecord
)

// Protoc is the numeric type of an MPM message code.
type Protoc = uint16

var (
	framesReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mpmcore_session_frames_received_total",
		Help: "Frames successfully parsed off a session's receive loop.",
	}, []string{"route"})
	framesDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mpmcore_session_frames_dropped_total",
		Help: "Frames dropped by a session's receive loop, by reason.",
	}, []string{"reason"})
)

// AsyncHandler receives messages routed to asynchronous codes.
type AsyncHandler func(msg *mpm.Message)

// Session is a single framed MPM connection.
type Session struct {
	conn   net.Conn
	sendMu sync.Mutex

	nextID uint32
	state  atomic.Int32

	waitQ          *waitqueue.Queue
	asyncHandler   AsyncHandler
	maxFrameSize   int
	commandTimeout time.Duration

	protocolVersion  byte
	allowCompression bool

	closeOnce sync.Once
	done      chan struct{}
}

// Option configures a Session at construction.
type Option func(*Session)

// WithMaxFrameSize overrides DefaultMaxFrameSize.
func WithMaxFrameSize(n int) Option {
	return func(s *Session) { s.maxFrameSize = n }
}

// WithCommandTimeout overrides DefaultCommandTimeout.
func WithCommandTimeout(d time.Duration) Option {
	return func(s *Session) { s.commandTimeout = d }
}

// WithAsyncHandler installs the callback for asynchronous-route codes.
func WithAsyncHandler(h AsyncHandler) Option {
	return func(s *Session) { s.asyncHandler = h }
}

// WithProtocolVersion sets the version stamped on outgoing messages.
func WithProtocolVersion(v byte) Option {
	return func(s *Session) { s.protocolVersion = v }
}

// WithCompression enables deflate compression on outgoing messages where
// the wire format's own gating conditions allow it.
func WithCompression(allow bool) Option {
	return func(s *Session) { s.allowCompression = allow }
}

// New wraps conn in a Session. The receive loop is not started until Run
// is called.
func New(conn net.Conn, opts ...Option) *Session {
	s := &Session{
		conn:            conn,
		waitQ:           waitqueue.New(0),
		maxFrameSize:    DefaultMaxFrameSize,
		commandTimeout:  DefaultCommandTimeout,
		protocolVersion: 5,
		done:            make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.state.Store(int32(StateConnected))
	return s
}

// State reports the session's current lifecycle stage.
func (s *Session) State() State {
	return State(s.state.Load())
}

// Run starts the receive loop and blocks until the connection fails, ctx
// is canceled, or Close is called. Intended to be run in its own
// goroutine.
func (s *Session) Run(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		_ = s.Close()
	}()
	err := s.receiveLoop()
	s.waitQ.Stop()
	return err
}

// Close shuts down the underlying connection and wait queue. Safe to call
// more than once.
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.state.Store(int32(StateDisconnected))
		err = s.conn.Close()
		close(s.done)
	})
	return err
}

func (s *Session) receiveLoop() error {
	header := make([]byte, mpm.HeaderSize)
	for {
		if _, err := io.ReadFull(s.conn, header); err != nil {
			s.failPendingRequests()
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrClosedPipe) || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return errors.Wrap(err, "session: reading frame header")
		}

		size := headerDeclaredSize(header)
		if size < mpm.HeaderSize || size > s.maxFrameSize {
			log.WithField("size", size).Warn("session: frame size out of range, closing receive loop")
			framesDropped.WithLabelValues("oversize").Inc()
			s.failPendingRequests()
			// The only recovery available on a byte stream whose declared
			// size is untrustworthy is to give up framing; the connection
			// is no longer resynchronizable.
			return errors.New("session: frame size exceeds limit")
		}

		body := make([]byte, size-mpm.HeaderSize)
		if _, err := io.ReadFull(s.conn, body); err != nil {
			s.failPendingRequests()
			framesDropped.WithLabelValues("short-read").Inc()
			return errors.Wrap(err, "session: reading frame body")
		}

		frame := append(header[:mpm.HeaderSize:mpm.HeaderSize], body...)
		msg, err := mpm.Parse(frame)
		if err != nil {
			framesDropped.WithLabelValues("parse-error").Inc()
			log.WithError(err).Warn("session: dropping malformed frame")
			continue
		}
		if msg.Invalid {
			framesDropped.WithLabelValues("invalid-fields").Inc()
			continue
		}

		s.route(msg)
	}
}

func headerDeclaredSize(header []byte) int {
	return int(header[4])<<24 | int(header[5])<<16 | int(header[6])<<8 | int(header[7])
}

func (s *Session) route(msg *mpm.Message) {
	if asyncCodes[msg.Code] {
		framesReceived.WithLabelValues("async").Inc()
		if s.asyncHandler != nil {
			s.asyncHandler(msg)
		}
		return
	}
	framesReceived.WithLabelValues("wait-queue").Inc()
	if msg.IsBinary() {
		s.waitQ.PutBinary(msg.Code, msg.ID, msg)
	} else {
		s.waitQ.Put(msg.Code, msg.ID, msg)
	}
}

// errCommFailure is delivered to every SendRequest caller still blocked in
// WaitFor when the receive loop exits, so a dropped connection surfaces as
// comm-failure immediately instead of as a timeout once commandTimeout
// elapses.
var errCommFailure = errors.New("session: comm-failure")

// failPendingRequests completes every outstanding wait on this session's
// queue with comm-failure. Safe to call more than once; only the first
// call's error sticks.
func (s *Session) failPendingRequests() {
	s.waitQ.Fail(errCommFailure)
}

// NextRequestID atomically allocates the next request id for this session.
func (s *Session) NextRequestID() uint32 {
	return atomic.AddUint32(&s.nextID, 1)
}

// Send frames and writes msg, retrying on partial writes. Only one Send
// may be in flight at a time per session.
func (s *Session) Send(msg *mpm.Message) error {
	msg.SetProtocolVersion(s.protocolVersion)
	raw, err := msg.Serialize(s.allowCompression)
	if err != nil {
		return errors.Wrap(err, "session: serializing message")
	}

	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	for written := 0; written < len(raw); {
		n, err := s.conn.Write(raw[written:])
		if err != nil {
			return errors.Wrap(err, "session: writing frame")
		}
		written += n
	}
	return nil
}

// SendRequest allocates a request id, sends msg, and blocks up to the
// session's command timeout for a reply of responseCode correlated by
// that id.
func (s *Session) SendRequest(msg *mpm.Message, responseCode uint16) (*mpm.Message, error) {
	id := s.NextRequestID()
	msg.ID = id

	prevState := s.State()
	s.state.Store(int32(StateSyncing))
	defer s.state.Store(int32(prevState))

	if err := s.Send(msg); err != nil {
		return nil, err
	}

	v, err := s.waitQ.WaitFor(responseCode, id, s.commandTimeout)
	if err != nil {
		if errors.Is(err, waitqueue.ErrTimeout) {
			return nil, errors.New("session: command timed out")
		}
		return nil, err
	}
	reply, ok := v.(*mpm.Message)
	if !ok {
		return nil, errors.New("session: unexpected wait-queue payload type")
	}
	return reply, nil
}
