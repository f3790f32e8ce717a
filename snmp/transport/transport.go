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

// Package transport implements the pseudo-connected UDP SNMP transport:
// retry/timeout bound requests over a datagram socket that has been
// connect()-ed to a single peer, with a receive buffer that is pre-parsed
// for the outer PDU length before decoding.
package transport

import (
	"net"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/mpmcore/mpmcore/ber"
	"github.com/mpmcore/mpmcore/snmp"
)

// defaultBufferSize matches the original transport's receive buffer size.
const defaultBufferSize = 32768

// Sentinel errors surfaced by DoRequest, matching spec.md §4.7's failure
// modes.
var (
	ErrParameter = errors.New("snmp: invalid DoRequest parameters")
	ErrComm      = errors.New("snmp: transport send failed")
	ErrTimeout   = errors.New("snmp: request timed out")
	ErrParseFail = errors.New("snmp: malformed PDU received")
)

// Transport is a pseudo-connected UDP SNMP transport: send/recv are bound
// to a single peer via Dial, and Read splits buffered bytes at the BER
// length of each outer SEQUENCE. Buffered bytes that do not hold a complete
// PDU are dropped; a PDU is not assembled from separate reads.
type Transport struct {
	conn   *net.UDPConn
	buffer []byte
	pos    int
	filled int
}

// Dial creates a pseudo-connected UDP transport to addr ("host:port").
func Dial(addr string) (*Transport, error) {
	raddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, errors.Wrap(err, "snmp: resolving transport address")
	}
	conn, err := net.DialUDP("udp", nil, raddr)
	if err != nil {
		return nil, errors.Wrap(err, "snmp: dialing transport")
	}
	return &Transport{conn: conn, buffer: make([]byte, defaultBufferSize)}, nil
}

// Close releases the underlying socket.
func (t *Transport) Close() error {
	return t.conn.Close()
}

func (t *Transport) clearBuffer() {
	t.pos = 0
	t.filled = 0
}

// Send encodes and transmits a single PDU.
func (t *Transport) Send(pdu *snmp.PDU) (int, error) {
	encoded, err := pdu.Encode()
	if err != nil {
		return 0, errors.Wrap(err, "snmp: encoding request PDU")
	}
	n, err := t.conn.Write(encoded)
	if err != nil {
		return 0, errors.Wrap(err, "snmp: writing datagram")
	}
	return n, nil
}

func (t *Transport) recvInto(timeout time.Duration) (int, error) {
	if timeout > 0 {
		if err := t.conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
			return 0, err
		}
	}
	n, err := t.conn.Read(t.buffer[t.pos+t.filled:])
	if err != nil {
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return 0, nil
		}
		return 0, err
	}
	return n, nil
}

// preParsePDU inspects the buffered bytes for a complete outer SEQUENCE and
// returns its total length (header + content), or 0 if not enough bytes
// have arrived yet.
func (t *Transport) preParsePDU() int {
	tag, length, _, hdr, err := ber.DecodeIdentifier(t.buffer[t.pos : t.pos+t.filled])
	if err != nil {
		return 0
	}
	if tag != ber.TagSequence {
		return 0
	}
	return length + hdr
}

// Read waits up to timeout for one complete PDU and parses it. If the
// buffered bytes do not hold the full PDU declared by the outer SEQUENCE
// header, they are discarded and Read returns (nil, nil), the same result
// as a timeout.
func (t *Transport) Read(timeout time.Duration) (*snmp.PDU, error) {
	if t.filled < 2 {
		n, err := t.recvInto(timeout)
		if err != nil {
			t.clearBuffer()
			return nil, err
		}
		if n == 0 {
			t.clearBuffer()
			return nil, nil
		}
		t.filled += n
	}

	pduLen := t.preParsePDU()
	if pduLen == 0 {
		t.clearBuffer()
		return nil, nil
	}

	if pduLen > len(t.buffer)-t.pos {
		copy(t.buffer, t.buffer[t.pos:t.pos+t.filled])
		t.pos = 0
	}

	for t.filled < pduLen {
		n, err := t.recvInto(timeout)
		if err != nil {
			t.clearBuffer()
			return nil, err
		}
		if n == 0 {
			t.clearBuffer()
			return nil, nil
		}
		t.filled += n
	}

	pdu, err := snmp.Parse(t.buffer[t.pos : t.pos+pduLen])
	t.filled -= pduLen
	t.pos += pduLen
	if t.filled == 0 {
		t.pos = 0
	}
	if err != nil {
		return nil, errors.Wrap(ErrParseFail, err.Error())
	}
	return pdu, nil
}

// DoRequest sends request and waits for a correlated response, making at
// most maxRetries attempts (each re-sends the request and waits up to
// timeout). A reply whose request-id does not match is treated as a stale
// reply: that attempt counts as timed out, not as a hard failure.
func (t *Transport) DoRequest(request *snmp.PDU, timeout time.Duration, maxRetries int) (*snmp.PDU, error) {
	if request == nil || maxRetries <= 0 {
		return nil, ErrParameter
	}

	var lastErr error = ErrTimeout
	for attempt := 0; attempt < maxRetries; attempt++ {
		if _, err := t.Send(request); err != nil {
			log.WithError(err).Debug("snmp transport: send failed")
			return nil, errors.Wrap(ErrComm, err.Error())
		}

		response, err := t.Read(timeout)
		if err != nil {
			lastErr = errors.Wrap(ErrParseFail, err.Error())
			continue
		}
		if response == nil {
			lastErr = ErrTimeout
			continue
		}
		if response.RequestID == request.RequestID {
			return response, nil
		}
		log.WithFields(log.Fields{
			"want": request.RequestID,
			"got":  response.RequestID,
		}).Debug("snmp transport: stale reply, retrying")
		lastErr = ErrTimeout
	}
	return nil, lastErr
}
