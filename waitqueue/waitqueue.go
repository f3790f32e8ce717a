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

// Package waitqueue implements a TTL-aged mailbox for request/response
// correlation: a sender Puts a reply keyed by (code, id, binary) and a
// receiver WaitFors it by the same key, with entries aged out by a
// background housekeeper if nobody claims them in time.
package waitqueue

import (
	"sync"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// ErrTimeout is returned by WaitFor/WaitForBinary when timeout elapses with
// no matching entry delivered.
var ErrTimeout = errors.New("waitqueue: wait timed out")

// ErrQueueStopped is the default Fail error applied by Stop when nothing
// else has already failed the queue.
var ErrQueueStopped = errors.New("waitqueue: queue stopped")

// ttlCheckInterval is how often the housekeeper decrements every entry's
// remaining TTL and evicts anything that has expired.
const ttlCheckInterval = 100 * time.Millisecond

// defaultHoldTime is the TTL assigned to an entry when the queue's HoldTime
// has not been overridden.
const defaultHoldTime = 30 * time.Second

// pollInterval bounds how long WaitFor sleeps between each scan of the
// queue; it never waits longer than this even if more timeout remains.
const pollInterval = 200 * time.Millisecond

// key identifies one wait-queue slot.
type key struct {
	code   uint16
	id     uint32
	binary bool
}

type entry struct {
	key     key
	payload any
	ttl     time.Duration
}

// Queue is a TTL-aged, FIFO-within-key wait queue. The zero value is not
// usable; construct with New.
type Queue struct {
	mu       sync.Mutex
	entries  []entry
	holdTime time.Duration

	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}

	failMu  sync.Mutex
	failErr error
	failCh  chan struct{}
}

// New starts a Queue and its housekeeper goroutine. holdTime, if zero,
// defaults to 30 seconds.
func New(holdTime time.Duration) *Queue {
	if holdTime <= 0 {
		holdTime = defaultHoldTime
	}
	q := &Queue{
		holdTime: holdTime,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
		failCh:   make(chan struct{}),
	}
	go q.housekeeper()
	return q
}

// Fail immediately completes every current and future WaitFor/WaitForBinary
// call on this queue with err. Only the first call's error takes effect;
// later calls (including the one Stop makes) are no-ops.
func (q *Queue) Fail(err error) {
	q.failOnce(err)
}

func (q *Queue) failOnce(err error) {
	q.failMu.Lock()
	defer q.failMu.Unlock()
	if q.failErr != nil {
		return
	}
	q.failErr = err
	close(q.failCh)
}

// Stop halts the housekeeper goroutine, fails any still-outstanding waiter
// with ErrQueueStopped (unless Fail was already called), and drops all
// queued entries. Safe to call more than once.
func (q *Queue) Stop() {
	q.failOnce(ErrQueueStopped)
	q.stopOnce.Do(func() {
		close(q.stop)
		<-q.done
	})
	q.mu.Lock()
	q.entries = nil
	q.mu.Unlock()
}

func (q *Queue) housekeeper() {
	defer close(q.done)
	ticker := time.NewTicker(ttlCheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-q.stop:
			return
		case <-ticker.C:
			q.age(ttlCheckInterval)
		}
	}
}

func (q *Queue) age(step time.Duration) {
	q.mu.Lock()
	defer q.mu.Unlock()
	kept := q.entries[:0]
	for _, e := range q.entries {
		if e.ttl <= step {
			log.WithFields(log.Fields{"code": e.key.code, "id": e.key.id}).
				Debug("waitqueue: entry expired")
			continue
		}
		e.ttl -= step
		kept = append(kept, e)
	}
	q.entries = kept
}

// Put enqueues a structured reply under (code, id).
func (q *Queue) Put(code uint16, id uint32, payload any) {
	q.put(code, id, false, payload)
}

// PutBinary enqueues a raw/binary reply under (code, id).
func (q *Queue) PutBinary(code uint16, id uint32, payload any) {
	q.put(code, id, true, payload)
}

func (q *Queue) put(code uint16, id uint32, binary bool, payload any) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.entries = append(q.entries, entry{
		key:     key{code: code, id: id, binary: binary},
		payload: payload,
		ttl:     q.holdTime,
	})
}

// WaitFor blocks until a structured reply matching (code, id) arrives,
// timeout elapses, or the queue is failed, polling at most every 200ms. It
// returns ErrTimeout on timeout, or whatever error Fail (or Stop) was
// called with, whichever happens first. Delivery is at-most-once: a
// claimed entry is removed.
func (q *Queue) WaitFor(code uint16, id uint32, timeout time.Duration) (any, error) {
	return q.waitFor(code, id, false, timeout)
}

// WaitForBinary is WaitFor's counterpart for binary-mode entries.
func (q *Queue) WaitForBinary(code uint16, id uint32, timeout time.Duration) (any, error) {
	return q.waitFor(code, id, true, timeout)
}

func (q *Queue) waitFor(code uint16, id uint32, binary bool, timeout time.Duration) (any, error) {
	k := key{code: code, id: id, binary: binary}
	deadline := time.Now().Add(timeout)
	timer := time.NewTimer(0)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()
	for {
		if v, ok := q.take(k); ok {
			return v, nil
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, ErrTimeout
		}
		sleep := pollInterval
		if remaining < sleep {
			sleep = remaining
		}
		timer.Reset(sleep)
		select {
		case <-q.failCh:
			q.failMu.Lock()
			err := q.failErr
			q.failMu.Unlock()
			return nil, err
		case <-timer.C:
		}
	}
}

func (q *Queue) take(k key) (any, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, e := range q.entries {
		if e.key == k {
			v := e.payload
			q.entries = append(q.entries[:i], q.entries[i+1:]...)
			return v, true
		}
	}
	return nil, false
}

// Len returns the number of entries currently queued, for diagnostics.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}
