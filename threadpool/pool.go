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

// Package threadpool implements a self-tuning worker pool: a bounded set of
// goroutines draining one FIFO work queue, a maintenance loop that grows or
// shrinks the pool from EMA/variance load statistics, per-key serialized
// execution, and absolute-time task scheduling. Pools register themselves
// under a name so unrelated parts of a process can look one up instead of
// threading a handle through every call site.
package threadpool

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/eclesh/welford"
	log "github.com/sirupsen/logrus"
)

// queueCapacity is the work channel's buffer size. The original sizes its
// FIFO queue at 512 entries; a full channel just makes Execute block the
// caller momentarily rather than drop work, which is the same backpressure
// behavior.
const queueCapacity = 512

// workItem is one unit of work waiting on, or running off, the FIFO queue.
// A nil fn is the stop marker a shrinking pool or Shutdown enqueues to
// retire one worker goroutine.
type workItem struct {
	fn        func()
	queueTime time.Time
}

// Pool is a bounded, self-tuning worker pool. Use New to create one.
type Pool struct {
	name       string
	minThreads int
	maxThreads int
	// StackSize is carried for API parity with callers porting tuning
	// config from the original; goroutine stacks grow dynamically and
	// are not configurable, so this field has no effect.
	stackSize int

	workQueue chan workItem

	threadCount        atomic.Int32
	activeRequests     atomic.Int64
	taskExecutionCount atomic.Int64
	threadStartCount   atomic.Uint64
	threadStopCount    atomic.Uint64

	mu                sync.Mutex
	loadAverage       [3]ema
	waitTimeEMA       ema
	waitTimeVariance  *welford.Stats
	queueSizeEMA      ema
	queueSizeVariance *welford.Stats

	serialMu     sync.Mutex
	serialQueues map[string]*serialQueue

	schedulerMu   sync.Mutex
	scheduler     taskHeap
	schedulerWake chan struct{}

	shutdown atomic.Bool
	stopCh   chan struct{}
	wg       sync.WaitGroup // worker goroutines only
	maintWG  sync.WaitGroup // maintenance + scheduler goroutines
}

// Option configures a Pool at construction time.
type Option func(*Pool)

// WithStackSize records a stack size hint for parity with callers porting
// tuning config; it has no runtime effect, since goroutine stacks are not
// manually sized.
func WithStackSize(bytes int) Option {
	return func(p *Pool) { p.stackSize = bytes }
}

// New creates and starts a thread pool with name, registers it so it can be
// found later via Lookup, starts minThreads worker goroutines, and launches
// its maintenance and scheduler loops.
func New(name string, minThreads, maxThreads int, opts ...Option) *Pool {
	if name == "" {
		name = "NONAME"
	}
	if minThreads < 1 {
		minThreads = 1
	}
	if maxThreads < minThreads {
		maxThreads = minThreads
	}

	p := &Pool{
		name:              name,
		minThreads:        minThreads,
		maxThreads:        maxThreads,
		workQueue:         make(chan workItem, queueCapacity),
		waitTimeVariance:  welford.New(),
		queueSizeVariance: welford.New(),
		serialQueues:      make(map[string]*serialQueue),
		schedulerWake:     make(chan struct{}, 1),
		stopCh:            make(chan struct{}),
	}
	p.waitTimeEMA = newEMA(waitTimeWindow)
	p.loadAverage[0] = newEMA(loadWindow1Min)
	p.loadAverage[1] = newEMA(loadWindow5Min)
	p.loadAverage[2] = newEMA(loadWindow15Min)

	for _, opt := range opts {
		opt(p)
	}

	for i := 0; i < minThreads; i++ {
		p.startWorker()
	}

	p.maintWG.Add(2)
	go p.maintainLoop()
	go p.scheduleLoop()

	register(p)
	log.WithFields(log.Fields{"pool": name, "min": minThreads, "max": maxThreads}).Info("threadpool: started")
	return p
}

// Name returns the pool's registered name.
func (p *Pool) Name() string { return p.name }

func (p *Pool) isShutdown() bool { return p.shutdown.Load() }

// startWorker adds one worker goroutine to the pool.
func (p *Pool) startWorker() {
	p.threadCount.Add(1)
	p.threadStartCount.Add(1)
	p.wg.Add(1)
	go p.workerLoop()
}

func (p *Pool) workerLoop() {
	defer p.wg.Done()
	for item := range p.workQueue {
		if item.fn == nil {
			p.threadCount.Add(-1)
			p.threadStopCount.Add(1)
			return
		}

		wait := time.Since(item.queueTime)
		p.mu.Lock()
		p.waitTimeEMA.update(float64(wait.Milliseconds()))
		p.waitTimeVariance.Add(float64(wait.Milliseconds()))
		p.mu.Unlock()

		item.fn()
		p.activeRequests.Add(-1)
	}
}

// Execute runs fn as soon as a worker is free. It is a no-op after
// Shutdown.
func (p *Pool) Execute(fn func()) {
	if p.isShutdown() {
		return
	}
	p.activeRequests.Add(1)
	p.taskExecutionCount.Add(1)
	p.workQueue <- workItem{fn: fn, queueTime: time.Now()}
}

// Shutdown stops accepting new work, deregisters the pool, enqueues a stop
// marker per active worker, and blocks until every worker, the maintenance
// loop and the scheduler loop have exited.
func (p *Pool) Shutdown() {
	if !p.shutdown.CompareAndSwap(false, true) {
		return
	}
	unregister(p.name)
	threadsGauge.DeleteLabelValues(p.name)
	activeRequestsGauge.DeleteLabelValues(p.name)
	queueSizeGauge.DeleteLabelValues(p.name)

	close(p.stopCh)
	// Wait for the maintenance and scheduler loops to exit first, so a
	// resize decision can't grow the pool (or race the thread count read
	// below) after this point.
	p.maintWG.Wait()

	n := int(p.threadCount.Load())
	for i := 0; i < n; i++ {
		p.workQueue <- workItem{}
	}

	p.wg.Wait()
	log.WithField("pool", p.name).Info("threadpool: stopped")
}

