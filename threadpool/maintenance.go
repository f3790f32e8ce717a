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

package threadpool

import (
	"time"

	"github.com/eclesh/welford"
	log "github.com/sirupsen/logrus"
)

const maintInterval = 5 * time.Second

// maintainLoop updates load statistics every maintInterval and, every
// responsiveness cycles, decides whether to grow or shrink the pool.
func (p *Pool) maintainLoop() {
	defer p.maintWG.Done()
	ticker := time.NewTicker(maintInterval)
	defer ticker.Stop()

	cycles := 0
	for {
		select {
		case <-p.stopCh:
			return
		case <-ticker.C:
		}

		active := p.activeRequests.Load()
		p.mu.Lock()
		p.loadAverage[0].update(float64(active))
		p.loadAverage[1].update(float64(active))
		p.loadAverage[2].update(float64(active))

		queueSize := float64(len(p.workQueue))
		p.queueSizeEMA.update(queueSize)
		p.queueSizeVariance.Add(queueSize)
		p.mu.Unlock()

		p.reportMetrics()

		cycles++
		if cycles >= int(globalResponsiveness.Load()) {
			cycles = 0
			p.resize()
		}
	}
}

// resize applies the grow/shrink decision described by the pool's wait-time
// and queue-size statistics. Called with no locks held.
func (p *Pool) resize() {
	p.mu.Lock()
	threadCount := int(p.threadCount.Load())
	waitTimeEMA := time.Duration(p.waitTimeEMA.get()) * time.Millisecond
	waitTimeSMA := time.Duration(p.waitTimeVariance.Mean()) * time.Millisecond
	queueSizeEMA := p.queueSizeEMA.get()
	queueSizeSMA := p.queueSizeVariance.Mean()
	loadAverage15 := p.loadAverage[2].get()
	p.waitTimeVariance = welford.New()
	p.queueSizeVariance = welford.New()
	p.mu.Unlock()

	highWM := time.Duration(globalWaitHighWatermarkMs.Load()) * time.Millisecond
	lowWM := time.Duration(globalWaitLowWatermarkMs.Load()) * time.Millisecond

	switch {
	case (waitTimeEMA > highWM && waitTimeSMA > highWM && threadCount < p.maxThreads) ||
		(threadCount == 0 && p.activeRequests.Load() > 0):
		delta := minInt(p.maxThreads-threadCount, maxInt(minInt(int(queueSizeSMA), int(queueSizeEMA))/2, 1))
		for i := 0; i < delta; i++ {
			p.startWorker()
		}
		if delta > 0 {
			log.WithFields(log.Fields{
				"pool": p.name, "started": delta,
				"waitTimeEMA": waitTimeEMA, "waitTimeSMA": waitTimeSMA,
				"queueSizeEMA": queueSizeEMA, "queueSizeSMA": queueSizeSMA,
			}).Debug("threadpool: grew")
		}

	case waitTimeEMA < lowWM && waitTimeSMA < lowWM && threadCount > p.minThreads:
		stopped := 0
		if int(loadAverage15) < threadCount/2 {
			stopped = threadCount - 2*int(loadAverage15)
			if stopped > threadCount-p.minThreads {
				stopped = threadCount - p.minThreads
			}
		}
		for i := 0; i < stopped; i++ {
			p.workQueue <- workItem{}
		}
		if stopped > 0 {
			log.WithFields(log.Fields{
				"pool": p.name, "stopped": stopped,
				"waitTimeEMA": waitTimeEMA, "waitTimeSMA": waitTimeSMA,
			}).Debug("threadpool: shrank")
		}
	}
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// Info is a point-in-time snapshot of a pool's size, throughput and load
// statistics, suitable for a diagnostic CLI or metrics exporter.
type Info struct {
	Name string

	MinThreads   int
	MaxThreads   int
	CurThreads   int
	ThreadStarts uint64
	ThreadStops  uint64

	ActiveRequests int64
	TotalRequests  int64
	LoadPercent    int // ActiveRequests*100/CurThreads
	UsagePercent   int // CurThreads*100/MaxThreads

	LoadAverage1Min  float64
	LoadAverage5Min  float64
	LoadAverage15Min float64

	WaitTimeEMA time.Duration
	WaitTimeSMA time.Duration
	WaitTimeSD  time.Duration

	QueueSizeEMA float64
	QueueSizeSMA float64
	QueueSizeSD  float64

	ScheduledRequests  int
	SerializedRequests int
}

// GetInfo returns a snapshot of the pool's current state.
func (p *Pool) GetInfo() Info {
	p.mu.Lock()
	curThreads := int(p.threadCount.Load())
	info := Info{
		Name:             p.name,
		MinThreads:       p.minThreads,
		MaxThreads:       p.maxThreads,
		CurThreads:       curThreads,
		ThreadStarts:     p.threadStartCount.Load(),
		ThreadStops:      p.threadStopCount.Load(),
		ActiveRequests:   p.activeRequests.Load(),
		TotalRequests:    p.taskExecutionCount.Load(),
		LoadAverage1Min:  p.loadAverage[0].get(),
		LoadAverage5Min:  p.loadAverage[1].get(),
		LoadAverage15Min: p.loadAverage[2].get(),
		WaitTimeEMA:      time.Duration(p.waitTimeEMA.get()) * time.Millisecond,
		WaitTimeSMA:      time.Duration(p.waitTimeVariance.Mean()) * time.Millisecond,
		WaitTimeSD:       time.Duration(p.waitTimeVariance.Stddev()) * time.Millisecond,
		QueueSizeEMA:     p.queueSizeEMA.get(),
		QueueSizeSMA:     p.queueSizeVariance.Mean(),
		QueueSizeSD:      p.queueSizeVariance.Stddev(),
	}
	p.mu.Unlock()

	if curThreads > 0 {
		info.LoadPercent = int(info.ActiveRequests * 100 / int64(curThreads))
	}
	if p.maxThreads > 0 {
		info.UsagePercent = curThreads * 100 / p.maxThreads
	}
	info.ScheduledRequests = p.ScheduledRequests()
	info.SerializedRequests = p.serializedRequestTotal()
	return info
}

// GetInfo looks up a registered pool by name and returns its snapshot.
func GetInfo(name string) (Info, bool) {
	p, ok := Lookup(name)
	if !ok {
		return Info{}, false
	}
	return p.GetInfo(), true
}
