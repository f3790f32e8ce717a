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
	"container/heap"
	"time"
)

// scheduledTask is one entry in the scheduler's min-heap, ordered by the
// absolute time it should be moved onto the work queue.
type scheduledTask struct {
	runTime time.Time
	fn      func()
}

// taskHeap is a container/heap.Interface over scheduledTask, ordered so the
// earliest runTime is always at index 0.
type taskHeap []scheduledTask

func (h taskHeap) Len() int            { return len(h) }
func (h taskHeap) Less(i, j int) bool  { return h[i].runTime.Before(h[j].runTime) }
func (h taskHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *taskHeap) Push(x interface{}) { *h = append(*h, x.(scheduledTask)) }
func (h *taskHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// scheduleLoop runs the scheduler side of the maintenance work: whenever the
// earliest scheduled task's run time arrives, it is handed to Execute. The
// loop re-arms its timer to the new earliest deadline after every change to
// the heap, rather than polling on a fixed tick, so a task scheduled for the
// near future runs promptly instead of waiting for the next 5s cycle.
func (p *Pool) scheduleLoop() {
	defer p.maintWG.Done()
	timer := time.NewTimer(time.Hour)
	defer timer.Stop()
	for {
		p.schedulerMu.Lock()
		var wait time.Duration
		if p.scheduler.Len() > 0 {
			wait = time.Until(p.scheduler[0].runTime)
		} else {
			wait = time.Hour
		}
		p.schedulerMu.Unlock()
		if wait < 0 {
			wait = 0
		}
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(wait)

		select {
		case <-p.stopCh:
			return
		case <-p.schedulerWake:
			continue
		case <-timer.C:
		}

		now := time.Now()
		for {
			p.schedulerMu.Lock()
			if p.scheduler.Len() == 0 || p.scheduler[0].runTime.After(now) {
				p.schedulerMu.Unlock()
				break
			}
			task := heap.Pop(&p.scheduler).(scheduledTask)
			p.schedulerMu.Unlock()
			p.Execute(task.fn)
		}
	}
}

// ScheduleAbsolute runs fn once, at or after t.
func (p *Pool) ScheduleAbsolute(t time.Time, fn func()) {
	if p.isShutdown() {
		return
	}
	p.schedulerMu.Lock()
	heap.Push(&p.scheduler, scheduledTask{runTime: t, fn: fn})
	p.schedulerMu.Unlock()
	select {
	case p.schedulerWake <- struct{}{}:
	default:
	}
}

// ScheduleRelative runs fn once, after delay has elapsed. A zero or negative
// delay is equivalent to Execute.
func (p *Pool) ScheduleRelative(delay time.Duration, fn func()) {
	if delay <= 0 {
		p.Execute(fn)
		return
	}
	p.ScheduleAbsolute(time.Now().Add(delay), fn)
}

// ScheduledRequests returns the number of tasks currently waiting in the
// scheduler's priority queue for their run time to arrive.
func (p *Pool) ScheduledRequests() int {
	p.schedulerMu.Lock()
	defer p.schedulerMu.Unlock()
	return p.scheduler.Len()
}
