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
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	threadsGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "threadpool_threads",
		Help: "Current number of worker goroutines in a thread pool.",
	}, []string{"pool"})

	activeRequestsGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "threadpool_active_requests",
		Help: "Tasks currently running or queued in a thread pool.",
	}, []string{"pool"})

	queueSizeGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "threadpool_queue_size",
		Help: "Tasks currently waiting on a thread pool's FIFO work queue.",
	}, []string{"pool"})
)

// reportMetrics refreshes this pool's gauges; called once per maintenance
// cycle, the same cadence at which the load averages themselves update.
func (p *Pool) reportMetrics() {
	threadsGauge.WithLabelValues(p.name).Set(float64(p.threadCount.Load()))
	activeRequestsGauge.WithLabelValues(p.name).Set(float64(p.activeRequests.Load()))
	queueSizeGauge.WithLabelValues(p.name).Set(float64(len(p.workQueue)))
}
