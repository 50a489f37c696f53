// Copyright 2025 Scadalynx
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package bacstack

import (
	"sync"
	"sync/atomic"
	"time"
)

// Counter is a lock-free monotonic counter.
type Counter struct{ value int64 }

func (c *Counter) Add(delta int64) { atomic.AddInt64(&c.value, delta) }
func (c *Counter) Inc()             { c.Add(1) }
func (c *Counter) Value() int64     { return atomic.LoadInt64(&c.value) }
func (c *Counter) Reset()           { atomic.StoreInt64(&c.value, 0) }

// Gauge is a lock-free value that can move up or down.
type Gauge struct{ value int64 }

func (g *Gauge) Set(value int64) { atomic.StoreInt64(&g.value, value) }
func (g *Gauge) Add(delta int64)  { atomic.AddInt64(&g.value, delta) }
func (g *Gauge) Inc()             { g.Add(1) }
func (g *Gauge) Dec()             { g.Add(-1) }
func (g *Gauge) Value() int64     { return atomic.LoadInt64(&g.value) }

// LatencyHistogram is a fixed-bucket latency recorder for request round
// trips, segment-window fills, and event-engine scan cycles.
type LatencyHistogram struct {
	mu      sync.RWMutex
	count   int64
	sum     int64
	min     int64
	max     int64
	buckets []int64 // <1ms, <5ms, <10ms, <25ms, <50ms, <100ms, <250ms, <500ms, <1s, >=1s
}

// NewLatencyHistogram creates an empty histogram.
func NewLatencyHistogram() *LatencyHistogram {
	return &LatencyHistogram{min: -1, buckets: make([]int64, 10)}
}

// Record adds a latency measurement.
func (h *LatencyHistogram) Record(d time.Duration) {
	ns := d.Nanoseconds()

	h.mu.Lock()
	defer h.mu.Unlock()

	h.count++
	h.sum += ns
	if h.min < 0 || ns < h.min {
		h.min = ns
	}
	if ns > h.max {
		h.max = ns
	}

	switch ms := d.Milliseconds(); {
	case ms < 1:
		h.buckets[0]++
	case ms < 5:
		h.buckets[1]++
	case ms < 10:
		h.buckets[2]++
	case ms < 25:
		h.buckets[3]++
	case ms < 50:
		h.buckets[4]++
	case ms < 100:
		h.buckets[5]++
	case ms < 250:
		h.buckets[6]++
	case ms < 500:
		h.buckets[7]++
	case ms < 1000:
		h.buckets[8]++
	default:
		h.buckets[9]++
	}
}

// Stats returns a point-in-time snapshot of the histogram.
func (h *LatencyHistogram) Stats() LatencyStats {
	h.mu.RLock()
	defer h.mu.RUnlock()

	stats := LatencyStats{Count: h.count, Buckets: make([]int64, len(h.buckets))}
	copy(stats.Buckets, h.buckets)
	if h.count > 0 {
		stats.Min = time.Duration(h.min)
		stats.Max = time.Duration(h.max)
		stats.Avg = time.Duration(h.sum / h.count)
	}
	return stats
}

// Reset clears the histogram.
func (h *LatencyHistogram) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.count, h.sum, h.min, h.max = 0, 0, -1, 0
	for i := range h.buckets {
		h.buckets[i] = 0
	}
}

// LatencyStats is an immutable snapshot of a LatencyHistogram.
type LatencyStats struct {
	Count   int64
	Min     time.Duration
	Max     time.Duration
	Avg     time.Duration
	Buckets []int64
}

// Metrics aggregates every counter/gauge/histogram the stack exposes: the
// teacher's connection/request/discovery/COV metrics, extended with the
// transaction, segmentation, BBMD and event-engine counters the fuller
// protocol surface needs.
type Metrics struct {
	ConnectAttempts  Counter
	ConnectSuccesses Counter
	ConnectFailures  Counter
	Disconnects      Counter

	RequestsSent      Counter
	RequestsSucceeded Counter
	RequestsFailed    Counter
	RequestsTimedOut  Counter

	ResponsesReceived Counter
	ErrorsReceived    Counter
	RejectsReceived   Counter
	AbortsReceived    Counter

	WhoIsSent         Counter
	IAmReceived       Counter
	DevicesDiscovered Counter

	COVSubscriptions Counter
	COVNotifications Counter
	COVExpired       Counter

	SegmentsSent        Counter
	SegmentsReceived    Counter
	SegmentAcksSent     Counter
	SegmentNaksReceived Counter
	SegmentationAborts  Counter

	BBMDForwarded       Counter
	BBMDBroadcastsSent  Counter
	ForeignDevicesAdded Counter
	ForeignDevicesExpired Counter

	EventScansRun        Counter
	EventTransitionsFired Counter
	NotificationsSent    Counter

	RequestLatency *LatencyHistogram
	ScanLatency    *LatencyHistogram

	BytesSent     Counter
	BytesReceived Counter

	ActiveRequests      Gauge
	ActiveSubscriptions Gauge
	ActiveTransactions  Gauge

	startTime    time.Time
	lastActivity atomic.Int64
}

// NewMetrics constructs a zeroed Metrics instance with its start time set.
func NewMetrics() *Metrics {
	return &Metrics{
		RequestLatency: NewLatencyHistogram(),
		ScanLatency:    NewLatencyHistogram(),
		startTime:      time.Now(),
	}
}

// RecordActivity stamps the current time as the last-seen activity.
func (m *Metrics) RecordActivity() { m.lastActivity.Store(time.Now().UnixNano()) }

// LastActivity returns the last recorded activity time, or start time if none.
func (m *Metrics) LastActivity() time.Time {
	if ns := m.lastActivity.Load(); ns != 0 {
		return time.Unix(0, ns)
	}
	return m.startTime
}

// Uptime returns the time elapsed since the Metrics instance was created.
func (m *Metrics) Uptime() time.Duration { return time.Since(m.startTime) }

// Snapshot captures every counter/gauge/histogram value at once.
func (m *Metrics) Snapshot() MetricsSnapshot {
	return MetricsSnapshot{
		Uptime: m.Uptime(),

		ConnectAttempts: m.ConnectAttempts.Value(), ConnectSuccesses: m.ConnectSuccesses.Value(),
		ConnectFailures: m.ConnectFailures.Value(), Disconnects: m.Disconnects.Value(),

		RequestsSent: m.RequestsSent.Value(), RequestsSucceeded: m.RequestsSucceeded.Value(),
		RequestsFailed: m.RequestsFailed.Value(), RequestsTimedOut: m.RequestsTimedOut.Value(),

		ResponsesReceived: m.ResponsesReceived.Value(), ErrorsReceived: m.ErrorsReceived.Value(),
		RejectsReceived: m.RejectsReceived.Value(), AbortsReceived: m.AbortsReceived.Value(),

		WhoIsSent: m.WhoIsSent.Value(), IAmReceived: m.IAmReceived.Value(),
		DevicesDiscovered: m.DevicesDiscovered.Value(),

		COVSubscriptions: m.COVSubscriptions.Value(), COVNotifications: m.COVNotifications.Value(),
		COVExpired: m.COVExpired.Value(),

		SegmentsSent: m.SegmentsSent.Value(), SegmentsReceived: m.SegmentsReceived.Value(),
		SegmentAcksSent: m.SegmentAcksSent.Value(), SegmentNaksReceived: m.SegmentNaksReceived.Value(),
		SegmentationAborts: m.SegmentationAborts.Value(),

		BBMDForwarded: m.BBMDForwarded.Value(), BBMDBroadcastsSent: m.BBMDBroadcastsSent.Value(),
		ForeignDevicesAdded: m.ForeignDevicesAdded.Value(), ForeignDevicesExpired: m.ForeignDevicesExpired.Value(),

		EventScansRun: m.EventScansRun.Value(), EventTransitionsFired: m.EventTransitionsFired.Value(),
		NotificationsSent: m.NotificationsSent.Value(),

		RequestLatency: m.RequestLatency.Stats(), ScanLatency: m.ScanLatency.Stats(),

		BytesSent: m.BytesSent.Value(), BytesReceived: m.BytesReceived.Value(),

		ActiveRequests: m.ActiveRequests.Value(), ActiveSubscriptions: m.ActiveSubscriptions.Value(),
		ActiveTransactions: m.ActiveTransactions.Value(),

		LastActivity: m.LastActivity(),
	}
}

// MetricsSnapshot is a point-in-time, immutable copy of Metrics.
type MetricsSnapshot struct {
	Uptime time.Duration

	ConnectAttempts, ConnectSuccesses, ConnectFailures, Disconnects int64

	RequestsSent, RequestsSucceeded, RequestsFailed, RequestsTimedOut int64

	ResponsesReceived, ErrorsReceived, RejectsReceived, AbortsReceived int64

	WhoIsSent, IAmReceived, DevicesDiscovered int64

	COVSubscriptions, COVNotifications, COVExpired int64

	SegmentsSent, SegmentsReceived, SegmentAcksSent, SegmentNaksReceived, SegmentationAborts int64

	BBMDForwarded, BBMDBroadcastsSent, ForeignDevicesAdded, ForeignDevicesExpired int64

	EventScansRun, EventTransitionsFired, NotificationsSent int64

	RequestLatency, ScanLatency LatencyStats

	BytesSent, BytesReceived int64

	ActiveRequests, ActiveSubscriptions, ActiveTransactions int64

	LastActivity time.Time
}
