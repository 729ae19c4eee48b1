// Copyright 2015 The Vanadium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package futex

import "github.com/prometheus/client_golang/prometheus"

// tableMetrics holds the Prometheus instrumentation for one Table: a
// counter per outcome and a gauge for the number of currently non-empty
// wait queues, following the counter-per-outcome/gauge-per-live-resource
// shape used throughout the pack's grafana and kubernetes trees for their
// own lock/queue subsystems.
type tableMetrics struct {
	waitsEntered  prometheus.Counter
	waitsWoken    prometheus.Counter
	waitsTimedOut prometheus.Counter
	waitsInvalid  prometheus.Counter
	waitsBusy     prometheus.Counter
	wakesIssued   prometheus.Counter
	requeues      prometheus.Counter
	liveQueues    prometheus.Gauge
}

func newTableMetrics(namespace string) *tableMetrics {
	counter := func(name, help string) prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "futex",
			Name:      name,
			Help:      help,
		})
	}
	return &tableMetrics{
		waitsEntered:  counter("waits_entered_total", "Wait calls that enqueued a waiter."),
		waitsWoken:    counter("waits_woken_total", "Wait calls that returned Ok."),
		waitsTimedOut: counter("waits_timed_out_total", "Wait calls that returned TimedOut."),
		waitsInvalid:  counter("waits_invalid_total", "Wait, Wake and Requeue calls that returned InvalidArgs."),
		waitsBusy:     counter("waits_busy_total", "Wait and Requeue calls that returned Busy."),
		wakesIssued:   counter("wakes_issued_total", "Waiters woken by Wake or Requeue."),
		requeues:      counter("requeues_total", "Requeue calls that woke or moved at least one waiter."),
		liveQueues: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "futex",
			Name:      "live_queues",
			Help:      "Number of keys with a non-empty WaitQueue right now.",
		}),
	}
}

// register adds every collector in m to reg. Registration failures (e.g. a
// duplicate name from registering two Tables against the same Registerer)
// are ignored the way optional instrumentation usually is — a Table must
// work identically whether or not metrics can be exported.
func (m *tableMetrics) register(reg prometheus.Registerer) {
	if reg == nil || m == nil {
		return
	}
	for _, c := range []prometheus.Collector{
		m.waitsEntered, m.waitsWoken, m.waitsTimedOut, m.waitsInvalid,
		m.waitsBusy, m.wakesIssued, m.requeues, m.liveQueues,
	} {
		_ = reg.Register(c)
	}
}
