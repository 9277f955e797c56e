/*
 * Copyright (c) 2023 Zander Schwid & Co. LLC.
 * SPDX-License-Identifier: BUSL-1.1
 */

package observability

import (
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	sessions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rmi",
			Subsystem: "session",
			Name:      "sessions_total",
			Help:      "Finished sessions by outcome.",
		},
		[]string{"failed"},
	)
	activeSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "rmi",
			Subsystem: "session",
			Name:      "active",
			Help:      "Sessions currently being served.",
		},
	)
	bursts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "rmi",
			Subsystem: "session",
			Name:      "bursts_total",
			Help:      "Committed execution scopes.",
		},
	)
	protocolErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "rmi",
			Subsystem: "session",
			Name:      "protocol_errors_total",
			Help:      "Sessions terminated by a protocol violation.",
		},
	)
	operations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rmi",
			Subsystem: "operation",
			Name:      "calls_total",
			Help:      "Invoked operations by procedure and fault.",
		},
		[]string{"procedure", "fault"},
	)
	provides = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rmi",
			Subsystem: "operation",
			Name:      "provides_total",
			Help:      "Bootstrap requests by resolution result.",
		},
		[]string{"found"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(sessions, activeSessions, bursts, protocolErrors, operations, provides)
	})
}

func RecordSessionStart() {
	RegisterMetrics()
	activeSessions.Inc()
}

func RecordSessionEnd(failed bool) {
	RegisterMetrics()
	activeSessions.Dec()
	sessions.WithLabelValues(strconv.FormatBool(failed)).Inc()
}

func RecordBurst() {
	RegisterMetrics()
	bursts.Inc()
}

func RecordProtocolError() {
	RegisterMetrics()
	protocolErrors.Inc()
}

func RecordOperation(procedure string, fault bool) {
	RegisterMetrics()
	operations.WithLabelValues(procedure, strconv.FormatBool(fault)).Inc()
}

func RecordProvide(found bool) {
	RegisterMetrics()
	provides.WithLabelValues(strconv.FormatBool(found)).Inc()
}
