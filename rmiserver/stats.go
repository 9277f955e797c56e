/*
 * Copyright (c) 2023 Zander Schwid & Co. LLC.
 * SPDX-License-Identifier: BUSL-1.1
 */

package rmiserver

import (
	"github.com/codeallergy/value-rmi/internal/observability"
	"github.com/codeallergy/value-rmi/rmi"
	"go.uber.org/atomic"
)

// Stats aggregates counters over every channel of a server. Each update
// is mirrored to the process metrics.
type Stats struct {
	sessions       atomic.Int64
	active         atomic.Int64
	bursts         atomic.Int64
	operations     atomic.Int64
	faults         atomic.Int64
	protocolErrors atomic.Int64
}

func (t *Stats) sessionStart() {
	t.sessions.Inc()
	t.active.Inc()
	observability.RecordSessionStart()
}

func (t *Stats) sessionEnd(failed bool) {
	t.active.Dec()
	observability.RecordSessionEnd(failed)
}

func (t *Stats) burst() {
	t.bursts.Inc()
	observability.RecordBurst()
}

func (t *Stats) operation(name string, fault bool) {
	t.operations.Inc()
	if fault {
		t.faults.Inc()
	}
	observability.RecordOperation(name, fault)
}

func (t *Stats) provide(found bool) {
	observability.RecordProvide(found)
}

func (t *Stats) protocolError() {
	t.protocolErrors.Inc()
	observability.RecordProtocolError()
}

func (t *Stats) Bursts() int64 {
	return t.bursts.Load()
}

func (t *Stats) Map() map[string]int64 {
	return map[string]int64{
		rmi.SessionsField:       t.sessions.Load(),
		rmi.ActiveField:         t.active.Load(),
		rmi.BurstsField:         t.bursts.Load(),
		rmi.OperationsField:     t.operations.Load(),
		rmi.FaultsField:         t.faults.Load(),
		rmi.ProtocolErrorsField: t.protocolErrors.Load(),
	}
}
