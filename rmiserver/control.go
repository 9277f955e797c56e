/*
 * Copyright (c) 2023 Zander Schwid & Co. LLC.
 * SPDX-License-Identifier: BUSL-1.1
 */

package rmiserver

import (
	"net"
	"sync"
	"time"

	"github.com/codeallergy/value"
	"github.com/codeallergy/value-rmi/rmi"
	"github.com/pkg/errors"
	"go.uber.org/atomic"
	"go.uber.org/zap"
)

var ControlTimeout = 5 * time.Second

// ControlIdleTimeout drops control connections that send nothing for this long.
var ControlIdleTimeout = 5 * time.Minute

// ControlServer answers stats and procedure listing requests on a separate
// listener, using framed msgpack messages.
type ControlServer struct {
	listener net.Listener
	stats    func() map[string]int64
	service  Service
	log      *zap.Logger

	closed atomic.Bool
	mu     sync.Mutex
	conns  map[*rmi.ControlConn]struct{}
	wg     sync.WaitGroup
}

func NewControlServer(address string, stats func() map[string]int64, service Service, log *zap.Logger) (*ControlServer, error) {
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return nil, errors.Wrapf(err, "listen %s", address)
	}
	return NewControlServerWithListener(listener, stats, service, log), nil
}

func NewControlServerWithListener(listener net.Listener, stats func() map[string]int64, service Service, log *zap.Logger) *ControlServer {
	if log == nil {
		log = zap.NewNop()
	}
	return &ControlServer{
		listener: listener,
		stats:    stats,
		service:  service,
		log:      log,
		conns:    make(map[*rmi.ControlConn]struct{}),
	}
}

func (t *ControlServer) Addr() string {
	return t.listener.Addr().String()
}

func (t *ControlServer) Run() error {
	t.log.Info("control server listening", zap.String("addr", t.Addr()))
	for {
		conn, err := t.listener.Accept()
		if err != nil {
			if t.closed.Load() {
				return ErrServerClosed
			}
			return errors.Wrap(err, "accept")
		}
		mc := rmi.NewControlConn(conn, ControlIdleTimeout, ControlTimeout)
		t.mu.Lock()
		t.conns[mc] = struct{}{}
		t.mu.Unlock()
		t.wg.Add(1)
		go t.serve(mc)
	}
}

func (t *ControlServer) serve(conn *rmi.ControlConn) {
	defer t.wg.Done()
	defer func() {
		t.mu.Lock()
		delete(t.conns, conn)
		t.mu.Unlock()
		conn.Close()
	}()

	for {
		var resp value.Map
		msgType, _, err := conn.ReadMessage()
		switch {
		case err == nil:
			resp = t.handle(msgType)
		case errors.Is(err, rmi.ErrInvalidMessage):
			resp = rmi.NewErrorResponse(err)
		default:
			return
		}
		if err := conn.WriteMessage(resp); err != nil {
			t.log.Debug("control write failed", zap.Error(err))
			return
		}
	}
}

func (t *ControlServer) handle(msgType rmi.MessageType) value.Map {
	switch msgType {
	case rmi.StatsRequest:
		var stats map[string]int64
		if t.stats != nil {
			stats = t.stats()
		}
		return rmi.NewStatsResponse(stats)
	case rmi.ProceduresRequest:
		arity := make(map[string]int)
		if lister, ok := t.service.(Lister); ok {
			for _, p := range lister.Procedures() {
				arity[p.Name] = len(p.Params)
			}
		}
		return rmi.NewProceduresResponse(arity)
	default:
		return rmi.NewErrorResponse(errors.Errorf("message type %d not supported", msgType))
	}
}

func (t *ControlServer) Close() error {
	if !t.closed.CompareAndSwap(false, true) {
		return nil
	}
	err := t.listener.Close()
	t.mu.Lock()
	for conn := range t.conns {
		conn.Close()
	}
	t.mu.Unlock()
	t.wg.Wait()
	return err
}
