/*
 * Copyright (c) 2023 Zander Schwid & Co. LLC.
 * SPDX-License-Identifier: BUSL-1.1
 */

package rmiserver

import (
	"context"
	"net"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/atomic"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

type rpcServer struct {
	listener    net.Listener
	service     Service
	host        Host
	log         *zap.Logger
	stats       *Stats
	channelOpts []Option
	limiter     *rate.Limiter
	slots       chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
	closed atomic.Bool
	wg     sync.WaitGroup
}

func NewServer(address string, service Service, host Host, opts ...Option) (Server, error) {
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return nil, errors.Wrapf(err, "listen %s", address)
	}
	return NewServerWithListener(listener, service, host, opts...), nil
}

// NewServerWithListener serves sessions accepted from listener. Every
// connection gets its own channel, operation table and scopes.
func NewServerWithListener(listener net.Listener, service Service, host Host, opts ...Option) Server {
	o := newOptions(opts)

	channelOpts := make([]Option, 0, len(opts)+3)
	channelOpts = append(channelOpts, opts...)
	channelOpts = append(channelOpts, WithCodecs(o.codecs), WithStats(o.stats), WithLogger(o.log))

	t := &rpcServer{
		listener:    listener,
		service:     service,
		host:        host,
		log:         o.log,
		stats:       o.stats,
		channelOpts: channelOpts,
		slots:       make(chan struct{}, o.maxSessions),
	}
	if o.acceptRate > 0 {
		burst := o.acceptBurst
		if burst < 1 {
			burst = 1
		}
		t.limiter = rate.NewLimiter(rate.Limit(o.acceptRate), burst)
	}
	t.ctx, t.cancel = context.WithCancel(context.Background())
	return t
}

func (t *rpcServer) Addr() string {
	return t.listener.Addr().String()
}

func (t *rpcServer) Stats() map[string]int64 {
	return t.stats.Map()
}

// Run accepts connections until Close. A new connection is only accepted
// when a session slot is free.
func (t *rpcServer) Run() error {
	t.log.Info("rmi server listening", zap.String("addr", t.Addr()))
	for {
		select {
		case t.slots <- struct{}{}:
		case <-t.ctx.Done():
			return ErrServerClosed
		}

		if t.limiter != nil {
			if err := t.limiter.Wait(t.ctx); err != nil {
				<-t.slots
				return ErrServerClosed
			}
		}

		conn, err := t.listener.Accept()
		if err != nil {
			<-t.slots
			if t.closed.Load() {
				return ErrServerClosed
			}
			return errors.Wrap(err, "accept")
		}

		t.wg.Add(1)
		go t.serve(conn)
	}
}

func (t *rpcServer) serve(conn net.Conn) {
	defer t.wg.Done()
	defer func() { <-t.slots }()

	if tcp, ok := conn.(*net.TCPConn); ok {
		tcp.SetNoDelay(true)
	}
	ch := NewChannel(conn, t.service, t.host, t.channelOpts...)
	if err := ch.Serve(t.ctx); err != nil && !errors.Is(err, context.Canceled) {
		t.log.Info("session closed with error", zap.String("remote", conn.RemoteAddr().String()), zap.Error(err))
	}
}

func (t *rpcServer) Close() error {
	if !t.closed.CompareAndSwap(false, true) {
		return nil
	}
	t.cancel()
	err := t.listener.Close()
	t.wg.Wait()
	return err
}
