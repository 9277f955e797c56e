/*
 * Copyright (c) 2023 Zander Schwid & Co. LLC.
 * SPDX-License-Identifier: BUSL-1.1
 */

package rmiserver

import (
	"time"

	"github.com/codeallergy/value-rmi/rmi"
	"go.uber.org/zap"
)

var DefaultBurstTimeout = 20 * time.Millisecond
var DefaultWriteTimeout = 30 * time.Second

type options struct {
	codecs       *rmi.CodecTable
	burstTimeout time.Duration
	writeTimeout time.Duration
	log          *zap.Logger
	stats        *Stats
	maxSessions  int
	acceptRate   float64
	acceptBurst  int
}

type Option func(*options)

func newOptions(opts []Option) options {
	o := options{
		burstTimeout: DefaultBurstTimeout,
		writeTimeout: DefaultWriteTimeout,
		maxSessions:  1,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.codecs == nil {
		o.codecs = rmi.DefaultCodecs()
	}
	if o.log == nil {
		o.log = zap.NewNop()
	}
	if o.stats == nil {
		o.stats = &Stats{}
	}
	if o.maxSessions < 1 {
		o.maxSessions = 1
	}
	return o
}

func WithCodecs(codecs *rmi.CodecTable) Option {
	return func(o *options) { o.codecs = codecs }
}

// WithBurstTimeout sets how long the channel waits for the next operation
// before it commits the current burst.
func WithBurstTimeout(d time.Duration) Option {
	return func(o *options) { o.burstTimeout = d }
}

// WithWriteTimeout bounds every response write, zero disables it.
func WithWriteTimeout(d time.Duration) Option {
	return func(o *options) { o.writeTimeout = d }
}

func WithLogger(log *zap.Logger) Option {
	return func(o *options) { o.log = log }
}

func WithStats(stats *Stats) Option {
	return func(o *options) { o.stats = stats }
}

// WithMaxSessions lets the server run n sessions at once. Service and host
// must be safe for concurrent use when n > 1.
func WithMaxSessions(n int) Option {
	return func(o *options) { o.maxSessions = n }
}

// WithAcceptRate throttles accepted connections per second, zero disables it.
func WithAcceptRate(rps float64, burst int) Option {
	return func(o *options) {
		o.acceptRate = rps
		o.acceptBurst = burst
	}
}
