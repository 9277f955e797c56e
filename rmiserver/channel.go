/*
 * Copyright (c) 2023 Zander Schwid & Co. LLC.
 * SPDX-License-Identifier: BUSL-1.1
 */

package rmiserver

import (
	"context"
	"io"
	"net"
	"time"

	"github.com/codeallergy/value-rmi/rmi"
	"github.com/pkg/errors"
	"go.uber.org/atomic"
	"go.uber.org/zap"
)

// Stream is the byte stream of one session. net.Conn satisfies it.
type Stream interface {
	io.ReadWriteCloser
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
}

// Channel serves one session. It is driven by a single goroutine: reads,
// operations and writes never overlap, so the table and the scope are
// not locked.
type Channel struct {
	stream  Stream
	r       *rmi.Reader
	w       *rmi.Writer
	codecs  *rmi.CodecTable
	service Service
	host    Host
	ops     *OperationTable
	opts    options
	log     *zap.Logger
	stats   *Stats
	closed  atomic.Bool
}

func NewChannel(stream Stream, service Service, host Host, opts ...Option) *Channel {
	o := newOptions(opts)
	if host == nil {
		host = NopHost
	}
	log := o.log
	if conn, ok := stream.(net.Conn); ok && conn.RemoteAddr() != nil {
		log = log.With(zap.String("remote", conn.RemoteAddr().String()))
	}
	return &Channel{
		stream:  stream,
		r:       rmi.NewReader(stream),
		w:       rmi.NewWriter(stream),
		codecs:  o.codecs,
		service: service,
		host:    host,
		ops:     newOperationTable(),
		opts:    o,
		log:     log,
		stats:   o.stats,
	}
}

// Serve runs the session loop until the client disconnects, a protocol or
// transport error occurs, or ctx is cancelled. Cancelling closes the stream.
func (c *Channel) Serve(ctx context.Context) error {
	c.stats.sessionStart()
	c.log.Debug("session started")

	stop := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			c.Close()
		case <-stop:
		}
	}()

	err := c.loop()
	close(stop)
	c.Close()

	if err != nil && ctx.Err() != nil {
		err = ctx.Err()
	}
	c.stats.sessionEnd(err != nil)
	if err != nil {
		c.log.Warn("session terminated", zap.Error(err))
	} else {
		c.log.Debug("session finished")
	}
	return err
}

func (c *Channel) Close() error {
	if c.closed.CompareAndSwap(false, true) {
		return c.stream.Close()
	}
	return nil
}

// loop waits without a deadline for the first operation of each burst.
func (c *Channel) loop() error {
	for {
		op, err := c.readOp(time.Time{})
		if err != nil {
			if isEOF(err) {
				return nil
			}
			return errors.Wrap(err, "read operation")
		}
		if op == rmi.EndOfBurst {
			continue
		}
		more, err := c.burst(op)
		if err != nil || !more {
			return err
		}
	}
}

// burst runs operations inside one scope until the client goes quiet for
// the burst timeout, sends rmi.EndOfBurst, disconnects or fails. The scope
// is committed exactly once whatever the outcome.
func (c *Channel) burst(op byte) (more bool, err error) {
	scope, err := c.host.Begin()
	if err != nil {
		return false, errors.Wrap(err, "begin scope")
	}
	defer func() {
		if cerr := scope.Commit(); cerr != nil {
			c.log.Error("commit failed", zap.Error(cerr))
			if err == nil {
				err = errors.Wrap(cerr, "commit scope")
			}
			more = false
			return
		}
		c.stats.burst()
	}()

	for {
		if err := c.execute(op); err != nil {
			return false, err
		}
		if err := c.flush(); err != nil {
			return false, errors.Wrap(err, "flush")
		}

		op, err = c.readOp(time.Now().Add(c.opts.burstTimeout))
		switch {
		case err == nil && op == rmi.EndOfBurst:
			return true, nil
		case err == nil:
		case isTimeout(err):
			return true, nil
		case isEOF(err):
			return false, nil
		default:
			return false, errors.Wrap(err, "read operation")
		}
	}
}

// readOp takes a buffered byte without touching the deadline. A stream
// closed by the peer may refuse the deadline; the read then reports EOF.
func (c *Channel) readOp(deadline time.Time) (byte, error) {
	if !deadline.IsZero() && c.r.Buffered() == 0 {
		if err := c.stream.SetReadDeadline(deadline); err != nil {
			if !isClosed(err) {
				return 0, err
			}
		} else {
			defer c.stream.SetReadDeadline(time.Time{})
		}
	}
	return c.r.ReadByte()
}

func (c *Channel) execute(op byte) error {
	operation, ok := c.ops.Get(int(op))
	if !ok {
		c.stats.protocolError()
		return errors.Wrapf(ErrUnknownOperation, "index %d, table has %d", op, c.ops.Len())
	}
	if c.opts.writeTimeout > 0 {
		if err := c.stream.SetWriteDeadline(time.Now().Add(c.opts.writeTimeout)); err != nil {
			return err
		}
	}
	if err := operation(c); err != nil {
		var ne net.Error
		if !errors.As(err, &ne) {
			c.stats.protocolError()
		}
		return errors.Wrapf(err, "operation %d %s", op, c.ops.Name(int(op)))
	}
	return nil
}

func (c *Channel) flush() error {
	return c.w.Flush()
}
