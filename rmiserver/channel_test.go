/*
 * Copyright (c) 2023 Zander Schwid & Co. LLC.
 * SPDX-License-Identifier: BUSL-1.1
 */

package rmiserver

import (
	"context"
	"math"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/codeallergy/value-rmi/rmi"
	"github.com/pkg/errors"
	"go.uber.org/atomic"
	"go.uber.org/zap/zaptest"
)

type recordingHost struct {
	begins     atomic.Int64
	commits    atomic.Int64
	failCommit bool
}

type recordingScope struct {
	host *recordingHost
}

func (t *recordingHost) Begin() (Scope, error) {
	t.begins.Inc()
	return recordingScope{host: t}, nil
}

func (s recordingScope) Commit() error {
	s.host.commits.Inc()
	if s.host.failCommit {
		return errors.New("commit rejected")
	}
	return nil
}

type customDef struct{}

func (customDef) TypeName() string { return "matrix" }

func testRegistry(t *testing.T) *Registry {
	reg := NewRegistry()
	procs := []Procedure{
		Func2("add", rmi.Int32, rmi.Int32, rmi.Int32, func(a, b int32) (int32, error) {
			return a + b, nil
		}),
		Func1("fail", rmi.Int32, rmi.Int32, func(a int32) (int32, error) {
			return 0, errors.Errorf("boom %d", a)
		}),
		Func0("panic", rmi.Double, func() (float64, error) {
			panic("bad state")
		}),
		Func1("sum", rmi.Array(rmi.Double), rmi.Double, func(xs []float64) (float64, error) {
			var s float64
			for _, x := range xs {
				s += x
			}
			return s, nil
		}),
		Action1("touch", rmi.Int32, func(int32) error { return nil }),
		Func1("mismatch", rmi.Int32, rmi.Int32, func(s string) (int32, error) {
			return int32(len(s)), nil
		}),
		{
			Name:   "matrix",
			Params: []rmi.TypeDef{customDef{}},
			Result: rmi.Void,
			Invoke: func([]interface{}) (interface{}, error) { return nil, nil },
		},
	}
	for _, p := range procs {
		if err := reg.Add(p); err != nil {
			t.Fatalf("add %s: %v", p.Name, err)
		}
	}
	return reg
}

type session struct {
	t      *testing.T
	conn   net.Conn
	r      *rmi.Reader
	w      *rmi.Writer
	codecs *rmi.CodecTable
	done   chan struct{}
	err    error
}

func startSession(t *testing.T, ctx context.Context, service Service, host Host, opts ...Option) *session {
	t.Helper()
	server, client := net.Pipe()
	opts = append([]Option{WithLogger(zaptest.NewLogger(t))}, opts...)
	ch := NewChannel(server, service, host, opts...)

	s := &session{
		t:      t,
		conn:   client,
		r:      rmi.NewReader(client),
		w:      rmi.NewWriter(client),
		codecs: rmi.DefaultCodecs(),
		done:   make(chan struct{}),
	}
	go func() {
		s.err = ch.Serve(ctx)
		close(s.done)
	}()
	client.SetDeadline(time.Now().Add(10 * time.Second))
	t.Cleanup(func() {
		client.Close()
		select {
		case <-s.done:
		case <-time.After(5 * time.Second):
			t.Error("session still running")
		}
	})
	return s
}

func (s *session) wait() error {
	s.t.Helper()
	select {
	case <-s.done:
		return s.err
	case <-time.After(5 * time.Second):
		s.t.Fatal("session did not end")
		return nil
	}
}

func (s *session) flush() {
	s.t.Helper()
	if err := s.w.Flush(); err != nil {
		s.t.Fatalf("flush: %v", err)
	}
}

func (s *session) provide(name string) int32 {
	s.t.Helper()
	s.w.WriteUint8(rmi.BootstrapOp)
	s.w.WriteString(name)
	s.flush()
	index, err := s.r.ReadInt32()
	if err != nil {
		s.t.Fatalf("bootstrap reply for %s: %v", name, err)
	}
	return index
}

func (s *session) call(index int32, result rmi.TypeDef, args ...func(w *rmi.Writer)) (interface{}, bool) {
	s.t.Helper()
	s.w.WriteUint8(byte(index))
	for _, a := range args {
		a(s.w)
	}
	s.flush()
	entry, err := s.codecs.Lookup(result)
	if err != nil {
		s.t.Fatal(err)
	}
	v, failed, err := entry.DecodeReply(s.r)
	if err != nil {
		s.t.Fatalf("reply: %v", err)
	}
	return v, failed
}

func int32Arg(v int32) func(w *rmi.Writer) {
	return func(w *rmi.Writer) { w.WriteInt32(v) }
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not reached")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestProvideAndInvoke(t *testing.T) {
	host := &recordingHost{}
	s := startSession(t, context.Background(), testRegistry(t), host)

	index := s.provide("add")
	if index < 1 {
		t.Fatalf("index %d", index)
	}
	v, failed := s.call(index, rmi.Int32, int32Arg(2), int32Arg(3))
	if failed || v.(int32) != 5 {
		t.Fatalf("add returned %v failed=%v", v, failed)
	}

	s.conn.Close()
	if err := s.wait(); err != nil {
		t.Fatalf("clean disconnect returned %v", err)
	}
	if host.begins.Load() < 1 || host.begins.Load() != host.commits.Load() {
		t.Fatalf("begins %d commits %d", host.begins.Load(), host.commits.Load())
	}
}

func TestCloseAfterBufferedEndOfBurst(t *testing.T) {
	host := &recordingHost{}
	s := startSession(t, context.Background(), testRegistry(t), host, WithBurstTimeout(time.Minute))

	s.w.WriteUint8(rmi.BootstrapOp)
	s.w.WriteString("add")
	s.w.WriteUint8(rmi.EndOfBurst)
	s.flush()
	if index, err := s.r.ReadInt32(); err != nil || index < 1 {
		t.Fatalf("bootstrap reply %d %v", index, err)
	}

	s.conn.Close()
	if err := s.wait(); err != nil {
		t.Fatalf("clean disconnect returned %v", err)
	}
	if host.begins.Load() != 1 || host.commits.Load() != 1 {
		t.Fatalf("begins %d commits %d", host.begins.Load(), host.commits.Load())
	}
}

func TestProvideTwiceGivesDistinctIndices(t *testing.T) {
	s := startSession(t, context.Background(), testRegistry(t), nil)

	first := s.provide("add")
	second := s.provide("add")
	if first == second || first < 1 || second < 1 {
		t.Fatalf("indices %d and %d", first, second)
	}
	for _, index := range []int32{first, second} {
		if v, failed := s.call(index, rmi.Int32, int32Arg(-1), int32Arg(1)); failed || v.(int32) != 0 {
			t.Fatalf("index %d returned %v failed=%v", index, v, failed)
		}
	}
}

func TestProvideNotFound(t *testing.T) {
	s := startSession(t, context.Background(), testRegistry(t), nil)

	for _, name := range []string{"missing", "mismatch", "matrix", ""} {
		if index := s.provide(name); index != rmi.NotFound {
			t.Fatalf("%q provided at %d", name, index)
		}
	}
	// the session survives failed bootstraps
	index := s.provide("add")
	if v, failed := s.call(index, rmi.Int32, int32Arg(40), int32Arg(2)); failed || v.(int32) != 42 {
		t.Fatalf("add returned %v failed=%v", v, failed)
	}
}

func TestTableFull(t *testing.T) {
	s := startSession(t, context.Background(), testRegistry(t), nil)

	for i := 1; i < rmi.MaxOperations; i++ {
		if index := s.provide("touch"); index != int32(i) {
			t.Fatalf("expected index %d, got %d", i, index)
		}
	}
	if index := s.provide("touch"); index != rmi.NotFound {
		t.Fatalf("full table provided %d", index)
	}
	v, failed := s.call(rmi.MaxOperations-1, rmi.Void, int32Arg(1))
	if failed || v != nil {
		t.Fatalf("last index returned %v failed=%v", v, failed)
	}
}

func TestFaultIsInBand(t *testing.T) {
	s := startSession(t, context.Background(), testRegistry(t), nil)

	fail := s.provide("fail")
	_, failed := s.call(fail, rmi.Int32, int32Arg(7))
	if !failed {
		t.Fatal("fault not signalled")
	}
	text, err := s.r.ReadString()
	if err != nil {
		t.Fatal(err)
	}
	d := rmi.ParseDiagnostic(text)
	if !strings.Contains(d.Message, "boom 7") {
		t.Fatalf("diagnostic %q", d.Message)
	}

	p := s.provide("panic")
	v, failed := s.call(p, rmi.Double)
	if !failed {
		t.Fatalf("panic returned %v", v)
	}
	text, err = s.r.ReadString()
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(text, "bad state") {
		t.Fatalf("diagnostic %q", text)
	}

	add := s.provide("add")
	if v, failed := s.call(add, rmi.Int32, int32Arg(1), int32Arg(1)); failed || v.(int32) != 2 {
		t.Fatalf("add after fault returned %v failed=%v", v, failed)
	}
}

func TestArrayAndVoid(t *testing.T) {
	s := startSession(t, context.Background(), testRegistry(t), nil)

	sum := s.provide("sum")
	v, failed := s.call(sum, rmi.Double, func(w *rmi.Writer) {
		w.WriteInt32(3)
		w.WriteDouble(1.5)
		w.WriteDouble(2.5)
		w.WriteDouble(-1)
	})
	if failed || v.(float64) != 3 {
		t.Fatalf("sum returned %v failed=%v", v, failed)
	}

	touch := s.provide("touch")
	s.w.WriteUint8(byte(touch))
	s.w.WriteInt32(1)
	s.flush()
	b, err := s.r.ReadByte()
	if err != nil || b != rmi.VoidOk {
		t.Fatalf("void reply %d %v", b, err)
	}
}

func TestUnknownIndexTerminates(t *testing.T) {
	host := &recordingHost{}
	stats := &Stats{}
	s := startSession(t, context.Background(), testRegistry(t), host, WithStats(stats))

	s.provide("add")
	s.w.WriteUint8(200)
	s.flush()

	err := s.wait()
	if !errors.Is(err, ErrUnknownOperation) {
		t.Fatalf("expected ErrUnknownOperation, got %v", err)
	}
	if host.commits.Load() < 1 || host.begins.Load() != host.commits.Load() {
		t.Fatalf("begins %d commits %d", host.begins.Load(), host.commits.Load())
	}
	if stats.Map()[rmi.ProtocolErrorsField] != 1 {
		t.Fatalf("stats %v", stats.Map())
	}
	if _, err := s.r.ReadByte(); err == nil {
		t.Fatal("stream still open")
	}
}

func TestTruncatedArgumentTerminates(t *testing.T) {
	host := &recordingHost{}
	s := startSession(t, context.Background(), testRegistry(t), host)

	add := s.provide("add")
	s.w.WriteUint8(byte(add))
	s.w.WriteInt32(1)
	s.w.Write([]byte{1, 2})
	s.flush()
	s.conn.Close()

	if err := s.wait(); err == nil {
		t.Fatal("truncated argument accepted")
	}
	if host.begins.Load() != host.commits.Load() {
		t.Fatalf("begins %d commits %d", host.begins.Load(), host.commits.Load())
	}
}

func TestBurstCommitsOnce(t *testing.T) {
	host := &recordingHost{}
	stats := &Stats{}
	s := startSession(t, context.Background(), testRegistry(t), host,
		WithBurstTimeout(200*time.Millisecond), WithStats(stats))

	add := s.provide("add")
	for i := int32(0); i < 3; i++ {
		if v, failed := s.call(add, rmi.Int32, int32Arg(i), int32Arg(i)); failed || v.(int32) != 2*i {
			t.Fatalf("add returned %v failed=%v", v, failed)
		}
	}
	s.w.WriteUint8(rmi.EndOfBurst)
	s.flush()
	waitFor(t, func() bool { return host.commits.Load() == 1 })
	if host.begins.Load() != 1 {
		t.Fatalf("begins %d", host.begins.Load())
	}

	// a second burst closed by the timeout
	if v, failed := s.call(add, rmi.Int32, int32Arg(1), int32Arg(1)); failed || v.(int32) != 2 {
		t.Fatalf("add returned %v failed=%v", v, failed)
	}
	waitFor(t, func() bool { return host.commits.Load() == 2 })

	s.conn.Close()
	if err := s.wait(); err != nil {
		t.Fatal(err)
	}
	if host.begins.Load() != 2 || host.commits.Load() != 2 || stats.Bursts() != 2 {
		t.Fatalf("begins %d commits %d bursts %d", host.begins.Load(), host.commits.Load(), stats.Bursts())
	}
}

func TestIdleEndOfBurstOpensNoScope(t *testing.T) {
	host := &recordingHost{}
	s := startSession(t, context.Background(), testRegistry(t), host)

	s.w.WriteUint8(rmi.EndOfBurst)
	s.w.WriteUint8(rmi.EndOfBurst)
	s.flush()
	s.conn.Close()
	if err := s.wait(); err != nil {
		t.Fatal(err)
	}
	if host.begins.Load() != 0 {
		t.Fatalf("begins %d", host.begins.Load())
	}
}

func TestCommitFailureTerminates(t *testing.T) {
	host := &recordingHost{failCommit: true}
	s := startSession(t, context.Background(), testRegistry(t), host)

	s.provide("add")
	s.w.WriteUint8(rmi.EndOfBurst)
	s.flush()

	if err := s.wait(); err == nil || !strings.Contains(err.Error(), "commit rejected") {
		t.Fatalf("expected commit error, got %v", err)
	}
	if host.commits.Load() != 1 {
		t.Fatalf("commits %d", host.commits.Load())
	}
}

func TestCancelClosesSession(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s := startSession(t, ctx, testRegistry(t), nil)

	if index := s.provide("add"); index < 1 {
		t.Fatalf("index %d", index)
	}
	cancel()
	if err := s.wait(); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestDoubleNaNIsFault(t *testing.T) {
	reg := NewRegistry()
	err := reg.Add(Func0("nan", rmi.Double, func() (float64, error) {
		return math.NaN(), nil
	}))
	if err != nil {
		t.Fatal(err)
	}
	s := startSession(t, context.Background(), reg, nil)

	index := s.provide("nan")
	if _, failed := s.call(index, rmi.Double); !failed {
		t.Fatal("NaN result not reported as fault")
	}
	if _, err := s.r.ReadString(); err != nil {
		t.Fatal(err)
	}
}
