/*
 * Copyright (c) 2023 Zander Schwid & Co. LLC.
 * SPDX-License-Identifier: BUSL-1.1
 */

package rmi

import (
	"bytes"
	"io"
	"math"
	"reflect"
	"runtime"
	"testing"

	"github.com/pkg/errors"
)

func roundTrip(t *testing.T, codecs *CodecTable, def TypeDef, v interface{}) interface{} {
	t.Helper()
	entry, err := codecs.Lookup(def)
	if err != nil {
		t.Fatalf("lookup %s: %v", def.TypeName(), err)
	}
	var buf bytes.Buffer
	w := NewWriter(&buf)
	if err := entry.Encode(w, v); err != nil {
		t.Fatalf("encode %s %#v: %v", def.TypeName(), v, err)
	}
	if err := w.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}
	encoded := append([]byte(nil), buf.Bytes()...)

	out, err := entry.Decode(NewReader(bytes.NewReader(encoded)))
	if err != nil {
		t.Fatalf("decode %s: %v", def.TypeName(), err)
	}

	reply, failed, err := entry.DecodeReply(NewReader(bytes.NewReader(encoded)))
	if err != nil {
		t.Fatalf("decode reply %s: %v", def.TypeName(), err)
	}
	if failed {
		t.Fatalf("%s value %#v read back as error sentinel", def.TypeName(), v)
	}
	if !reflect.DeepEqual(out, reply) {
		t.Fatalf("decode and decode reply disagree: %#v vs %#v", out, reply)
	}
	return out
}

func TestScalarRoundTrip(t *testing.T) {
	codecs := DefaultCodecs()
	cases := []struct {
		def TypeDef
		v   interface{}
	}{
		{Byte, byte(0)},
		{Byte, byte(254)},
		{Bool, true},
		{Bool, false},
		{Int32, int32(0)},
		{Int32, int32(-1)},
		{Int32, int32(5)},
		{Int32, int32(math.MaxInt32)},
		{Int32, int32(math.MinInt32 + 1)},
		{Double, 0.0},
		{Double, -1.5},
		{Double, math.Inf(1)},
		{Double, math.MaxFloat64},
		{String, ""},
		{String, "Level 3"},
		{String, "façade ☃"},
		{String, string([]byte{0xC3, 0xBF})},
		{Handle, Ref(42)},
		{Handle, NullRef},
		{Handle, Ref(-2)},
		{Point, XYZ{1, 2, 3}},
		{Point, XYZ{-0.5, 0, 1e9}},
	}
	for _, c := range cases {
		t.Run(c.def.TypeName(), func(t *testing.T) {
			got := roundTrip(t, codecs, c.def, c.v)
			if !reflect.DeepEqual(got, c.v) {
				t.Fatalf("round trip: got %#v want %#v", got, c.v)
			}
		})
	}
}

func TestArrayRoundTrip(t *testing.T) {
	codecs := DefaultCodecs()

	large := make([]float64, 100000)
	for i := range large {
		large[i] = float64(i) * 0.25
	}

	cases := []struct {
		def TypeDef
		v   interface{}
	}{
		{Array(Int32), []int32{}},
		{Array(Int32), []int32{1, -1, 3}},
		{Array(Double), large},
		{Array(String), []string{"a", "", "c"}},
		{Array(Handle), []Ref{1, NullRef, 7}},
		{Array(Point), []XYZ{{0, 0, 0}, {1, 1, 1}}},
		{Array(Bool), []bool{true, false}},
		{Array(Byte), []byte{0, 1, 254}},
		{Array(Array(Double)), [][]float64{{1, 2}, {}, {3}}},
	}
	for _, c := range cases {
		t.Run(c.def.TypeName(), func(t *testing.T) {
			got := roundTrip(t, codecs, c.def, c.v)
			if !reflect.DeepEqual(got, c.v) {
				t.Fatalf("round trip mismatch for %s", c.def.TypeName())
			}
		})
	}
}

func TestErrorSentinelIsDetected(t *testing.T) {
	codecs := DefaultCodecs()
	defs := []TypeDef{Void, Byte, Bool, Int32, Double, String, Handle, Point, Array(Int32), Array(Point)}
	for _, def := range defs {
		t.Run(def.TypeName(), func(t *testing.T) {
			entry, err := codecs.Lookup(def)
			if err != nil {
				t.Fatalf("lookup: %v", err)
			}
			var buf bytes.Buffer
			w := NewWriter(&buf)
			entry.EncodeError(w, Diagnostic{Message: "boom", Context: "at somewhere"})
			if err := w.Flush(); err != nil {
				t.Fatalf("flush: %v", err)
			}
			r := NewReader(&buf)
			_, failed, err := entry.DecodeReply(r)
			if err != nil {
				t.Fatalf("decode reply: %v", err)
			}
			if !failed {
				t.Fatalf("sentinel of %s not detected", def.TypeName())
			}
			text, err := r.ReadString()
			if err != nil {
				t.Fatalf("read diagnostic: %v", err)
			}
			d := ParseDiagnostic(text)
			if d.Message != "boom" || d.Context != "at somewhere" {
				t.Fatalf("unexpected diagnostic %+v", d)
			}
		})
	}
}

func TestSentinelValuesAreNotEncodable(t *testing.T) {
	codecs := DefaultCodecs()
	cases := []struct {
		def TypeDef
		v   interface{}
	}{
		{Byte, ByteError},
		{Int32, Int32Error},
		{Double, math.NaN()},
		{String, string(stringError)},
		{Handle, Ref(HandleError)},
		{Point, XYZ{math.NaN(), 0, 0}},
		{Array(Int32), []int32{1, Int32Error}},
		{Int32, 5},
		{Array(Int32), []int64{1}},
		{String, nil},
	}
	for _, c := range cases {
		entry, err := codecs.Lookup(c.def)
		if err != nil {
			t.Fatalf("lookup: %v", err)
		}
		var buf bytes.Buffer
		w := NewWriter(&buf)
		err = entry.Encode(w, c.v)
		if !errors.Is(err, ErrUnrepresentable) {
			t.Fatalf("%s %#v: expected ErrUnrepresentable, got %v", c.def.TypeName(), c.v, err)
		}
		w.Flush()
		if buf.Len() != 0 {
			t.Fatalf("%s %#v: failed encoding wrote %d bytes", c.def.TypeName(), c.v, buf.Len())
		}
	}
}

func TestMinusOneIsAnOrdinaryInt32(t *testing.T) {
	codecs := DefaultCodecs()
	entry, _ := codecs.Lookup(Int32)
	b, err := EncodeBuffered(entry, int32(-1))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	v, failed, err := entry.DecodeReply(NewReader(bytes.NewReader(b)))
	if err != nil || failed || v.(int32) != -1 {
		t.Fatalf("got v=%v failed=%v err=%v", v, failed, err)
	}
}

func TestHandleZeroIsNull(t *testing.T) {
	entry, _ := DefaultCodecs().Lookup(Handle)
	v, err := entry.Decode(NewReader(bytes.NewReader([]byte{0, 0, 0, 0})))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !v.(Ref).IsNull() {
		t.Fatalf("expected null handle, got %v", v)
	}
}

func TestLookupUnknownType(t *testing.T) {
	codecs := DefaultCodecs()
	if _, err := codecs.Lookup(ScalarDef{Kind(99)}); !errors.Is(err, ErrUnknownType) {
		t.Fatalf("expected ErrUnknownType, got %v", err)
	}
	if _, err := codecs.Lookup(Array(ScalarDef{Kind(99)})); !errors.Is(err, ErrUnknownType) {
		t.Fatalf("expected ErrUnknownType for array, got %v", err)
	}
	if _, err := codecs.Lookup(Array(Void)); !errors.Is(err, ErrUnknownType) {
		t.Fatalf("expected ErrUnknownType for array<void>, got %v", err)
	}
	if _, err := codecs.Lookup(nil); !errors.Is(err, ErrUnknownType) {
		t.Fatalf("expected ErrUnknownType for nil, got %v", err)
	}
}

func TestRegisterDuplicate(t *testing.T) {
	codecs := DefaultCodecs()
	entry, _ := codecs.Lookup(Int32)
	if err := codecs.Register(entry); !errors.Is(err, ErrCodecAlreadyExist) {
		t.Fatalf("expected ErrCodecAlreadyExist, got %v", err)
	}
}

func TestTruncatedValue(t *testing.T) {
	codecs := DefaultCodecs()

	entry, _ := codecs.Lookup(Double)
	_, err := entry.Decode(NewReader(bytes.NewReader([]byte{1, 2, 3})))
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Fatalf("expected ErrUnexpectedEOF, got %v", err)
	}

	entry, _ = codecs.Lookup(Array(Int32))
	_, err = entry.Decode(NewReader(bytes.NewReader([]byte{2, 0, 0, 0, 1, 0, 0, 0})))
	if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Fatalf("expected EOF on short array, got %v", err)
	}
}

func TestMalformedLength(t *testing.T) {
	codecs := DefaultCodecs()

	entry, _ := codecs.Lookup(Array(Int32))
	_, err := entry.Decode(NewReader(bytes.NewReader([]byte{0xFE, 0xFF, 0xFF, 0xFF})))
	if !errors.Is(err, ErrInvalidLength) {
		t.Fatalf("expected ErrInvalidLength for negative count, got %v", err)
	}

	var buf bytes.Buffer
	w := NewWriter(&buf)
	w.Write([]byte{0xFF, 0xFF, 0xFF, 0xFF, 0x7F})
	w.Flush()
	_, err = NewReader(&buf).ReadString()
	if !errors.Is(err, ErrInvalidLength) {
		t.Fatalf("expected ErrInvalidLength for huge string, got %v", err)
	}
}

func allocatedBy(fn func()) uint64 {
	var before, after runtime.MemStats
	runtime.GC()
	runtime.ReadMemStats(&before)
	fn()
	runtime.ReadMemStats(&after)
	return after.TotalAlloc - before.TotalAlloc
}

func TestDeclaredLengthDoesNotPreallocate(t *testing.T) {
	codecs := DefaultCodecs()
	entry, err := codecs.Lookup(Array(Point))
	if err != nil {
		t.Fatal(err)
	}

	var header bytes.Buffer
	w := NewWriter(&header)
	w.WriteInt32(MaxArrayLen)
	w.WriteDouble(1)
	w.Flush()

	var decodeErr error
	n := allocatedBy(func() {
		_, decodeErr = entry.Decode(NewReader(bytes.NewReader(header.Bytes())))
	})
	if decodeErr == nil {
		t.Fatal("short array body accepted")
	}
	if n > 1<<20 {
		t.Fatalf("array header alone allocated %d bytes", n)
	}

	header.Reset()
	w = NewWriter(&header)
	w.Write([]byte{0x80, 0x80, 0x80, 0x08}) // uvarint 16 MiB
	w.Write([]byte("abc"))
	w.Flush()

	n = allocatedBy(func() {
		_, decodeErr = NewReader(bytes.NewReader(header.Bytes())).ReadString()
	})
	if !errors.Is(decodeErr, io.ErrUnexpectedEOF) {
		t.Fatalf("expected ErrUnexpectedEOF, got %v", decodeErr)
	}
	if n > 1<<20 {
		t.Fatalf("string header alone allocated %d bytes", n)
	}
}

func TestDiagnosticKeepsMessageOnOneLine(t *testing.T) {
	d := Diagnostic{Message: "wall failed:\nbase level missing", Context: "at CreateWall\nat burst"}
	got := ParseDiagnostic(d.String())
	if got.Message != "wall failed: base level missing" {
		t.Fatalf("message %q", got.Message)
	}
	if got.Context != d.Context {
		t.Fatalf("context %q", got.Context)
	}

	got = ParseDiagnostic(NewDiagnostic(errors.New("line one\nline two")).String())
	if got.Message != "line one line two" || got.Context == "" {
		t.Fatalf("diagnostic %+v", got)
	}
}
