/*
 * Copyright (c) 2023 Zander Schwid & Co. LLC.
 * SPDX-License-Identifier: BUSL-1.1
 */

package rmi

import (
	"bytes"
	"math"
	"reflect"
	"sync"
	"unicode/utf8"

	"github.com/pkg/errors"
)

type Decoder func(r *Reader) (interface{}, error)
type Encoder func(w *Writer, v interface{}) error
type ErrorEncoder func(w *Writer, d Diagnostic)

// ReplyDecoder reads a result written either by Encoder or by ErrorEncoder.
// On failed it does not consume the diagnostic that follows the sentinel.
type ReplyDecoder func(r *Reader) (v interface{}, failed bool, err error)

// CodecEntry is the wire contract of a single type. Encode must not write
// anything when it returns an error.
type CodecEntry struct {
	Def         TypeDef
	GoType      reflect.Type
	Decode      Decoder
	Encode      Encoder
	EncodeError ErrorEncoder
	DecodeReply ReplyDecoder
}

type CodecTable struct {
	mu      sync.RWMutex
	entries map[string]CodecEntry
}

func NewCodecTable() *CodecTable {
	return &CodecTable{entries: make(map[string]CodecEntry)}
}

func (t *CodecTable) Register(entry CodecEntry) error {
	name := entry.Def.TypeName()
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.entries[name]; ok {
		return errors.Wrap(ErrCodecAlreadyExist, name)
	}
	t.entries[name] = entry
	return nil
}

// Lookup returns the codec of def. Arrays of registered types are derived
// from their element codec unless registered explicitly.
func (t *CodecTable) Lookup(def TypeDef) (CodecEntry, error) {
	if def == nil {
		return CodecEntry{}, errors.Wrap(ErrUnknownType, "nil type")
	}
	t.mu.RLock()
	entry, ok := t.entries[def.TypeName()]
	t.mu.RUnlock()
	if ok {
		return entry, nil
	}
	if arr, ok := def.(ArrayDef); ok {
		elem, err := t.Lookup(arr.Elem)
		if err != nil {
			return CodecEntry{}, err
		}
		if elem.Def == Void {
			return CodecEntry{}, errors.Wrap(ErrUnknownType, arr.TypeName())
		}
		return arrayCodec(arr, elem), nil
	}
	return CodecEntry{}, errors.Wrap(ErrUnknownType, def.TypeName())
}

const (
	VoidOk        = byte(0)
	VoidError     = byte(127)
	BoolTrue      = byte(1)
	BoolFalse     = byte(2)
	BoolError     = byte(127)
	ByteError     = byte(255)
	Int32Error    = int32(math.MinInt32)
	HandleError   = int32(-1)
	ArrayError    = int32(-1)
	StringErrorCh = byte(0xFF)
)

var stringError = []byte{StringErrorCh}

// EncodeBuffered runs encode against a scratch buffer so a failed encoding
// leaves nothing behind.
func EncodeBuffered(entry CodecEntry, v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	if err := entry.Encode(w, v); err != nil {
		return nil, err
	}
	if err := w.Flush(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func DefaultCodecs() *CodecTable {
	t := NewCodecTable()
	for _, entry := range []CodecEntry{
		voidCodec(),
		byteCodec(),
		boolCodec(),
		int32Codec(),
		doubleCodec(),
		stringCodec(),
		handleCodec(),
		pointCodec(),
	} {
		if err := t.Register(entry); err != nil {
			panic(err)
		}
	}
	return t
}

type none struct{}

var noneType = reflect.TypeOf(none{})

func voidCodec() CodecEntry {
	return CodecEntry{
		Def:    Void,
		GoType: noneType,
		Decode: func(r *Reader) (interface{}, error) {
			_, err := r.ReadByte()
			return nil, err
		},
		Encode: func(w *Writer, v interface{}) error {
			w.WriteUint8(VoidOk)
			return nil
		},
		EncodeError: func(w *Writer, d Diagnostic) {
			w.WriteUint8(VoidError)
			w.WriteDiagnostic(d)
		},
		DecodeReply: func(r *Reader) (interface{}, bool, error) {
			b, err := r.ReadByte()
			if err != nil {
				return nil, false, err
			}
			return nil, b == VoidError, nil
		},
	}
}

func byteCodec() CodecEntry {
	return CodecEntry{
		Def:    Byte,
		GoType: reflect.TypeOf(byte(0)),
		Decode: func(r *Reader) (interface{}, error) {
			return r.ReadByte()
		},
		Encode: func(w *Writer, v interface{}) error {
			b, ok := v.(byte)
			if !ok || b == ByteError {
				return unrepresentable(Byte, v)
			}
			w.WriteUint8(b)
			return nil
		},
		EncodeError: func(w *Writer, d Diagnostic) {
			w.WriteUint8(ByteError)
			w.WriteDiagnostic(d)
		},
		DecodeReply: func(r *Reader) (interface{}, bool, error) {
			b, err := r.ReadByte()
			if err != nil {
				return nil, false, err
			}
			return b, b == ByteError, nil
		},
	}
}

func boolCodec() CodecEntry {
	return CodecEntry{
		Def:    Bool,
		GoType: reflect.TypeOf(false),
		Decode: func(r *Reader) (interface{}, error) {
			b, err := r.ReadByte()
			return b == BoolTrue, err
		},
		Encode: func(w *Writer, v interface{}) error {
			b, ok := v.(bool)
			if !ok {
				return unrepresentable(Bool, v)
			}
			if b {
				w.WriteUint8(BoolTrue)
			} else {
				w.WriteUint8(BoolFalse)
			}
			return nil
		},
		EncodeError: func(w *Writer, d Diagnostic) {
			w.WriteUint8(BoolError)
			w.WriteDiagnostic(d)
		},
		DecodeReply: func(r *Reader) (interface{}, bool, error) {
			b, err := r.ReadByte()
			if err != nil {
				return nil, false, err
			}
			if b == BoolError {
				return nil, true, nil
			}
			return b == BoolTrue, false, nil
		},
	}
}

func int32Codec() CodecEntry {
	return CodecEntry{
		Def:    Int32,
		GoType: reflect.TypeOf(int32(0)),
		Decode: func(r *Reader) (interface{}, error) {
			return r.ReadInt32()
		},
		Encode: func(w *Writer, v interface{}) error {
			i, ok := v.(int32)
			if !ok || i == Int32Error {
				return unrepresentable(Int32, v)
			}
			w.WriteInt32(i)
			return nil
		},
		EncodeError: func(w *Writer, d Diagnostic) {
			w.WriteInt32(Int32Error)
			w.WriteDiagnostic(d)
		},
		DecodeReply: func(r *Reader) (interface{}, bool, error) {
			i, err := r.ReadInt32()
			if err != nil {
				return nil, false, err
			}
			if i == Int32Error {
				return nil, true, nil
			}
			return i, false, nil
		},
	}
}

func doubleCodec() CodecEntry {
	return CodecEntry{
		Def:    Double,
		GoType: reflect.TypeOf(float64(0)),
		Decode: func(r *Reader) (interface{}, error) {
			return r.ReadDouble()
		},
		Encode: func(w *Writer, v interface{}) error {
			d, ok := v.(float64)
			if !ok || math.IsNaN(d) {
				return unrepresentable(Double, v)
			}
			w.WriteDouble(d)
			return nil
		},
		EncodeError: func(w *Writer, d Diagnostic) {
			w.WriteDouble(math.NaN())
			w.WriteDiagnostic(d)
		},
		DecodeReply: func(r *Reader) (interface{}, bool, error) {
			d, err := r.ReadDouble()
			if err != nil {
				return nil, false, err
			}
			if math.IsNaN(d) {
				return nil, true, nil
			}
			return d, false, nil
		},
	}
}

// string sentinel is the one byte string 0xFF, never valid UTF-8
func stringCodec() CodecEntry {
	return CodecEntry{
		Def:    String,
		GoType: reflect.TypeOf(""),
		Decode: func(r *Reader) (interface{}, error) {
			return r.ReadString()
		},
		Encode: func(w *Writer, v interface{}) error {
			s, ok := v.(string)
			if !ok || !utf8.ValidString(s) {
				return unrepresentable(String, v)
			}
			w.WriteString(s)
			return nil
		},
		EncodeError: func(w *Writer, d Diagnostic) {
			w.WriteBytes(stringError)
			w.WriteDiagnostic(d)
		},
		DecodeReply: func(r *Reader) (interface{}, bool, error) {
			b, err := r.ReadBytes()
			if err != nil {
				return nil, false, err
			}
			if bytes.Equal(b, stringError) {
				return nil, true, nil
			}
			return string(b), false, nil
		},
	}
}

func handleCodec() CodecEntry {
	return CodecEntry{
		Def:    Handle,
		GoType: reflect.TypeOf(NullRef),
		Decode: func(r *Reader) (interface{}, error) {
			i, err := r.ReadInt32()
			return Ref(i), err
		},
		Encode: func(w *Writer, v interface{}) error {
			ref, ok := v.(Ref)
			if !ok || int32(ref) == HandleError {
				return unrepresentable(Handle, v)
			}
			w.WriteInt32(int32(ref))
			return nil
		},
		EncodeError: func(w *Writer, d Diagnostic) {
			w.WriteInt32(HandleError)
			w.WriteDiagnostic(d)
		},
		DecodeReply: func(r *Reader) (interface{}, bool, error) {
			i, err := r.ReadInt32()
			if err != nil {
				return nil, false, err
			}
			if i == HandleError {
				return nil, true, nil
			}
			return Ref(i), false, nil
		},
	}
}

// point sentinel is a single NaN in place of X
func pointCodec() CodecEntry {
	return CodecEntry{
		Def:    Point,
		GoType: reflect.TypeOf(XYZ{}),
		Decode: func(r *Reader) (interface{}, error) {
			var p XYZ
			var err error
			if p.X, err = r.ReadDouble(); err != nil {
				return nil, err
			}
			if p.Y, err = r.ReadDouble(); err != nil {
				return nil, err
			}
			if p.Z, err = r.ReadDouble(); err != nil {
				return nil, err
			}
			return p, nil
		},
		Encode: func(w *Writer, v interface{}) error {
			p, ok := v.(XYZ)
			if !ok || math.IsNaN(p.X) || math.IsNaN(p.Y) || math.IsNaN(p.Z) {
				return unrepresentable(Point, v)
			}
			w.WriteDouble(p.X)
			w.WriteDouble(p.Y)
			w.WriteDouble(p.Z)
			return nil
		},
		EncodeError: func(w *Writer, d Diagnostic) {
			w.WriteDouble(math.NaN())
			w.WriteDiagnostic(d)
		},
		DecodeReply: func(r *Reader) (interface{}, bool, error) {
			x, err := r.ReadDouble()
			if err != nil {
				return nil, false, err
			}
			if math.IsNaN(x) {
				return nil, true, nil
			}
			p := XYZ{X: x}
			if p.Y, err = r.ReadDouble(); err != nil {
				return nil, false, err
			}
			if p.Z, err = r.ReadDouble(); err != nil {
				return nil, false, err
			}
			return p, false, nil
		},
	}
}

// arrayCodec encodes a slice as an int32 count followed by its elements.
func arrayCodec(def ArrayDef, elem CodecEntry) CodecEntry {
	sliceType := reflect.SliceOf(elem.GoType)

	// the declared count is untrusted, capacity grows with decoded elements
	decodeElems := func(r *Reader, n int) (interface{}, error) {
		out := reflect.MakeSlice(sliceType, 0, min(n, decodeChunk))
		for i := 0; i < n; i++ {
			v, err := elem.Decode(r)
			if err != nil {
				return nil, errors.Wrapf(err, "%s element %d", def.TypeName(), i)
			}
			out = reflect.Append(out, reflect.ValueOf(v))
		}
		return out.Interface(), nil
	}

	return CodecEntry{
		Def:    def,
		GoType: sliceType,
		Decode: func(r *Reader) (interface{}, error) {
			n, err := r.ReadLength()
			if err != nil {
				return nil, err
			}
			return decodeElems(r, n)
		},
		Encode: func(w *Writer, v interface{}) error {
			rv := reflect.ValueOf(v)
			if !rv.IsValid() || rv.Type() != sliceType || rv.Len() > int(MaxArrayLen) {
				return unrepresentable(def, v)
			}
			var buf bytes.Buffer
			ew := NewWriter(&buf)
			for i := 0; i < rv.Len(); i++ {
				if err := elem.Encode(ew, rv.Index(i).Interface()); err != nil {
					return errors.Wrapf(err, "%s element %d", def.TypeName(), i)
				}
			}
			if err := ew.Flush(); err != nil {
				return err
			}
			w.WriteInt32(int32(rv.Len()))
			w.Write(buf.Bytes())
			return nil
		},
		EncodeError: func(w *Writer, d Diagnostic) {
			w.WriteInt32(ArrayError)
			w.WriteDiagnostic(d)
		},
		DecodeReply: func(r *Reader) (interface{}, bool, error) {
			n, err := r.ReadInt32()
			if err != nil {
				return nil, false, err
			}
			if n == ArrayError {
				return nil, true, nil
			}
			if n < 0 || n > MaxArrayLen {
				return nil, false, errors.Wrapf(ErrInvalidLength, "array of %d elements", n)
			}
			v, err := decodeElems(r, int(n))
			return v, false, err
		},
	}
}
