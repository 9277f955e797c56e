/*
 * Copyright (c) 2023 Zander Schwid & Co. LLC.
 * SPDX-License-Identifier: BUSL-1.1
 */

package rmi

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"io"
	"math"

	"github.com/pkg/errors"
)

var order = binary.LittleEndian

var MaxStringLen = uint64(16 << 20)
var MaxArrayLen = int32(1 << 24)

// decodeChunk bounds what a declared length may allocate before the data arrives.
const decodeChunk = 4096

type Reader struct {
	r   *bufio.Reader
	buf [8]byte
}

func NewReader(r io.Reader) *Reader {
	if br, ok := r.(*bufio.Reader); ok {
		return &Reader{r: br}
	}
	return &Reader{r: bufio.NewReader(r)}
}

// Buffered returns the number of bytes already read from the stream but not consumed.
func (t *Reader) Buffered() int {
	return t.r.Buffered()
}

func (t *Reader) ReadByte() (byte, error) {
	return t.r.ReadByte()
}

func (t *Reader) ReadInt32() (int32, error) {
	if _, err := io.ReadFull(t.r, t.buf[:4]); err != nil {
		return 0, err
	}
	return int32(order.Uint32(t.buf[:4])), nil
}

func (t *Reader) ReadDouble() (float64, error) {
	if _, err := io.ReadFull(t.r, t.buf[:8]); err != nil {
		return 0, err
	}
	return math.Float64frombits(order.Uint64(t.buf[:8])), nil
}

// ReadBytes reads a uvarint length prefix followed by that many bytes.
func (t *Reader) ReadBytes() ([]byte, error) {
	n, err := binary.ReadUvarint(t.r)
	if err != nil {
		if err == io.EOF {
			return nil, err
		}
		return nil, errors.Wrap(ErrInvalidLength, err.Error())
	}
	if n > MaxStringLen {
		return nil, errors.Wrapf(ErrInvalidLength, "string of %d bytes", n)
	}
	if n <= decodeChunk {
		b := make([]byte, n)
		if _, err := io.ReadFull(t.r, b); err != nil {
			if err == io.EOF {
				err = io.ErrUnexpectedEOF
			}
			return nil, err
		}
		return b, nil
	}
	var buf bytes.Buffer
	buf.Grow(decodeChunk)
	copied, err := io.CopyN(&buf, t.r, int64(n))
	if copied < int64(n) {
		if err == nil || err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return nil, err
	}
	return buf.Bytes(), nil
}

func (t *Reader) ReadString() (string, error) {
	b, err := t.ReadBytes()
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// ReadLength reads an int32 element count and rejects negative or oversized values.
func (t *Reader) ReadLength() (int, error) {
	n, err := t.ReadInt32()
	if err != nil {
		return 0, err
	}
	if n < 0 || n > MaxArrayLen {
		return 0, errors.Wrapf(ErrInvalidLength, "array of %d elements", n)
	}
	return int(n), nil
}

// Writer keeps the first error and ignores writes after it, check Err or Flush.
type Writer struct {
	w   *bufio.Writer
	buf [binary.MaxVarintLen64]byte
	err error
}

func NewWriter(w io.Writer) *Writer {
	if bw, ok := w.(*bufio.Writer); ok {
		return &Writer{w: bw}
	}
	return &Writer{w: bufio.NewWriter(w)}
}

func (t *Writer) Write(p []byte) (int, error) {
	if t.err != nil {
		return 0, t.err
	}
	n, err := t.w.Write(p)
	t.err = err
	return n, err
}

func (t *Writer) WriteUint8(b byte) {
	if t.err != nil {
		return
	}
	t.err = t.w.WriteByte(b)
}

func (t *Writer) WriteInt32(v int32) {
	order.PutUint32(t.buf[:4], uint32(v))
	t.Write(t.buf[:4])
}

func (t *Writer) WriteDouble(v float64) {
	order.PutUint64(t.buf[:8], math.Float64bits(v))
	t.Write(t.buf[:8])
}

func (t *Writer) WriteBytes(b []byte) {
	n := binary.PutUvarint(t.buf[:], uint64(len(b)))
	t.Write(t.buf[:n])
	t.Write(b)
}

func (t *Writer) WriteString(s string) {
	t.WriteBytes([]byte(s))
}

func (t *Writer) WriteDiagnostic(d Diagnostic) {
	t.WriteString(d.String())
}

func (t *Writer) Err() error {
	return t.err
}

func (t *Writer) Flush() error {
	if t.err != nil {
		return t.err
	}
	t.err = t.w.Flush()
	return t.err
}
