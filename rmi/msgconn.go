/*
 * Copyright (c) 2023 Zander Schwid & Co. LLC.
 * SPDX-License-Identifier: BUSL-1.1
 */

package rmi

import (
	"encoding/binary"
	"net"
	"time"

	"github.com/codeallergy/value"
	"github.com/pkg/errors"
	"github.com/smallnest/goframe"
)

// control frames are a 4 byte big-endian length followed by a msgpack map
var controlEncoder = goframe.EncoderConfig{
	ByteOrder:                       binary.BigEndian,
	LengthFieldLength:               4,
	LengthAdjustment:                0,
	LengthIncludesLengthFieldLength: false,
}

var controlDecoder = goframe.DecoderConfig{
	ByteOrder:           binary.BigEndian,
	LengthFieldOffset:   0,
	LengthFieldLength:   4,
	LengthAdjustment:    0,
	InitialBytesToStrip: 4,
}

// ControlConn exchanges control messages. Every message read is checked
// for magic, version and type before it is returned.
type ControlConn struct {
	frames       goframe.FrameConn
	readTimeout  time.Duration
	writeTimeout time.Duration
}

// NewControlConn wraps conn. A zero timeout leaves that direction unbounded.
func NewControlConn(conn net.Conn, readTimeout, writeTimeout time.Duration) *ControlConn {
	return &ControlConn{
		frames:       goframe.NewLengthFieldBasedFrameConn(controlEncoder, controlDecoder, conn),
		readTimeout:  readTimeout,
		writeTimeout: writeTimeout,
	}
}

// ReadMessage returns ErrInvalidMessage for a well framed message that is
// not a control message; the connection stays usable after it.
func (t *ControlConn) ReadMessage() (MessageType, value.Map, error) {
	if t.readTimeout > 0 {
		if err := t.frames.Conn().SetReadDeadline(time.Now().Add(t.readTimeout)); err != nil {
			return 0, nil, err
		}
	}
	frame, err := t.frames.ReadFrame()
	if err != nil {
		return 0, nil, err
	}
	v, err := value.Unpack(frame, true)
	if err != nil {
		return 0, nil, errors.Wrapf(ErrInvalidMessage, "msgpack unpack, %v", err)
	}
	msg, ok := v.(value.Map)
	if !ok {
		return 0, nil, errors.Wrap(ErrInvalidMessage, "expected msgpack table")
	}
	if !ValidMagicAndVersion(msg) {
		return 0, nil, errors.Wrap(ErrInvalidMessage, "magic or version")
	}
	msgType, ok := MessageTypeOf(msg)
	if !ok {
		return 0, nil, errors.Wrap(ErrInvalidMessage, "message type not found")
	}
	return msgType, msg, nil
}

func (t *ControlConn) WriteMessage(msg value.Map) error {
	frame, err := value.Pack(msg)
	if err != nil {
		return errors.Errorf("msgpack pack, %v", err)
	}
	if t.writeTimeout > 0 {
		if err := t.frames.Conn().SetWriteDeadline(time.Now().Add(t.writeTimeout)); err != nil {
			return err
		}
	}
	return t.frames.WriteFrame(frame)
}

func (t *ControlConn) Close() error {
	return t.frames.Close()
}
