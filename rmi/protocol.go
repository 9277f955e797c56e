/*
 * Copyright (c) 2023 Zander Schwid & Co. LLC.
 * SPDX-License-Identifier: BUSL-1.1
 */

package rmi

import (
	"github.com/codeallergy/value"
)

// session wire constants
const (
	BootstrapOp   = byte(0)
	EndOfBurst    = byte(255)
	MaxOperations = 255
	NotFound      = int32(-1)
)

// control channel messages

type MessageType int64

const (
	StatsRequest MessageType = iota
	StatsResponse
	ProceduresRequest
	ProceduresResponse
	ErrorResponse
)

func (t MessageType) Long() value.Number {
	return value.Long(int64(t))
}

var Magic = "kRMI"
var Version = 1.0

var MessageTypeField = "t"
var MagicField = "m"
var VersionField = "v"
var ErrorField = "err"
var ProceduresField = "procs"

var SessionsField = "sessions"
var ActiveField = "active"
var BurstsField = "bursts"
var OperationsField = "ops"
var FaultsField = "faults"
var ProtocolErrorsField = "proto_err"

func newMessage(t MessageType) value.Map {
	return value.EmptyMap().
		Put(MagicField, value.Utf8(Magic)).
		Put(VersionField, value.Double(Version)).
		Put(MessageTypeField, t.Long())
}

func NewStatsRequest() value.Map {
	return newMessage(StatsRequest)
}

func NewStatsResponse(stats map[string]int64) value.Map {
	msg := newMessage(StatsResponse)
	for k, v := range stats {
		msg = msg.Put(k, value.Long(v))
	}
	return msg
}

func NewProceduresRequest() value.Map {
	return newMessage(ProceduresRequest)
}

// NewProceduresResponse carries procedure name to parameter count.
func NewProceduresResponse(arity map[string]int) value.Map {
	procs := value.EmptyMap()
	for name, n := range arity {
		procs = procs.Put(name, value.Long(int64(n)))
	}
	return newMessage(ProceduresResponse).Put(ProceduresField, procs)
}

func NewErrorResponse(err error) value.Map {
	return newMessage(ErrorResponse).Put(ErrorField, value.Utf8(err.Error()))
}

func MessageTypeOf(msg value.Map) (MessageType, bool) {
	t := msg.GetNumber(MessageTypeField)
	if t == nil {
		return 0, false
	}
	return MessageType(t.Long()), true
}

func ValidMagicAndVersion(req value.Map) bool {
	magic := req.GetString(MagicField)
	if magic == nil || magic.String() != Magic {
		return false
	}
	version := req.GetNumber(VersionField)
	if version == nil || version.Double() > Version {
		return false
	}
	return true
}
