/*
 * Copyright (c) 2023 Zander Schwid & Co. LLC.
 * SPDX-License-Identifier: BUSL-1.1
 */

package rmiclient

import (
	"net"

	"github.com/codeallergy/value"
	"github.com/codeallergy/value-rmi/rmi"
	"github.com/pkg/errors"
)

var statsFields = []string{
	rmi.SessionsField,
	rmi.ActiveField,
	rmi.BurstsField,
	rmi.OperationsField,
	rmi.FaultsField,
	rmi.ProtocolErrorsField,
}

type ControlClient struct {
	conn *rmi.ControlConn
}

func DialControl(address string) (*ControlClient, error) {
	conn, err := net.DialTimeout("tcp", address, DefaultTimeout)
	if err != nil {
		return nil, err
	}
	return &ControlClient{conn: rmi.NewControlConn(conn, DefaultTimeout, DefaultTimeout)}, nil
}

func (t *ControlClient) request(req value.Map, expected rmi.MessageType) (value.Map, error) {
	if err := t.conn.WriteMessage(req); err != nil {
		return nil, err
	}
	msgType, resp, err := t.conn.ReadMessage()
	if err != nil {
		return nil, err
	}
	if msgType == rmi.ErrorResponse {
		if e := resp.GetString(rmi.ErrorField); e != nil {
			return nil, errors.New(e.String())
		}
		return nil, ErrNoResponse
	}
	if msgType != expected {
		return nil, errors.Wrapf(ErrUnsupportedMessageType, "%d", msgType)
	}
	return resp, nil
}

func (t *ControlClient) Stats() (map[string]int64, error) {
	resp, err := t.request(rmi.NewStatsRequest(), rmi.StatsResponse)
	if err != nil {
		return nil, err
	}
	stats := make(map[string]int64, len(statsFields))
	for _, field := range statsFields {
		if n := resp.GetNumber(field); n != nil {
			stats[field] = n.Long()
		}
	}
	return stats, nil
}

// Procedures returns a map of procedure name to parameter count.
func (t *ControlClient) Procedures() (value.Map, error) {
	resp, err := t.request(rmi.NewProceduresRequest(), rmi.ProceduresResponse)
	if err != nil {
		return nil, err
	}
	procs, ok := resp.Get(rmi.ProceduresField)
	if !ok || procs.Kind() != value.MAP {
		return nil, ErrNoResponse
	}
	return procs.(value.Map), nil
}

func (t *ControlClient) Close() error {
	return t.conn.Close()
}
