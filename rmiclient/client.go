/*
 * Copyright (c) 2023 Zander Schwid & Co. LLC.
 * SPDX-License-Identifier: BUSL-1.1
 */

package rmiclient

import (
	"net"
	"time"

	"github.com/codeallergy/value-rmi/rmi"
	"github.com/pkg/errors"
)

type rmiClient struct {
	conn    net.Conn
	r       *rmi.Reader
	w       *rmi.Writer
	codecs  *rmi.CodecTable
	timeout time.Duration
	indices map[string]int
	names   map[int]string
	broken  error
}

func NewClient(conn net.Conn) Client {
	return NewClientWithCodecs(conn, rmi.DefaultCodecs())
}

func NewClientWithCodecs(conn net.Conn, codecs *rmi.CodecTable) Client {
	return &rmiClient{
		conn:    conn,
		r:       rmi.NewReader(conn),
		w:       rmi.NewWriter(conn),
		codecs:  codecs,
		timeout: DefaultTimeout,
		indices: make(map[string]int),
		names:   make(map[int]string),
	}
}

func (t *rmiClient) SetTimeout(timeout time.Duration) {
	t.timeout = timeout
}

// fail closes the connection after an exchange broke off midway: the
// stream position is unknown, so no later reply could be trusted.
func (t *rmiClient) fail(err error) error {
	if t.broken == nil {
		t.broken = err
		t.conn.Close()
	}
	return err
}

func (t *rmiClient) deadline() error {
	if t.broken != nil {
		return errors.Wrap(ErrClientBroken, t.broken.Error())
	}
	if t.timeout <= 0 {
		return t.conn.SetDeadline(time.Time{})
	}
	return t.conn.SetDeadline(time.Now().Add(t.timeout))
}

func (t *rmiClient) Provide(name string) (int, error) {
	if index, ok := t.indices[name]; ok {
		return index, nil
	}
	index, err := t.ProvideOperation(name)
	if err != nil {
		return -1, err
	}
	t.indices[name] = index
	return index, nil
}

func (t *rmiClient) ProvideOperation(name string) (int, error) {
	if err := t.deadline(); err != nil {
		return -1, err
	}
	t.w.WriteUint8(rmi.BootstrapOp)
	t.w.WriteString(name)
	if err := t.w.Flush(); err != nil {
		return -1, t.fail(errors.Wrap(err, "send bootstrap"))
	}
	index, err := t.r.ReadInt32()
	if err != nil {
		return -1, t.fail(errors.Wrap(err, "read bootstrap reply"))
	}
	if index == rmi.NotFound {
		return -1, errors.Wrap(ErrProcedureNotFound, name)
	}
	if index < 1 || index >= rmi.MaxOperations {
		return -1, errors.Wrapf(ErrInvalidIndex, "%s got %d", name, index)
	}
	t.names[int(index)] = name
	return int(index), nil
}

func (t *rmiClient) Invoke(index int, params []rmi.TypeDef, result rmi.TypeDef, args ...interface{}) (interface{}, error) {
	if index < 1 || index >= rmi.MaxOperations {
		return nil, errors.Wrapf(ErrInvalidIndex, "%d", index)
	}
	if len(params) != len(args) {
		return nil, errors.Wrapf(ErrArgumentCount, "%d parameters, %d arguments", len(params), len(args))
	}
	if result == nil {
		result = rmi.Void
	}
	reply, err := t.codecs.Lookup(result)
	if err != nil {
		return nil, err
	}

	encoded := make([][]byte, len(args))
	for i, def := range params {
		entry, err := t.codecs.Lookup(def)
		if err != nil {
			return nil, err
		}
		if encoded[i], err = rmi.EncodeBuffered(entry, args[i]); err != nil {
			return nil, errors.Wrapf(err, "argument %d", i)
		}
	}

	if err := t.deadline(); err != nil {
		return nil, err
	}
	t.w.WriteUint8(byte(index))
	for _, b := range encoded {
		t.w.Write(b)
	}
	if err := t.w.Flush(); err != nil {
		return nil, t.fail(errors.Wrap(err, "send request"))
	}

	v, failed, err := reply.DecodeReply(t.r)
	if err != nil {
		return nil, t.fail(errors.Wrap(err, "read reply"))
	}
	if failed {
		text, err := t.r.ReadString()
		if err != nil {
			return nil, t.fail(errors.Wrap(err, "read diagnostic"))
		}
		return nil, &RemoteError{Procedure: t.names[index], Diagnostic: rmi.ParseDiagnostic(text)}
	}
	return v, nil
}

func (t *rmiClient) Call(name string, params []rmi.TypeDef, result rmi.TypeDef, args ...interface{}) (interface{}, error) {
	index, err := t.Provide(name)
	if err != nil {
		return nil, err
	}
	return t.Invoke(index, params, result, args...)
}

func (t *rmiClient) EndBurst() error {
	if err := t.deadline(); err != nil {
		return err
	}
	t.w.WriteUint8(rmi.EndOfBurst)
	if err := t.w.Flush(); err != nil {
		return t.fail(err)
	}
	return nil
}

func (t *rmiClient) Close() error {
	if t.broken != nil {
		return nil
	}
	t.broken = ErrClientClosed
	return t.conn.Close()
}
