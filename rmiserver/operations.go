/*
 * Copyright (c) 2023 Zander Schwid & Co. LLC.
 * SPDX-License-Identifier: BUSL-1.1
 */

package rmiserver

import (
	"github.com/codeallergy/value-rmi/rmi"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// OperationTable is append-only; an index stays valid for the life of
// the channel that owns the table. Index 0 is the bootstrap operation.
type OperationTable struct {
	ops   []Operation
	names []string
}

func newOperationTable() *OperationTable {
	t := &OperationTable{}
	t.ops = append(t.ops, provideOperation)
	t.names = append(t.names, "")
	return t
}

func (t *OperationTable) Len() int {
	return len(t.ops)
}

func (t *OperationTable) Get(index int) (Operation, bool) {
	if index < 0 || index >= len(t.ops) {
		return nil, false
	}
	return t.ops[index], true
}

// Name returns the procedure behind index, empty for the bootstrap.
func (t *OperationTable) Name(index int) string {
	if index < 0 || index >= len(t.names) {
		return ""
	}
	return t.names[index]
}

func (t *OperationTable) Add(name string, op Operation) (int, error) {
	if len(t.ops) >= rmi.MaxOperations {
		return -1, errors.Wrapf(ErrTableFull, "%d operations", len(t.ops))
	}
	t.ops = append(t.ops, op)
	t.names = append(t.names, name)
	return len(t.ops) - 1, nil
}

// provideOperation reads a procedure name, wraps the procedure and replies
// with its new index or rmi.NotFound. Every call appends a new entry, so
// providing the same name twice yields two working indices.
func provideOperation(c *Channel) error {
	name, err := c.r.ReadString()
	if err != nil {
		return errors.Wrap(err, "bootstrap name")
	}
	index, err := c.provide(name)
	c.stats.provide(err == nil)
	if err != nil {
		c.log.Info("procedure not provided", zap.String("procedure", name), zap.Error(err))
		c.w.WriteInt32(rmi.NotFound)
		return c.w.Err()
	}
	c.log.Debug("procedure provided", zap.String("procedure", name), zap.Int("index", index))
	c.w.WriteInt32(int32(index))
	return c.w.Err()
}

func (c *Channel) provide(name string) (int, error) {
	p, err := c.service.Resolve(name)
	if err != nil {
		return -1, err
	}
	op, err := Generate(c.codecs, p)
	if err != nil {
		return -1, err
	}
	return c.ops.Add(name, op)
}
