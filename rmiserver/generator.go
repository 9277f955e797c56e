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

// Operation is a wrapped procedure bound to a channel. A returned error
// ends the session; domain faults are written in-band and never returned.
type Operation func(c *Channel) error

// Generate binds the codecs of p's parameters and result and wraps the
// invocation. Codec and Go type problems are reported here, before the
// operation can enter a table.
func Generate(codecs *rmi.CodecTable, p Procedure) (Operation, error) {
	params := make([]rmi.CodecEntry, len(p.Params))
	for i, def := range p.Params {
		entry, err := codecs.Lookup(def)
		if err != nil {
			return nil, errors.Wrapf(err, "%s parameter %d", p.Name, i)
		}
		if entry.Def == rmi.Void {
			return nil, errors.Wrapf(rmi.ErrUnknownType, "%s parameter %d is void", p.Name, i)
		}
		params[i] = entry
	}

	resultDef := p.Result
	if resultDef == nil {
		resultDef = rmi.Void
	}
	result, err := codecs.Lookup(resultDef)
	if err != nil {
		return nil, errors.Wrapf(err, "%s result", p.Name)
	}

	if err := rmi.VerifyArgs(params, p.paramTypes); err != nil {
		return nil, errors.Wrapf(ErrTypeMismatch, "%s: %v", p.Name, err)
	}
	if !rmi.Verify(result, p.resultType) {
		return nil, errors.Wrapf(ErrTypeMismatch, "%s: result declared %s, function returns %s", p.Name, result.Def.TypeName(), p.resultType)
	}

	return func(c *Channel) error {
		args := make([]interface{}, len(params))
		for i, entry := range params {
			v, err := entry.Decode(c.r)
			if err != nil {
				return errors.Wrapf(err, "%s argument %d", p.Name, i)
			}
			args[i] = v
		}

		reply, fault := invoke(p, result, args)
		c.stats.operation(p.Name, fault != nil)
		if fault != nil {
			c.log.Debug("operation fault", zap.String("procedure", p.Name), zap.Error(fault))
			result.EncodeError(c.w, rmi.NewDiagnostic(fault))
			return c.w.Err()
		}
		c.w.Write(reply)
		return c.w.Err()
	}, nil
}

// invoke runs the procedure inside the fault boundary and encodes its
// result off-stream.
func invoke(p Procedure, result rmi.CodecEntry, args []interface{}) (reply []byte, fault error) {
	defer func() {
		if r := recover(); r != nil {
			reply, fault = nil, errors.Errorf("%s panicked: %v", p.Name, r)
		}
	}()
	v, err := p.Invoke(args)
	if err != nil {
		return nil, errors.Wrap(err, p.Name)
	}
	reply, err = rmi.EncodeBuffered(result, v)
	if err != nil {
		return nil, errors.Wrapf(err, "%s result", p.Name)
	}
	return reply, nil
}
