/*
 * Copyright (c) 2023 Zander Schwid & Co. LLC.
 * SPDX-License-Identifier: BUSL-1.1
 */

package rmiserver

import (
	"reflect"

	"github.com/codeallergy/value-rmi/rmi"
	"github.com/pkg/errors"
)

var errorType = reflect.TypeOf((*error)(nil)).Elem()

// ReflectService exposes the exported methods of a value. Parameter and
// result types are mapped with rmi.DefOf when a method is resolved, so a
// method with an unsupported signature only fails for the client asking
// for it. Results may be (), (error), (T) or (T, error).
type ReflectService struct {
	rcvr reflect.Value
	typ  reflect.Type
}

func NewReflectService(rcvr interface{}) *ReflectService {
	return &ReflectService{
		rcvr: reflect.ValueOf(rcvr),
		typ:  reflect.TypeOf(rcvr),
	}
}

func (t *ReflectService) Resolve(name string) (Procedure, error) {
	m, ok := t.typ.MethodByName(name)
	if !ok {
		return Procedure{}, errors.Wrap(ErrUnknownProcedure, name)
	}
	return t.procedure(m)
}

func (t *ReflectService) Procedures() []Procedure {
	var list []Procedure
	for i := 0; i < t.typ.NumMethod(); i++ {
		if p, err := t.procedure(t.typ.Method(i)); err == nil {
			list = append(list, p)
		}
	}
	return list
}

func (t *ReflectService) procedure(m reflect.Method) (Procedure, error) {
	mt := m.Type
	if mt.IsVariadic() {
		return Procedure{}, errors.Wrapf(rmi.ErrUnknownType, "%s is variadic", m.Name)
	}

	// first input is the receiver
	n := mt.NumIn() - 1
	params := make([]rmi.TypeDef, n)
	paramTypes := make([]reflect.Type, n)
	for i := 0; i < n; i++ {
		in := mt.In(i + 1)
		def, err := rmi.DefOf(in)
		if err != nil {
			return Procedure{}, errors.Wrapf(err, "%s parameter %d", m.Name, i)
		}
		params[i] = def
		paramTypes[i] = in
	}

	result := rmi.TypeDef(rmi.Void)
	resultType := rmi.NoneType()
	errIndex := -1
	switch {
	case mt.NumOut() == 0:
	case mt.NumOut() == 1 && mt.Out(0) == errorType:
		errIndex = 0
	case mt.NumOut() == 1 || (mt.NumOut() == 2 && mt.Out(1) == errorType):
		def, err := rmi.DefOf(mt.Out(0))
		if err != nil {
			return Procedure{}, errors.Wrapf(err, "%s result", m.Name)
		}
		result, resultType = def, mt.Out(0)
		if mt.NumOut() == 2 {
			errIndex = 1
		}
	default:
		return Procedure{}, errors.Wrapf(rmi.ErrUnknownType, "%s has unsupported results", m.Name)
	}

	fn := t.rcvr.Method(m.Index)
	hasValue := resultType != rmi.NoneType()

	invoke := func(args []interface{}) (interface{}, error) {
		in := make([]reflect.Value, len(args))
		for i, a := range args {
			in[i] = reflect.ValueOf(a)
		}
		out := fn.Call(in)
		if errIndex >= 0 {
			if e := out[errIndex].Interface(); e != nil {
				return nil, e.(error)
			}
		}
		if hasValue {
			return out[0].Interface(), nil
		}
		return nil, nil
	}

	return typed(Procedure{
		Name:   m.Name,
		Params: params,
		Result: result,
		Invoke: invoke,
	}, resultType, paramTypes...), nil
}
