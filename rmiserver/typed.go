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

func typeOf[T any]() reflect.Type {
	return reflect.TypeOf((*T)(nil)).Elem()
}

func arg[T any](args []interface{}, i int) (T, error) {
	var zero T
	if i >= len(args) {
		return zero, errors.Errorf("missing argument %d", i)
	}
	v, ok := args[i].(T)
	if !ok {
		return zero, errors.Wrapf(ErrTypeMismatch, "argument %d is %T, expected %s", i, args[i], typeOf[T]())
	}
	return v, nil
}

func typed(p Procedure, result reflect.Type, params ...reflect.Type) Procedure {
	p.paramTypes = params
	if p.paramTypes == nil {
		p.paramTypes = []reflect.Type{}
	}
	p.resultType = result
	return p
}

func Func0[R any](name string, result rmi.TypeDef, fn func() (R, error)) Procedure {
	return typed(Procedure{
		Name:   name,
		Result: result,
		Invoke: func(args []interface{}) (interface{}, error) {
			return fn()
		},
	}, typeOf[R]())
}

func Func1[A, R any](name string, a, result rmi.TypeDef, fn func(A) (R, error)) Procedure {
	return typed(Procedure{
		Name:   name,
		Params: []rmi.TypeDef{a},
		Result: result,
		Invoke: func(args []interface{}) (interface{}, error) {
			x, err := arg[A](args, 0)
			if err != nil {
				return nil, err
			}
			return fn(x)
		},
	}, typeOf[R](), typeOf[A]())
}

func Func2[A, B, R any](name string, a, b, result rmi.TypeDef, fn func(A, B) (R, error)) Procedure {
	return typed(Procedure{
		Name:   name,
		Params: []rmi.TypeDef{a, b},
		Result: result,
		Invoke: func(args []interface{}) (interface{}, error) {
			x, err := arg[A](args, 0)
			if err != nil {
				return nil, err
			}
			y, err := arg[B](args, 1)
			if err != nil {
				return nil, err
			}
			return fn(x, y)
		},
	}, typeOf[R](), typeOf[A](), typeOf[B]())
}

func Func3[A, B, C, R any](name string, a, b, c, result rmi.TypeDef, fn func(A, B, C) (R, error)) Procedure {
	return typed(Procedure{
		Name:   name,
		Params: []rmi.TypeDef{a, b, c},
		Result: result,
		Invoke: func(args []interface{}) (interface{}, error) {
			x, err := arg[A](args, 0)
			if err != nil {
				return nil, err
			}
			y, err := arg[B](args, 1)
			if err != nil {
				return nil, err
			}
			z, err := arg[C](args, 2)
			if err != nil {
				return nil, err
			}
			return fn(x, y, z)
		},
	}, typeOf[R](), typeOf[A](), typeOf[B](), typeOf[C]())
}

func Action0(name string, fn func() error) Procedure {
	return typed(Procedure{
		Name:   name,
		Result: rmi.Void,
		Invoke: func(args []interface{}) (interface{}, error) {
			return nil, fn()
		},
	}, rmi.NoneType())
}

func Action1[A any](name string, a rmi.TypeDef, fn func(A) error) Procedure {
	return typed(Procedure{
		Name:   name,
		Params: []rmi.TypeDef{a},
		Result: rmi.Void,
		Invoke: func(args []interface{}) (interface{}, error) {
			x, err := arg[A](args, 0)
			if err != nil {
				return nil, err
			}
			return nil, fn(x)
		},
	}, rmi.NoneType(), typeOf[A]())
}

func Action2[A, B any](name string, a, b rmi.TypeDef, fn func(A, B) error) Procedure {
	return typed(Procedure{
		Name:   name,
		Params: []rmi.TypeDef{a, b},
		Result: rmi.Void,
		Invoke: func(args []interface{}) (interface{}, error) {
			x, err := arg[A](args, 0)
			if err != nil {
				return nil, err
			}
			y, err := arg[B](args, 1)
			if err != nil {
				return nil, err
			}
			return nil, fn(x, y)
		},
	}, rmi.NoneType(), typeOf[A](), typeOf[B]())
}

func Action3[A, B, C any](name string, a, b, c rmi.TypeDef, fn func(A, B, C) error) Procedure {
	return typed(Procedure{
		Name:   name,
		Params: []rmi.TypeDef{a, b, c},
		Result: rmi.Void,
		Invoke: func(args []interface{}) (interface{}, error) {
			x, err := arg[A](args, 0)
			if err != nil {
				return nil, err
			}
			y, err := arg[B](args, 1)
			if err != nil {
				return nil, err
			}
			z, err := arg[C](args, 2)
			if err != nil {
				return nil, err
			}
			return nil, fn(x, y, z)
		},
	}, rmi.NoneType(), typeOf[A](), typeOf[B](), typeOf[C]())
}
