/*
 * Copyright (c) 2023 Zander Schwid & Co. LLC.
 * SPDX-License-Identifier: BUSL-1.1
 */

package rmiserver

import (
	"reflect"

	"github.com/codeallergy/value-rmi/rmi"
)

// Invoker runs a procedure on decoded arguments. A returned error is a
// domain fault and is reported in-band.
type Invoker func(args []interface{}) (interface{}, error)

type Procedure struct {
	Name   string
	Params []rmi.TypeDef
	Result rmi.TypeDef
	Invoke Invoker

	// Go types of a typed procedure, nil when unknown
	paramTypes []reflect.Type
	resultType reflect.Type
}

// Service is the remotely callable surface of the host.
type Service interface {
	Resolve(name string) (Procedure, error)
}

// Lister is implemented by services that can enumerate their procedures.
type Lister interface {
	Procedures() []Procedure
}

// Scope is the transactional boundary around one burst of operations.
type Scope interface {
	Commit() error
}

type Host interface {
	Begin() (Scope, error)
}

type Server interface {
	Run() error

	Close() error

	Addr() string

	Stats() map[string]int64
}

type nopScope struct{}

func (nopScope) Commit() error { return nil }

type nopHost struct{}

func (nopHost) Begin() (Scope, error) { return nopScope{}, nil }

// NopHost opens scopes that commit nothing.
var NopHost Host = nopHost{}
