/*
 * Copyright (c) 2023 Zander Schwid & Co. LLC.
 * SPDX-License-Identifier: BUSL-1.1
 */

package rmiserver

import (
	"sort"
	"sync"

	"github.com/codeallergy/value-rmi/rmi"
	"github.com/pkg/errors"
)

// Registry is a static Service built from explicitly added procedures.
type Registry struct {
	procedures sync.Map
}

func NewRegistry() *Registry {
	return &Registry{}
}

func (t *Registry) Add(p Procedure) error {
	if p.Name == "" || p.Invoke == nil {
		return errors.Errorf("procedure %q is incomplete", p.Name)
	}
	if _, dup := t.procedures.LoadOrStore(p.Name, p); dup {
		return errors.Wrap(ErrProcedureAlreadyExist, p.Name)
	}
	return nil
}

// AddFunction registers an untyped procedure.
func (t *Registry) AddFunction(name string, params []rmi.TypeDef, result rmi.TypeDef, cb Invoker) error {
	return t.Add(Procedure{Name: name, Params: params, Result: result, Invoke: cb})
}

func (t *Registry) Resolve(name string) (Procedure, error) {
	if p, ok := t.procedures.Load(name); ok {
		return p.(Procedure), nil
	}
	return Procedure{}, errors.Wrap(ErrUnknownProcedure, name)
}

func (t *Registry) Procedures() []Procedure {
	var list []Procedure
	t.procedures.Range(func(_, p interface{}) bool {
		list = append(list, p.(Procedure))
		return true
	})
	sort.Slice(list, func(i, j int) bool { return list[i].Name < list[j].Name })
	return list
}
