/*
 * Copyright (c) 2023 Zander Schwid & Co. LLC.
 * SPDX-License-Identifier: BUSL-1.1
 */

package rmi

import (
	"reflect"

	"github.com/pkg/errors"
)

var scalarTypes = map[reflect.Type]TypeDef{
	reflect.TypeOf(byte(0)):    Byte,
	reflect.TypeOf(false):      Bool,
	reflect.TypeOf(int32(0)):   Int32,
	reflect.TypeOf(float64(0)): Double,
	reflect.TypeOf(""):         String,
	reflect.TypeOf(NullRef):    Handle,
	reflect.TypeOf(XYZ{}):      Point,
}

// DefOf maps a Go type onto the wire type that carries it.
func DefOf(t reflect.Type) (TypeDef, error) {
	if def, ok := scalarTypes[t]; ok {
		return def, nil
	}
	if t.Kind() == reflect.Slice {
		elem, err := DefOf(t.Elem())
		if err != nil {
			return nil, err
		}
		return Array(elem), nil
	}
	return nil, errors.Wrapf(ErrUnknownType, "no wire type for %s", t)
}

// Verify reports whether the codec of def produces values of Go type t.
func Verify(entry CodecEntry, t reflect.Type) bool {
	return t == nil || entry.GoType == t
}

// VerifyArgs checks declared parameter codecs against the Go types of a
// typed procedure. A nil types slice means the procedure is untyped.
func VerifyArgs(entries []CodecEntry, types []reflect.Type) error {
	if types == nil {
		return nil
	}
	if len(entries) != len(types) {
		return errors.Errorf("declared %d parameters, function takes %d", len(entries), len(types))
	}
	for i, entry := range entries {
		if !Verify(entry, types[i]) {
			return errors.Errorf("parameter %d declared %s, function takes %s", i, entry.Def.TypeName(), types[i])
		}
	}
	return nil
}

// NoneType is the Go type recorded for procedures without a result.
func NoneType() reflect.Type {
	return noneType
}
