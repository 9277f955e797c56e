/*
 * Copyright (c) 2023 Zander Schwid & Co. LLC.
 * SPDX-License-Identifier: BUSL-1.1
 */

package rmi

import "fmt"

type TypeDef interface {
	TypeName() string
}

type Kind int

const (
	VOID Kind = iota
	BYTE
	BOOL
	INT32
	DOUBLE
	STRING
	HANDLE
	POINT
)

var kindNames = [...]string{
	VOID:   "void",
	BYTE:   "byte",
	BOOL:   "bool",
	INT32:  "int32",
	DOUBLE: "double",
	STRING: "string",
	HANDLE: "handle",
	POINT:  "point",
}

func (k Kind) String() string {
	if k >= 0 && int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

type ScalarDef struct {
	Kind Kind
}

func (t ScalarDef) TypeName() string {
	return t.Kind.String()
}

type ArrayDef struct {
	Elem TypeDef
}

func (t ArrayDef) TypeName() string {
	return "array<" + t.Elem.TypeName() + ">"
}

func Array(elem TypeDef) ArrayDef {
	return ArrayDef{elem}
}

var (
	Void   = ScalarDef{VOID}
	Byte   = ScalarDef{BYTE}
	Bool   = ScalarDef{BOOL}
	Int32  = ScalarDef{INT32}
	Double = ScalarDef{DOUBLE}
	String = ScalarDef{STRING}
	Handle = ScalarDef{HANDLE}
	Point  = ScalarDef{POINT}
)

// Ref is an opaque host object handle. The zero value is the null handle.
type Ref int32

const NullRef Ref = 0

func (r Ref) IsNull() bool {
	return r == NullRef
}

type XYZ struct {
	X, Y, Z float64
}
