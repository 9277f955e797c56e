/*
 * Copyright (c) 2023 Zander Schwid & Co. LLC.
 * SPDX-License-Identifier: BUSL-1.1
 */

package rmi

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// Diagnostic describes a failed invocation. It travels right after the
// error sentinel of the result type.
type Diagnostic struct {
	Message string
	Context string
}

type stackTracer interface {
	StackTrace() errors.StackTrace
}

// NewDiagnostic uses the innermost stack trace recorded on the error chain.
func NewDiagnostic(err error) Diagnostic {
	d := Diagnostic{Message: err.Error()}
	var trace stackTracer
	for e := err; e != nil; e = errors.Unwrap(e) {
		if st, ok := e.(stackTracer); ok {
			trace = st
		}
	}
	if trace != nil {
		d.Context = strings.TrimPrefix(fmt.Sprintf("%+v", trace.StackTrace()), "\n")
	}
	return d
}

var flattenLines = strings.NewReplacer("\r\n", " ", "\n", " ")

// String joins message and context with a newline. Newlines inside the
// message are flattened to spaces so ParseDiagnostic splits at the right place.
func (d Diagnostic) String() string {
	msg := flattenLines.Replace(d.Message)
	if d.Context == "" {
		return msg
	}
	return msg + "\n" + d.Context
}

// ParseDiagnostic splits at the first newline: the message never has one.
func ParseDiagnostic(s string) Diagnostic {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return Diagnostic{Message: s[:i], Context: s[i+1:]}
	}
	return Diagnostic{Message: s}
}

func unrepresentable(def TypeDef, v interface{}) error {
	return errors.Wrapf(ErrUnrepresentable, "%s cannot carry %#v", def.TypeName(), v)
}
