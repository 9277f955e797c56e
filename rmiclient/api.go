/*
 * Copyright (c) 2023 Zander Schwid & Co. LLC.
 * SPDX-License-Identifier: BUSL-1.1
 */

package rmiclient

import (
	"time"

	"github.com/codeallergy/value-rmi/rmi"
)

// Client drives one session. It is not safe for concurrent use: the
// protocol is strictly one request, one response.
type Client interface {
	// Provide asks the server to expose a procedure and caches its index.
	Provide(name string) (int, error)

	// ProvideOperation always runs the bootstrap, bypassing the cache.
	ProvideOperation(name string) (int, error)

	// Invoke calls an already provided operation by index.
	Invoke(index int, params []rmi.TypeDef, result rmi.TypeDef, args ...interface{}) (interface{}, error)

	// Call provides name on first use and invokes it.
	Call(name string, params []rmi.TypeDef, result rmi.TypeDef, args ...interface{}) (interface{}, error)

	// EndBurst asks the server to commit the current burst now.
	EndBurst() error

	SetTimeout(timeout time.Duration)

	Close() error
}
