/*
 * Copyright (c) 2023 Zander Schwid & Co. LLC.
 * SPDX-License-Identifier: BUSL-1.1
 */

package rmiclient

import (
	"errors"

	"github.com/codeallergy/value-rmi/rmi"
)

var ErrProcedureNotFound = errors.New("procedure not found")
var ErrInvalidIndex = errors.New("invalid operation index")
var ErrArgumentCount = errors.New("argument count mismatch")
var ErrNoResponse = errors.New("no response")
var ErrUnsupportedMessageType = errors.New("message type not supported")
var ErrClientBroken = errors.New("client connection broken")
var ErrClientClosed = errors.New("client closed")

// RemoteError is a fault raised by the remote procedure. The session is
// still usable after it.
type RemoteError struct {
	Procedure  string
	Diagnostic rmi.Diagnostic
}

func (e *RemoteError) Error() string {
	return "remote fault: " + e.Diagnostic.Message
}
