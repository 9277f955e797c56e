/*
 * Copyright (c) 2023 Zander Schwid & Co. LLC.
 * SPDX-License-Identifier: BUSL-1.1
 */

package rmiserver

import (
	"errors"
	"io"
	"net"
)

var ErrUnknownProcedure = errors.New("unknown procedure")
var ErrProcedureAlreadyExist = errors.New("procedure already exist")
var ErrUnknownOperation = errors.New("unknown operation index")
var ErrTableFull = errors.New("operation table full")
var ErrTypeMismatch = errors.New("type mismatch")
var ErrServerClosed = errors.New("server closed")

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

func isEOF(err error) bool {
	return errors.Is(err, io.EOF)
}

func isClosed(err error) bool {
	return errors.Is(err, io.ErrClosedPipe) || errors.Is(err, net.ErrClosed)
}
