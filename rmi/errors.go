/*
 * Copyright (c) 2023 Zander Schwid & Co. LLC.
 * SPDX-License-Identifier: BUSL-1.1
 */

package rmi

import "errors"

var ErrUnknownType = errors.New("unknown type")
var ErrUnrepresentable = errors.New("value not representable")
var ErrInvalidLength = errors.New("invalid length prefix")
var ErrCodecAlreadyExist = errors.New("codec already exist")
var ErrInvalidMessage = errors.New("invalid control message")
