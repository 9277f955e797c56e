/*
 * Copyright (c) 2023 Zander Schwid & Co. LLC.
 * SPDX-License-Identifier: BUSL-1.1
 */

package rmiclient

import (
	"net"
	"time"

	"golang.org/x/net/proxy"
)

var DefaultTimeout = 30 * time.Second

func dial(address, socks5 string) (net.Conn, error) {
	if socks5 != "" {
		d, err := proxy.SOCKS5("tcp", socks5, nil, proxy.Direct)
		if err != nil {
			return nil, err
		}
		return d.Dial("tcp", address)
	} else {
		return net.DialTimeout("tcp", address, DefaultTimeout)
	}
}

// Dial connects to a server, through a SOCKS5 proxy when socks5 is set.
func Dial(address, socks5 string) (Client, error) {
	conn, err := dial(address, socks5)
	if err != nil {
		return nil, err
	}
	if tcp, ok := conn.(*net.TCPConn); ok {
		tcp.SetNoDelay(true)
	}
	return NewClient(conn), nil
}
