// -*- Mode: Go; indent-tabs-mode: t -*-

/*
 * Copyright (C) 2024 The Authors
 *
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU General Public License version 3 as
 * published by the Free Software Foundation.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU General Public License for more details.
 *
 * You should have received a copy of the GNU General Public License
 * along with this program.  If not, see <http://www.gnu.org/licenses/>.
 *
 */

package socket

import (
	"sync"

	"github.com/gokern/gokern/kerrno"
)

// LoopbackTransport is an in-process Transport keyed by Addr.Path,
// standing in for a real network stack behind the pluggable
// socket.Transport interface.
type LoopbackTransport struct {
	mu        sync.Mutex
	listeners map[string]*loopbackListener
}

// NewLoopbackTransport creates an empty transport with no bound
// addresses.
func NewLoopbackTransport() *LoopbackTransport {
	return &LoopbackTransport{listeners: make(map[string]*loopbackListener)}
}

func (lt *LoopbackTransport) Listen(addr Addr) (Listener, error) {
	lt.mu.Lock()
	defer lt.mu.Unlock()
	if _, exists := lt.listeners[addr.Path]; exists {
		return nil, kerrno.New(kerrno.AddressInUse, "loopback: %s already bound", addr.Path)
	}
	l := &loopbackListener{addr: addr, incoming: make(chan *loopbackConn, 16), closed: make(chan struct{})}
	lt.listeners[addr.Path] = l
	return l, nil
}

func (lt *LoopbackTransport) Dial(addr Addr) (Conn, error) {
	lt.mu.Lock()
	l, ok := lt.listeners[addr.Path]
	lt.mu.Unlock()
	if !ok {
		return nil, kerrno.New(kerrno.ConnectionRefused, "loopback: nothing listening on %s", addr.Path)
	}

	clientSide := &loopbackConn{recv: make(chan []byte, 64)}
	serverSide := &loopbackConn{recv: make(chan []byte, 64), peer: clientSide}
	clientSide.peer = serverSide

	select {
	case l.incoming <- serverSide:
	case <-l.closed:
		return nil, kerrno.New(kerrno.ConnectionRefused, "loopback: %s is no longer listening", addr.Path)
	}
	return clientSide, nil
}

type loopbackListener struct {
	addr     Addr
	incoming chan *loopbackConn
	closeOnce sync.Once
	closed   chan struct{}
}

func (l *loopbackListener) Accept() (Conn, error) {
	select {
	case c := <-l.incoming:
		return c, nil
	case <-l.closed:
		return nil, kerrno.New(kerrno.NotConnected, "loopback: listener closed")
	}
}

func (l *loopbackListener) Close() error {
	l.closeOnce.Do(func() { close(l.closed) })
	return nil
}

func (l *loopbackListener) Addr() Addr { return l.addr }

// loopbackConn is one end of an in-process pipe; Send on one side
// delivers to the other side's Recv.
type loopbackConn struct {
	mu         sync.Mutex
	recv       chan []byte
	peer       *loopbackConn
	shutdown   bool
	closed     bool
}

func (c *loopbackConn) Send(buf []byte) (int, error) {
	c.mu.Lock()
	if c.shutdown || c.closed {
		c.mu.Unlock()
		return 0, kerrno.New(kerrno.NotConnected, "loopback: connection closed")
	}
	c.mu.Unlock()
	cp := append([]byte(nil), buf...)
	c.peer.recv <- cp
	return len(buf), nil
}

func (c *loopbackConn) Recv(buf []byte) (int, error) {
	data, ok := <-c.recv
	if !ok {
		return 0, nil
	}
	return copy(buf, data), nil
}

func (c *loopbackConn) SendTo(addr Addr, buf []byte) (int, error) { return c.Send(buf) }

func (c *loopbackConn) RecvFrom(buf []byte) (int, Addr, error) {
	n, err := c.Recv(buf)
	return n, Addr{}, err
}

func (c *loopbackConn) Shutdown() error {
	c.mu.Lock()
	c.shutdown = true
	c.mu.Unlock()
	return nil
}

func (c *loopbackConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.recv)
	}
	return nil
}
