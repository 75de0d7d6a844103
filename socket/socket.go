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

// Package socket implements spec L4's socket façade: bind/connect/
// send/recv exposed as a file-like, over a pluggable Transport so the
// façade can be exercised without a real network stack. Domain/Kind
// let the façade be driven over more than one address family and
// communication style without this module implementing a real
// transport of its own.
package socket

import (
	"context"
	"time"

	"golang.org/x/time/rate"
	"gopkg.in/retry.v1"

	"github.com/gokern/gokern/kerrno"
)

// Domain is the address family a socket is created in.
type Domain int

const (
	Unix Domain = iota
	INET
	INET6
)

// Kind is the socket's communication semantics.
type Kind int

const (
	Stream Kind = iota
	Datagram
)

// Addr is a transport-agnostic socket address: an in-memory loopback
// transport uses Path as an opaque endpoint name, a real INET/INET6
// transport would additionally use IP/Port.
type Addr struct {
	Path string
	IP   string
	Port int
}

// Transport is the pluggable backing implementation a Socket is built
// on (spec §1 places the real network stack out of scope as an
// external collaborator; this interface is the seam).
type Transport interface {
	Listen(addr Addr) (Listener, error)
	Dial(addr Addr) (Conn, error)
}

// Listener accepts incoming connections on a bound address.
type Listener interface {
	Accept() (Conn, error)
	Close() error
	Addr() Addr
}

// Conn is a connected (or, for Datagram sockets, addressed) endpoint.
type Conn interface {
	Send(buf []byte) (int, error)
	Recv(buf []byte) (int, error)
	SendTo(addr Addr, buf []byte) (int, error)
	RecvFrom(buf []byte) (int, Addr, error)
	Shutdown() error
	Close() error
}

// Socket is spec L4's socket façade object: a file-like wrapping one
// Conn (once connected) or one Listener (once bound and listening).
type Socket struct {
	domain    Domain
	kind      Kind
	transport Transport

	listener Listener
	conn     Conn
	local    Addr
}

// New creates an unbound, unconnected socket of the given domain and
// kind over transport (spec §6's socket() call).
func New(domain Domain, kind Kind, transport Transport) *Socket {
	return &Socket{domain: domain, kind: kind, transport: transport}
}

// Bind associates the socket with a local address and begins
// listening for incoming connections (spec §6's bind()+listen()
// pair, collapsed into one call since this façade has no separate
// "bound but not listening" state to model).
//
// acceptLimiter, if non-nil, is consulted on every Accept to bound
// accept-storm connection floods, a user-space analogue of a
// SYN-flood guard; pass nil for an unlimited listener.
func (s *Socket) Bind(addr Addr, acceptLimiter *rate.Limiter) error {
	if s.conn != nil || s.listener != nil {
		return kerrno.New(kerrno.AddressInUse, "socket: already bound or connected")
	}
	l, err := s.transport.Listen(addr)
	if err != nil {
		return err
	}
	s.listener = &limitedListener{Listener: l, limiter: acceptLimiter}
	s.local = addr
	return nil
}

// Accept blocks until a peer connects to a bound, listening socket
// and returns a new Socket wrapping that connection.
func (s *Socket) Accept() (*Socket, error) {
	if s.listener == nil {
		return nil, kerrno.New(kerrno.NotConnected, "socket: not listening")
	}
	conn, err := s.listener.Accept()
	if err != nil {
		return nil, err
	}
	return &Socket{domain: s.domain, kind: s.kind, transport: s.transport, conn: conn}, nil
}

// defaultDialRetry is a handful of short exponential backoffs bounded
// by an overall time limit.
var defaultDialRetry = retry.LimitCount(5, retry.LimitTime(2*time.Second,
	retry.Exponential{
		Initial: 10 * time.Millisecond,
		Factor:  2,
	},
))

// Dial connects to a remote address, retrying ConnectionRefused with
// defaultDialRetry (a listener racing to come up after its own Bind
// is the common case this masks).
func Dial(transport Transport, domain Domain, kind Kind, addr Addr) (*Socket, error) {
	var conn Conn
	var err error
	for a := retry.Start(defaultDialRetry, nil); a.Next(); {
		conn, err = transport.Dial(addr)
		if err == nil || !kerrno.Is(err, kerrno.ConnectionRefused) {
			break
		}
	}
	if err != nil {
		return nil, err
	}
	return &Socket{domain: domain, kind: kind, transport: transport, conn: conn}, nil
}

// Send/Recv/SendTo/RecvFrom/Shutdown implement spec §6's
// send/recv/sendto/recvfrom/shutdown syscalls for a connected socket.
func (s *Socket) Send(buf []byte) (int, error) {
	if s.conn == nil {
		return 0, kerrno.New(kerrno.NotConnected, "socket: not connected")
	}
	return s.conn.Send(buf)
}

func (s *Socket) Recv(buf []byte) (int, error) {
	if s.conn == nil {
		return 0, kerrno.New(kerrno.NotConnected, "socket: not connected")
	}
	return s.conn.Recv(buf)
}

func (s *Socket) SendTo(addr Addr, buf []byte) (int, error) {
	if s.conn == nil {
		return 0, kerrno.New(kerrno.NotConnected, "socket: not connected")
	}
	return s.conn.SendTo(addr, buf)
}

func (s *Socket) RecvFrom(buf []byte) (int, Addr, error) {
	if s.conn == nil {
		return 0, Addr{}, kerrno.New(kerrno.NotConnected, "socket: not connected")
	}
	return s.conn.RecvFrom(buf)
}

func (s *Socket) Shutdown() error {
	if s.conn == nil {
		return kerrno.New(kerrno.NotConnected, "socket: not connected")
	}
	return s.conn.Shutdown()
}

// Close releases whichever of listener/conn this socket holds.
func (s *Socket) Close() error {
	if s.listener != nil {
		return s.listener.Close()
	}
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}

// limitedListener wraps a Listener with an optional accept-rate
// limiter, blocking Accept until the limiter admits another
// connection.
type limitedListener struct {
	Listener
	limiter *rate.Limiter
}

func (l *limitedListener) Accept() (Conn, error) {
	if l.limiter != nil {
		if err := l.limiter.Wait(context.Background()); err != nil {
			return nil, kerrno.Wrap(kerrno.ResourceExhausted, err)
		}
	}
	return l.Listener.Accept()
}
