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

// Package daemon is a loopback-only HTTP introspection API exposing
// read-only JSON views of scheduler/process/allocator state, routed
// through a small gorilla/mux-backed command table.
package daemon

import (
	"encoding/json"
	"net"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/gokern/gokern/process"
	"github.com/gokern/gokern/sched"
)

// ResponseFunc services one route, narrowed to GET-only since every
// endpoint here is a read-only view.
type ResponseFunc func(d *Daemon, r *http.Request) (status int, body interface{})

// Command binds a path to its handler. There are no POST/PUT/DELETE
// slots since this introspection API has no use for them.
type Command struct {
	Path string
	GET  ResponseFunc
}

func (cmd *Command) serveHTTP(d *Daemon) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if cmd.GET == nil || r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		status, body := cmd.GET(d, r)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(body)
	}
}

// api lists every route this daemon serves.
var api = []*Command{
	{Path: "/v1/tasks", GET: tasksCmd},
	{Path: "/v1/processes", GET: processesCmd},
	{Path: "/v1/mem", GET: memCmd},
}

// Daemon serves the introspection API over a loopback-only listener.
type Daemon struct {
	router   *mux.Router
	listener net.Listener
	server   *http.Server

	Sys      *sched.System
	Registry *process.Registry
}

// New constructs a Daemon bound to sys/registry; it does not yet
// listen on any socket (see Start).
func New(sys *sched.System, registry *process.Registry) *Daemon {
	d := &Daemon{Sys: sys, Registry: registry, router: mux.NewRouter()}
	d.addRoutes()
	return d
}

// ServeHTTP lets a Daemon be driven directly (by tests, or by an
// embedder that wants its own listener) without going through Start.
func (d *Daemon) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	d.router.ServeHTTP(w, r)
}

func (d *Daemon) addRoutes() {
	for _, c := range api {
		c := c
		d.router.Handle(c.Path, c.serveHTTP(d)).Name(c.Path)
	}
}

// Start binds a TCP listener on loopback only (spec §6 names no
// external network contract for this API; it exists purely for local
// operator tooling like cmd/kernelctl) and begins serving in the
// background. addr is host:port, e.g. "127.0.0.1:0" for an
// OS-assigned port.
func (d *Daemon) Start(addr string) error {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	if ip := tcpAddrIP(l.Addr()); ip != nil && !ip.IsLoopback() {
		l.Close()
		return errNotLoopback
	}
	d.listener = l
	d.server = &http.Server{Handler: d.router}
	go d.server.Serve(l)
	return nil
}

func tcpAddrIP(a net.Addr) net.IP {
	tcp, ok := a.(*net.TCPAddr)
	if !ok {
		return nil
	}
	return tcp.IP
}

// Addr returns the address Start bound to, once Start has succeeded.
func (d *Daemon) Addr() net.Addr {
	if d.listener == nil {
		return nil
	}
	return d.listener.Addr()
}

// Stop closes the listener and stops serving.
func (d *Daemon) Stop() error {
	if d.listener == nil {
		return nil
	}
	return d.listener.Close()
}
