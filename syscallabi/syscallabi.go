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

// Package syscallabi implements spec §6's abstract system-call
// surface: a numeric dispatch table, up to six register-sized
// arguments per call, a signed register-sized return (negative value
// = errno), and user-pointer validation against the calling task's
// address space region table before any handler dereferences one.
package syscallabi

import (
	"github.com/gokern/gokern/addrspace"
	"github.com/gokern/gokern/kerrno"
	"github.com/gokern/gokern/pagetable"
	"github.com/gokern/gokern/process"
	"github.com/gokern/gokern/sched"
)

// Number is a syscall's numeric dispatch value.
type Number uint32

// The syscall families named in spec §6. Numbering is local to this
// module (there is no real ABI to match) and grouped by family in
// blocks of 100 so new syscalls can be added to a family without
// renumbering its neighbours.
const (
	SysFork Number = 100 + iota
	SysClone
	SysExec
	SysWait
	SysExit
	SysGetpid
	SysGettid
	SysSetsid
)

const (
	SysOpen Number = 200 + iota
	SysRead
	SysWrite
	SysLseek
	SysClose
	SysStat
	SysFstat
	SysDup
	SysPipe
	SysMkdir
	SysUnlink
	SysRename
)

const (
	SysMmap Number = 300 + iota
	SysMunmap
	SysMprotect
	SysBrk
)

const (
	SysKill Number = 400 + iota
	SysSigaction
	SysSigprocmask
	SysSigreturn
)

const (
	SysNanosleep Number = 500 + iota
	SysGettimeofday
	SysClockGettime
)

const (
	SysSocket Number = 600 + iota
	SysBind
	SysConnect
	SysListen
	SysAccept
	SysSend
	SysRecv
	SysSendto
	SysRecvfrom
	SysShutdown
	SysSetsockopt
	SysGetsockopt
)

// Args is a syscall's up-to-six register-sized argument vector (spec
// §6: "up to six register-sized arguments").
type Args [6]uintptr

// Handler services one syscall number: it receives the calling task,
// its process, and the raw argument vector, and returns a
// register-sized result. A negative Result encodes an errno (spec
// §6: "a signed register-sized return (negative = errno)").
type Handler func(caller *sched.Task, p *process.Process, args Args) Result

// Result is the signed register-sized return value of a syscall.
type Result int64

// FromError converts an error into the negative-errno encoding (spec
// §6), or 0 for a nil error. kerrno.Errno already returns the
// negative register value.
func FromError(err error) Result {
	return Result(kerrno.Errno(err))
}

// Table is the numeric dispatch table a kernel core registers its
// syscall handlers into.
type Table struct {
	handlers map[Number]Handler
}

// NewTable creates an empty dispatch table.
func NewTable() *Table {
	return &Table{handlers: make(map[Number]Handler)}
}

// Register installs h as the handler for num, replacing any handler
// previously registered for that number.
func (t *Table) Register(num Number, h Handler) {
	t.handlers[num] = h
}

// ErrNoSuchSyscall is returned by Dispatch when num has no registered
// handler.
var ErrNoSuchSyscall = kerrno.New(kerrno.InvalidInput, "syscallabi: no handler registered for this syscall number")

// Dispatch looks up num's handler and invokes it with args. An
// unregistered number returns the EINVAL encoding of
// ErrNoSuchSyscall rather than panicking, since a malformed or
// unsupported syscall number from user space must never crash the
// kernel core.
func (t *Table) Dispatch(num Number, caller *sched.Task, p *process.Process, args Args) Result {
	h, ok := t.handlers[num]
	if !ok {
		return FromError(ErrNoSuchSyscall)
	}
	return h(caller, p, args)
}

// ValidatePointer implements spec §6's "the kernel validates every
// user pointer by checking the region table of the current address
// space": every page of [ptr, ptr+length) must fall inside a single
// mapped region, and that region's flags must be a superset of want.
// A zero-length span at a mapped address is allowed (it validates the
// pointer itself without requiring the span be non-empty, matching
// the common case of a syscall argument that is merely a handle).
func ValidatePointer(as *addrspace.AddressSpace, ptr uintptr, length uintptr, want pagetable.Flags) error {
	if ptr == 0 {
		return kerrno.New(kerrno.Fault, "syscallabi: null pointer")
	}
	r, ok := as.RegionAt(ptr)
	if !ok {
		return kerrno.New(kerrno.Fault, "syscallabi: address %#x is not mapped", ptr)
	}
	end := ptr + length
	if end < ptr {
		return kerrno.New(kerrno.Fault, "syscallabi: pointer span overflows")
	}
	if end > r.Start+r.Size {
		return kerrno.New(kerrno.Fault, "syscallabi: span [%#x, %#x) crosses past the end of its region", ptr, end)
	}
	if r.Flags&want != want {
		return kerrno.New(kerrno.Fault, "syscallabi: region at %#x lacks required flags", ptr)
	}
	return nil
}
