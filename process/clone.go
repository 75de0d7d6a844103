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

package process

import (
	"github.com/gokern/gokern/addrspace"
	"github.com/gokern/gokern/sched"
)

// CloneFlags is spec §4.5's clone flag set.
type CloneFlags uint32

const (
	VM CloneFlags = 1 << iota
	FS
	FILES
	SIGHAND
	THREAD
	PARENT
	SETTLS
	CHILD_SETTID
	CHILD_CLEARTID
	VFORK
)

// Clone implements spec §4.5's clone: shared resources are inherited
// by shared reference when the corresponding flag is set, otherwise
// cloned; a THREAD clone joins the calling process, otherwise a new
// process is created whose parent follows the PARENT flag. body runs
// in the new task; its int return (or an explicit call from inside
// body to r.Exit) is what a waiting parent eventually
// observes. Clone returns the new task's id (THREAD set) or the new
// process's pid (THREAD clear), matching "the parent receives the
// child's tid."
func (r *Registry) Clone(parent *Process, flags CloneFlags, priority int, body Body) (uint64, error) {
	parent.mu.Lock()
	as := parent.AS
	if flags&VM == 0 {
		clone := addrspace.New(r.Phys)
		if err := clone.CloneFrom(parent.AS); err != nil {
			parent.mu.Unlock()
			return 0, err
		}
		as = clone
	}
	fdTable := parent.FDs
	if flags&FILES == 0 {
		fdTable = parent.FDs.Clone()
	}
	parent.mu.Unlock()

	if flags&THREAD != 0 {
		task := r.Sys.Spawn(parent.PID, priority, func(t *sched.Task) {
			code := body(parent, t)
			r.exitThread(parent, t, code)
		})
		parent.mu.Lock()
		parent.Tasks = append(parent.Tasks, task)
		parent.mu.Unlock()
		return uint64(task.ID), nil
	}

	childPID, err := r.pids.Alloc()
	if err != nil {
		return 0, err
	}
	parentPID := parent.PID
	if flags&PARENT != 0 {
		parentPID = parent.ParentPID
	}
	child := &Process{
		PID:       childPID,
		ParentPID: parentPID,
		AS:        as,
		FDs:       fdTable,
		childExit: sched.NewWaitQueue(),
	}
	r.register(child)
	if parentProc, ok := r.Lookup(parentPID); ok {
		parentProc.addChild(child)
	} else {
		r.Init.addChild(child)
	}

	child.Leader = r.Sys.Spawn(childPID, priority, func(t *sched.Task) {
		code := body(child, t)
		r.exitProcess(child, t, code)
	})
	child.Leader.IsLeader = true
	return childPID, nil
}
