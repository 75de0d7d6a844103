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
	"github.com/gokern/gokern/fd"
	"github.com/gokern/gokern/sched"
)

// exitThread implements spec §4.5 exit's "if the task is non-leader"
// branch: the task is simply removed from the process's task list and
// marked Exited in the scheduler. A task already Exited (an explicit
// Exit followed by its body returning) is left as it is.
func (r *Registry) exitThread(p *Process, t *sched.Task, code int) {
	if t.State() == sched.Exited {
		return
	}
	p.mu.Lock()
	for i, ot := range p.Tasks {
		if ot == t {
			p.Tasks = append(p.Tasks[:i], p.Tasks[i+1:]...)
			break
		}
	}
	p.mu.Unlock()
	finishExit(t, code)
}

// exitProcess implements spec §4.5 exit's leader branch: wait for
// every non-leader task to finish, clear the FD table and reparent
// children to init, mark the process a zombie, and notify the
// parent's child-exit queue. A leader already Exited is left as it is.
func (r *Registry) exitProcess(p *Process, leader *sched.Task, code int) {
	if leader.State() == sched.Exited {
		return
	}
	for {
		p.mu.Lock()
		pending := append([]*sched.Task(nil), p.Tasks...)
		p.mu.Unlock()
		if len(pending) == 0 {
			break
		}
		for _, ot := range pending {
			<-ot.Done()
		}
	}

	p.mu.Lock()
	p.ExitCode = code
	p.Zombie = true
	p.FDs = fd.New(0) // an empty table; a table shared via FILES stays with its other holders
	children := p.children
	p.children = nil
	p.mu.Unlock()

	for _, child := range children {
		child.mu.Lock()
		child.ParentPID = InitPID
		child.mu.Unlock()
		r.Init.addChild(child)
	}

	finishExit(leader, code)

	if parent, ok := r.Lookup(p.ParentPID); ok {
		parent.childExit.NotifyAll()
	}
}

func finishExit(t *sched.Task, code int) {
	cpu := currentCPUOf(t)
	cpu.Exit(t, code)
}

// currentCPUOf retrieves the CPU a task is bound to; it is a tiny
// accessor kept in this file because sched does not export a public
// field for it (Task.cpu is private, set at Spawn time and read back
// through its own Exit call path instead in the common case; this
// helper exists for the two call sites above that must invoke Exit
// from the process layer rather than letting sched.CPU.Spawn's own
// wrapper do it).
func currentCPUOf(t *sched.Task) *sched.CPU { return t.CPU() }
