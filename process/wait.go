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

import "github.com/gokern/gokern/sched"

// WaitAny is the pid argument sentinel for "any child" (spec §4.5:
// "any, for pid=-1").
const WaitAny = -1

// Status encodes a reaped child's termination the way a real wait(2)
// would: exit code in the high byte (spec §8 scenario S6: "status ==
// (42 << 8)").
func Status(exitCode int) int { return exitCode << 8 }

// Wait implements spec §4.5's wait: look for a zombie child (or any,
// for pid == WaitAny). If found, its pid and Status(exit code) are
// returned, it is
// detached from the child list and freed (its pid released back to
// the allocator). If none is found and nohang is true, it returns
// (0, 0, nil) immediately ("WNOHANG ... returns 0"); otherwise it
// blocks on the process's child-exit wait queue until a child exits.
func (r *Registry) Wait(caller *sched.Task, p *Process, pid int64, nohang bool) (gotPID uint64, status int, err error) {
	for {
		if found, ok := findZombie(p, pid); ok {
			code := found.ExitCode
			p.removeChild(found.PID)
			r.unregister(found.PID)
			return found.PID, Status(code), nil
		}
		if !hasChild(p, pid) {
			return 0, 0, errNoSuchProcess
		}
		if nohang {
			return 0, 0, nil
		}
		if err := p.childExit.Wait(caller.CPU(), caller); err != nil {
			return 0, 0, err
		}
	}
}

func findZombie(p *Process, pid int64) (*Process, bool) {
	for _, c := range p.Children() {
		if pid != WaitAny && int64(c.PID) != pid {
			continue
		}
		if c.IsZombie() {
			return c, true
		}
	}
	return nil, false
}

func hasChild(p *Process, pid int64) bool {
	for _, c := range p.Children() {
		if pid == WaitAny || int64(c.PID) == pid {
			return true
		}
	}
	return false
}

// Exit lets a task explicitly terminate itself before its Body
// returns (spec §4.5's exit syscall, callable at any point rather
// than only as the Body's return value). Leader tasks run the full
// process-teardown path; non-leader tasks simply drop out of the
// process's task list. Exit returns once teardown completes; the
// caller's Body should return immediately afterwards with no further
// use of p or t.
func (r *Registry) Exit(p *Process, t *sched.Task, code int) {
	if t.IsLeader {
		r.exitProcess(p, t, code)
	} else {
		r.exitThread(p, t, code)
	}
}
