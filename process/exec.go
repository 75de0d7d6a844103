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
	"github.com/gokern/gokern/kerrno"
	"github.com/gokern/gokern/sched"
)

// Exec implements spec §4.5's exec: replaces the address space in
// place (tear down every user region, load the new ELF into the same
// AddressSpace), preserves the FD table minus close-on-exec entries,
// and hands back a LoadResult the caller uses to run the new image's
// Body as if restarting the leader task's entry point: the same
// *sched.Task keeps running, just with a fresh AS/FDs/Body, which is
// what "restarts the leader task on the new entry point" means for a
// runtime with no real instruction pointer to rewrite. Only the
// leader may exec (spec §4.5 describes exec acting on "the leader
// task"); a non-leader caller gets InvalidInput.
func (r *Registry) Exec(p *Process, caller *sched.Task, headers []addrspace.ProgramHeader, entry, stackTop, stackSize uintptr) (addrspace.LoadResult, error) {
	if !caller.IsLeader {
		return addrspace.LoadResult{}, kerrno.New(kerrno.InvalidInput, "exec: caller is not the process leader")
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.AS.UnmapAll(); err != nil {
		return addrspace.LoadResult{}, err
	}
	res, err := p.AS.LoadELF(entry, headers, stackTop, stackSize)
	if err != nil {
		return addrspace.LoadResult{}, err
	}

	p.FDs.CloseExecFDs()
	return res, nil
}
