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

package process_test

import (
	"errors"
	"testing"
	"time"

	. "gopkg.in/check.v1"

	"github.com/gokern/gokern/addrspace"
	"github.com/gokern/gokern/process"
	"github.com/gokern/gokern/sched"
	"github.com/gokern/gokern/vfs"
)

func Test(t *testing.T) { TestingT(t) }

type processSuite struct{}

var _ = Suite(&processSuite{})

func newRegistry(c *C) *process.Registry {
	sys := sched.NewSystem(2, "FIFO")
	phys := addrspace.NewPhysMem(4096)
	return process.NewRegistry(sys, phys, 16)
}

// tinyImage is a minimal one-segment ELF program header list big
// enough to exercise LoadELF without needing a real binary.
func tinyImage() ([]addrspace.ProgramHeader, uintptr, uintptr, uintptr) {
	headers := []addrspace.ProgramHeader{
		{VAddr: 0x1000, MemSize: 0x1000, FileSize: 0, Read: true, Exec: true},
	}
	return headers, 0x1000, 0x200000, 0x1000
}

func (s *processSuite) TestSpawnRunsBodyAndExits(c *C) {
	r := newRegistry(c)
	headers, entry, stackTop, stackSize := tinyImage()
	ran := make(chan struct{})
	p, err := r.Spawn(0, headers, entry, stackTop, stackSize, func(p *process.Process, t *sched.Task) int {
		close(ran)
		return 7
	})
	c.Assert(err, IsNil)
	select {
	case <-ran:
	case <-time.After(2 * time.Second):
		c.Fatal("body never ran")
	}
	select {
	case <-p.Leader.Done():
	case <-time.After(2 * time.Second):
		c.Fatal("leader task never exited")
	}
	c.Check(p.Leader.ExitCode(), Equals, 7)
}

// TestForkExitWait is spec §8 scenario S6: parent clones a child that
// exits with code 42; wait(pid=-1) returns the child's pid and
// status == (42 << 8).
func (s *processSuite) TestForkExitWait(c *C) {
	r := newRegistry(c)
	headers, entry, stackTop, stackSize := tinyImage()

	var parent *process.Process
	gotPID := make(chan uint64, 1)
	status := make(chan int, 1)
	waitErr := make(chan error, 1)
	spawned := make(chan struct{})

	parent, err := r.Spawn(0, headers, entry, stackTop, stackSize, func(p *process.Process, t *sched.Task) int {
		childPID, err := r.Clone(p, 0, 0, func(cp *process.Process, ct *sched.Task) int {
			return 42
		})
		if err != nil {
			waitErr <- err
			return 1
		}
		close(spawned)

		pid, st, err := r.Wait(t, p, process.WaitAny, false)
		gotPID <- pid
		status <- st
		waitErr <- err
		_ = childPID
		return 0
	})
	c.Assert(err, IsNil)
	_ = parent

	select {
	case <-spawned:
	case <-time.After(2 * time.Second):
		c.Fatal("child never spawned")
	}

	select {
	case err := <-waitErr:
		c.Assert(err, IsNil)
	case <-time.After(2 * time.Second):
		c.Fatal("wait never returned")
	}
	c.Check(<-gotPID > 0, Equals, true)
	c.Check(<-status, Equals, 42<<8)
}

func (s *processSuite) TestCloneThreadSharesAddressSpace(c *C) {
	r := newRegistry(c)
	headers, entry, stackTop, stackSize := tinyImage()
	threadRan := make(chan bool, 1)
	cloneErr := make(chan error, 1)

	_, err := r.Spawn(0, headers, entry, stackTop, stackSize, func(p *process.Process, t *sched.Task) int {
		_, err := r.Clone(p, process.THREAD, 0, func(tp *process.Process, tt *sched.Task) int {
			threadRan <- (tp == p)
			return 0
		})
		cloneErr <- err
		return 0
	})
	c.Assert(err, IsNil)

	select {
	case err := <-cloneErr:
		c.Assert(err, IsNil)
	case <-time.After(2 * time.Second):
		c.Fatal("leader never attempted clone")
	}
	select {
	case sameProcess := <-threadRan:
		c.Check(sameProcess, Equals, true)
	case <-time.After(2 * time.Second):
		c.Fatal("thread never ran")
	}
}

func (s *processSuite) TestExecReplacesAddressSpaceAndClosesCloexecFDs(c *C) {
	r := newRegistry(c)
	headers, entry, stackTop, stackSize := tinyImage()
	done := make(chan error, 1)

	fsys := vfs.New(vfs.NewMemFS())

	_, err := r.Spawn(0, headers, entry, stackTop, stackSize, func(p *process.Process, t *sched.Task) int {
		f, ferr := fsys.Open("/", "/scratch", vfs.ORead|vfs.OWrite|vfs.OCreate, vfs.DefaultFilePerm)
		if ferr != nil {
			done <- ferr
			return 1
		}
		fd0, aerr := p.FDs.Alloc(f)
		if aerr != nil {
			done <- aerr
			return 1
		}
		if err := p.FDs.SetCloseOnExec(fd0, true); err != nil {
			done <- err
			return 1
		}
		newHeaders, newEntry, newStackTop, newStackSize := tinyImage()
		res, err := r.Exec(p, t, newHeaders, newEntry, newStackTop, newStackSize)
		if err != nil {
			done <- err
			return 1
		}
		if res.Entry != newEntry {
			done <- errors.New("exec: LoadResult.Entry did not match the new image's entry point")
			return 1
		}
		if _, gerr := p.FDs.Get(fd0); gerr == nil {
			done <- errors.New("exec: close-on-exec fd survived exec")
			return 1
		}
		done <- nil
		return 0
	})
	c.Assert(err, IsNil)
	select {
	case err := <-done:
		c.Check(err, IsNil)
	case <-time.After(2 * time.Second):
		c.Fatal("exec never completed")
	}
}

func (s *processSuite) TestExecRejectsNonLeaderCaller(c *C) {
	r := newRegistry(c)
	headers, entry, stackTop, stackSize := tinyImage()
	result := make(chan error, 1)
	cloneErr := make(chan error, 1)

	_, err := r.Spawn(0, headers, entry, stackTop, stackSize, func(p *process.Process, t *sched.Task) int {
		_, err := r.Clone(p, process.THREAD, 0, func(tp *process.Process, tt *sched.Task) int {
			_, execErr := r.Exec(p, tt, headers, entry, stackTop, stackSize)
			result <- execErr
			return 0
		})
		cloneErr <- err
		return 0
	})
	c.Assert(err, IsNil)

	select {
	case err := <-cloneErr:
		c.Assert(err, IsNil)
	case <-time.After(2 * time.Second):
		c.Fatal("leader never attempted clone")
	}
	select {
	case execErr := <-result:
		c.Check(execErr, NotNil)
	case <-time.After(2 * time.Second):
		c.Fatal("thread never attempted exec")
	}
}

func (s *processSuite) TestWaitNoHangReturnsImmediatelyWithNoZombie(c *C) {
	r := newRegistry(c)
	headers, entry, stackTop, stackSize := tinyImage()
	result := make(chan [3]interface{}, 1)

	cloneErr := make(chan error, 1)
	_, err := r.Spawn(0, headers, entry, stackTop, stackSize, func(p *process.Process, t *sched.Task) int {
		block := make(chan struct{})
		_, cerr := r.Clone(p, 0, 0, func(cp *process.Process, ct *sched.Task) int {
			<-block
			return 0
		})
		cloneErr <- cerr
		if cerr != nil {
			return 1
		}
		pid, st, werr := r.Wait(t, p, process.WaitAny, true)
		result <- [3]interface{}{pid, st, werr}
		close(block)
		return 0
	})
	c.Assert(err, IsNil)

	select {
	case cerr := <-cloneErr:
		c.Assert(cerr, IsNil)
	case <-time.After(2 * time.Second):
		c.Fatal("leader never attempted clone")
	}
	select {
	case res := <-result:
		c.Check(res[0], Equals, uint64(0))
		c.Check(res[1], Equals, 0)
		c.Check(res[2], IsNil)
	case <-time.After(2 * time.Second):
		c.Fatal("nohang wait never returned")
	}
}
