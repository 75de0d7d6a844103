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

package addrspace_test

import (
	"testing"

	. "gopkg.in/check.v1"

	"github.com/gokern/gokern/addrspace"
	"github.com/gokern/gokern/kerrno"
	"github.com/gokern/gokern/pagetable"
)

func Test(t *testing.T) { TestingT(t) }

type addrspaceSuite struct{}

var _ = Suite(&addrspaceSuite{})

func (s *addrspaceSuite) TestMapQueryInvariant(c *C) {
	phys := addrspace.NewPhysMem(64)
	as := addrspace.New(phys)

	_, err := as.MapRegion(0x10000, 2*pagetable.PageSize, pagetable.Read|pagetable.Write, []byte("hi"))
	c.Assert(err, IsNil)

	_, flags, _, err := as.Query(0x10000)
	c.Assert(err, IsNil)
	c.Check(flags, Equals, pagetable.Read|pagetable.Write)

	_, _, _, err = as.Query(0x20000)
	c.Assert(kerrno.Is(err, kerrno.NotFound), Equals, true)
}

func (s *addrspaceSuite) TestUnmapFullyCoveredFreesFrames(c *C) {
	phys := addrspace.NewPhysMem(8)
	as := addrspace.New(phys)

	_, err := as.MapRegion(0x1000, pagetable.PageSize, pagetable.Read|pagetable.Write, nil)
	c.Assert(err, IsNil)
	c.Assert(as.Unmap(0x1000, pagetable.PageSize), IsNil)

	_, _, _, err = as.Query(0x1000)
	c.Assert(kerrno.Is(err, kerrno.NotFound), Equals, true)
	_, ok := as.RegionAt(0x1000)
	c.Check(ok, Equals, false)
}

func (s *addrspaceSuite) TestUnmapSplitPreservesResidual(c *C) {
	phys := addrspace.NewPhysMem(8)
	as := addrspace.New(phys)

	data := make([]byte, 3*pagetable.PageSize)
	for i := range data {
		data[i] = byte(i % 251)
	}
	_, err := as.MapRegion(0x4000, 3*pagetable.PageSize, pagetable.Read|pagetable.Write, data)
	c.Assert(err, IsNil)

	// Punch a hole at the middle page only.
	c.Assert(as.Unmap(0x4000+pagetable.PageSize, pagetable.PageSize), IsNil)

	_, _, _, err = as.Query(0x4000)
	c.Assert(err, IsNil)
	_, _, _, err = as.Query(0x4000 + 2*pagetable.PageSize)
	c.Assert(err, IsNil)
	_, _, _, err = as.Query(0x4000 + pagetable.PageSize)
	c.Assert(kerrno.Is(err, kerrno.NotFound), Equals, true)
}

func (s *addrspaceSuite) TestCloneFromIsIndependent(c *C) {
	phys := addrspace.NewPhysMem(16)
	src := addrspace.New(phys)
	_, err := src.MapRegion(0x5000, pagetable.PageSize, pagetable.Read|pagetable.Write, []byte("before"))
	c.Assert(err, IsNil)

	dst := addrspace.New(phys)
	c.Assert(dst.CloneFrom(src), IsNil)

	srcPaddr, _, _, err := src.Query(0x5000)
	c.Assert(err, IsNil)
	dstPaddr, _, _, err := dst.Query(0x5000)
	c.Assert(err, IsNil)
	c.Check(srcPaddr, Not(Equals), dstPaddr)

	// Writing through dst's region must not affect src's frame.
	srcBuf := phys.FrameAt(srcPaddr)
	dstBuf := phys.FrameAt(dstPaddr)
	dstBuf[0] = 'X'
	c.Check(srcBuf[0], Equals, byte('b'))
	c.Check(dstBuf[0], Equals, byte('X'))
}

func (s *addrspaceSuite) TestCopyOnWriteFaultDuplicatesPage(c *C) {
	phys := addrspace.NewPhysMem(16)
	src := addrspace.New(phys)
	r, err := src.MapRegion(0x6000, pagetable.PageSize, pagetable.Read|pagetable.Write|pagetable.User, []byte("shared"))
	c.Assert(err, IsNil)
	r.CopyOnWrite = true

	dst := addrspace.New(phys)
	c.Assert(dst.CloneFrom(src), IsNil)

	before, _, _, err := dst.Query(0x6000)
	c.Assert(err, IsNil)
	c.Assert(dst.HandleFault(0x6000, true), IsNil)
	after, _, _, err := dst.Query(0x6000)
	c.Assert(err, IsNil)
	c.Check(after, Not(Equals), before)
}

func (s *addrspaceSuite) TestLazyRegionFaultsInOnFirstTouch(c *C) {
	phys := addrspace.NewPhysMem(8)
	as := addrspace.New(phys)
	_, err := as.MapLazyRegion(0x7000, pagetable.PageSize, pagetable.Read|pagetable.Write|pagetable.User)
	c.Assert(err, IsNil)

	_, _, _, err = as.Query(0x7000)
	c.Assert(kerrno.Is(err, kerrno.NotFound), Equals, true)

	c.Assert(as.HandleFault(0x7000, true), IsNil)
	_, flags, _, err := as.Query(0x7000)
	c.Assert(err, IsNil)
	c.Check(flags&pagetable.Write, Equals, pagetable.Write)
}

func (s *addrspaceSuite) TestFaultOutsideAnyRegionIsSegv(c *C) {
	phys := addrspace.NewPhysMem(8)
	as := addrspace.New(phys)
	err := as.HandleFault(0x9000, false)
	c.Assert(kerrno.Is(err, kerrno.Fault), Equals, true)
}

func (s *addrspaceSuite) TestLoadELFReportsEntryStackHeap(c *C) {
	phys := addrspace.NewPhysMem(64)
	as := addrspace.New(phys)

	headers := []addrspace.ProgramHeader{
		{VAddr: 0x1000, MemSize: 0x100, FileSize: 0x100, Data: []byte("code"), Read: true, Exec: true},
	}
	res, err := as.LoadELF(0x1000, headers, 0x100000, 0x2000)
	c.Assert(err, IsNil)
	c.Check(res.Entry, Equals, uintptr(0x1000))
	c.Check(res.HeapBase > 0x1000, Equals, true)
	c.Check(res.StackBottom < 0x100000, Equals, true)
}
