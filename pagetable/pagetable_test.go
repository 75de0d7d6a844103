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

package pagetable_test

import (
	"testing"

	. "gopkg.in/check.v1"

	"github.com/gokern/gokern/kerrno"
	"github.com/gokern/gokern/pagetable"
)

func Test(t *testing.T) { TestingT(t) }

type pagetableSuite struct{}

var _ = Suite(&pagetableSuite{})

func (s *pagetableSuite) TestMapQueryUnmap(c *C) {
	pt := pagetable.New()
	c.Assert(pt.MapRegion(0x1000, 0x8000, 2*pagetable.PageSize, pagetable.Read|pagetable.Write), IsNil)

	phys, flags, err := pt.Query(0x1000 + 10)
	c.Assert(err, IsNil)
	c.Check(phys, Equals, uintptr(0x8000+10))
	c.Check(flags, Equals, pagetable.Read|pagetable.Write)

	c.Assert(pt.UnmapRegion(0x1000, 2*pagetable.PageSize), IsNil)
	_, _, err = pt.Query(0x1000)
	c.Assert(kerrno.Is(err, kerrno.NotFound), Equals, true)
}

func (s *pagetableSuite) TestMapOverlapFails(c *C) {
	pt := pagetable.New()
	c.Assert(pt.MapRegion(0x1000, 0x8000, pagetable.PageSize, pagetable.Read), IsNil)
	err := pt.MapRegion(0x1000, 0x9000, pagetable.PageSize, pagetable.Read)
	c.Assert(kerrno.Is(err, kerrno.AlreadyExists), Equals, true)
}

func (s *pagetableSuite) TestUnmapIsIdempotent(c *C) {
	pt := pagetable.New()
	c.Assert(pt.UnmapRegion(0x1000, pagetable.PageSize), IsNil)
	c.Assert(pt.UnmapRegion(0x1000, pagetable.PageSize), IsNil)
}

func (s *pagetableSuite) TestProtectChangesFlags(c *C) {
	pt := pagetable.New()
	c.Assert(pt.MapRegion(0x2000, 0x9000, pagetable.PageSize, pagetable.Read), IsNil)
	c.Assert(pt.Protect(0x2000, pagetable.PageSize, pagetable.Read|pagetable.Exec), IsNil)
	_, flags, err := pt.Query(0x2000)
	c.Assert(err, IsNil)
	c.Check(flags, Equals, pagetable.Read|pagetable.Exec)
}

func (s *pagetableSuite) TestProtectUnmappedFails(c *C) {
	pt := pagetable.New()
	err := pt.Protect(0x3000, pagetable.PageSize, pagetable.Read)
	c.Assert(kerrno.Is(err, kerrno.NotFound), Equals, true)
}

func (s *pagetableSuite) TestCloneIsIndependent(c *C) {
	pt := pagetable.New()
	c.Assert(pt.MapRegion(0x4000, 0xa000, pagetable.PageSize, pagetable.Read), IsNil)

	clone := pt.Clone()
	c.Assert(clone.Protect(0x4000, pagetable.PageSize, pagetable.Read|pagetable.Write), IsNil)

	_, origFlags, err := pt.Query(0x4000)
	c.Assert(err, IsNil)
	c.Check(origFlags, Equals, pagetable.Read)

	_, cloneFlags, err := clone.Query(0x4000)
	c.Assert(err, IsNil)
	c.Check(cloneFlags, Equals, pagetable.Read|pagetable.Write)
}

func (s *pagetableSuite) TestMisalignedRejected(c *C) {
	pt := pagetable.New()
	err := pt.MapRegion(0x1001, 0x8000, pagetable.PageSize, pagetable.Read)
	c.Assert(kerrno.Is(err, kerrno.InvalidInput), Equals, true)
}
