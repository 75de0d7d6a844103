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

package alloc_test

import (
	. "gopkg.in/check.v1"

	"github.com/gokern/gokern/alloc"
)

type slabSuite struct{}

var _ = Suite(&slabSuite{})

func (s *slabSuite) TestClassReuse(c *C) {
	sl := alloc.NewSlab(nil)
	c.Assert(sl.AddMemory(0, 1<<16), IsNil)

	a1, err := sl.Alloc(10, 8)
	c.Assert(err, IsNil)
	sl.Dealloc(a1, 10, 8)

	a2, err := sl.Alloc(12, 8)
	c.Assert(err, IsNil)
	// Both 10 and 12 round up into the same 16-byte class, so the
	// freed slot should be handed straight back out.
	c.Check(a2, Equals, a1)
}

func (s *slabSuite) TestOversizedUsesBumpPath(c *C) {
	sl := alloc.NewSlab(nil)
	c.Assert(sl.AddMemory(0, 1<<16), IsNil)

	addr, err := sl.Alloc(4096, 8)
	c.Assert(err, IsNil)
	c.Check(addr%8, Equals, uintptr(0))
}

func (s *slabSuite) TestRoundTripClassOnly(c *C) {
	sl := alloc.NewSlab(nil)
	c.Assert(sl.AddMemory(0, 1<<16), IsNil)
	before := sl.AvailableBytes()

	var addrs []uintptr
	for i := 0; i < 10; i++ {
		a, err := sl.Alloc(20, 8)
		c.Assert(err, IsNil)
		addrs = append(addrs, a)
	}
	for _, a := range addrs {
		sl.Dealloc(a, 20, 8)
	}
	c.Check(sl.UsedBytes(), Equals, uintptr(0))
	c.Check(sl.AvailableBytes(), Equals, before)
}

func (s *slabSuite) TestOutOfMemory(c *C) {
	sl := alloc.NewSlab(nil)
	// 20 bytes rounds up to the 32-byte class: three slots fit in 96.
	c.Assert(sl.AddMemory(0, 96), IsNil)
	_, err := sl.Alloc(20, 8)
	c.Assert(err, IsNil)
	_, err = sl.Alloc(20, 8)
	c.Assert(err, IsNil)
	_, err = sl.Alloc(20, 8)
	c.Assert(err, IsNil)
	_, err = sl.Alloc(20, 8)
	c.Check(err, NotNil)
}
