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

type buddySuite struct{}

var _ = Suite(&buddySuite{})

func (s *buddySuite) TestPowerOfTwoArenaFullRoundTrip(c *C) {
	b := alloc.NewBuddy(4) // 16-byte minimum blocks
	c.Assert(b.AddMemory(0, 4096), IsNil)
	before := b.AvailableBytes()

	var addrs []uintptr
	for i := 0; i < 8; i++ {
		addr, err := b.Alloc(100, 8)
		c.Assert(err, IsNil)
		addrs = append(addrs, addr)
	}
	for _, a := range addrs {
		b.Dealloc(a, 100, 8)
	}
	c.Check(b.UsedBytes(), Equals, uintptr(0))
	c.Check(b.AvailableBytes(), Equals, before)
}

func (s *buddySuite) TestAlignmentInvariant(c *C) {
	b := alloc.NewBuddy(4)
	c.Assert(b.AddMemory(0, 1<<20), IsNil)
	addr, err := b.Alloc(50, 64)
	c.Assert(err, IsNil)
	c.Check(addr%64, Equals, uintptr(0))
}

func (s *buddySuite) TestCascadeMerge(c *C) {
	b := alloc.NewBuddy(4)
	c.Assert(b.AddMemory(0, 256), IsNil)

	a1, err := b.Alloc(16, 1)
	c.Assert(err, IsNil)
	a2, err := b.Alloc(16, 1)
	c.Assert(err, IsNil)

	// Freeing both small blocks should cascade-merge back up to the
	// single top-level free block, allowing a subsequent large
	// allocation to succeed.
	b.Dealloc(a1, 16, 1)
	b.Dealloc(a2, 16, 1)

	big, err := b.Alloc(200, 1)
	c.Assert(err, IsNil)
	c.Check(big, Equals, uintptr(0))
}

func (s *buddySuite) TestOutOfMemory(c *C) {
	b := alloc.NewBuddy(4)
	c.Assert(b.AddMemory(0, 64), IsNil)
	_, err := b.Alloc(128, 1)
	c.Assert(err, NotNil)
}
