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

type tlsfSuite struct{}

var _ = Suite(&tlsfSuite{})

// TestScenarioS2 reproduces spec.md scenario S2 verbatim: allocate
// three blocks, free them in LIFO order, and confirm re-allocating
// the first size returns the original first address.
func (s *tlsfSuite) TestScenarioS2(c *C) {
	t := alloc.NewTLSF()
	c.Assert(t.AddMemory(0, 1<<20), IsNil) // 1 MiB, page-aligned base

	a1, err := t.Alloc(32, 8)
	c.Assert(err, IsNil)
	a2, err := t.Alloc(48, 16)
	c.Assert(err, IsNil)
	a3, err := t.Alloc(96, 64)
	c.Assert(err, IsNil)

	t.Dealloc(a3, 96, 64)
	t.Dealloc(a2, 48, 16)
	t.Dealloc(a1, 32, 8)

	again, err := t.Alloc(32, 8)
	c.Assert(err, IsNil)
	c.Check(again, Equals, a1)
}

func (s *tlsfSuite) TestAlignmentInvariant(c *C) {
	t := alloc.NewTLSF()
	c.Assert(t.AddMemory(0, 1<<20), IsNil)
	addr, err := t.Alloc(100, 128)
	c.Assert(err, IsNil)
	c.Check(addr%128, Equals, uintptr(0))
}

func (s *tlsfSuite) TestFullRoundTripRestoresAvailable(c *C) {
	t := alloc.NewTLSF()
	c.Assert(t.AddMemory(0, 1<<20), IsNil)
	before := t.AvailableBytes()

	var addrs, sizes []uintptr
	for i := 0; i < 30; i++ {
		sz := uintptr(16 + i*7)
		a, err := t.Alloc(sz, 8)
		c.Assert(err, IsNil)
		addrs = append(addrs, a)
		sizes = append(sizes, sz)
	}
	for i := len(addrs) - 1; i >= 0; i-- {
		t.Dealloc(addrs[i], sizes[i], 8)
	}
	c.Check(t.UsedBytes(), Equals, uintptr(0))
	c.Check(t.AvailableBytes(), Equals, before)
}

func (s *tlsfSuite) TestOutOfMemory(c *C) {
	t := alloc.NewTLSF()
	c.Assert(t.AddMemory(0, 128), IsNil)
	_, err := t.Alloc(4096, 8)
	c.Assert(err, NotNil)
}
