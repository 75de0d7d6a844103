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

package pagealloc_test

import (
	"testing"

	. "gopkg.in/check.v1"

	"github.com/gokern/gokern/pagealloc"
)

func Test(t *testing.T) { TestingT(t) }

type bitmapSuite struct{}

var _ = Suite(&bitmapSuite{})

// TestScenarioS1 reproduces spec.md scenario S1 verbatim.
func (s *bitmapSuite) TestScenarioS1(c *C) {
	b := pagealloc.New(4096)
	b.Insert(0, 4096)
	b.Remove(3, 6)

	i, ok := b.AllocContiguous(1, 1)
	c.Assert(ok, Equals, true)
	c.Check(i, Equals, uint(0))

	i, ok = b.AllocContiguous(2, 0)
	c.Assert(ok, Equals, true)
	c.Check(i, Equals, uint(1))

	i, ok = b.AllocContiguous(2, 3)
	c.Assert(ok, Equals, true)
	c.Check(i, Equals, uint(8))
}

func (s *bitmapSuite) TestDeallocReturnsLowestFree(c *C) {
	b := pagealloc.New(16)
	b.Insert(0, 16)
	a1, _ := b.Alloc()
	a2, _ := b.Alloc()
	a3, _ := b.Alloc()
	c.Check([]uint{a1, a2, a3}, DeepEquals, []uint{0, 1, 2})

	b.Dealloc(a1)
	b.Dealloc(a2)
	b.Dealloc(a3)

	next, ok := b.Alloc()
	c.Assert(ok, Equals, true)
	c.Check(next, Equals, uint(0))
}

func (s *bitmapSuite) TestIsEmpty(c *C) {
	b := pagealloc.New(8)
	c.Check(b.IsEmpty(), Equals, true)
	b.Insert(0, 8)
	c.Check(b.IsEmpty(), Equals, false)
	b.Remove(0, 8)
	c.Check(b.IsEmpty(), Equals, true)
}

func (s *bitmapSuite) TestAllocExhaustion(c *C) {
	b := pagealloc.New(2)
	b.Insert(0, 2)
	_, ok := b.Alloc()
	c.Assert(ok, Equals, true)
	_, ok = b.Alloc()
	c.Assert(ok, Equals, true)
	_, ok = b.Alloc()
	c.Check(ok, Equals, false)
}
