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

package alloc

import (
	. "gopkg.in/check.v1"
)

type mimallocSuite struct{}

var _ = Suite(&mimallocSuite{})

// TestScenarioS3 reproduces spec.md scenario S3 verbatim: queueID must
// be consistent with upperSize, and upperSize must be idempotent.
func (s *mimallocSuite) TestScenarioS3(c *C) {
	sizes := []uintptr{8, 16, 24, 40, 64, 128, 256, 512, 4096, 65535, 262145}
	for _, sz := range sizes {
		upper := upperSize(sz)
		c.Check(upper >= sz, Equals, true, Commentf("size=%d upper=%d", sz, upper))
		c.Check(queueID(upper), Equals, queueID(sz), Commentf("size=%d", sz))
		c.Check(upperSize(upper), Equals, upper, Commentf("size=%d upper=%d", sz, upper))
	}
}

func (s *mimallocSuite) TestAllocDeallocRoundTrip(c *C) {
	m := NewMimalloc()
	c.Assert(m.AddMemory(0, 8*1024*1024), IsNil)
	before := m.AvailableBytes()

	var addrs []uintptr
	var sizes []uintptr
	for i := 0; i < 50; i++ {
		sz := uintptr(16 + i*3)
		a, err := m.Alloc(sz, 8)
		c.Assert(err, IsNil)
		addrs = append(addrs, a)
		sizes = append(sizes, sz)
	}
	for i, a := range addrs {
		m.Dealloc(a, sizes[i], 8)
	}
	c.Check(m.UsedBytes(), Equals, uintptr(0))
	c.Check(m.AvailableBytes(), Equals, before)
}

func (s *mimallocSuite) TestSmallBlockReuse(c *C) {
	m := NewMimalloc()
	c.Assert(m.AddMemory(0, 8*1024*1024), IsNil)

	a1, err := m.Alloc(32, 8)
	c.Assert(err, IsNil)
	m.Dealloc(a1, 32, 8)

	a2, err := m.Alloc(32, 8)
	c.Assert(err, IsNil)
	c.Check(a2, Equals, a1)
}

func (s *mimallocSuite) TestHugeAllocation(c *C) {
	m := NewMimalloc()
	c.Assert(m.AddMemory(0, 16*1024*1024), IsNil)

	addr, err := m.Alloc(5*1024*1024, 8)
	c.Assert(err, IsNil)
	c.Check(addr%8, Equals, uintptr(0))
}

func (s *mimallocSuite) TestOutOfMemory(c *C) {
	m := NewMimalloc()
	c.Assert(m.AddMemory(0, 64*1024), IsNil)
	// 64 KiB holds exactly 2048 blocks of 32 bytes; the 2049th must fail.
	for i := 0; i < 2049; i++ {
		if _, err := m.Alloc(32, 8); err != nil {
			return
		}
	}
	c.Fatal("expected out-of-memory before exhausting 2049 iterations")
}
