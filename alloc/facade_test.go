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
	"sync"

	. "gopkg.in/check.v1"

	"github.com/gokern/gokern/alloc"
)

type facadeSuite struct{}

var _ = Suite(&facadeSuite{})

func (s *facadeSuite) TestEachBackendServesAllocDealloc(c *C) {
	kinds := []alloc.Backend{
		alloc.BackendFirstFit, alloc.BackendBestFit, alloc.BackendWorstFit,
		alloc.BackendBuddy, alloc.BackendSlab, alloc.BackendTLSF, alloc.BackendMimalloc,
	}
	for _, kind := range kinds {
		f := alloc.NewFacade(kind)
		c.Assert(f.AddMemory(0, 1<<20), IsNil, Commentf("backend=%s", kind))
		addr, err := f.Alloc(64, 8)
		c.Assert(err, IsNil, Commentf("backend=%s", kind))
		c.Check(addr%8, Equals, uintptr(0), Commentf("backend=%s", kind))
		f.Dealloc(addr, 64, 8)
		c.Check(f.UsedBytes(), Equals, uintptr(0), Commentf("backend=%s", kind))
	}
}

func (s *facadeSuite) TestUnknownBackendFallsBackToTLSF(c *C) {
	f := alloc.NewFacade(alloc.Backend("bogus"))
	c.Assert(f.AddMemory(0, 1<<16), IsNil)
	_, err := f.Alloc(32, 8)
	c.Assert(err, IsNil)
}

func (s *facadeSuite) TestConcurrentAllocDealloc(c *C) {
	f := alloc.NewFacade(alloc.BackendTLSF)
	c.Assert(f.AddMemory(0, 4<<20), IsNil)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 64; j++ {
				addr, err := f.Alloc(32, 8)
				if err != nil {
					continue
				}
				f.Dealloc(addr, 32, 8)
			}
		}()
	}
	wg.Wait()
	c.Check(f.UsedBytes(), Equals, uintptr(0))
}
