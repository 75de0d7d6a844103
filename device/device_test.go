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

package device_test

import (
	"bytes"
	"testing"

	. "gopkg.in/check.v1"

	"github.com/gokern/gokern/device"
)

func Test(t *testing.T) { TestingT(t) }

type deviceSuite struct{}

var _ = Suite(&deviceSuite{})

func (s *deviceSuite) TestReadWriteBlockRoundTrip(c *C) {
	d := device.NewMemBlockDevice(512, 4)
	c.Assert(d.BlockCount(), Equals, uint64(4))

	want := bytes.Repeat([]byte{0xAB}, 512)
	c.Assert(d.WriteBlock(2, want), IsNil)

	got := make([]byte, 512)
	c.Assert(d.ReadBlock(2, got), IsNil)
	c.Check(got, DeepEquals, want)
}

func (s *deviceSuite) TestReadBlockRejectsWrongBufferSize(c *C) {
	d := device.NewMemBlockDevice(512, 4)
	err := d.ReadBlock(0, make([]byte, 10))
	c.Assert(err, ErrorMatches, ".*buffer size.*")
}

func (s *deviceSuite) TestReadBlockRejectsOutOfRangeIndex(c *C) {
	d := device.NewMemBlockDevice(512, 4)
	err := d.ReadBlock(4, make([]byte, 512))
	c.Assert(err, ErrorMatches, ".*out of range.*")
}
