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

package boot_test

import (
	"testing"

	. "gopkg.in/check.v1"

	"github.com/gokern/gokern/boot"
	"github.com/gokern/gokern/config"
)

func Test(t *testing.T) { TestingT(t) }

type bootSuite struct{}

var _ = Suite(&bootSuite{})

func (s *bootSuite) TestBootWiresSubsystems(c *C) {
	k, err := boot.Boot(config.Default())
	c.Assert(err, IsNil)
	defer k.Shutdown()

	c.Check(k.Sys.CPUs, HasLen, 1)
	c.Check(k.Phys.TotalFrames() > 0, Equals, true)
	c.Check(k.Registry.Init.PID, Equals, uint64(1))

	_, ok := k.Registry.Lookup(k.Registry.Init.PID)
	c.Check(ok, Equals, true)
}

func (s *bootSuite) TestBootRejectsInvalidConfig(c *C) {
	cfg := config.Default()
	cfg.SMP = 0
	_, err := boot.Boot(cfg)
	c.Assert(err, NotNil)
}

func (s *bootSuite) TestBootDaemonServesIntrospection(c *C) {
	k, err := boot.Boot(config.Default())
	c.Assert(err, IsNil)
	defer k.Shutdown()

	c.Assert(k.Daemon.Start("127.0.0.1:0"), IsNil)
	c.Check(k.Daemon.Addr(), NotNil)
}
