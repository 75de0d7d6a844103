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

package kerrno_test

import (
	"errors"
	"testing"

	. "gopkg.in/check.v1"

	"github.com/gokern/gokern/kerrno"
)

func Test(t *testing.T) { TestingT(t) }

type kerrnoSuite struct{}

var _ = Suite(&kerrnoSuite{})

func (s *kerrnoSuite) TestNewAndKindOf(c *C) {
	err := kerrno.New(kerrno.NotFound, "no such path %q", "/a/b")
	c.Check(err, ErrorMatches, `no such path "/a/b"`)

	k, ok := kerrno.KindOf(err)
	c.Assert(ok, Equals, true)
	c.Check(k, Equals, kerrno.NotFound)
}

func (s *kerrnoSuite) TestIs(c *C) {
	err := kerrno.New(kerrno.AlreadyExists, "dup")
	c.Check(kerrno.Is(err, kerrno.AlreadyExists), Equals, true)
	c.Check(kerrno.Is(err, kerrno.NotFound), Equals, false)
	c.Check(kerrno.Is(errors.New("plain"), kerrno.NotFound), Equals, false)
}

func (s *kerrnoSuite) TestWrapPreservesCause(c *C) {
	cause := errors.New("underlying disk fault")
	err := kerrno.Wrap(kerrno.Fault, cause)
	c.Check(kerrno.Is(err, kerrno.Fault), Equals, true)
	c.Check(errors.Unwrap(err), Equals, cause)
}

func (s *kerrnoSuite) TestErrnoMapping(c *C) {
	c.Check(kerrno.Errno(nil), Equals, int64(0))
	c.Check(kerrno.Errno(kerrno.New(kerrno.ResourceExhausted, "oom")), Equals, int64(-12))
	c.Check(kerrno.Errno(kerrno.New(kerrno.NotFound, "x")), Equals, int64(-2))
	c.Check(kerrno.Errno(errors.New("untyped")), Equals, int64(-22))
}
