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

package logger_test

import (
	"bytes"
	"strings"
	"testing"

	. "gopkg.in/check.v1"

	"github.com/gokern/gokern/logger"
)

func Test(t *testing.T) { TestingT(t) }

type loggerSuite struct {
	buf *bytes.Buffer
	old logger.Logger
}

var _ = Suite(&loggerSuite{})

func (s *loggerSuite) SetUpTest(c *C) {
	s.buf = &bytes.Buffer{}
	s.old = logger.SetLogger(logger.New(s.buf, logger.FlagTrace))
}

func (s *loggerSuite) TearDownTest(c *C) {
	logger.SetLogger(s.old)
}

func (s *loggerSuite) TestNoticef(c *C) {
	logger.Noticef("hello %d", 42)
	c.Check(strings.Contains(s.buf.String(), "NOTICE: hello 42"), Equals, true)
}

func (s *loggerSuite) TestDebugRespectsFlag(c *C) {
	logger.SetLogger(logger.New(s.buf, logger.FlagNotice))
	logger.Debugf("should not appear")
	c.Check(s.buf.String(), Equals, "")
}

func (s *loggerSuite) TestPanicfPanics(c *C) {
	c.Assert(func() { logger.Panicf("boom %d", 1) }, PanicMatches, "boom 1")
}
