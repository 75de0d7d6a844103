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

// Package kerntest provides the gocheck test fixtures shared across
// this module's suites: an embeddable fixture offering deferred
// cleanup functions so each suite doesn't hand-roll teardown
// bookkeeping.
package kerntest

import (
	. "gopkg.in/check.v1"
)

// BaseTest is embedded by suite types; call SetUpTest/TearDownTest
// from the suite's own methods (or rely on gocheck calling them
// directly if BaseTest is the only embedded fixture).
type BaseTest struct {
	cleanups []func()
}

// SetUpTest resets the cleanup list for a fresh test.
func (b *BaseTest) SetUpTest(c *C) {
	b.cleanups = nil
}

// TearDownTest runs cleanups in LIFO order, the same order defers
// would run in.
func (b *BaseTest) TearDownTest(c *C) {
	for i := len(b.cleanups) - 1; i >= 0; i-- {
		b.cleanups[i]()
	}
	b.cleanups = nil
}

// AddCleanup registers f to run when the current test tears down.
func (b *BaseTest) AddCleanup(f func()) {
	b.cleanups = append(b.cleanups, f)
}
