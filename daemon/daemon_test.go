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

package daemon_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	. "gopkg.in/check.v1"

	"github.com/gokern/gokern/addrspace"
	"github.com/gokern/gokern/daemon"
	"github.com/gokern/gokern/process"
	"github.com/gokern/gokern/sched"
)

func Test(t *testing.T) { TestingT(t) }

type daemonSuite struct{}

var _ = Suite(&daemonSuite{})

func newFixture(c *C) (*daemon.Daemon, *process.Registry) {
	sys := sched.NewSystem(1, "FIFO")
	phys := addrspace.NewPhysMem(64)
	reg := process.NewRegistry(sys, phys, 8)
	return daemon.New(sys, reg), reg
}

func (s *daemonSuite) TestTasksEndpointListsSpawnedLeader(c *C) {
	d, reg := newFixture(c)
	headers := []addrspace.ProgramHeader{{VAddr: 0x1000, MemSize: 0x1000, Read: true, Exec: true}}
	ran := make(chan struct{})
	_, err := reg.Spawn(0, headers, 0x1000, 0x200000, 0x1000, func(p *process.Process, t *sched.Task) int {
		close(ran)
		return 0
	})
	c.Assert(err, IsNil)
	<-ran

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/tasks", nil)
	d.ServeHTTP(rec, req)
	c.Assert(rec.Code, Equals, http.StatusOK)

	var out struct {
		Tasks []map[string]interface{} `json:"tasks"`
	}
	c.Assert(json.Unmarshal(rec.Body.Bytes(), &out), IsNil)
	c.Check(len(out.Tasks) >= 1, Equals, true)
}

func (s *daemonSuite) TestProcessesEndpointIncludesInit(c *C) {
	d, _ := newFixture(c)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/processes", nil)
	d.ServeHTTP(rec, req)
	c.Assert(rec.Code, Equals, http.StatusOK)

	var out struct {
		Processes []map[string]interface{} `json:"processes"`
	}
	c.Assert(json.Unmarshal(rec.Body.Bytes(), &out), IsNil)
	c.Check(len(out.Processes), Equals, 1)
}

func (s *daemonSuite) TestMemEndpointReportsFrameCounts(c *C) {
	d, _ := newFixture(c)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/mem", nil)
	d.ServeHTTP(rec, req)
	c.Assert(rec.Code, Equals, http.StatusOK)

	var out struct {
		TotalFrames uint `json:"total_frames"`
		FreeFrames  uint `json:"free_frames"`
		UsedFrames  uint `json:"used_frames"`
	}
	c.Assert(json.Unmarshal(rec.Body.Bytes(), &out), IsNil)
	c.Check(out.TotalFrames, Equals, uint(64))
	c.Check(out.UsedFrames, Equals, out.TotalFrames-out.FreeFrames)
}

func (s *daemonSuite) TestUnsupportedMethodReturns405(c *C) {
	d, _ := newFixture(c)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/mem", nil)
	d.ServeHTTP(rec, req)
	c.Check(rec.Code, Equals, http.StatusMethodNotAllowed)
}
