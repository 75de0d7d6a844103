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

package daemon

import (
	"errors"
	"net/http"
)

var errNotLoopback = errors.New("daemon: refusing to bind a non-loopback address")

type taskView struct {
	PID      uint64 `json:"pid"`
	IsLeader bool   `json:"is_leader"`
	ExitCode int    `json:"exit_code,omitempty"`
}

func tasksCmd(d *Daemon, r *http.Request) (int, interface{}) {
	var views []taskView
	for _, p := range d.Registry.List() {
		if p.Leader != nil {
			views = append(views, taskView{PID: p.PID, IsLeader: true, ExitCode: p.Leader.ExitCode()})
		}
		for _, t := range p.Tasks {
			views = append(views, taskView{PID: p.PID, IsLeader: false, ExitCode: t.ExitCode()})
		}
	}
	return http.StatusOK, map[string]interface{}{"tasks": views}
}

type processView struct {
	PID       uint64 `json:"pid"`
	ParentPID uint64 `json:"parent_pid"`
	Zombie    bool   `json:"zombie"`
	ExitCode  int    `json:"exit_code,omitempty"`
	Children  int    `json:"children"`
}

func processesCmd(d *Daemon, r *http.Request) (int, interface{}) {
	procs := d.Registry.List()
	views := make([]processView, 0, len(procs))
	for _, p := range procs {
		views = append(views, processView{
			PID:       p.PID,
			ParentPID: p.ParentPID,
			Zombie:    p.IsZombie(),
			ExitCode:  p.ExitCode,
			Children:  len(p.Children()),
		})
	}
	return http.StatusOK, map[string]interface{}{"processes": views}
}

type memView struct {
	TotalFrames uint `json:"total_frames"`
	FreeFrames  uint `json:"free_frames"`
	UsedFrames  uint `json:"used_frames"`
}

func memCmd(d *Daemon, r *http.Request) (int, interface{}) {
	total := d.Registry.Phys.TotalFrames()
	free := d.Registry.Phys.FreeFrames()
	return http.StatusOK, memView{TotalFrames: total, FreeFrames: free, UsedFrames: total - free}
}
