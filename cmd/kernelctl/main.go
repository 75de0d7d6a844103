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

// Command kernelctl is the operator-facing CLI for the daemon
// package's loopback introspection API: a jessevdk/go-flags command
// tree with one subcommand per daemon endpoint, rendering the JSON
// views as aligned tables with mattn/go-runewidth.
package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/jessevdk/go-flags"
	"github.com/mattn/go-runewidth"
)

type options struct {
	Addr string `short:"a" long:"addr" description:"daemon introspection address" default:"127.0.0.1:7777"`
}

var opts options

func (o options) baseURL() string {
	addr := o.Addr
	if !strings.HasPrefix(addr, "http://") {
		addr = "http://" + addr
	}
	return addr
}

func getJSON(url string, out interface{}) error {
	resp, err := http.Get(url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("kernelctl: %s: unexpected status %d", url, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// table renders rows under header, right-padding every column to the
// display width (not byte length) of its widest cell so columns line
// up even when a value contains a wide rune.
func table(header []string, rows [][]string) string {
	widths := make([]int, len(header))
	for i, h := range header {
		widths[i] = runewidth.StringWidth(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			if w := runewidth.StringWidth(cell); w > widths[i] {
				widths[i] = w
			}
		}
	}
	var b strings.Builder
	writeRow := func(row []string) {
		for i, cell := range row {
			b.WriteString(runewidth.FillRight(cell, widths[i]))
			if i < len(row)-1 {
				b.WriteString("  ")
			}
		}
		b.WriteByte('\n')
	}
	writeRow(header)
	for _, row := range rows {
		writeRow(row)
	}
	return b.String()
}

type tasksCmd struct{}

func (c *tasksCmd) Execute(args []string) error {
	var resp struct {
		Tasks []struct {
			PID      uint64 `json:"pid"`
			IsLeader bool   `json:"is_leader"`
			ExitCode int    `json:"exit_code"`
		} `json:"tasks"`
	}
	if err := getJSON(opts.baseURL()+"/v1/tasks", &resp); err != nil {
		return err
	}
	rows := make([][]string, 0, len(resp.Tasks))
	for _, t := range resp.Tasks {
		rows = append(rows, []string{
			fmt.Sprintf("%d", t.PID),
			fmt.Sprintf("%v", t.IsLeader),
			fmt.Sprintf("%d", t.ExitCode),
		})
	}
	fmt.Print(table([]string{"PID", "LEADER", "EXIT"}, rows))
	return nil
}

type psCmd struct{}

func (c *psCmd) Execute(args []string) error {
	var resp struct {
		Processes []struct {
			PID       uint64 `json:"pid"`
			ParentPID uint64 `json:"parent_pid"`
			Zombie    bool   `json:"zombie"`
			ExitCode  int    `json:"exit_code"`
			Children  int    `json:"children"`
		} `json:"processes"`
	}
	if err := getJSON(opts.baseURL()+"/v1/processes", &resp); err != nil {
		return err
	}
	rows := make([][]string, 0, len(resp.Processes))
	for _, p := range resp.Processes {
		rows = append(rows, []string{
			fmt.Sprintf("%d", p.PID),
			fmt.Sprintf("%d", p.ParentPID),
			fmt.Sprintf("%v", p.Zombie),
			fmt.Sprintf("%d", p.ExitCode),
			fmt.Sprintf("%d", p.Children),
		})
	}
	fmt.Print(table([]string{"PID", "PPID", "ZOMBIE", "EXIT", "CHILDREN"}, rows))
	return nil
}

type memCmd struct{}

func (c *memCmd) Execute(args []string) error {
	var resp struct {
		TotalFrames uint `json:"total_frames"`
		FreeFrames  uint `json:"free_frames"`
		UsedFrames  uint `json:"used_frames"`
	}
	if err := getJSON(opts.baseURL()+"/v1/mem", &resp); err != nil {
		return err
	}
	rows := [][]string{{
		fmt.Sprintf("%d", resp.TotalFrames),
		fmt.Sprintf("%d", resp.FreeFrames),
		fmt.Sprintf("%d", resp.UsedFrames),
	}}
	fmt.Print(table([]string{"TOTAL", "FREE", "USED"}, rows))
	return nil
}

func main() {
	parser := flags.NewParser(&opts, flags.Default)
	parser.AddCommand("tasks", "List kernel tasks", "List every task known to the scheduler.", &tasksCmd{})
	parser.AddCommand("ps", "List processes", "List every process known to the process registry.", &psCmd{})
	parser.AddCommand("mem", "Show physical memory occupancy", "Show total/free/used physical page frames.", &memCmd{})

	if _, err := parser.Parse(); err != nil {
		if flags.WroteHelp(err) {
			os.Exit(0)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
