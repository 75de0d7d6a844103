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

// Package config loads the kernel's boot configuration (spec §6's
// recognised option set) from either a YAML descriptor or a flat
// key=value legacy/kernel-command-line file.
package config

import (
	"strconv"

	"github.com/mvo5/goconfigparser"
	"golang.org/x/sys/unix"
	"gopkg.in/yaml.v2"

	"github.com/gokern/gokern/kerrno"
)

// Config is spec §6's "recognised options at build/init time".
type Config struct {
	SMP             int    `yaml:"smp"`
	TaskStackSize   uint64 `yaml:"task_stack_size"`
	UserHeapBase    uint64 `yaml:"user_heap_base"`
	UserHeapMax     uint64 `yaml:"user_heap_max"`
	UserStackTop    uint64 `yaml:"user_stack_top"`
	UserStackMax    uint64 `yaml:"user_stack_max"`
	FDTableCapacity int    `yaml:"fd_table_capacity"`
	Scheduler       string `yaml:"scheduler"`
	DefaultAlloc    string `yaml:"default_allocator"`
	PageSize        int    `yaml:"page_size"`
	JournalEnable   bool   `yaml:"journal_enable"`
}

// Default returns the baseline configuration a kernel boots with when
// no descriptor overrides it: a single CPU, the CFS scheduler, the
// buddy allocator, and the host's native page size (queried via
// unix.Getpagesize()).
func Default() Config {
	return Config{
		SMP:             1,
		TaskStackSize:   64 * 1024,
		UserHeapBase:    0x10000000,
		UserHeapMax:     0x40000000,
		UserStackTop:    0x7fff00000000,
		UserStackMax:    8 * 1024 * 1024,
		FDTableCapacity: 256,
		Scheduler:       "CFS",
		DefaultAlloc:    "buddy",
		PageSize:        unix.Getpagesize(),
		JournalEnable:   false,
	}
}

// LoadYAML parses a YAML boot descriptor on top of Default(), so a
// descriptor only needs to name the options it overrides.
func LoadYAML(data []byte) (Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, kerrno.Wrap(kerrno.InvalidInput, err)
	}
	return cfg, nil
}

// LoadLegacy parses a flat key=value file with
// github.com/mvo5/goconfigparser, the format a boot loader hands the
// kernel as an alternative to a YAML descriptor. Unrecognised keys are
// ignored; missing keys keep their Default() value.
func LoadLegacy(text string) (Config, error) {
	cfg := Default()
	cp := goconfigparser.New()
	cp.AllowNoSectionHeader = true
	if err := cp.ReadString(text); err != nil {
		return Config{}, kerrno.Wrap(kerrno.InvalidInput, err)
	}

	if v, err := cp.Get("", "smp"); err == nil {
		if n, perr := strconv.Atoi(v); perr == nil {
			cfg.SMP = n
		}
	}
	if v, err := cp.Get("", "task_stack_size"); err == nil {
		if n, perr := strconv.ParseUint(v, 10, 64); perr == nil {
			cfg.TaskStackSize = n
		}
	}
	if v, err := cp.Get("", "user_heap_base"); err == nil {
		if n, perr := strconv.ParseUint(v, 0, 64); perr == nil {
			cfg.UserHeapBase = n
		}
	}
	if v, err := cp.Get("", "user_heap_max"); err == nil {
		if n, perr := strconv.ParseUint(v, 0, 64); perr == nil {
			cfg.UserHeapMax = n
		}
	}
	if v, err := cp.Get("", "user_stack_top"); err == nil {
		if n, perr := strconv.ParseUint(v, 0, 64); perr == nil {
			cfg.UserStackTop = n
		}
	}
	if v, err := cp.Get("", "user_stack_max"); err == nil {
		if n, perr := strconv.ParseUint(v, 0, 64); perr == nil {
			cfg.UserStackMax = n
		}
	}
	if v, err := cp.Get("", "fd_table_capacity"); err == nil {
		if n, perr := strconv.Atoi(v); perr == nil {
			cfg.FDTableCapacity = n
		}
	}
	if v, err := cp.Get("", "scheduler"); err == nil {
		cfg.Scheduler = v
	}
	if v, err := cp.Get("", "default_allocator"); err == nil {
		cfg.DefaultAlloc = v
	}
	if v, err := cp.Get("", "page_size"); err == nil {
		if n, perr := strconv.Atoi(v); perr == nil {
			cfg.PageSize = n
		}
	}
	if v, err := cp.Get("", "journal_enable"); err == nil {
		cfg.JournalEnable = v == "true" || v == "1"
	}
	return cfg, nil
}

// Validate rejects a configuration spec §6 cannot act on: a
// non-positive CPU count, an unrecognised scheduler or allocator name,
// or a page size that is not a power of two.
func Validate(cfg Config) error {
	if cfg.SMP < 1 {
		return kerrno.New(kerrno.InvalidInput, "config: smp must be >= 1, got %d", cfg.SMP)
	}
	switch cfg.Scheduler {
	case "FIFO", "RR", "CFS":
	default:
		return kerrno.New(kerrno.InvalidInput, "config: unrecognised scheduler %q", cfg.Scheduler)
	}
	switch cfg.DefaultAlloc {
	case "buddy", "slab", "tlsf", "mimalloc", "firstfit", "bestfit", "worstfit":
	default:
		return kerrno.New(kerrno.InvalidInput, "config: unrecognised default_allocator %q", cfg.DefaultAlloc)
	}
	if cfg.PageSize <= 0 || cfg.PageSize&(cfg.PageSize-1) != 0 {
		return kerrno.New(kerrno.InvalidInput, "config: page_size %d is not a power of two", cfg.PageSize)
	}
	return nil
}
