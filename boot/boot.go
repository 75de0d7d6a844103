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

// Package boot sequences the core subsystems into one running kernel:
// the scheduler's SMP system, physical memory, the process registry,
// an in-memory VFS root, and the introspection daemon, with physical
// memory built before the process registry that allocates from it.
package boot

import (
	"time"

	"github.com/coreos/go-systemd/daemon"

	"github.com/gokern/gokern/addrspace"
	"github.com/gokern/gokern/config"
	kerndaemon "github.com/gokern/gokern/daemon"
	"github.com/gokern/gokern/logger"
	"github.com/gokern/gokern/process"
	"github.com/gokern/gokern/sched"
	"github.com/gokern/gokern/vfs"
)

// Kernel is the live, wired-together set of subsystems a boot
// sequence produces. Every field is a fully usable handle a caller
// (a syscall façade, a test harness, cmd/kernelctl's daemon target)
// can drive directly.
type Kernel struct {
	Config   config.Config
	Sys      *sched.System
	Phys     *addrspace.PhysMem
	Registry *process.Registry
	VFS      *vfs.VFS
	Daemon   *kerndaemon.Daemon
}

// tickPeriod is the wall-clock interval StartTickLoop drives the
// per-CPU monotonic clocks at. A real kernel ties this to a hardware
// timer's IRQ rate (spec §6's Timer device); this simulation picks a
// fixed period fine enough for sched_test.go-style RR fairness checks
// without busy-spinning the host.
const tickPeriod = time.Millisecond

// maxBootFrames bounds the physical memory pool Boot allocates
// regardless of how large UserHeapMax/UserStackMax are configured:
// those ceilings describe the virtual layout a region may grow into,
// not how much of it a simulation needs backed by real bytes
// up front (every other fixture in this module sizes PhysMem in the
// tens to low thousands of frames; Boot follows the same scale).
const maxBootFrames = 4096

// numPhysFrames sizes the physical memory pool boot hands to the
// process registry: enough frames to back the configured task/FD
// bookkeeping overhead, capped at maxBootFrames.
func numPhysFrames(cfg config.Config) uint {
	pages := uint64(cfg.FDTableCapacity*2 + cfg.SMP*64)
	if pages < 256 {
		pages = 256
	}
	if pages > maxBootFrames {
		pages = maxBootFrames
	}
	return uint(pages)
}

// Boot brings up a kernel from cfg: validates it, constructs the SMP
// scheduler and starts its tick loops, builds the shared physical
// memory pool and process registry, mounts an in-memory VFS root, and
// constructs the introspection daemon without starting it (the caller
// calls Kernel.Daemon.Start to listen). It notifies a supervising
// init system (systemd, if present) that the kernel is ready once
// every subsystem has been wired up.
func Boot(cfg config.Config) (*Kernel, error) {
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}

	sys := sched.NewSystem(cfg.SMP, cfg.Scheduler)
	sys.StartTickLoop(tickPeriod)

	phys := addrspace.NewPhysMem(numPhysFrames(cfg))
	registry := process.NewRegistry(sys, phys, cfg.FDTableCapacity)

	fs := vfs.New(vfs.NewMemFS())

	d := kerndaemon.New(sys, registry)

	k := &Kernel{
		Config:   cfg,
		Sys:      sys,
		Phys:     phys,
		Registry: registry,
		VFS:      fs,
		Daemon:   d,
	}

	logger.Noticef("boot: %d CPU(s), %s scheduler, %d page frames", cfg.SMP, cfg.Scheduler, phys.TotalFrames())

	if sent, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		logger.Debugf("boot: sdnotify failed: %v", err)
	} else if sent {
		logger.Debugf("boot: notified supervisor READY=1")
	}

	return k, nil
}

// Shutdown tears the kernel down: stops every CPU's tick loop and
// closes the introspection daemon's listener, if it was started.
func (k *Kernel) Shutdown() error {
	if err := k.Daemon.Stop(); err != nil {
		return err
	}
	return k.Sys.Shutdown()
}
