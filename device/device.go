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

// Package device declares spec §6's device and HAL interfaces: the
// contracts a real block/net/char device and the platform's hardware
// abstraction layer would satisfy. Concrete drivers are out of scope
// (spec.md §1 names device drivers as external collaborators); this
// package only defines the boundary the rest of the kernel core
// programs against, plus the in-memory implementations the test suite
// uses to stand in for real hardware.
package device

import "github.com/gokern/gokern/kerrno"

// BlockDevice is spec §6's block device contract.
type BlockDevice interface {
	BlockSize() uint32
	BlockCount() uint64
	ReadBlock(index uint64, buf []byte) error
	WriteBlock(index uint64, buf []byte) error
}

// NetDevice is spec §6's network device contract.
type NetDevice interface {
	MACAddress() [6]byte
	Transmit(frame []byte) error
	Receive() ([]byte, error)
	RecycleTxBuffers()
	RecycleRxBuffer(frame []byte)
}

// CharDevice is spec §6's character device contract: a file-like, so
// it is satisfied by anything with Read/Write of this shape (most
// commonly *vfs.File itself; this interface exists so device-facing
// code does not need to import vfs just to name the contract).
type CharDevice interface {
	Read(buf []byte) (int, error)
	Write(buf []byte) (int, error)
}

// InterruptController is spec §6's interrupt controller contract.
type InterruptController interface {
	RegisterHandler(irq uint32, handler func())
	RegisterWaker(irq uint32, wake func())
	Enable(irq uint32)
	Disable(irq uint32)
	EOI(irq uint32)
}

// Timer is spec §6's timer contract.
type Timer interface {
	CurrentTicks() uint64
	SetOneshot(deadline uint64)
}

// HAL is spec §6's platform hardware-abstraction-layer contract.
type HAL interface {
	PhysToVirt(phys uintptr) uintptr
	VirtToPhys(virt uintptr) uintptr
	PageSize() uintptr
	WritePageTableRoot(root uintptr)
	ReadThreadPointer() uintptr
	WriteThreadPointer(tp uintptr)
}

// MemBlockDevice is an in-memory BlockDevice, the test/simulation
// stand-in for a real disk.
type MemBlockDevice struct {
	blockSize uint32
	data      []byte
}

// NewMemBlockDevice creates a zero-filled in-memory block device of
// blockCount blocks, each blockSize bytes.
func NewMemBlockDevice(blockSize uint32, blockCount uint64) *MemBlockDevice {
	return &MemBlockDevice{blockSize: blockSize, data: make([]byte, uint64(blockSize)*blockCount)}
}

func (d *MemBlockDevice) BlockSize() uint32  { return d.blockSize }
func (d *MemBlockDevice) BlockCount() uint64 { return uint64(len(d.data)) / uint64(d.blockSize) }

func (d *MemBlockDevice) bounds(index uint64, buf []byte) (int, int, error) {
	if uint32(len(buf)) != d.blockSize {
		return 0, 0, kerrno.New(kerrno.InvalidInput, "block device: buffer size %d != block size %d", len(buf), d.blockSize)
	}
	if index >= d.BlockCount() {
		return 0, 0, kerrno.New(kerrno.InvalidInput, "block device: index %d out of range (%d blocks)", index, d.BlockCount())
	}
	start := int(index * uint64(d.blockSize))
	return start, start + int(d.blockSize), nil
}

// ReadBlock copies block index into buf, which must be exactly
// BlockSize() bytes.
func (d *MemBlockDevice) ReadBlock(index uint64, buf []byte) error {
	start, end, err := d.bounds(index, buf)
	if err != nil {
		return err
	}
	copy(buf, d.data[start:end])
	return nil
}

// WriteBlock copies buf into block index.
func (d *MemBlockDevice) WriteBlock(index uint64, buf []byte) error {
	start, end, err := d.bounds(index, buf)
	if err != nil {
		return err
	}
	copy(d.data[start:end], buf)
	return nil
}
