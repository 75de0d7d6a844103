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

package sched

import (
	"sync"
	"sync/atomic"
	"time"

	"gopkg.in/tomb.v2"
)

// CPU is one SMP core: a current task, an idle task, and a
// lock-protected run queue (spec §4.2). Its preemption counter and
// IRQ-disable count gate whether a timer tick may request preemption
// of the currently running task (spec §5).
type CPU struct {
	ID int

	mu           sync.Mutex
	current      *Task
	idle         *Task
	rq           RunQueue
	switcher     Switcher
	timer        *Timer
	tick         int64
	preemptCtr   int32
	irqDisableN  int32
	preemptFlag  int32 // set by Tick, consumed by CheckPreempt
	tombInstance tomb.Tomb
}

// NewCPU constructs a CPU with the given run-queue policy
// (NewFIFOQueue/NewRoundRobinQueue/NewCFSQueue) and starts its idle
// task. The idle task's body loops calling resched so a CPU with
// nothing else ready keeps draining newly-readied tasks off wait
// queues and timers (the real analogue of "halt until next
// interrupt", simplified to a busy-poll since this simulation has no
// hardware idle instruction to issue).
func NewCPU(id int, rq RunQueue) *CPU {
	c := &CPU{ID: id, rq: rq, switcher: GoroutineSwitcher{}, timer: NewTimer()}
	c.idle = New(0, -1, nil)
	c.idle.setState(Running)
	c.idle.cpu = c
	c.current = c.idle
	go func() {
		for {
			c.resched(c.idle)
		}
	}()
	return c
}

// Enqueue makes t Ready on this CPU's run queue. Used both for
// freshly spawned tasks and for re-readying a task a wait queue or
// timer just woke.
func (c *CPU) Enqueue(t *Task) {
	c.mu.Lock()
	c.rq.Push(t)
	c.mu.Unlock()
}

// Spawn creates a new task bound to this CPU and enqueues it Ready;
// its body does not start running until the scheduler resumes it.
func (c *CPU) Spawn(processID uint64, priority int, fn func(*Task)) *Task {
	t := New(processID, priority, fn)
	t.cpu = c
	go func() {
		c.switcher.Park(t) // wait for our first turn
		if t.fn != nil {
			t.fn(t)
		}
		if t.State() != Exited {
			c.Exit(t, 0)
		}
	}()
	c.Enqueue(t)
	return t
}

// resched is the core scheduling decision (spec §4.2's Ready<->Running
// transition): pop the next ready task (or fall back to idle), make
// it current, resume its goroutine, and park the outgoing one unless
// it is itself the task chosen to continue running. outgoing must
// already have had its State set to whatever it's transitioning to
// (Ready/Blocked/Exited) by the caller before resched is invoked.
func (c *CPU) resched(outgoing *Task) {
	c.mu.Lock()
	next := c.rq.Pop()
	if next == nil {
		next = c.idle
	}
	prevPT := uintptr(0)
	if c.current != nil {
		prevPT = c.current.PageTableRoot
	}
	c.current = next
	c.mu.Unlock()

	next.setState(Running)
	next.mu.Lock()
	next.cpu = c
	switched := next.PageTableRoot != prevPT
	next.mu.Unlock()
	_ = switched // page-table-root switch is a HAL concern (spec §6); nothing to do in this simulation

	if next == outgoing {
		return
	}
	c.switcher.Resume(next)
	if outgoing.State() != Exited {
		c.switcher.Park(outgoing)
	}
}

// Yield implements the cooperative `yield` suspension point (spec
// §5): the calling task gives up the CPU voluntarily and rejoins the
// back of the run queue.
func Yield(t *Task) {
	c := t.cpu
	t.setState(Ready)
	c.Enqueue(t)
	c.resched(t)
}

// Sleep implements `sleep(duration)` (spec §5): the task blocks until
// duration ticks of this CPU's monotonic clock have elapsed.
func Sleep(t *Task, durationTicks int64) {
	c := t.cpu
	t.setState(Blocked)
	c.timer.Register(c.Now()+durationTicks, t, nil)
	c.resched(t)
	t.mu.Lock()
	t.timedOut = false
	t.mu.Unlock()
}

// Exit implements Running->Exited (spec §4.2): the task's state is
// set, its done channel closed so process.wait-style joins unblock,
// and the CPU is handed to another ready task.
func (c *CPU) Exit(t *Task, code int) {
	t.mu.Lock()
	t.exitCode = code
	t.mu.Unlock()
	t.setState(Exited)
	close(t.done)
	c.resched(t)
}

// Now returns this CPU's monotonic tick counter.
func (c *CPU) Now() int64 { return atomic.LoadInt64(&c.tick) }

// Tick advances this CPU's monotonic clock by one and is the timer-
// tick suspension point of spec §5 ("implicit: on timer tick while
// the preemption counter is zero"): due timers are swept and their
// tasks re-readied, and if the run-queue policy says the running
// task's quantum is spent, a preemption is requested for the next
// CheckPreempt call to carry out.
func (c *CPU) Tick() {
	now := atomic.AddInt64(&c.tick, 1)
	woken := c.timer.Sweep(now)
	for _, wt := range woken {
		wt.mu.Lock()
		wt.timedOut = true
		wt.mu.Unlock()
		wt.setState(Ready)
		c.Enqueue(wt)
	}

	c.mu.Lock()
	current := c.current
	preemptNow := current != c.idle && c.rq.Tick(current)
	c.mu.Unlock()
	if preemptNow {
		atomic.StoreInt32(&c.preemptFlag, 1)
	}
}

// DisablePreempt/EnablePreempt implement the nestable preemption
// counter of spec §5; CheckPreempt only acts while the counter is
// zero, exactly as "the scheduler runs only when both [preemption
// count and IRQ-disable count] are zero at the yield point."
func (c *CPU) DisablePreempt() { atomic.AddInt32(&c.preemptCtr, 1) }
func (c *CPU) EnablePreempt()  { atomic.AddInt32(&c.preemptCtr, -1) }
func (c *CPU) DisableIRQ()     { atomic.AddInt32(&c.irqDisableN, 1) }
func (c *CPU) EnableIRQ()      { atomic.AddInt32(&c.irqDisableN, -1) }

// CheckPreempt is the cooperative preemption point a long-running
// task body calls periodically (there being no way to suspend a Go
// goroutine involuntarily mid-statement, this is the idiomatic stand-
// in for a hardware timer interrupt landing on an instruction
// boundary): if Tick most recently flagged this task's quantum spent
// and neither preemption nor IRQs are disabled, it yields.
func (c *CPU) CheckPreempt(t *Task) {
	if atomic.LoadInt32(&c.preemptCtr) != 0 || atomic.LoadInt32(&c.irqDisableN) != 0 {
		return
	}
	if atomic.CompareAndSwapInt32(&c.preemptFlag, 1, 0) {
		Yield(t)
	}
}

// Current returns the task this CPU is presently running.
func (c *CPU) Current() *Task {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// RunQueueLen reports how many tasks are Ready on this CPU, for tests
// and the daemon's introspection API.
func (c *CPU) RunQueueLen() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rq.Len()
}

// System is a whole SMP machine: a fixed set of CPUs and a round-
// robin placement policy for newly spawned tasks (spec §6's SMP: CPU
// count configuration option). Its TickLoop goroutines are managed by
// a tomb.Tomb, each one a Tomb.Go goroutine stopped with Kill+Wait, so
// Shutdown stops every CPU's ticking deterministically instead of
// leaking goroutines.
type System struct {
	CPUs []*CPU
	t    tomb.Tomb
	next uint32
}

// NewRunQueue builds a fresh RunQueue for the named scheduler choice
// (spec §6: "scheduler choice: FIFO|RR|CFS"), defaulting to CFS for
// an unrecognised name.
func NewRunQueue(kind string) RunQueue {
	switch kind {
	case "FIFO":
		return NewFIFOQueue()
	case "RR":
		return NewRoundRobinQueue(defaultTimeSlice)
	default:
		return NewCFSQueue()
	}
}

// NewSystem constructs an SMP machine of n CPUs, each running its own
// instance of the named scheduler policy.
func NewSystem(n int, schedulerKind string) *System {
	sys := &System{}
	for i := 0; i < n; i++ {
		sys.CPUs = append(sys.CPUs, NewCPU(i, NewRunQueue(schedulerKind)))
	}
	return sys
}

// Spawn places a new task on a CPU chosen round-robin across the
// system (spec §5: "a task may be moved to another CPU's run queue
// only by acquiring that CPU's lock"; initial placement needs no such
// lock dance since the task isn't visible to any CPU yet).
func (s *System) Spawn(processID uint64, priority int, fn func(*Task)) *Task {
	idx := atomic.AddUint32(&s.next, 1) % uint32(len(s.CPUs))
	return s.CPUs[idx].Spawn(processID, priority, fn)
}

// Migrate moves a Ready task from its current CPU's run queue onto
// dst, acquiring dst's lock as spec §5 requires. It is a no-op if t
// is not presently sitting Ready (Running/Blocked/Exited tasks are
// not movable by this call).
func (s *System) Migrate(t *Task, dst *CPU) {
	t.mu.Lock()
	t.cpu = dst
	t.mu.Unlock()
	dst.Enqueue(t)
}

// StartTickLoop runs a background goroutine per CPU advancing its
// monotonic clock every period of wall-clock time, managed by the
// System's tomb so Shutdown stops all of them together. Tests that
// need deterministic timing call CPU.Tick directly instead.
func (s *System) StartTickLoop(period time.Duration) {
	for _, cpu := range s.CPUs {
		cpu := cpu
		s.t.Go(func() error {
			ticker := time.NewTicker(period)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					cpu.Tick()
				case <-s.t.Dying():
					return nil
				}
			}
		})
	}
}

// Shutdown stops every tick-loop goroutine started by StartTickLoop
// and waits for them to exit.
func (s *System) Shutdown() error {
	s.t.Kill(nil)
	return s.t.Wait()
}
