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

import "sync"

// Deadlines are expressed in monotonic ticks (spec §5: "deadline
// expressed in monotonic ticks"), not wall-clock time, so timer tests
// are driven by an explicit tick counter rather than real sleeps.

// TimerEntry is the handle Register returns; pass it to Cancel to
// remove a deadline before it fires.
type TimerEntry struct {
	deadline int64
	task     *Task
	queue    *WaitQueue // wait queue to unlink task from on fire, if any
	fired    bool
}

// Timer is the sorted per-CPU deadline list spec §4.2 names: "a
// sorted deadline list per CPU, consulted on timer tick ... woken
// when the monotonic clock reaches it ... cancellation is by removal
// under the timer list's lock."
type Timer struct {
	mu      sync.Mutex
	entries []*TimerEntry
}

func NewTimer() *Timer { return &Timer{} }

// Register inserts a new deadline in sorted order and returns its
// handle. queue, if non-nil, is the wait queue the associated task is
// blocked on; Sweep removes the task from it when the deadline fires
// so a sleeping task and a bounded wait share one mechanism.
func (tm *Timer) Register(deadline int64, task *Task, queue *WaitQueue) *TimerEntry {
	e := &TimerEntry{deadline: deadline, task: task, queue: queue}
	tm.mu.Lock()
	i := 0
	for i < len(tm.entries) && tm.entries[i].deadline <= deadline {
		i++
	}
	tm.entries = append(tm.entries, nil)
	copy(tm.entries[i+1:], tm.entries[i:])
	tm.entries[i] = e
	tm.mu.Unlock()
	return e
}

// Cancel removes entry before it fires, reporting whether it was
// still pending (false if it had already fired or was never found).
func (tm *Timer) Cancel(entry *TimerEntry) bool {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	for i, e := range tm.entries {
		if e == entry {
			tm.entries = append(tm.entries[:i], tm.entries[i+1:]...)
			return !e.fired
		}
	}
	return false
}

// Sweep pops every entry whose deadline is <= now, unlinks each
// associated task from its wait queue (if any) and returns them in
// deadline order so the caller (the owning CPU's tick handler) can
// re-ready them and mark the wake as a timeout rather than a normal
// notify.
func (tm *Timer) Sweep(now int64) []*Task {
	tm.mu.Lock()
	i := 0
	for i < len(tm.entries) && tm.entries[i].deadline <= now {
		i++
	}
	due := tm.entries[:i]
	tm.entries = tm.entries[i:]
	tm.mu.Unlock()

	woken := make([]*Task, 0, len(due))
	for _, e := range due {
		e.fired = true
		if e.queue != nil {
			e.queue.mu.Lock()
			e.queue.remove(e.task)
			e.queue.mu.Unlock()
		}
		e.task.mu.Lock()
		e.task.waitQueue = nil
		e.task.mu.Unlock()
		woken = append(woken, e.task)
	}
	return woken
}

func (tm *Timer) Len() int {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	return len(tm.entries)
}
