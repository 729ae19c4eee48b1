// Copyright 2016 The Vanadium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package futexsync provides a mutex and condition variable built directly
// on a shared futex.Table, in the style of nsync's Mu and CV but with the
// wait queue itself owned by the Table rather than a private spinlock and
// doubly-linked list.
package futexsync

import (
	"sync/atomic"

	"github.com/kernelsync/futex"
)

// Lock-word states for Mutex.state. Unlike nsync.Mu, which layers a
// muWaiting bit and a muDesigWaker optimization bit onto the lock bit, a
// Mutex here only needs three states, because Table.Wait already does the
// atomic "check value, enqueue" step that nsync's own spinlock exists to
// provide.
const (
	mutexUnlocked      uint32 = 0
	mutexLocked        uint32 = 1
	mutexLockedWaiters uint32 = 2
)

// Mutex is a mutual-exclusion lock whose contended path parks through a
// futex.Table instead of a private waiter list. It is the classic
// three-state futex mutex (free / held / held-with-waiters), generalized
// from nsync/mu.go's muLock/muWaiting bit layout onto a Table-backed queue.
//
// A Mutex can be "free" or held by a single goroutine. A goroutine that
// acquires it must release it; it is not legal to Unlock a Mutex from a
// different goroutine than the one that locked it.
type Mutex struct {
	state uint32
	table *futex.Table
}

// NewMutex returns an unlocked Mutex whose contended path is arbitrated by
// table.
func NewMutex(table *futex.Table) *Mutex {
	return &Mutex{table: table}
}

// TryLock attempts to acquire m without blocking.
func (m *Mutex) TryLock() bool {
	return atomic.CompareAndSwapUint32(&m.state, mutexUnlocked, mutexLocked)
}

// Lock blocks until m is free, then acquires it.
func (m *Mutex) Lock() {
	if atomic.CompareAndSwapUint32(&m.state, mutexUnlocked, mutexLocked) {
		return // uncontended fast path
	}
	for {
		// Mark the lock contended, recording what it was before. If it
		// was free, we have just acquired it (left marked contended,
		// which costs at most one unneeded Wake on the next Unlock).
		prev := atomic.SwapUint32(&m.state, mutexLockedWaiters)
		if prev == mutexUnlocked {
			return
		}
		m.table.Wait(futex.Local, &m.state, mutexLockedWaiters, futex.Infinite)
	}
}

// Unlock releases m and wakes one waiter if any are parked.
func (m *Mutex) Unlock() {
	prev := atomic.SwapUint32(&m.state, mutexUnlocked)
	switch prev {
	case mutexUnlocked:
		panic("futexsync: unlock of unlocked Mutex")
	case mutexLockedWaiters:
		m.table.Wake(futex.Local, &m.state, 1)
	}
}

// AssertHeld panics if m is not held by anyone. It is a debugging aid, not
// a substitute for correct locking discipline.
func (m *Mutex) AssertHeld() {
	if atomic.LoadUint32(&m.state) == mutexUnlocked {
		panic("futexsync: Mutex not held")
	}
}

