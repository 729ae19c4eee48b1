// Copyright 2016 The Vanadium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package futexsync

import (
	"sync/atomic"
	"time"

	"github.com/kernelsync/futex"
)

// Outcome is the result of a CV wait.
type Outcome int

const (
	// OK means the wait returned because of a Signal, Broadcast, or
	// (permitted, under Mesa semantics) a spurious wakeup — the caller
	// must re-check its predicate regardless.
	OK Outcome = iota
	// Expired means the deadline passed before any wakeup.
	Expired
)

// CV is a Mesa-style condition variable associated with a Mutex, in the
// style of nsync.CV. Create one with NewCV; the zero value has no Table
// and is not usable.
//
// Unlike sync.Cond, Wait takes an explicit deadline form (WaitWithDeadline)
// and Signal/Broadcast accept the associated Mutex so they can requeue
// waiters directly onto it instead of waking them to immediately re-block —
// the same optimization nsync/cv.go's wakeWaiters performs by transferring
// waiters from the CV's queue to the Mu's queue.
type CV struct {
	seq   uint32
	table *futex.Table
}

// NewCV returns a CV that parks and wakes through table. table must be the
// same Table used by every Mutex this CV is ever waited on.
func NewCV(table *futex.Table) *CV {
	return &CV{table: table}
}

// Wait atomically unlocks mu and blocks until a Signal, a Broadcast, or a
// spurious wakeup, then reacquires mu. As with all Mesa-style condition
// variables, callers must re-test their predicate in a loop:
//
//	mu.Lock()
//	for !predicate {
//	        cv.Wait(mu)
//	}
//	mu.Unlock()
func (cv *CV) Wait(mu *Mutex) {
	cv.WaitWithDeadline(mu, time.Time{})
}

// WaitWithDeadline is like Wait but returns Expired if deadline passes
// before any wakeup. A zero deadline means no deadline (equivalent to
// Wait).
func (cv *CV) WaitWithDeadline(mu *Mutex, deadline time.Time) Outcome {
	seq := atomic.LoadUint32(&cv.seq)
	mu.Unlock()

	var timeout time.Duration
	if deadline.IsZero() {
		timeout = futex.Infinite
	} else {
		timeout = time.Until(deadline)
	}
	status := cv.table.Wait(futex.Local, &cv.seq, seq, timeout)

	mu.Lock()
	if status == futex.TimedOut {
		return Expired
	}
	return OK
}

// Signal wakes at least one goroutine waiting on cv, if any. The caller
// must hold mu: the requeued waiters are woken only by mu's next Unlock.
//
// Rather than waking the waiter directly, Signal requeues it onto mu's own
// wait queue (the CV→Mutex transfer nsync/cv.go's wakeWaiters performs):
// the woken goroutine re-contends for mu exactly as any other Lock() caller
// would once the mutex's own Unlock eventually wakes it, instead of waking
// twice (once off the CV, once off the mutex).
func (cv *CV) Signal(mu *Mutex) {
	cv.requeue(mu, 1)
}

// Broadcast wakes every goroutine currently waiting on cv, transferring
// them all onto mu's wait queue in one Requeue call.
func (cv *CV) Broadcast(mu *Mutex) {
	cv.requeue(mu, futex.All)
}

func (cv *CV) requeue(mu *Mutex, n int) {
	seq := atomic.AddUint32(&cv.seq, 1)
	cv.table.Requeue(futex.Local, &cv.seq, 0, seq, &mu.state, n)
	// The transferred waiters (if any) are now parked on mu.state; make
	// sure Unlock knows to wake them. A spurious CAS here, when nothing
	// was actually transferred, only costs one harmless extra Wake call
	// on the next Unlock (Table.Wake is a no-op against an empty queue).
	atomic.CompareAndSwapUint32(&mu.state, mutexLocked, mutexLockedWaiters)
}
