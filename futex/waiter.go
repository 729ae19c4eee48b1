// Copyright 2015 The Vanadium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package futex

import "go.uber.org/atomic"

// wokenBy records why a waiter left its queue. It transitions from unset to
// exactly one other value, exactly once, under the owning bucket's lock —
// that transition is the linearization point of the wakeup (spec.md §3).
type wokenBy int32

const (
	unset wokenBy = iota
	wokenByWake
	wokenByTimeout
	wokenByCancel
)

func (w wokenBy) String() string {
	switch w {
	case unset:
		return "unset"
	case wokenByWake:
		return "wake"
	case wokenByTimeout:
		return "timeout"
	case wokenByCancel:
		return "cancel"
	default:
		return "wokenBy(?)"
	}
}

// waiter is a per-blocked-caller record holding the park handle, the key it
// is waiting on, and intrusive queue linkage. A waiter is logically owned by
// the stack of the blocked caller for its entire lifetime: Wait allocates
// one, links it into a WaitQueue, parks, and on return unlinks it (if it
// isn't already unlinked) before the function returns — matching the
// doubly-linked waiter discipline in nsync/waiter.go, generalized from one
// fixed Mu/CV queue to many keyed queues owned by a sharded Table.
type waiter struct {
	key    Key    // current queue key; mutated by Requeue, only under the bucket lock
	parker Parker // host-supplied block/resume handle for this call

	// wokenBy is read without the lock by tests and diagnostics; every
	// write that matters for correctness happens with the bucket lock
	// held, matching sawdustofmind-adv-sync's use of go.uber.org/atomic
	// for a lock-word field that is mostly read-under-lock but exposed
	// for lock-free inspection.
	wokenBy atomic.Int32

	prev, next *waiter // queue linkage; nil when not enqueued
	inQueue    *waitQueue
}

func newWaiter(key Key, parker Parker) *waiter {
	return &waiter{key: key, parker: parker}
}

// setWokenBy records the wakeup reason. Caller must hold the bucket lock for
// the queue this waiter is (or was) linked into.
func (w *waiter) setWokenBy(reason wokenBy) {
	w.wokenBy.Store(int32(reason))
}

func (w *waiter) reason() wokenBy {
	return wokenBy(w.wokenBy.Load())
}
