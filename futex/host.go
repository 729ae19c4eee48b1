// Copyright 2015 The Vanadium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package futex

import (
	"sync/atomic"
	"time"
)

// Parker is the minimal host-scheduler capability Table needs to block and
// resume one waiting caller (spec.md §6: park/unpark). Table creates exactly
// one Parker per Wait call via ParkerFactory.
type Parker interface {
	// Park blocks the caller until Wake is called or deadline passes.
	// A zero deadline means block forever. Park returns true if it
	// returned because of Wake, false if the deadline expired first.
	// Implementations may return false spuriously (spec.md §9's open
	// question); Table's Wait loop re-checks the waiter's wokenBy under
	// the bucket lock and re-parks for the remaining time if needed.
	Park(deadline time.Time) bool

	// Wake resumes the parked caller exactly once. It is safe to call
	// before Park (the next Park returns immediately), and Table relies on
	// that: Wait links the waiter and releases the bucket lock before
	// calling Park, so a Wake can arrive first.
	Wake()
}

// ParkerFactory creates a new, not-yet-parked Parker for one Wait call.
type ParkerFactory func() Parker

// defaultParkerFactory is newChanParker on every platform except linux,
// where parker_linux.go's init() overrides it with a Parker backed by the
// real FUTEX_WAIT/FUTEX_WAKE syscalls.
var defaultParkerFactory ParkerFactory = newChanParker

// Clock supplies monotonic time to Table, so tests can use a fake clock to
// exercise deadline handling deterministically.
type Clock interface {
	Now() time.Time
}

// systemClock is the default Clock, backed by the monotonic reading that
// time.Now() already carries on every supported platform.
type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// UserMemory is the user-memory safe-access capability Table needs: a
// 32-bit load with fault handling (spec.md §6's load_user_u32). It is
// intentionally narrow — Table never writes through a futex address, only
// reads it to perform the Wait/Requeue value check.
type UserMemory interface {
	Load(addr *uint32) (uint32, *Fault)
}

// defaultUserMemory loads directly from the caller's address space using an
// atomic load, matching the real invariant that userspace must publish its
// futex word with an atomic store before waking. Go's memory model and
// garbage collector mean every *uint32 Table is handed is already mapped
// and readable, so this implementation never faults; UserMemory exists as
// an interface so tests can inject one that does (see futex/table_test.go's
// faultingMemory).
type defaultUserMemory struct{}

func (defaultUserMemory) Load(addr *uint32) (uint32, *Fault) {
	return atomic.LoadUint32(addr), nil
}
