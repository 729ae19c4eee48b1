// Copyright 2016 The Vanadium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package futexqueue provides a FIFO ticket lock whose contended callers
// block through a shared futex.Table.
package futexqueue

import (
	"sync"
	stdatomic "sync/atomic"

	"go.uber.org/atomic"

	"github.com/kernelsync/futex"
)

// Ticket identifies a caller's place in a TicketLock's queue.
type Ticket interface {
	ID() uint64
}

type ticket uint64

func (t ticket) ID() uint64 { return uint64(t) }

// TicketLock hands out strictly increasing Tickets and admits callers to
// the critical section in ticket order, the same contract as
// sawdustofmind-adv-sync's OrderMutex. That implementation parks each
// caller on a private per-ticket channel so Unlock can wake exactly the
// next ticket; a futex.Table has no per-value addressing, only a FIFO
// queue per address, so TicketLock instead parks every non-current ticket
// on the same address and has each one re-check its own turn on every
// wakeup. This costs extra spurious wakeups under contention but needs no
// per-ticket bookkeeping beyond the burned set.
type TicketLock struct {
	next atomic.Uint64 // next unissued ticket

	mu     sync.Mutex
	cur    uint32 // the ticket currently admitted; the futex word itself
	burned map[uint64]struct{}

	table *futex.Table
}

// NewTicketLock returns a TicketLock whose waiters park and wake through
// table.
func NewTicketLock(table *futex.Table) *TicketLock {
	return &TicketLock{burned: make(map[uint64]struct{}), table: table}
}

// GetTicket reserves the next position in line. Callers normally call
// Lock with the result immediately; holding a Ticket without locking or
// returning it blocks every ticket behind it.
func (l *TicketLock) GetTicket() Ticket {
	return ticket(l.next.Add(1) - 1)
}

// Lock blocks until t's turn arrives.
func (l *TicketLock) Lock(t Ticket) {
	id := t.ID()
	for {
		cur := stdatomic.LoadUint32(&l.cur)
		if uint64(cur) == id {
			return
		}
		l.table.Wait(futex.Local, &l.cur, cur, futex.Infinite)
	}
}

// Unlock admits the next ticket. t must be the ticket currently holding
// the lock; calling Unlock with any other ticket panics.
func (l *TicketLock) Unlock(t Ticket) {
	id := t.ID()
	l.mu.Lock()
	if uint64(stdatomic.LoadUint32(&l.cur)) != id {
		l.mu.Unlock()
		panic("futexqueue: Unlock called for a ticket that does not hold the lock")
	}
	l.advanceLocked()
	l.mu.Unlock()
	l.table.Wake(futex.Local, &l.cur, futex.All)
}

// ReturnTicket cancels t. Call it either before Lock (to give up a place
// in line without ever entering the critical section) or after Unlock
// (where it is a no-op). Calling it between Lock and Unlock is undefined,
// as with sawdustofmind-adv-sync's OrderMutex.
func (l *TicketLock) ReturnTicket(t Ticket) {
	id := t.ID()
	l.mu.Lock()
	cur := uint64(stdatomic.LoadUint32(&l.cur))
	if id < cur {
		l.mu.Unlock()
		return
	}
	l.burned[id] = struct{}{}
	mustWake := id == cur
	if mustWake {
		l.advanceLocked()
	}
	l.mu.Unlock()
	if mustWake {
		l.table.Wake(futex.Local, &l.cur, futex.All)
	}
}

// advanceLocked moves cur past the ticket that just unlocked or was
// returned, skipping any tickets already burned, and publishes the result
// with an atomic store so parked waiters' next Wait call observes it.
// Caller must hold l.mu.
func (l *TicketLock) advanceLocked() {
	next := uint64(stdatomic.LoadUint32(&l.cur)) + 1
	for {
		if _, burned := l.burned[next]; !burned {
			break
		}
		delete(l.burned, next)
		next++
	}
	stdatomic.StoreUint32(&l.cur, uint32(next))
}
