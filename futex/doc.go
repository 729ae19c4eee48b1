// Copyright 2015 The Vanadium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package futex implements the kernel side of a fast userspace mutex: an
// address-keyed wait queue table supporting Wait, Wake, and Requeue.
//
// Userspace manipulates an integer word in its own memory using atomic
// operations, and only calls into the table on contention: Wait parks the
// calling goroutine until a matching Wake (or a timeout), and Wake/Requeue
// let a caller resume one or more parked waiters without ever touching the
// scheduler on the uncontended path.
//
// Table itself does not interpret the value stored at a futex address
// beyond the compare performed by Wait and Requeue; it is the caller's
// userspace protocol (e.g. futexsync.Mutex, futexqueue.TicketLock) that
// gives the word meaning.
package futex
