// Copyright 2015 The Vanadium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build linux

package futex

import (
	"sync/atomic"
	"time"

	"golang.org/x/sys/unix"
)

// linuxParker backs Parker with the real Linux FUTEX_WAIT/FUTEX_WAKE
// syscalls via golang.org/x/sys/unix, rather than a Go channel. It parks the
// calling goroutine's OS thread on a private int32 word — the same "word
// the kernel actually waits on" model spec.md describes for the public
// wait/wake/requeue surface, just privately scoped to one waiter instead of
// shared userspace memory (which in a Go process we cannot safely hand to a
// raw syscall the way a real process image can).
type linuxParker struct {
	word int32 // 0 = not woken, 1 = woken
}

func newLinuxParker() Parker {
	return &linuxParker{}
}

// Park implements Parker.
func (p *linuxParker) Park(deadline time.Time) bool {
	for {
		if atomic.LoadInt32(&p.word) != 0 {
			return true
		}
		var ts *unix.Timespec
		if !deadline.IsZero() {
			d := time.Until(deadline)
			if d <= 0 {
				return atomic.LoadInt32(&p.word) != 0
			}
			converted := unix.NsecToTimespec(d.Nanoseconds())
			ts = &converted
		}
		err := unix.Futex(&p.word, unix.FUTEX_WAIT, 0, ts, nil, 0)
		if atomic.LoadInt32(&p.word) != 0 {
			return true
		}
		if err == unix.ETIMEDOUT {
			return false
		}
		// err == EAGAIN (word already changed) or EINTR: loop and recheck.
	}
}

// Wake implements Parker.
func (p *linuxParker) Wake() {
	atomic.StoreInt32(&p.word, 1)
	_ = unix.Futex(&p.word, unix.FUTEX_WAKE, 1, nil, nil, 0)
}

func init() {
	defaultParkerFactory = newLinuxParker
}
