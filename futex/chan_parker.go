// Copyright 2015 The Vanadium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package futex

import "time"

// chanParker is the default, portable Parker. It is shaped almost exactly
// like nsync/binary_semaphore.go's binarySemaphore: a one-slot buffered
// channel stands in for the OS thread-parking primitive, and a time.Timer
// races against it for deadlines.
type chanParker struct {
	ch chan struct{}
}

func newChanParker() Parker {
	return &chanParker{ch: make(chan struct{}, 1)}
}

// Park implements Parker.
func (p *chanParker) Park(deadline time.Time) bool {
	if deadline.IsZero() {
		<-p.ch
		return true
	}
	d := time.Until(deadline)
	if d <= 0 {
		// Non-blocking poll: take the wakeup if it is already there,
		// otherwise report expiry without waiting at all.
		select {
		case <-p.ch:
			return true
		default:
			return false
		}
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-p.ch:
		return true
	case <-timer.C:
		return false
	}
}

// Wake implements Parker.
func (p *chanParker) Wake() {
	select {
	case p.ch <- struct{}{}:
	default: // already has a pending wakeup; Wake is idempotent like nsync's V().
	}
}
