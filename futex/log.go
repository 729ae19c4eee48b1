// Copyright 2015 The Vanadium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package futex

import "github.com/kernelsync/futex/vlog"

// Table logs through vlog at increasing V-levels rather than always-on
// stderr output, the same way the rest of this pack's packages do: V(1) for
// per-call tracing that's cheap to leave compiled in but expensive to leave
// enabled, V(2) for detail useful when chasing a specific bug.

func logWaitEnqueued(key Key) {
	vlog.VI(2).Infof("futex: wait enqueued on %s", key)
}

func logWaitOutcome(key Key, status Status) {
	vlog.VI(1).Infof("futex: wait on %s returned %s", key, status)
}

func logWakeIssued(key Key, requested int, woken int) {
	vlog.VI(1).Infof("futex: wake on %s requested=%d woken=%d", key, requested, woken)
}

func logRequeue(from, to Key, woken, moved int) {
	vlog.VI(1).Infof("futex: requeue %s -> %s woken=%d moved=%d", from, to, woken, moved)
}
