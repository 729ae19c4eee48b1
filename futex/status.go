// Copyright 2015 The Vanadium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package futex

import "strconv"

// Status is the result of a futex operation. The zero value is Ok; use the
// named constants below. Status follows the small
// closed-enum-with-Error() style used throughout this pack's CLI packages
// (cmdline2's exit-code handling) rather than ad hoc errors.New calls,
// because the full set of outcomes is fixed by spec.md §7 and callers are
// expected to switch on it.
type Status int

const (
	// Ok indicates the operation completed, including a Wake or Requeue
	// that woke zero waiters.
	Ok Status = iota
	// Busy indicates a value check (in Wait or Requeue) observed a
	// mismatch; the caller should retry its userspace protocol.
	Busy
	// TimedOut indicates a Wait deadline elapsed with no matching wake.
	TimedOut
	// InvalidArgs indicates a null, misaligned, or faulting user address,
	// a same-address Requeue, or malformed counts.
	InvalidArgs
)

func (s Status) String() string {
	switch s {
	case Ok:
		return "Ok"
	case Busy:
		return "Busy"
	case TimedOut:
		return "TimedOut"
	case InvalidArgs:
		return "InvalidArgs"
	default:
		return "Status(?)"
	}
}

// Error implements the error interface so a Status can be returned directly
// from APIs that prefer idiomatic Go error handling (e.g. futexsync, the
// demo CLI); Ok.Error() returning a non-empty string is intentional — treat
// Status as a result code, not an error, and check against Ok explicitly.
func (s Status) Error() string { return s.String() }

// Fault describes why a user-memory load failed. It is returned by the
// UserMemory accessor passed to NewTable; Table folds any Fault into
// InvalidArgs per spec.md §4.1 step 3.
type Fault struct {
	Addr uintptr
	Op   string
}

func (f *Fault) Error() string {
	return "futex: fault accessing address 0x" + strconv.FormatUint(uint64(f.Addr), 16) + " during " + f.Op
}
