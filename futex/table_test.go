// Copyright 2015 The Vanadium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package futex

import (
	"sync/atomic"
	"testing"
	"time"
)

// newTestTable returns a Table with a small bucket count so cross-key
// bucket collisions (and therefore lockBucketPair's same-bucket path) are
// exercised by ordinary tests, not just by a dedicated collision test.
func newTestTable() *Table {
	return NewTable(WithBucketCount(4))
}

// waitAsync runs Wait on a goroutine and returns a channel that receives
// its Status once it returns. It gives no signal that the goroutine has
// enqueued; callers that need that use waitUntilQueued below.
func waitAsync(t *Table, addr *uint32, expected uint32, timeout time.Duration) <-chan Status {
	out := make(chan Status, 1)
	go func() {
		out <- t.Wait(Local, addr, expected, timeout)
	}()
	return out
}

// waitUntilQueued polls until addr has a waiter enqueued, for tests that
// need to know a goroutine has actually blocked before proceeding. Real
// production code never needs this; it exists because starting a
// goroutine gives no synchronous confirmation that Wait reached its park
// call.
func waitUntilQueued(t *Table, addr *uint32, n int) {
	key, _ := keyFor(Local, addr)
	b := t.bucketFor(key)
	for {
		b.mu.Lock()
		q := b.queueFor(key)
		count := 0
		if q != nil {
			for w := q.head; w != nil; w = w.next {
				count++
			}
		}
		b.mu.Unlock()
		if count >= n {
			return
		}
		runtimeGosched()
	}
}

func runtimeGosched() { time.Sleep(time.Millisecond) }

// Scenario 1: value mismatch on wait.
func TestWaitValueMismatch(t *testing.T) {
	table := newTestTable()
	futexWord := uint32(123)
	if status := table.Wait(Local, &futexWord, 124, Infinite); status != Busy {
		t.Fatalf("Wait() = %v, want Busy", status)
	}
	key, _ := keyFor(Local, &futexWord)
	b := table.bucketFor(key)
	b.mu.Lock()
	defer b.mu.Unlock()
	if q := b.queueFor(key); q != nil {
		t.Fatalf("queue for key exists after a Busy wait, want absent")
	}
}

// Scenario 2: poll timeout.
func TestWaitPollTimeout(t *testing.T) {
	table := newTestTable()
	futexWord := uint32(123)
	if status := table.Wait(Local, &futexWord, 123, 0); status != TimedOut {
		t.Fatalf("Wait() = %v, want TimedOut", status)
	}
}

// Scenario 3: wake limit and FIFO ordering.
func TestWakeLimitAndFIFO(t *testing.T) {
	table := newTestTable()
	var futexWord uint32 = 1

	results := make([]<-chan Status, 4)
	for i := range results {
		results[i] = waitAsync(table, &futexWord, 1, Infinite)
		waitUntilQueued(table, &futexWord, i+1)
	}

	atomic.StoreUint32(&futexWord, 2) // userspace publishes the new value before waking
	if status := table.Wake(Local, &futexWord, 2); status != Ok {
		t.Fatalf("Wake() = %v, want Ok", status)
	}

	mustOk(t, results[0], "T1")
	mustOk(t, results[1], "T2")
	mustBlocked(t, results[2], "T3")
	mustBlocked(t, results[3], "T4")

	if status := table.Wake(Local, &futexWord, All); status != Ok {
		t.Fatalf("Wake(All) = %v, want Ok", status)
	}
	mustOk(t, results[2], "T3")
	mustOk(t, results[3], "T4")
}

// Scenario 4: cross-address isolation.
func TestWakeCrossAddressIsolation(t *testing.T) {
	table := newTestTable()
	var a, b, dummy uint32 = 1, 1, 0

	t1 := waitAsync(table, &a, 1, Infinite)
	t2 := waitAsync(table, &b, 1, Infinite)
	waitUntilQueued(table, &a, 1)
	waitUntilQueued(table, &b, 1)

	table.Wake(Local, &dummy, All)
	mustBlocked(t, t1, "T1")
	mustBlocked(t, t2, "T2")

	table.Wake(Local, &a, All)
	mustOk(t, t1, "T1")
	mustBlocked(t, t2, "T2")
}

// Scenario 5: timeout cleanup correctness — a waiter that times out must
// fully unlink itself, or a later waiter on the same key would silently
// join a queue the table still (incorrectly) thinks is non-empty, or would
// be mis-ordered behind a phantom entry.
func TestTimeoutCleanup(t *testing.T) {
	table := newTestTable()
	var futexWord uint32

	if status := table.Wait(Local, &futexWord, futexWord, time.Nanosecond); status != TimedOut {
		t.Fatalf("first Wait() = %v, want TimedOut", status)
	}

	t1 := waitAsync(table, &futexWord, futexWord, Infinite)
	waitUntilQueued(table, &futexWord, 1)
	if status := table.Wake(Local, &futexWord, 1); status != Ok {
		t.Fatalf("Wake() = %v, want Ok", status)
	}
	mustOk(t, t1, "T1")
}

// Scenario 6: requeue then wake.
func TestRequeueThenWake(t *testing.T) {
	table := newTestTable()
	var a, b uint32 = 100, 0

	waiters := make([]<-chan Status, 6)
	for i := range waiters {
		waiters[i] = waitAsync(table, &a, 100, Infinite)
		waitUntilQueued(table, &a, i+1)
	}

	if status := table.Requeue(Local, &a, 3, 100, &b, 2); status != Ok {
		t.Fatalf("Requeue() = %v, want Ok", status)
	}
	mustOk(t, waiters[0], "T1")
	mustOk(t, waiters[1], "T2")
	mustOk(t, waiters[2], "T3")
	mustBlocked(t, waiters[3], "T4")
	mustBlocked(t, waiters[4], "T5")
	mustBlocked(t, waiters[5], "T6")

	waitUntilQueued(table, &b, 2)
	table.Wake(Local, &b, All)
	mustOk(t, waiters[3], "T4")
	mustOk(t, waiters[4], "T5")

	table.Wake(Local, &a, 1)
	mustOk(t, waiters[5], "T6")
}

// Scenario 7: requeue followed by a timeout on the destination key, then a
// fresh waiter on that destination — exercises lockWaiterBucket's "follow
// waiter.key to whatever bucket currently owns it" path end to end.
func TestRequeueThenTimeoutOnDestination(t *testing.T) {
	table := newTestTable()
	var a, b uint32

	t1 := waitAsync(table, &a, a, 300*time.Millisecond)
	waitUntilQueued(table, &a, 1)

	if status := table.Requeue(Local, &a, 0, a, &b, All); status != Ok {
		t.Fatalf("Requeue() = %v, want Ok", status)
	}
	waitUntilQueued(table, &b, 1)

	if status := <-t1; status != TimedOut {
		t.Fatalf("T1 = %v, want TimedOut", status)
	}

	t2 := waitAsync(table, &b, b, Infinite)
	waitUntilQueued(table, &b, 1)
	if status := table.Wake(Local, &b, 1); status != Ok {
		t.Fatalf("Wake() = %v, want Ok", status)
	}
	mustOk(t, t2, "T2")
}

// Round-trip laws (§8).
func TestWakeZeroIsNoop(t *testing.T) {
	table := newTestTable()
	var futexWord uint32
	if status := table.Wake(Local, &futexWord, 0); status != Ok {
		t.Fatalf("Wake(0) = %v, want Ok", status)
	}
}

func TestRequeueZeroZeroIsNoop(t *testing.T) {
	table := newTestTable()
	var a, b uint32 = 7, 0
	if status := table.Requeue(Local, &a, 0, 7, &b, 0); status != Ok {
		t.Fatalf("Requeue(0,0) = %v, want Ok", status)
	}
	key, _ := keyFor(Local, &b)
	bucket := table.bucketFor(key)
	bucket.mu.Lock()
	defer bucket.mu.Unlock()
	if q := bucket.queueFor(key); q != nil {
		t.Fatalf("destination queue exists after a 0/0 requeue, want absent")
	}
}

// Boundary behaviors (§8).
func TestWaitNilAddr(t *testing.T) {
	table := newTestTable()
	if status := table.Wait(Local, nil, 0, Infinite); status != InvalidArgs {
		t.Fatalf("Wait(nil) = %v, want InvalidArgs", status)
	}
}

func TestRequeueSameAddr(t *testing.T) {
	table := newTestTable()
	var a uint32 = 5
	if status := table.Requeue(Local, &a, 0, 5, &a, 0); status != InvalidArgs {
		t.Fatalf("Requeue(a,a) = %v, want InvalidArgs", status)
	}
}

func TestRequeueValueMismatch(t *testing.T) {
	table := newTestTable()
	var a, b uint32 = 5, 0
	t1 := waitAsync(table, &a, 5, Infinite)
	waitUntilQueued(table, &a, 1)

	if status := table.Requeue(Local, &a, 1, 6, &b, 1); status != Busy {
		t.Fatalf("Requeue() = %v, want Busy", status)
	}
	mustBlocked(t, t1, "T1")
	table.Wake(Local, &a, 1)
	mustOk(t, t1, "T1")
}

func TestWaitHonorsMinimumTimeout(t *testing.T) {
	table := newTestTable()
	var futexWord uint32
	timeout := 50 * time.Millisecond
	start := time.Now()
	if status := table.Wait(Local, &futexWord, futexWord, timeout); status != TimedOut {
		t.Fatalf("Wait() = %v, want TimedOut", status)
	}
	if elapsed := time.Since(start); elapsed < timeout {
		t.Fatalf("Wait() returned after %v, want >= %v", elapsed, timeout)
	}
}

// spuriousParker wraps a real chanParker but makes its first Park call
// return early without any corresponding Wake — simulating a host park
// primitive that can wake a thread for no reason (spec.md §9's open
// question). Table's Wait loop must notice wokenBy is still Unset and
// re-park for the remaining deadline.
type spuriousParker struct {
	inner Parker
	fired bool
}

func newSpuriousParker() Parker {
	return &spuriousParker{inner: newChanParker()}
}

// Park returns false (as if the deadline had expired) once, after a short
// delay and with no corresponding Wake, then behaves normally thereafter.
func (p *spuriousParker) Park(deadline time.Time) bool {
	if !p.fired {
		p.fired = true
		time.Sleep(20 * time.Millisecond)
		return false
	}
	return p.inner.Park(deadline)
}

func (p *spuriousParker) Wake() { p.inner.Wake() }

func TestSpuriousWakeupIsNotMistakenForTimeout(t *testing.T) {
	table := NewTable(WithBucketCount(4), WithParkerFactory(newSpuriousParker))
	var futexWord uint32 = 1

	result := waitAsync(table, &futexWord, 1, 500*time.Millisecond)
	waitUntilQueued(table, &futexWord, 1)

	atomic.StoreUint32(&futexWord, 2)
	table.Wake(Local, &futexWord, 1)
	mustOk(t, result, "waiter")
}

// faultingMemory always reports a fault, exercising the InvalidArgs path
// that a real load_user_u32 would take against an unmapped address.
type faultingMemory struct{}

func (faultingMemory) Load(addr *uint32) (uint32, *Fault) {
	return 0, &Fault{Addr: uintptr(0), Op: "load"}
}

func TestFaultingLoadIsInvalidArgs(t *testing.T) {
	table := NewTable(WithBucketCount(4), WithUserMemory(faultingMemory{}))
	var futexWord uint32
	if status := table.Wait(Local, &futexWord, 0, Infinite); status != InvalidArgs {
		t.Fatalf("Wait() = %v, want InvalidArgs", status)
	}
	if status := table.Requeue(Local, &futexWord, 0, 0, new(uint32), 0); status != InvalidArgs {
		t.Fatalf("Requeue() = %v, want InvalidArgs", status)
	}
}

func mustOk(t *testing.T, ch <-chan Status, who string) {
	t.Helper()
	select {
	case status := <-ch:
		if status != Ok {
			t.Fatalf("%s returned %v, want Ok", who, status)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("%s never returned", who)
	}
}

func mustBlocked(t *testing.T, ch <-chan Status, who string) {
	t.Helper()
	select {
	case status := <-ch:
		t.Fatalf("%s returned %v early, want still blocked", who, status)
	case <-time.After(50 * time.Millisecond):
	}
}
