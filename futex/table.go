// Copyright 2015 The Vanadium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package futex

import (
	"math"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// All, passed as a count to Wake or as wakeCount/requeueCount to Requeue,
// means "as many as are queued."
const All = math.MaxInt32

// Infinite, passed as a timeout to Wait, means "block until a matching
// wake"; a timeout of zero means "do not block" (spec.md §4.1's polling
// form).
const Infinite time.Duration = -1

// bucket is one shard of a Table: a lock and the subset of Key -> WaitQueue
// mappings it owns. Sharding follows twmb-dash/experimental/futex/futex.go's
// fixed-size bucket-array design, generalized from one global array of
// sentinel nodes to a per-bucket map so a bucket can hold an arbitrary,
// varying set of live keys instead of one fixed synthetic address.
type bucket struct {
	idx    int
	mu     sync.Mutex
	queues map[Key]*waitQueue
}

func (b *bucket) queueFor(key Key) *waitQueue {
	return b.queues[key]
}

func (b *bucket) getOrCreateQueue(key Key) *waitQueue {
	q := b.queues[key]
	if q == nil {
		q = &waitQueue{}
		b.queues[key] = q
	}
	return q
}

// deleteIfEmpty removes key's queue from the bucket if it is present and
// empty, enforcing the Table invariant that every mapped queue is
// non-empty (spec.md §3).
func (b *bucket) deleteIfEmpty(key Key) {
	if q, ok := b.queues[key]; ok && q.Empty() {
		delete(b.queues, key)
	}
}

// Table is a process-wide map from Key to non-empty WaitQueue, sharded into
// a fixed number of lock-protected buckets. One Table is normally created
// at process start and never destroyed (spec.md §3's FutexTable lifecycle).
type Table struct {
	buckets       []bucket
	parkerFactory ParkerFactory
	clock         Clock
	mem           UserMemory
	metrics       *tableMetrics
}

// TableOption configures NewTable.
type TableOption func(*Table)

// WithBucketCount overrides the number of shards (default: bucketCountFromEnv()).
func WithBucketCount(n int) TableOption {
	return func(t *Table) { t.buckets = make([]bucket, n) }
}

// WithParkerFactory overrides how Table blocks/resumes a waiter (default:
// defaultParkerFactory — a real Linux futex on linux, a channel elsewhere).
func WithParkerFactory(f ParkerFactory) TableOption {
	return func(t *Table) { t.parkerFactory = f }
}

// WithClock overrides Table's time source (default: the real monotonic clock).
func WithClock(c Clock) TableOption {
	return func(t *Table) { t.clock = c }
}

// WithUserMemory overrides how Table loads the word at a futex address
// (default: an atomic load that never faults, since Go pointers are always
// valid). Tests use this to simulate a faulting/unmapped address.
func WithUserMemory(m UserMemory) TableOption {
	return func(t *Table) { t.mem = m }
}

// WithMetrics registers Prometheus instrumentation for this Table under reg
// with the given namespace (see metrics.go).
func WithMetrics(reg prometheus.Registerer, namespace string) TableOption {
	return func(t *Table) {
		t.metrics = newTableMetrics(namespace)
		t.metrics.register(reg)
	}
}

// NewTable creates a FutexTable. Bucket count defaults to
// bucketCountFromEnv(); every other dependency defaults to the real
// implementation (system clock, real user-memory access, the
// platform-appropriate Parker).
func NewTable(opts ...TableOption) *Table {
	t := &Table{
		parkerFactory: defaultParkerFactory,
		clock:         systemClock{},
		mem:           defaultUserMemory{},
	}
	n := bucketCountFromEnv()
	t.buckets = make([]bucket, n)
	for _, opt := range opts {
		opt(t)
	}
	for i := range t.buckets {
		t.buckets[i].idx = i
		t.buckets[i].queues = make(map[Key]*waitQueue)
	}
	return t
}

func (t *Table) bucketFor(key Key) *bucket {
	h := hashKey(key)
	return &t.buckets[h%uint64(len(t.buckets))]
}

// lockWaiterBucket locks and returns the bucket currently responsible for w,
// re-reading w.key after acquiring each candidate lock: w.key only changes
// under the lock of the bucket that currently owns it (Requeue's step 5), so
// once the read is stable across a lock acquisition it is the right bucket.
// This is the mechanism spec.md §4.1 step 7 calls out: "use waiter.key" to
// find the queue to unlink from, since Requeue may have moved the waiter to
// a different key (and therefore, possibly, a different bucket) while it
// slept.
func (t *Table) lockWaiterBucket(w *waiter) *bucket {
	for {
		key := w.key
		b := t.bucketFor(key)
		b.mu.Lock()
		if w.key == key {
			return b
		}
		b.mu.Unlock()
	}
}

// Wait implements spec.md §4.1.
func (t *Table) Wait(ns Namespace, addr *uint32, expected uint32, timeout time.Duration) Status {
	key, st := keyFor(ns, addr)
	if st != Ok {
		t.countInvalid()
		return st
	}
	b := t.bucketFor(key)

	b.mu.Lock()
	val, fault := t.mem.Load(addr)
	if fault != nil {
		b.mu.Unlock()
		t.countInvalid()
		return InvalidArgs
	}
	if val != expected {
		b.mu.Unlock()
		t.countBusy()
		return Busy
	}

	w := newWaiter(key, t.parkerFactory())
	existed := b.queueFor(key) != nil
	q := b.getOrCreateQueue(key)
	q.PushBack(w)
	if !existed {
		t.addLiveQueue(1)
	}
	t.countEntered()
	b.mu.Unlock()
	logWaitEnqueued(key)

	var deadline time.Time
	switch {
	case timeout == Infinite:
		// zero value of time.Time signals "no deadline" to Parker.
	case timeout <= 0:
		deadline = t.clock.Now()
	default:
		deadline = t.clock.Now().Add(timeout)
	}

	w.parker.Park(deadline)
	for {
		wb := t.lockWaiterBucket(w)
		if w.reason() != unset {
			wb.mu.Unlock()
			break
		}
		if deadline.IsZero() || t.clock.Now().Before(deadline) {
			// Spurious wakeup with time remaining (or no deadline at
			// all): re-park for what's left and check again.
			wb.mu.Unlock()
			w.parker.Park(deadline)
			continue
		}
		// Deadline has passed and no one claimed this waiter: it
		// times out. Unlink from whichever queue currently holds it.
		q := wb.queueFor(w.key)
		q.Remove(w)
		if q.Empty() {
			wb.deleteIfEmpty(w.key)
			t.addLiveQueue(-1)
		}
		w.setWokenBy(wokenByTimeout)
		wb.mu.Unlock()
		break
	}

	var status Status
	if w.reason() == wokenByWake {
		status = Ok
		t.countWoken()
	} else {
		status = TimedOut
		t.countTimedOut()
	}
	logWaitOutcome(key, status)
	return status
}

// Wake implements spec.md §4.2.
func (t *Table) Wake(ns Namespace, addr *uint32, count int) Status {
	key, st := keyFor(ns, addr)
	if st != Ok {
		t.countInvalid()
		return st
	}
	b := t.bucketFor(key)

	b.mu.Lock()
	q := b.queueFor(key)
	if q == nil || q.Empty() {
		b.mu.Unlock()
		logWakeIssued(key, count, 0)
		return Ok
	}
	woken := q.DrainUpTo(count)
	for _, w := range woken {
		w.setWokenBy(wokenByWake)
	}
	if q.Empty() {
		b.deleteIfEmpty(key)
		t.addLiveQueue(-1)
	}
	b.mu.Unlock()

	for _, w := range woken {
		w.parker.Wake()
	}
	t.countWakes(len(woken))
	logWakeIssued(key, count, len(woken))
	return Ok
}

// Requeue implements spec.md §4.3.
func (t *Table) Requeue(ns Namespace, addrFrom *uint32, wakeCount int, expected uint32, addrTo *uint32, requeueCount int) Status {
	keyFrom, st := keyFor(ns, addrFrom)
	if st != Ok {
		t.countInvalid()
		return st
	}
	keyTo, st := keyFor(ns, addrTo)
	if st != Ok {
		t.countInvalid()
		return st
	}
	if keyFrom == keyTo {
		t.countInvalid()
		return InvalidArgs
	}

	bFrom := t.bucketFor(keyFrom)
	bTo := t.bucketFor(keyTo)
	unlock := lockBucketPair(bFrom, bTo)
	defer unlock()

	val, fault := t.mem.Load(addrFrom)
	if fault != nil {
		t.countInvalid()
		return InvalidArgs
	}
	if val != expected {
		t.countBusy()
		return Busy
	}

	qFrom := bFrom.queueFor(keyFrom)
	var woken []*waiter
	if qFrom != nil {
		woken = qFrom.DrainUpTo(wakeCount)
		for _, w := range woken {
			w.setWokenBy(wokenByWake)
		}
	}

	moved := 0
	toExisted := bTo.queueFor(keyTo) != nil
	if qFrom != nil && !qFrom.Empty() && requeueCount > 0 {
		qTo := bTo.getOrCreateQueue(keyTo)
		moved = qFrom.SpliceUpTo(requeueCount, qTo, keyTo)
	}

	if qFrom != nil && qFrom.Empty() {
		bFrom.deleteIfEmpty(keyFrom)
		t.addLiveQueue(-1)
	}
	if !toExisted {
		if qTo := bTo.queueFor(keyTo); qTo != nil && !qTo.Empty() {
			t.addLiveQueue(1)
		}
	}

	for _, w := range woken {
		w.parker.Wake()
	}
	t.countWakes(len(woken))
	if moved > 0 || len(woken) > 0 {
		t.countRequeue()
	}
	logRequeue(keyFrom, keyTo, len(woken), moved)
	return Ok
}

// lockBucketPair locks a and b in a fixed global order (lower bucket index
// first) to avoid the classical AB/BA deadlock when two Requeue calls name
// the same two buckets in opposite order (spec.md §4.3 step 2, §9). When a
// and b are the same bucket (keyFrom and keyTo happen to hash together) the
// lock is taken exactly once.
func lockBucketPair(a, b *bucket) (unlock func()) {
	if a == b {
		a.mu.Lock()
		return a.mu.Unlock
	}
	first, second := a, b
	if b.idx < a.idx {
		first, second = b, a
	}
	first.mu.Lock()
	second.mu.Lock()
	return func() {
		second.mu.Unlock()
		first.mu.Unlock()
	}
}

func (t *Table) countEntered() {
	if t.metrics != nil {
		t.metrics.waitsEntered.Inc()
	}
}
func (t *Table) countWoken() {
	if t.metrics != nil {
		t.metrics.waitsWoken.Inc()
	}
}
func (t *Table) countTimedOut() {
	if t.metrics != nil {
		t.metrics.waitsTimedOut.Inc()
	}
}
func (t *Table) countBusy() {
	if t.metrics != nil {
		t.metrics.waitsBusy.Inc()
	}
}
func (t *Table) countWakes(n int) {
	if t.metrics != nil && n > 0 {
		t.metrics.wakesIssued.Add(float64(n))
	}
}
func (t *Table) countRequeue() {
	if t.metrics != nil {
		t.metrics.requeues.Inc()
	}
}
func (t *Table) countInvalid() {
	if t.metrics != nil {
		t.metrics.waitsInvalid.Inc()
	}
}
func (t *Table) addLiveQueue(delta float64) {
	if t.metrics != nil {
		t.metrics.liveQueues.Add(delta)
	}
}
