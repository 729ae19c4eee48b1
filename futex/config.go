// Copyright 2015 The Vanadium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package futex

import (
	"os"
	"strconv"
)

const (
	defaultBucketCount = 256
	minBucketCount     = 1
	maxBucketCount     = 1 << 20

	bucketCountEnv = "FUTEX_TABLE_BUCKETS"
)

// bucketCountFromEnv returns the configured bucket count for a new Table:
// the FUTEX_TABLE_BUCKETS environment variable if it parses as an integer
// in [minBucketCount, maxBucketCount], otherwise defaultBucketCount. This is
// process-wide tuning, read once at NewTable time — it has no bearing on
// the wait/wake/requeue contract itself (spec.md §6 is explicit that the
// syscall surface takes no environment input).
func bucketCountFromEnv() int {
	v, ok := os.LookupEnv(bucketCountEnv)
	if !ok {
		return defaultBucketCount
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < minBucketCount || n > maxBucketCount {
		return defaultBucketCount
	}
	return n
}
