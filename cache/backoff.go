// Copyright © by Jeff Foley 2017-2025. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.
// SPDX-License-Identifier: Apache-2.0

package cache

import (
	"math"
	"math/rand"
	"time"
)

const jitterUnits = 100

// TruncatedExponentialBackoff returns 2^events multiplied by the provided
// delay with jitter of [0,delay) added, truncated to the provided maximum.
// Continuous querying re-asks questions on this schedule.
func TruncatedExponentialBackoff(events int, delay, max time.Duration) time.Duration {
	// 2^events*delay no longer fits in a Duration past this point
	if events > 32 {
		return max
	}

	backoff := time.Duration(math.Pow(2, float64(events)))*delay + jitter(delay)
	if backoff > max || backoff < delay {
		return max
	}
	return backoff
}

func jitter(max time.Duration) time.Duration {
	if max <= time.Duration(jitterUnits) {
		return 0
	}
	return time.Duration(rand.Intn(jitterUnits)) * (max / time.Duration(jitterUnits))
}
