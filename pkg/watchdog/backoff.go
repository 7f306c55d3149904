// SPDX-FileCopyrightText: 2022 The dtn7-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package watchdog

import (
	"math"
	"math/rand"
	"time"
)

// Backoff yields exponentially growing intervals: Interval, Interval*Factor, Interval*Factor², ...
type Backoff struct {
	Interval time.Duration
	Factor   float64

	retries int
}

// Next interval; each call counts as one retry.
func (b *Backoff) Next() time.Duration {
	interval := b.Interval
	if b.retries > 0 && b.Factor > 1 {
		interval = time.Duration(float64(interval) * math.Pow(b.Factor, float64(b.retries)))
	}
	b.retries++

	return interval
}

// Retries returns the amount of Next calls since the last Reset.
func (b *Backoff) Retries() int {
	return b.retries
}

// Reset the retry counter.
func (b *Backoff) Reset() {
	b.retries = 0
}

// Jitter returns a random duration within [interval, 2*interval) to avoid collisions between peers.
func Jitter(interval time.Duration) time.Duration {
	if interval <= 0 {
		return interval
	}
	return interval + time.Duration(rand.Int63n(int64(interval)))
}
