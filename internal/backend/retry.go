// Copyright (c) 2025, the Braindumpster contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package backend

import "time"

// RetryPolicy drives the backend client's retry behavior with a fixed
// delay table. Attempt n (zero-based) sleeps for DelaySchedule[n]; once
// the table runs out the last entry repeats.
type RetryPolicy struct {
	MaxAttempts   uint
	DelaySchedule []time.Duration
}

// DefaultRetryPolicy returns the policy shipped with the app: three
// attempts spaced 1s, 2s, 4s apart.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:   3,
		DelaySchedule: []time.Duration{time.Second, 2 * time.Second, 4 * time.Second},
	}
}

// Delay returns the sleep before retrying after the given zero-based
// attempt, clamped to the schedule's last entry.
func (p RetryPolicy) Delay(attempt uint) time.Duration {
	if len(p.DelaySchedule) == 0 {
		return 0
	}
	if int(attempt) >= len(p.DelaySchedule) {
		return p.DelaySchedule[len(p.DelaySchedule)-1]
	}
	return p.DelaySchedule[attempt]
}
