/*
 * SPDX-License-Identifier: Unlicense
 *
 * This is free and unencumbered software released into the public domain.
 *
 * Anyone is free to copy, modify, publish, use, compile, sell, or distribute this
 * software, either in source code form or as a compiled binary, for any purpose,
 * commercial or non-commercial, and by any means.
 *
 * For more information, please refer to <http://unlicense.org/>
 */

package scheduler

import "time"

// Stats is a snapshot of the admission counters. Counters are read one by
// one and may be momentarily inconsistent with each other.
type Stats struct {
	Offered     uint64        `json:"offered"`
	Admitted    uint64        `json:"admitted"`
	Dropped     uint64        `json:"dropped"`
	Completed   uint64        `json:"completed"`
	Failed      uint64        `json:"failed"`
	Busy        bool          `json:"busy"`
	LastElapsed time.Duration `json:"last_elapsed_ns"`
}

// Stats returns the current counters.
func (s *Scheduler) Stats() Stats {
	return Stats{
		Offered:     s.offered.Load(),
		Admitted:    s.admitted.Load(),
		Dropped:     s.dropped.Load(),
		Completed:   s.completed.Load(),
		Failed:      s.failed.Load(),
		Busy:        s.busy.Load(),
		LastElapsed: time.Duration(s.lastNanos.Load()),
	}
}
