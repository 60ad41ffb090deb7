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

package pose

import "sort"

// IoU returns the intersection over union of two boxes, or 0 when they do not
// overlap on both axes.
func IoU(a, b Box) float32 {
	x1 := max(a.X1, b.X1)
	y1 := max(a.Y1, b.Y1)
	x2 := min(a.X2, b.X2)
	y2 := min(a.Y2, b.Y2)
	if x2 < x1 || y2 < y1 {
		return 0
	}
	inter := (x2 - x1) * (y2 - y1)
	return inter / (a.Area() + b.Area() - inter)
}

// Suppress runs greedy non-maximum suppression. Candidates are ranked by
// descending score with ties kept in input order; each surviving candidate
// suppresses every lower-ranked one whose IoU with it exceeds iouThreshold.
// The result is in selection order.
func Suppress(candidates []Candidate, iouThreshold float32) []Person {
	order := make([]int, len(candidates))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(i, j int) bool {
		return candidates[order[i]].Score > candidates[order[j]].Score
	})

	// suppressed is indexed by rank, not by candidate index.
	suppressed := make([]bool, len(order))
	persons := make([]Person, 0, len(candidates))
	for i, ci := range order {
		if suppressed[i] {
			continue
		}
		selected := candidates[ci]
		persons = append(persons, selected.person())
		for j := i + 1; j < len(order); j++ {
			if suppressed[j] {
				continue
			}
			if IoU(selected.Box, candidates[order[j]].Box) > iouThreshold {
				suppressed[j] = true
			}
		}
	}
	return persons
}
