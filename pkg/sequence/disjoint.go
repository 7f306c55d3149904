// SPDX-FileCopyrightText: 2022 The dtn7-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package sequence

import (
	"fmt"
	"sort"
	"strings"
)

// DisjointSequence records seen sequence numbers as a cumulative value, up to which all Numbers were seen, and a sorted
// list of disjoint islands of seen Numbers above it. The gaps between the cumulative value and the islands are the
// missing ranges.
//
// A DisjointSequence is not safe for concurrent use.
type DisjointSequence struct {
	initialized bool
	cumulative  Number

	// islands are sorted, disjoint and never adjacent to each other or to cumulative.
	islands []Range
}

// NewDisjointSequence creates an empty DisjointSequence. The first updated Number becomes its baseline.
func NewDisjointSequence() *DisjointSequence {
	return &DisjointSequence{}
}

// Empty is true until the first Number was recorded.
func (ds *DisjointSequence) Empty() bool {
	return !ds.initialized
}

// Reset this DisjointSequence to treat n as the first value ever seen. Prior gaps are discarded.
func (ds *DisjointSequence) Reset(n Number) {
	ds.initialized = true
	ds.cumulative = n
	ds.islands = nil
}

// Cumulative is the highest Number up to which everything was seen.
func (ds *DisjointSequence) Cumulative() Number {
	return ds.cumulative
}

// High is the highest Number seen.
func (ds *DisjointSequence) High() Number {
	if l := len(ds.islands); l > 0 {
		return ds.islands[l-1].High
	}
	return ds.cumulative
}

// Disjoint is true iff there are missing ranges.
func (ds *DisjointSequence) Disjoint() bool {
	return len(ds.islands) > 0
}

// Update records n as seen. False is returned if n was already seen or lies below the cumulative value; both must not
// be delivered again.
func (ds *DisjointSequence) Update(n Number) bool {
	if !ds.initialized {
		ds.Reset(n)
		return true
	}

	if n <= ds.cumulative {
		return false
	}

	if n == ds.cumulative.Next() {
		ds.cumulative = n
		ds.collapse()
		return true
	}

	// First island which contains n, ends right before n or lies above n.
	i := sort.Search(len(ds.islands), func(i int) bool { return ds.islands[i].High.Next() >= n })

	switch {
	case i < len(ds.islands) && ds.islands[i].Contains(n):
		return false

	case i < len(ds.islands) && ds.islands[i].High.Next() == n:
		ds.islands[i].High = n
		if i+1 < len(ds.islands) && ds.islands[i+1].Low == n.Next() {
			ds.islands[i].High = ds.islands[i+1].High
			ds.islands = append(ds.islands[:i+1], ds.islands[i+2:]...)
		}

	case i < len(ds.islands) && ds.islands[i].Low == n.Next():
		ds.islands[i].Low = n

	default:
		ds.islands = append(ds.islands, Range{})
		copy(ds.islands[i+1:], ds.islands[i:])
		ds.islands[i] = Single(n)
	}

	return true
}

// collapse merges the first island into the cumulative value, if adjacent.
func (ds *DisjointSequence) collapse() {
	for len(ds.islands) > 0 && ds.islands[0].Low <= ds.cumulative.Next() {
		if ds.islands[0].High > ds.cumulative {
			ds.cumulative = ds.islands[0].High
		}
		ds.islands = ds.islands[1:]
	}
	if len(ds.islands) == 0 {
		ds.islands = nil
	}
}

// MissingRanges in ascending order. Adjacent missing Numbers are coalesced into one Range.
func (ds *DisjointSequence) MissingRanges() (missing []Range) {
	prev := ds.cumulative
	for _, island := range ds.islands {
		missing = append(missing, Range{Low: prev.Next(), High: island.Low.Previous()})
		prev = island.High
	}
	return
}

// PresentRanges in ascending order, starting with the cumulative value.
func (ds *DisjointSequence) PresentRanges() (present []Range) {
	if !ds.initialized {
		return
	}

	present = append(present, Single(ds.cumulative))
	present = append(present, ds.islands...)
	return
}

// Shift marks every Number up to and including n as seen. The previously missing ranges up to n are returned; these
// were dropped and will never be delivered.
func (ds *DisjointSequence) Shift(n Number) (dropped []Range) {
	if !ds.initialized {
		ds.Reset(n)
		return
	}

	if n <= ds.cumulative {
		return
	}

	prev := ds.cumulative
	keep := 0
	for _, island := range ds.islands {
		if island.Low > n {
			break
		}

		dropped = append(dropped, Range{Low: prev.Next(), High: island.Low.Previous()})
		prev = island.High
		keep++
	}
	if prev < n {
		dropped = append(dropped, Range{Low: prev.Next(), High: n})
	}

	if prev > n {
		ds.cumulative = prev
	} else {
		ds.cumulative = n
	}
	ds.islands = ds.islands[keep:]
	ds.collapse()

	return
}

// LowestValid declares low as the lowest still receivable Number. Everything below is marked as seen and the
// previously missing ranges below low are returned.
func (ds *DisjointSequence) LowestValid(low Number) []Range {
	return ds.Shift(low.Previous())
}

func (ds *DisjointSequence) String() string {
	if !ds.initialized {
		return "DisjointSequence(empty)"
	}

	var parts []string
	for _, r := range ds.MissingRanges() {
		parts = append(parts, r.String())
	}
	return fmt.Sprintf("DisjointSequence(cumulative=%d, high=%d, missing=%s)",
		ds.cumulative, ds.High(), strings.Join(parts, ","))
}
