// SPDX-FileCopyrightText: 2022 The dtn7-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package sequence

import (
	"fmt"
	"sort"
)

// Number of a datagram sent on a link. Comparison is a strict total order.
type Number int64

// None is the zero Number, the value before the first assigned sequence number.
const None Number = 0

// Next returns the succeeding Number.
func (n Number) Next() Number {
	return n + 1
}

// Previous returns the preceding Number.
func (n Number) Previous() Number {
	return n - 1
}

// Range is an inclusive [Low, High] pair of Numbers.
type Range struct {
	Low  Number
	High Number
}

// NewRange creates a Range; the bounds are swapped if necessary.
func NewRange(low, high Number) Range {
	if low > high {
		low, high = high, low
	}
	return Range{Low: low, High: high}
}

// Single creates a Range of one Number.
func Single(n Number) Range {
	return Range{Low: n, High: n}
}

// Contains checks if n lies within this Range.
func (r Range) Contains(n Number) bool {
	return r.Low <= n && n <= r.High
}

// Len is the amount of Numbers in this Range.
func (r Range) Len() int64 {
	return int64(r.High-r.Low) + 1
}

// Overlaps checks if both Ranges share at least one Number.
func (r Range) Overlaps(o Range) bool {
	return r.Low <= o.High && o.Low <= r.High
}

// Adjacent checks if o directly follows or precedes r without overlapping.
func (r Range) Adjacent(o Range) bool {
	return r.High.Next() == o.Low || o.High.Next() == r.Low
}

// Intersect returns the common part of both Ranges; ok is false for disjoint Ranges.
func (r Range) Intersect(o Range) (i Range, ok bool) {
	if !r.Overlaps(o) {
		return
	}

	i = r
	if o.Low > i.Low {
		i.Low = o.Low
	}
	if o.High < i.High {
		i.High = o.High
	}
	ok = true
	return
}

func (r Range) String() string {
	if r.Low == r.High {
		return fmt.Sprintf("[%d]", r.Low)
	}
	return fmt.Sprintf("[%d-%d]", r.Low, r.High)
}

// Normalize sorts the Ranges and merges overlapping or adjacent ones. The input slice is not modified.
func Normalize(ranges []Range) []Range {
	if len(ranges) == 0 {
		return nil
	}

	sorted := make([]Range, len(ranges))
	copy(sorted, ranges)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Low < sorted[j].Low })

	merged := []Range{sorted[0]}
	for _, r := range sorted[1:] {
		last := &merged[len(merged)-1]
		if r.Low <= last.High.Next() {
			if r.High > last.High {
				last.High = r.High
			}
		} else {
			merged = append(merged, r)
		}
	}
	return merged
}

// Subtract removes every Number of minus from ranges. The result is normalized.
func Subtract(ranges, minus []Range) []Range {
	ranges = Normalize(ranges)
	minus = Normalize(minus)

	var result []Range
	for _, r := range ranges {
		rest := []Range{r}
		for _, m := range minus {
			if m.Low > r.High {
				break
			}

			var next []Range
			for _, part := range rest {
				if !part.Overlaps(m) {
					next = append(next, part)
					continue
				}
				if part.Low < m.Low {
					next = append(next, Range{Low: part.Low, High: m.Low.Previous()})
				}
				if part.High > m.High {
					next = append(next, Range{Low: m.High.Next(), High: part.High})
				}
			}
			rest = next
		}
		result = append(result, rest...)
	}
	return result
}
