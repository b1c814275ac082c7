package domain

import (
	"fmt"
	"sort"
)

// PartFile is the persisted artifact for exactly one IDRange.
// Its presence is the only record that the range is done.
type PartFile struct {
	Range IDRange
	Name  string
	Size  int64
}

// Empty reports whether the part is a marker for a range with no results.
func (p PartFile) Empty() bool {
	return p.Size == 0
}

// Gap is an inclusive interval of IDs not covered by any part file.
type Gap struct {
	From int64
	To   int64
}

// Range returns the gap as a bounded IDRange.
func (g Gap) Range() IDRange {
	return Bounded(g.From, g.To)
}

func (g Gap) String() string {
	return fmt.Sprintf("(%d, %d)", g.From, g.To)
}

// SortParts orders parts by start, open ranges last among equal starts.
func SortParts(parts []PartFile) {
	sort.SliceStable(parts, func(i, j int) bool {
		a, b := parts[i].Range, parts[j].Range
		if a.Start != b.Start {
			return a.Start < b.Start
		}
		return !a.IsOpen() && b.IsOpen()
	})
}

// FindGaps scans sorted parts for uncovered intervals, including any
// interval before the first part. Coverage past an open part is complete.
func FindGaps(parts []PartFile) []Gap {
	if len(parts) == 0 {
		return nil
	}

	var gaps []Gap
	if first := parts[0].Range.Start; first > 0 {
		gaps = append(gaps, Gap{From: 0, To: first - 1})
	}

	covered := parts[0].Range.EndValue()
	for i := 1; i < len(parts); i++ {
		if parts[i-1].Range.IsOpen() {
			break
		}
		next := parts[i].Range
		if next.Start > covered+1 {
			gaps = append(gaps, Gap{From: covered + 1, To: next.Start - 1})
		}
		if next.IsOpen() {
			break
		}
		if e := *next.End; e > covered {
			covered = e
		}
	}
	return gaps
}

// ResumePoint returns the first ID after the last known part.
// done is true when the last part is open-ended and nothing is left to discover.
func ResumePoint(parts []PartFile) (next int64, done bool) {
	if len(parts) == 0 {
		return 0, false
	}

	var covered int64 = -1
	for _, p := range parts {
		if p.Range.IsOpen() {
			return 0, true
		}
		if e := *p.Range.End; e > covered {
			covered = e
		}
	}
	return covered + 1, false
}
