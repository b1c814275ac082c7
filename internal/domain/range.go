package domain

import (
	"fmt"
	"strconv"
)

// IDRange is an inclusive interval of numeric account IDs.
// A nil End means the range is open and extends to the end of the dataset.
type IDRange struct {
	Start int64
	End   *int64
}

// Bounded returns the closed range [start, end].
func Bounded(start, end int64) IDRange {
	return IDRange{Start: start, End: &end}
}

// Open returns the range [start, end of dataset].
func Open(start int64) IDRange {
	return IDRange{Start: start}
}

// IsOpen reports whether the range has no upper bound.
func (r IDRange) IsOpen() bool {
	return r.End == nil
}

// EndValue returns the upper bound, or 0 (the open-end sentinel) for open ranges.
func (r IDRange) EndValue() int64 {
	if r.End == nil {
		return 0
	}
	return *r.End
}

// Validate checks the range invariants.
// A bounded [0,0] is rejected because it cannot be told apart from the
// open-end sentinel once persisted.
func (r IDRange) Validate() error {
	if r.Start < 0 {
		return fmt.Errorf("%w: negative start %d", ErrInvalidRange, r.Start)
	}
	if r.End == nil {
		return nil
	}
	if *r.End < r.Start {
		return fmt.Errorf("%w: end %d before start %d", ErrInvalidRange, *r.End, r.Start)
	}
	if *r.End == 0 {
		return fmt.Errorf("%w: bounded [0,0] collides with the open-end sentinel", ErrInvalidRange)
	}
	return nil
}

// Equal reports whether both ranges cover the same IDs.
func (r IDRange) Equal(o IDRange) bool {
	if r.Start != o.Start || r.IsOpen() != o.IsOpen() {
		return false
	}
	return r.IsOpen() || *r.End == *o.End
}

// Query converts the range into an oracle query.
func (r IDRange) Query() Query {
	start := r.Start
	q := Query{Start: &start}
	if r.End != nil {
		end := *r.End
		q.End = &end
	}
	return q
}

func (r IDRange) String() string {
	if r.End == nil {
		return fmt.Sprintf("[%d - open]", r.Start)
	}
	return fmt.Sprintf("[%d - %d]", r.Start, *r.End)
}

// Query is the inclusive account-ID filter sent to the remote search.
// Either bound may be omitted, but not both.
type Query struct {
	Start *int64
	End   *int64
}

// Between returns the query for [start, end].
func Between(start, end int64) Query {
	return Query{Start: &start, End: &end}
}

// From returns the query for [start, end of dataset].
func From(start int64) Query {
	return Query{Start: &start}
}

// Validate returns ErrInvalidQuery when neither bound is set.
func (q Query) Validate() error {
	if q.Start == nil && q.End == nil {
		return ErrInvalidQuery
	}
	return nil
}

func (q Query) String() string {
	return "[" + bound(q.Start) + " - " + bound(q.End) + "]"
}

func bound(v *int64) string {
	if v == nil {
		return "None"
	}
	return strconv.FormatInt(*v, 10)
}

// PageCount is the oracle's answer for a query.
type PageCount struct {
	// Pages is the number of result pages; zero means no matching records.
	Pages int64

	// RecordsPerPage is only reported for open-ended queries.
	RecordsPerPage int
}
