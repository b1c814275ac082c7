package domain

import (
	"fmt"
	"strings"
)

// DefaultPagesDelta is the default tolerance above the per-part page target.
const DefaultPagesDelta = 1

// PartitionPlan is derived from one unbounded oracle call and never stored.
type PartitionPlan struct {
	TotalPages     int64
	RecordsPerPage int
	DesiredParts   int
	PagesPerPart   int64
	PagesDelta     int64
}

// NewPlan computes PagesPerPart as ceil(totalPages / desiredParts).
func NewPlan(totalPages int64, recordsPerPage, desiredParts int, pagesDelta int64) PartitionPlan {
	if desiredParts < 1 {
		desiredParts = 1
	}
	if pagesDelta < 0 {
		pagesDelta = 0
	}
	parts := int64(desiredParts)
	return PartitionPlan{
		TotalPages:     totalPages,
		RecordsPerPage: recordsPerPage,
		DesiredParts:   desiredParts,
		PagesPerPart:   (totalPages + parts - 1) / parts,
		PagesDelta:     pagesDelta,
	}
}

// Accepts reports whether pages lies in [PagesPerPart, PagesPerPart+PagesDelta].
func (p PartitionPlan) Accepts(pages int64) bool {
	d := pages - p.PagesPerPart
	return d >= 0 && d <= p.PagesDelta
}

// MaxPages is the largest page count an accepted part may have.
func (p PartitionPlan) MaxPages() int64 {
	return p.PagesPerPart + p.PagesDelta
}

// FailedRange is a range that raised an error during download and is
// queued for bounded retry. Undiscovered marks a cursor where boundary
// discovery itself failed; its End is unknown.
type FailedRange struct {
	Range        IDRange
	Err          error
	Attempts     int
	Undiscovered bool
}

func (f FailedRange) String() string {
	var b strings.Builder
	b.WriteString(f.Range.String())
	if f.Undiscovered {
		b.WriteString(" (undiscovered)")
	}
	if f.Err != nil {
		fmt.Fprintf(&b, ": %v", f.Err)
	}
	return b.String()
}

// Tenant identifies the remote site (county) an operation runs for.
// It is passed explicitly to every operation that needs it.
type Tenant struct {
	Name string
}

func (t Tenant) String() string {
	return t.Name
}
