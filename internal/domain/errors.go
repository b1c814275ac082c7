package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Domain errors represent error conditions in the harvester domain.
// These errors are returned by the public API and can be checked with errors.Is.
var (
	// ErrInvalidQuery is returned when the oracle is called with no bounds.
	ErrInvalidQuery = errors.New("harvester: query needs a start or an end")

	// ErrInvalidRange is returned for ranges that break IDRange invariants.
	ErrInvalidRange = errors.New("harvester: invalid range")

	// ErrScrape is returned when expected markup is missing from a successful response.
	ErrScrape = errors.New("harvester: unexpected page markup")

	// ErrDownload is returned when the report file cannot be fetched.
	ErrDownload = errors.New("harvester: report download failed")

	// ErrReportTimeout is returned when report generation exceeds the safety bound.
	ErrReportTimeout = errors.New("harvester: report generation timed out")

	// ErrOracleExhausted is returned when the retry policy around a page count gives up.
	ErrOracleExhausted = errors.New("harvester: page count retries exhausted")

	// ErrMergeBlocked is returned when merge preconditions are not met.
	ErrMergeBlocked = errors.New("harvester: merge blocked")

	// ErrNonMonotonic flags page counts that shrink while the range grows.
	ErrNonMonotonic = errors.New("harvester: page count decreased as range grew")

	// ErrPartExists is returned when a completed part would be overwritten.
	ErrPartExists = errors.New("harvester: part already exists")

	// ErrInvalidTransition is returned for lifecycle transitions that are not allowed.
	ErrInvalidTransition = errors.New("harvester: invalid phase transition")

	// ErrInvalidConfig is returned when configuration validation fails.
	ErrInvalidConfig = errors.New("harvester: invalid configuration")
)

// RangeError wraps a failure of one step of a range download.
type RangeError struct {
	Range IDRange
	Op    string
	Err   error
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Range, e.Err)
}

func (e *RangeError) Unwrap() error {
	return e.Err
}

// HTTPStatusError records a non-success response from the remote site.
type HTTPStatusError struct {
	URL        string
	StatusCode int
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("%s returned status %d", e.URL, e.StatusCode)
}

// MergeBlockedError lists why a merge was refused.
type MergeBlockedError struct {
	Gaps         []Gap
	Unterminated bool
	NoParts      bool
}

func (e *MergeBlockedError) Error() string {
	var reasons []string
	if e.NoParts {
		reasons = append(reasons, "no part files downloaded")
	}
	if len(e.Gaps) > 0 {
		gs := make([]string, len(e.Gaps))
		for i, g := range e.Gaps {
			gs[i] = g.String()
		}
		reasons = append(reasons, fmt.Sprintf("%d gap(s): %s", len(e.Gaps), strings.Join(gs, ", ")))
	}
	if e.Unterminated {
		reasons = append(reasons, "last range is not open-ended")
	}
	return ErrMergeBlocked.Error() + ": " + strings.Join(reasons, "; ")
}

func (e *MergeBlockedError) Is(target error) bool {
	return target == ErrMergeBlocked
}
