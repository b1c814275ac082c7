package domain

import "time"

// RunStatus is the operator-facing record of the last download run.
// It is informational only; resume never reads it.
type RunStatus struct {
	RunID        string    `json:"run_id"`
	Tenant       string    `json:"tenant"`
	StartedAt    time.Time `json:"started_at"`
	FinishedAt   time.Time `json:"finished_at"`
	TotalPages   int64     `json:"total_pages"`
	PagesPerPart int64     `json:"pages_per_part"`
	Completed    int       `json:"completed"`
	Attempts     int       `json:"attempts"`
	Finished     bool      `json:"finished"`
	Failed       []string  `json:"failed,omitempty"`
	Error        string    `json:"error,omitempty"`
}
