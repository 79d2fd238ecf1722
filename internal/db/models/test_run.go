package models

import (
	"encoding/json"
	"time"
)

// TimestampLayout is the canonical millisecond UTC form accepted for test run timestamps.
const TimestampLayout = "2006-01-02T15:04:05.000Z"

// Test run statuses.
const (
	StatusPassed = "passed"
	StatusFailed = "failed"
)

// TestRun is one CI run outcome. (ProjectID, RunID) is unique and the row is never
// updated after the first insert.
type TestRun struct {
	ID         string    `db:"id"`
	ProjectID  string    `db:"project_id"`
	RunID      string    `db:"run_id"`
	Status     string    `db:"status"`
	DurationMs int64     `db:"duration_ms"`
	Timestamp  time.Time `db:"timestamp"`
	CreatedAt  time.Time `db:"created_at"`
}

type testRunJSON struct {
	ID         string    `json:"id"`
	ProjectID  string    `json:"project_id"`
	RunID      string    `json:"run_id"`
	Status     string    `json:"status"`
	DurationMs int64     `json:"duration_ms"`
	Timestamp  string    `json:"timestamp"`
	CreatedAt  time.Time `json:"created_at"`
}

// MarshalJSON renders Timestamp in TimestampLayout so clients get back exactly what they sent.
func (r TestRun) MarshalJSON() ([]byte, error) {
	return json.Marshal(testRunJSON{
		ID:         r.ID,
		ProjectID:  r.ProjectID,
		RunID:      r.RunID,
		Status:     r.Status,
		DurationMs: r.DurationMs,
		Timestamp:  r.Timestamp.UTC().Format(TimestampLayout),
		CreatedAt:  r.CreatedAt,
	})
}
