// Package validation checks untrusted ingestion and provisioning input before any
// storage access. Every failure is an apperr validation error with a message that
// names the offending field, so clients can fix their payload without guessing.
package validation

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/runledger/runledger/internal/apperr"
	"github.com/runledger/runledger/internal/db/models"
)

// TestRunInput is a test run payload exactly as received from a client.
type TestRunInput struct {
	RunID      string
	Status     string
	DurationMs json.Number
	Timestamp  string
}

// TestRun is a payload that passed validation, in storage form.
type TestRun struct {
	RunID      string
	Status     string
	DurationMs int64
	Timestamp  time.Time
}

// ValidateTestRun checks every field of in, reporting the first failure.
func ValidateTestRun(in TestRunInput) (*TestRun, error) {
	runID, err := ValidateRunID(in.RunID)
	if err != nil {
		return nil, err
	}

	status := strings.TrimSpace(in.Status)
	if status != models.StatusPassed && status != models.StatusFailed {
		return nil, apperr.Validation("status", "status must be one of: passed, failed")
	}

	duration, err := parseDuration(in.DurationMs)
	if err != nil {
		return nil, err
	}

	ts, err := parseTimestamp(in.Timestamp)
	if err != nil {
		return nil, err
	}

	return &TestRun{
		RunID:      runID,
		Status:     status,
		DurationMs: duration,
		Timestamp:  ts,
	}, nil
}

// ValidateRunID accepts only the canonical 36-character hyphenated UUID form and
// returns it lowercased.
func ValidateRunID(s string) (string, error) {
	if len(s) != 36 {
		return "", apperr.Validation("run_id", "run_id must be a valid UUID")
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return "", apperr.Validation("run_id", "run_id must be a valid UUID")
	}
	return id.String(), nil
}

// parseDuration follows integer-valued number semantics: 1234 and 1234.0 are
// accepted, 1234.5 is not.
func parseDuration(n json.Number) (int64, error) {
	s := n.String()
	if s == "" {
		return 0, apperr.Validation("duration_ms", "duration_ms is required")
	}

	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		f, ferr := strconv.ParseFloat(s, 64)
		if ferr != nil || math.IsInf(f, 0) || math.IsNaN(f) || f != math.Trunc(f) {
			return 0, apperr.Validation("duration_ms", "duration_ms must be an integer")
		}
		if f < 0 {
			return 0, apperr.Validation("duration_ms", "duration_ms must be >= 0")
		}
		if f >= math.MaxInt64 {
			return 0, apperr.Validation("duration_ms", "duration_ms is out of range")
		}
		v = int64(f)
	}

	if v < 0 {
		return 0, apperr.Validation("duration_ms", "duration_ms must be >= 0")
	}
	return v, nil
}

// parseTimestamp accepts a timestamp only if re-rendering it in canonical
// millisecond UTC form reproduces the input exactly.
func parseTimestamp(s string) (time.Time, error) {
	invalid := apperr.Validation("timestamp",
		"timestamp must be a canonical ISO-8601 UTC timestamp (e.g. 2026-01-12T10:10:00.000Z)")

	if s == "" {
		return time.Time{}, apperr.Validation("timestamp", "timestamp is required")
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, invalid
	}
	t = t.UTC()
	if t.Format(models.TimestampLayout) != s {
		return time.Time{}, invalid
	}
	return t, nil
}
