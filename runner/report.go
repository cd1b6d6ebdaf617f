package runner

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"timebox/core/execution"
	"timebox/core/failure"
)

// Report is the JSON-serialisable record of one invocation.
type Report struct {
	ID         string              `json:"id"`
	Target     string              `json:"target"`
	Outcome    execution.Outcome   `json:"outcome"`
	Value      json.RawMessage     `json:"value,omitempty"`
	Error      *string             `json:"error,omitempty"`
	ErrorKind  failure.Kind        `json:"error_kind,omitempty"`
	ErrorType  string              `json:"error_type,omitempty"`
	TimeoutMs  int64               `json:"timeout_ms"`
	StartedAt  string              `json:"started_at,omitempty"`
	DurationMs int64               `json:"duration_ms"`
	WorkerID   string              `json:"worker_id,omitempty"`
	States     []execution.State   `json:"states,omitempty"`
	Resources  execution.Resources `json:"resources"`
}

func newReport(inv execution.Invocation, result execution.Result, err error) Report {
	report := Report{
		ID:         inv.ID,
		Target:     inv.Target,
		Outcome:    result.Outcome,
		Value:      result.Value,
		TimeoutMs:  inv.Timeout.Milliseconds(),
		DurationMs: result.Duration().Milliseconds(),
		WorkerID:   result.WorkerID,
		States:     result.States,
		Resources:  result.Resources,
	}
	if !result.StartedAt.IsZero() {
		report.StartedAt = result.StartedAt.UTC().Format(time.RFC3339Nano)
	}
	if err != nil {
		msg := err.Error()
		report.Error = &msg
		if report.Outcome == "" {
			report.Outcome = execution.OutcomeError
		}
		var ferr *failure.Error
		if errors.As(err, &ferr) {
			report.ErrorKind = ferr.Kind
			report.ErrorType = ferr.Type
		}
	}
	return report
}

// Summary counts reports per outcome.
func Summary(reports []Report) map[execution.Outcome]int {
	out := map[execution.Outcome]int{}
	for _, r := range reports {
		out[r.Outcome]++
	}
	return out
}

// WriteReports writes reports as indented JSON to path.
func WriteReports(path string, reports []Report) error {
	data, err := json.MarshalIndent(reports, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal reports: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
