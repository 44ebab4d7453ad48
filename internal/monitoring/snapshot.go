package monitoring

import (
	"time"

	"github.com/sells-group/places-crawler/internal/crawler"
	"github.com/sells-group/places-crawler/internal/resilience"
)

// RunSnapshot is the outcome of one region crawl as seen by the alerter.
type RunSnapshot struct {
	RunID       string `json:"run_id"`
	Region      string `json:"region"`
	Coordinates int    `json:"coordinates"`
	Completed   int    `json:"completed"`
	Failed      int    `json:"failed"`
	Written     int    `json:"written"`

	// FatalReason is set when the run halted on a fatal provider error.
	FatalReason string `json:"fatal_reason,omitempty"`
	Error       string `json:"error,omitempty"`

	CollectedAt time.Time `json:"collected_at"`
}

// Snapshot captures a run summary and the error the run ended with, if any.
func Snapshot(sum crawler.Summary, runErr error) *RunSnapshot {
	snap := &RunSnapshot{
		RunID:       sum.RunID,
		Region:      sum.Region,
		Coordinates: sum.Coordinates,
		Completed:   sum.Completed,
		Failed:      sum.Failed,
		Written:     sum.Written,
		CollectedAt: time.Now().UTC(),
	}
	if runErr != nil {
		snap.Error = runErr.Error()
		if resilience.IsFatal(runErr) {
			snap.FatalReason = resilience.FatalReason(runErr)
		}
	}
	return snap
}
