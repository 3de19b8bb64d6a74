// Package jobs owns the per-backend job state: the record store with its
// status state machine and the FIFO queue feeding the worker.
package jobs

import (
	"errors"
	"time"

	"github.com/robertftenbosch/tenbio/pkg/structapi"
)

var (
	// ErrNotFound reports an unknown job id.
	ErrNotFound = errors.New("job not found")
	// ErrIllegalTransition reports a status change the state machine forbids.
	ErrIllegalTransition = errors.New("illegal job status transition")
)

// Record is the stored view of one prediction job. Mutated only through the
// Store so the state machine guards hold.
type Record struct {
	JobID              string
	Status             string
	Progress           string
	CreatedAt          time.Time
	StartedAt          *time.Time
	CompletedAt        *time.Time
	Error              string
	Confidence         *structapi.ConfidenceScores
	StructureAvailable bool
	OutputDir          string
}

// Terminal reports whether the record reached a final state.
func (r Record) Terminal() bool {
	return r.Status == structapi.StatusCompleted || r.Status == structapi.StatusFailed
}

// ToWire converts the record into its polled representation.
func (r Record) ToWire() structapi.JobStatus {
	return structapi.JobStatus{
		JobID:              r.JobID,
		Status:             r.Status,
		Progress:           r.Progress,
		CreatedAt:          r.CreatedAt,
		StartedAt:          r.StartedAt,
		CompletedAt:        r.CompletedAt,
		Error:              r.Error,
		Confidence:         r.Confidence,
		StructureAvailable: r.StructureAvailable,
	}
}
