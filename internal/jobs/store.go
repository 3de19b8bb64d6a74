package jobs

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/robertftenbosch/tenbio/pkg/structapi"
)

// Store is the single source of truth for job status on one backend. The
// worker is the only writer after creation; HTTP handlers read concurrently.
type Store struct {
	mu       sync.Mutex
	records  map[string]Record
	requests map[string]structapi.PredictionRequest
}

func NewStore() *Store {
	return &Store{
		records:  make(map[string]Record),
		requests: make(map[string]structapi.PredictionRequest),
	}
}

// Create allocates a job id, stores the queued record together with its
// request, and returns the id. Callers must enqueue the id only after Create
// returns, so the worker can never observe an id without a record.
func (s *Store) Create(req structapi.PredictionRequest) string {
	jobID := uuid.NewString()
	now := time.Now().UTC()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[jobID] = Record{
		JobID:     jobID,
		Status:    structapi.StatusQueued,
		Progress:  "Waiting in queue",
		CreatedAt: now,
	}
	s.requests[jobID] = req
	return jobID
}

// Get returns the record for jobID.
func (s *Store) Get(jobID string) (Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[jobID]
	return r, ok
}

// Request returns the stored submission for jobID.
func (s *Store) Request(jobID string) (structapi.PredictionRequest, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.requests[jobID]
	return req, ok
}

// MarkRunning moves a queued job to running.
func (s *Store) MarkRunning(jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[jobID]
	if !ok {
		return ErrNotFound
	}
	if r.Status != structapi.StatusQueued {
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, r.Status, structapi.StatusRunning)
	}
	now := time.Now().UTC()
	r.Status = structapi.StatusRunning
	r.Progress = "Initializing model"
	r.StartedAt = &now
	s.records[jobID] = r
	return nil
}

// SetProgress updates the human-readable progress text of a running job.
// Progress on a terminal job is dropped.
func (s *Store) SetProgress(jobID, progress string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[jobID]
	if !ok || r.Terminal() {
		return
	}
	r.Progress = progress
	s.records[jobID] = r
}

// MarkCompleted moves a running job to completed, recording confidence, the
// structure-available flag and the output location.
func (s *Store) MarkCompleted(jobID, outputDir string, confidence *structapi.ConfidenceScores, structureAvailable bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[jobID]
	if !ok {
		return ErrNotFound
	}
	if r.Status != structapi.StatusRunning {
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, r.Status, structapi.StatusCompleted)
	}
	now := time.Now().UTC()
	r.Status = structapi.StatusCompleted
	r.Progress = "Done"
	r.CompletedAt = &now
	r.Confidence = confidence
	r.StructureAvailable = structureAvailable
	r.OutputDir = outputDir
	s.records[jobID] = r
	return nil
}

// MarkFailed moves a running job to failed, capturing the error message.
func (s *Store) MarkFailed(jobID, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[jobID]
	if !ok {
		return ErrNotFound
	}
	if r.Status != structapi.StatusRunning {
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, r.Status, structapi.StatusFailed)
	}
	now := time.Now().UTC()
	r.Status = structapi.StatusFailed
	r.Progress = "Failed"
	r.CompletedAt = &now
	r.Error = message
	s.records[jobID] = r
	return nil
}

// Len reports the number of stored jobs.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}
