package jobs

import (
	"errors"
	"testing"

	"github.com/robertftenbosch/tenbio/pkg/structapi"
)

func testRequest(name string) structapi.PredictionRequest {
	return structapi.PredictionRequest{
		Name: name,
		Sequences: []structapi.ChainInput{
			{Type: structapi.ChainProtein, Sequence: "MVSK", Count: 1},
		},
		ModelName: "esmfold_v1",
	}
}

func TestCreateYieldsDistinctQueuedJobs(t *testing.T) {
	s := NewStore()
	seen := make(map[string]bool)
	for i := 0; i < 10; i++ {
		jobID := s.Create(testRequest("job"))
		if seen[jobID] {
			t.Fatalf("duplicate job id %s", jobID)
		}
		seen[jobID] = true

		r, ok := s.Get(jobID)
		if !ok {
			t.Fatalf("job %s not stored", jobID)
		}
		if r.Status != structapi.StatusQueued {
			t.Fatalf("expected queued, got %s", r.Status)
		}
		if r.CreatedAt.IsZero() {
			t.Fatalf("created_at not set")
		}
		if _, ok := s.Request(jobID); !ok {
			t.Fatalf("request for %s not stored", jobID)
		}
	}
}

func TestTransitionsFollowStateMachine(t *testing.T) {
	s := NewStore()
	jobID := s.Create(testRequest("t"))

	// Terminal transitions from queued are illegal.
	if err := s.MarkCompleted(jobID, "", nil, true); !errors.Is(err, ErrIllegalTransition) {
		t.Fatalf("expected illegal transition, got %v", err)
	}
	if err := s.MarkFailed(jobID, "boom"); !errors.Is(err, ErrIllegalTransition) {
		t.Fatalf("expected illegal transition, got %v", err)
	}

	if err := s.MarkRunning(jobID); err != nil {
		t.Fatalf("mark running: %v", err)
	}
	r, _ := s.Get(jobID)
	if r.Status != structapi.StatusRunning || r.StartedAt == nil {
		t.Fatalf("unexpected running record: %+v", r)
	}

	// running -> running is illegal.
	if err := s.MarkRunning(jobID); !errors.Is(err, ErrIllegalTransition) {
		t.Fatalf("expected illegal transition, got %v", err)
	}

	plddt := 87.5
	if err := s.MarkCompleted(jobID, "/tmp/out", &structapi.ConfidenceScores{PLDDT: &plddt}, true); err != nil {
		t.Fatalf("mark completed: %v", err)
	}
	r, _ = s.Get(jobID)
	if r.Status != structapi.StatusCompleted || r.CompletedAt == nil || !r.StructureAvailable {
		t.Fatalf("unexpected completed record: %+v", r)
	}
	if r.Confidence == nil || r.Confidence.PLDDT == nil || *r.Confidence.PLDDT != 87.5 {
		t.Fatalf("confidence not recorded: %+v", r.Confidence)
	}

	// Terminal records are final.
	if err := s.MarkFailed(jobID, "late failure"); !errors.Is(err, ErrIllegalTransition) {
		t.Fatalf("terminal record mutated: %v", err)
	}
}

func TestErrorOnlySetOnFailure(t *testing.T) {
	s := NewStore()
	jobID := s.Create(testRequest("t"))
	if err := s.MarkRunning(jobID); err != nil {
		t.Fatalf("mark running: %v", err)
	}
	if err := s.MarkFailed(jobID, "runner exploded"); err != nil {
		t.Fatalf("mark failed: %v", err)
	}
	r, _ := s.Get(jobID)
	if r.Error != "runner exploded" || r.Status != structapi.StatusFailed {
		t.Fatalf("unexpected failed record: %+v", r)
	}
	if r.Confidence != nil || r.StructureAvailable {
		t.Fatalf("completion fields set on failure: %+v", r)
	}
}

func TestProgressDroppedOnTerminalJob(t *testing.T) {
	s := NewStore()
	jobID := s.Create(testRequest("t"))
	_ = s.MarkRunning(jobID)
	_ = s.MarkFailed(jobID, "x")
	s.SetProgress(jobID, "should not apply")
	r, _ := s.Get(jobID)
	if r.Progress != "Failed" {
		t.Fatalf("terminal progress mutated: %q", r.Progress)
	}
}

func TestUnknownJob(t *testing.T) {
	s := NewStore()
	if _, ok := s.Get("nope"); ok {
		t.Fatal("expected missing job")
	}
	if err := s.MarkRunning("nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
