// Package backend composes the job store, queue, residency manager and worker
// loop into one prediction backend service.
package backend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"

	"github.com/robertftenbosch/tenbio/internal/catalog"
	"github.com/robertftenbosch/tenbio/internal/jobs"
	"github.com/robertftenbosch/tenbio/internal/observability"
	"github.com/robertftenbosch/tenbio/internal/predict"
	"github.com/robertftenbosch/tenbio/internal/residency"
	"github.com/robertftenbosch/tenbio/internal/worker"
	"github.com/robertftenbosch/tenbio/pkg/structapi"
)

// ChainPolicy is the per-backend chain capability filter applied by the
// worker.
type ChainPolicy = worker.ChainPolicy

// ErrNotReady reports that a job exists but has not completed yet; distinct
// from not-found.
var ErrNotReady = errors.New("job is not completed")

// ErrNoStructure reports a completed job whose output holds no structure
// file; distinct from an unknown job id.
var ErrNoStructure = errors.New("no structure file found")

// Service is one prediction backend: a catalog, a residency slot, a job
// store, a queue, and the worker loop consuming it.
type Service struct {
	kind      string
	catalog   *catalog.Catalog
	store     *jobs.Store
	queue     jobs.Queue
	residency *residency.Manager
	loop      *worker.Loop
	logger    *slog.Logger
	metrics   *observability.Registry
	cancel    context.CancelFunc
}

type ServiceConfig struct {
	// Kind selects the chain policy and catalog: "protenix" or "esm".
	Kind      string
	Catalog   *catalog.Catalog
	Queue     jobs.Queue
	Loader    residency.Loader
	Predictor predict.Predictor
	Sink      worker.ArtifactSink
	OutputDir string
	Logger    *slog.Logger
}

// NewService wires the backend. Call Start to launch the worker loop.
func NewService(cfg ServiceConfig) (*Service, error) {
	policy, err := PolicyForKind(cfg.Kind)
	if err != nil {
		return nil, err
	}
	if cfg.Queue == nil {
		cfg.Queue = jobs.NewMemoryQueue()
	}
	store := jobs.NewStore()
	manager := residency.NewManager(cfg.Catalog, cfg.Loader, cfg.Logger)
	loop := worker.New(worker.Config{
		Store:     store,
		Queue:     cfg.Queue,
		Residency: manager,
		Predictor: cfg.Predictor,
		Policy:    policy,
		Catalog:   cfg.Catalog,
		Sink:      cfg.Sink,
		OutputDir: cfg.OutputDir,
		Logger:    cfg.Logger,
	})
	return &Service{
		kind:      cfg.Kind,
		catalog:   cfg.Catalog,
		store:     store,
		queue:     cfg.Queue,
		residency: manager,
		loop:      loop,
		logger:    cfg.Logger,
		metrics:   observability.Default,
	}, nil
}

// Start launches the worker loop.
func (s *Service) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	go s.loop.Run(ctx)
}

// Stop signals the worker to finish its current job and exit, then waits for
// it.
func (s *Service) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.loop.Done()
}

// Kind returns the backend kind.
func (s *Service) Kind() string { return s.kind }

// Residency exposes the residency manager for health reporting.
func (s *Service) Residency() *residency.Manager { return s.residency }

// Submit validates the request synchronously, creates the queued record and
// enqueues the job id. Validation failures create no state.
func (s *Service) Submit(ctx context.Context, req structapi.PredictionRequest) (structapi.JobStatus, error) {
	ctx, span := observability.StartSpan(ctx, "backend.submit",
		attribute.String("model", req.ModelName))
	defer span.End()

	if !s.catalog.Has(req.ModelName) {
		return structapi.JobStatus{}, fmt.Errorf("%w: %s", residency.ErrUnknownModel, req.ModelName)
	}
	if err := ValidateChains(req.Sequences); err != nil {
		return structapi.JobStatus{}, err
	}
	// Zero means absent and takes the default; explicit negatives are
	// rejected like any other out-of-range value.
	if req.NumSeeds < 0 || req.NumSeeds > maxNumSeeds {
		return structapi.JobStatus{}, validationErrorf("num_seeds must be between 1 and %d", maxNumSeeds)
	}
	if req.NumSamples < 0 || req.NumSamples > maxNumSamples {
		return structapi.JobStatus{}, validationErrorf("num_samples must be between 1 and %d", maxNumSamples)
	}
	if req.Name == "" {
		req.Name = "prediction"
	}
	if req.NumSeeds == 0 {
		req.NumSeeds = 1
	}
	if req.NumSamples == 0 {
		req.NumSamples = 1
	}
	for i := range req.Sequences {
		if req.Sequences[i].Count < 1 {
			req.Sequences[i].Count = 1
		}
	}

	// Store the record first; the worker must never see an id without one.
	jobID := s.store.Create(req)
	if err := s.queue.Enqueue(ctx, jobID); err != nil {
		if ferr := s.store.MarkRunning(jobID); ferr == nil {
			_ = s.store.MarkFailed(jobID, fmt.Sprintf("enqueue failed: %v", err))
		}
		return structapi.JobStatus{}, fmt.Errorf("enqueue job: %w", err)
	}
	s.metrics.IncCounter(observability.MetricJobsSubmitted, map[string]string{"model": req.ModelName}, 1)
	s.metrics.SetGauge(observability.MetricQueueDepth, nil, float64(s.queue.Len()))
	s.logger.Info("job submitted", "job_id", jobID, "name", req.Name, "model", req.ModelName)

	record, _ := s.store.Get(jobID)
	return record.ToWire(), nil
}

// Status returns the polled view of a job.
func (s *Service) Status(jobID string) (structapi.JobStatus, error) {
	record, ok := s.store.Get(jobID)
	if !ok {
		return structapi.JobStatus{}, jobs.ErrNotFound
	}
	return record.ToWire(), nil
}

// Artifact returns the structure file path for a completed job.
// jobs.ErrNotFound for an unknown job id, ErrNotReady when the job exists but
// is not completed, ErrNoStructure when a completed job produced no file.
func (s *Service) Artifact(jobID string) (string, error) {
	record, ok := s.store.Get(jobID)
	if !ok {
		return "", jobs.ErrNotFound
	}
	if record.Status != structapi.StatusCompleted {
		return "", fmt.Errorf("%w (status: %s)", ErrNotReady, record.Status)
	}
	if record.OutputDir == "" {
		return "", ErrNoStructure
	}
	path := predict.FindStructureFile(record.OutputDir)
	if path == "" {
		return "", ErrNoStructure
	}
	return path, nil
}

// ListModels renders the catalog annotated with residency.
func (s *Service) ListModels() []structapi.ModelInfo {
	loaded, _ := s.residency.Loaded()
	return s.catalog.List(loaded)
}

// Preload starts loading a model eagerly and reports the immediate outcome.
func (s *Service) Preload(modelName string) (structapi.PreloadResponse, error) {
	status, err := s.residency.Preload(modelName)
	if err != nil {
		return structapi.PreloadResponse{}, err
	}
	resp := structapi.PreloadResponse{ModelName: modelName}
	switch status {
	case residency.PreloadAlreadyLoaded:
		resp.Status = structapi.PreloadAlreadyLoaded
		resp.Message = fmt.Sprintf("Model '%s' is already loaded.", modelName)
	case residency.PreloadInProgress:
		resp.Status = structapi.PreloadLoading
		resp.Message = "A model is already being loaded. Please wait and try again."
	default:
		resp.Status = structapi.PreloadLoading
		resp.Message = fmt.Sprintf("Started loading model '%s'. Poll GET /models to check status.", modelName)
	}
	return resp, nil
}

// StartupPreload kicks off a background preload when the configured model
// exists; unknown names log a warning and are skipped.
func (s *Service) StartupPreload(modelName string) {
	if modelName == "" {
		return
	}
	if !s.catalog.Has(modelName) {
		s.logger.Warn("preload model is not in the catalog, skipping", "model", modelName)
		return
	}
	s.logger.Info("startup preload", "model", modelName)
	if _, err := s.residency.Preload(modelName); err != nil {
		s.logger.Warn("startup preload failed", "model", modelName, "error", err)
	}
}
