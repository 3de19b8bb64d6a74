// Package worker drives queued prediction jobs through model residency and
// the predictor, one job at a time.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/robertftenbosch/tenbio/internal/catalog"
	"github.com/robertftenbosch/tenbio/internal/jobs"
	"github.com/robertftenbosch/tenbio/internal/observability"
	"github.com/robertftenbosch/tenbio/internal/predict"
	"github.com/robertftenbosch/tenbio/internal/residency"
	"github.com/robertftenbosch/tenbio/pkg/structapi"
)

// ChainPolicy adapts a request's chains to what the backend can execute.
// Filter may drop unsupported chains (logging a warning) and errors only when
// nothing executable remains.
type ChainPolicy interface {
	Filter(chains []structapi.ChainInput, logger *slog.Logger) ([]structapi.ChainInput, error)
}

// ArtifactSink receives completed structure files, e.g. an object-store
// mirror. Sink failures are logged, never fatal.
type ArtifactSink interface {
	Store(ctx context.Context, jobID, structurePath string) error
}

// Loop is the single sequential worker of one backend process. Exactly one
// Loop consumes the queue; this bounds inference to one job at a time.
type Loop struct {
	store     *jobs.Store
	queue     jobs.Queue
	residency *residency.Manager
	predictor predict.Predictor
	policy    ChainPolicy
	catalog   *catalog.Catalog
	sink      ArtifactSink
	outputDir string
	logger    *slog.Logger
	metrics   *observability.Registry
	done      chan struct{}
}

type Config struct {
	Store     *jobs.Store
	Queue     jobs.Queue
	Residency *residency.Manager
	Predictor predict.Predictor
	Policy    ChainPolicy
	Catalog   *catalog.Catalog
	Sink      ArtifactSink
	OutputDir string
	Logger    *slog.Logger
}

func New(cfg Config) *Loop {
	return &Loop{
		store:     cfg.Store,
		queue:     cfg.Queue,
		residency: cfg.Residency,
		predictor: cfg.Predictor,
		policy:    cfg.Policy,
		catalog:   cfg.Catalog,
		sink:      cfg.Sink,
		outputDir: cfg.OutputDir,
		logger:    cfg.Logger,
		metrics:   observability.Default,
		done:      make(chan struct{}),
	}
}

// Run consumes the queue until ctx is canceled. A canceled context lets the
// current job finish before the loop exits. Job failures never stop the loop.
func (l *Loop) Run(ctx context.Context) {
	defer close(l.done)
	l.logger.Info("worker loop started")
	for {
		jobID, err := l.queue.Dequeue(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				l.logger.Info("worker loop stopping")
				return
			}
			l.logger.Error("dequeue failed", "error", err)
			time.Sleep(time.Second)
			continue
		}
		l.metrics.SetGauge(observability.MetricQueueDepth, nil, float64(l.queue.Len()))
		l.runJob(jobID)
	}
}

// Done is closed once the loop has exited.
func (l *Loop) Done() <-chan struct{} { return l.done }

// runJob executes one job end to end. Every failure path lands in a failed
// transition; runJob itself never panics outward.
func (l *Loop) runJob(jobID string) {
	req, ok := l.store.Request(jobID)
	if !ok {
		l.logger.Error("queued job has no stored request", "job_id", jobID)
		return
	}
	if err := l.store.MarkRunning(jobID); err != nil {
		l.logger.Error("cannot start job", "job_id", jobID, "error", err)
		return
	}

	// The job itself is not cancelable; once running it completes or fails.
	ctx, span := observability.StartSpan(context.Background(), "worker.job",
		attribute.String("job_id", jobID),
		attribute.String("model", req.ModelName),
	)
	defer span.End()

	outputDir, artifact, err := l.execute(ctx, jobID, req)
	if err != nil {
		l.logger.Error("job failed", "job_id", jobID, "error", err)
		if ferr := l.store.MarkFailed(jobID, err.Error()); ferr != nil {
			l.logger.Error("failed transition rejected", "job_id", jobID, "error", ferr)
		}
		l.metrics.IncCounter(observability.MetricJobsFailed, map[string]string{"model": req.ModelName}, 1)
		return
	}

	if err := l.store.MarkCompleted(jobID, outputDir, artifact.Confidence, artifact.StructurePath != ""); err != nil {
		l.logger.Error("completed transition rejected", "job_id", jobID, "error", err)
		return
	}
	l.metrics.IncCounter(observability.MetricJobsCompleted, map[string]string{"model": req.ModelName}, 1)
	l.logger.Info("job completed", "job_id", jobID, "structure", artifact.StructurePath)

	if l.sink != nil && artifact.StructurePath != "" {
		if err := l.sink.Store(ctx, jobID, artifact.StructurePath); err != nil {
			l.logger.Warn("artifact mirror failed", "job_id", jobID, "error", err)
		}
	}
}

func (l *Loop) execute(ctx context.Context, jobID string, req structapi.PredictionRequest) (string, predict.Artifact, error) {
	chains, err := l.policy.Filter(req.Sequences, l.logger)
	if err != nil {
		return "", predict.Artifact{}, err
	}

	outputDir := filepath.Join(l.outputDir, jobID)
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return "", predict.Artifact{}, fmt.Errorf("create output dir: %w", err)
	}

	l.store.SetProgress(jobID, "Loading model and running inference")
	model, err := l.residency.EnsureLoaded(ctx, req.ModelName)
	if err != nil {
		return "", predict.Artifact{}, err
	}
	entry, _ := l.catalog.Lookup(req.ModelName)

	artifact, err := l.predictor.Predict(ctx, predict.Input{
		JobID:      jobID,
		Name:       req.Name,
		Chains:     chains,
		Model:      model,
		Entry:      entry,
		NumSeeds:   req.NumSeeds,
		NumSamples: req.NumSamples,
		OutputDir:  outputDir,
	})
	if err != nil {
		return "", predict.Artifact{}, err
	}
	return outputDir, artifact, nil
}
