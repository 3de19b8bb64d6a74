// Package gateway fronts the prediction backends: it routes submissions by
// model-name convention, remembers which backend owns each job, and
// aggregates model listings tolerating partial backend failure.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/robertftenbosch/tenbio/internal/catalog"
	"github.com/robertftenbosch/tenbio/internal/observability"
	"github.com/robertftenbosch/tenbio/pkg/structapi"
)

// Backend is one configured downstream service.
type Backend struct {
	// Name identifies the backend in logs and routing config
	// ("protenix", "esm").
	Name string
	// BaseURL is the service root, e.g. http://localhost:8001.
	BaseURL string
	// Prefixes are the model-name prefixes routed here.
	Prefixes []string
	// DisplayName appears in client-facing messages ("Protenix", "ESM").
	DisplayName string
}

// Router routes gateway calls across backends. The ownership cache is
// best-effort; races only cost a duplicate probe.
type Router struct {
	backends []*routedBackend
	fallback *routedBackend
	logger   *slog.Logger
	metrics  *observability.Registry

	mu     sync.Mutex
	owners map[string]*routedBackend
}

type routedBackend struct {
	Backend
	client *client
}

// NewRouter builds a router over backends, probing them in the given order.
// The first backend is the routing fallback for unrecognized model prefixes.
// At least one backend is required.
func NewRouter(backends []Backend, timeout time.Duration, logger *slog.Logger) (*Router, error) {
	if len(backends) == 0 {
		return nil, errors.New("gateway requires at least one backend")
	}
	r := &Router{
		logger:  logger,
		metrics: observability.Default,
		owners:  make(map[string]*routedBackend),
	}
	for _, b := range backends {
		rb := &routedBackend{Backend: b, client: newClient(b.Name, b.BaseURL, timeout)}
		if rb.DisplayName == "" {
			rb.DisplayName = rb.Name
		}
		r.backends = append(r.backends, rb)
	}
	r.fallback = r.backends[0]
	return r, nil
}

// routeByModel picks the backend for a model name by prefix convention;
// unrecognized prefixes go to the fallback backend.
func (r *Router) routeByModel(modelName string) *routedBackend {
	for _, b := range r.backends {
		for _, p := range b.Prefixes {
			if p != "" && len(modelName) >= len(p) && modelName[:len(p)] == p {
				return b
			}
		}
	}
	return r.fallback
}

// Submit routes the request and records job ownership on success.
func (r *Router) Submit(ctx context.Context, req structapi.PredictionRequest) (structapi.SubmitResponse, error) {
	b := r.routeByModel(req.ModelName)
	ctx, span := observability.StartSpan(ctx, "gateway.submit",
		attribute.String("backend", b.Name),
		attribute.String("model", req.ModelName))
	defer span.End()

	status, err := b.client.submit(ctx, req)
	if err != nil {
		if errors.Is(err, ErrBackendUnavailable) {
			r.metrics.IncCounter(observability.MetricBackendUnreached, map[string]string{"backend": b.Name}, 1)
		}
		return structapi.SubmitResponse{}, err
	}

	r.mu.Lock()
	r.owners[status.JobID] = b
	r.mu.Unlock()

	r.logger.Info("job routed", "job_id", status.JobID, "backend", b.Name, "model", req.ModelName)
	return structapi.SubmitResponse{
		JobID:   status.JobID,
		Status:  status.Status,
		Message: fmt.Sprintf("Prediction job submitted to %s: %s", b.DisplayName, status.Status),
	}, nil
}

// owner resolves the backend owning jobID: cached entry if present, else a
// fixed-order probe using probe. A NotFound from one backend advances to the
// next; the first success is cached.
func (r *Router) owner(ctx context.Context, jobID string, probe func(ctx context.Context, b *routedBackend) error) (*routedBackend, error) {
	r.mu.Lock()
	cached, ok := r.owners[jobID]
	r.mu.Unlock()
	if ok {
		r.metrics.IncCounter(observability.MetricGatewayOwnerHits, nil, 1)
		return cached, nil
	}

	r.metrics.IncCounter(observability.MetricGatewayProbes, nil, 1)
	ctx, span := observability.StartSpan(ctx, "gateway.owner_probe",
		attribute.String("job_id", jobID))
	defer span.End()

	var lastUnavailable error
	for _, b := range r.backends {
		err := probe(ctx, b)
		if err == nil {
			r.mu.Lock()
			r.owners[jobID] = b
			r.mu.Unlock()
			return b, nil
		}
		if errors.Is(err, ErrJobNotFound) {
			continue
		}
		if errors.Is(err, ErrBackendUnavailable) {
			r.metrics.IncCounter(observability.MetricBackendUnreached, map[string]string{"backend": b.Name}, 1)
			lastUnavailable = err
			continue
		}
		return nil, err
	}
	if lastUnavailable != nil {
		r.logger.Warn("job owner probe exhausted with unreachable backends", "job_id", jobID)
	}
	return nil, ErrJobNotFound
}

// JobStatus resolves the owning backend and polls it.
func (r *Router) JobStatus(ctx context.Context, jobID string) (structapi.JobStatus, error) {
	b, err := r.owner(ctx, jobID, func(ctx context.Context, b *routedBackend) error {
		_, err := b.client.jobStatus(ctx, jobID)
		return err
	})
	if err != nil {
		return structapi.JobStatus{}, err
	}
	return b.client.jobStatus(ctx, jobID)
}

// Structure resolves the owning backend and downloads the artifact.
func (r *Router) Structure(ctx context.Context, jobID string) ([]byte, string, error) {
	b, err := r.owner(ctx, jobID, func(ctx context.Context, b *routedBackend) error {
		_, err := b.client.jobStatus(ctx, jobID)
		return err
	})
	if err != nil {
		return nil, "", err
	}
	return b.client.structure(ctx, jobID)
}

// ListModels queries every backend; unreachable or failing backends
// contribute nothing. When no backend answered, one hard-coded default entry
// is returned so the listing is never empty and ambiguous.
func (r *Router) ListModels(ctx context.Context) []structapi.ModelInfo {
	var all []structapi.ModelInfo
	for _, b := range r.backends {
		models, err := b.client.listModels(ctx)
		if err != nil {
			r.logger.Warn("backend model listing failed", "backend", b.Name, "error", err)
			if errors.Is(err, ErrBackendUnavailable) {
				r.metrics.IncCounter(observability.MetricBackendUnreached, map[string]string{"backend": b.Name}, 1)
			}
			continue
		}
		all = append(all, models...)
	}
	if len(all) == 0 {
		all = []structapi.ModelInfo{catalog.FallbackEntry()}
	}
	return all
}

// Preload routes by the same model-name convention as Submit. Fire and
// forget: ownership is not cached.
func (r *Router) Preload(ctx context.Context, modelName string) (structapi.PreloadResponse, error) {
	b := r.routeByModel(modelName)
	resp, err := b.client.preload(ctx, modelName)
	if err != nil && errors.Is(err, ErrBackendUnavailable) {
		r.metrics.IncCounter(observability.MetricBackendUnreached, map[string]string{"backend": b.Name}, 1)
	}
	return resp, err
}

// BackendDisplayName reports the display name a model routes to; used in
// error messages.
func (r *Router) BackendDisplayName(modelName string) string {
	return r.routeByModel(modelName).DisplayName
}
