// Package residency manages the single accelerator-resident model slot of a
// backend process. Only one model fits in accelerator memory at a time, so
// loading a different model first unloads the current one.
package residency

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
)

// ErrUnknownModel reports a model name absent from the backend catalog.
var ErrUnknownModel = errors.New("unknown model")

// Model is a handle to a loaded model instance.
type Model struct {
	Name  string
	Entry catalog.Entry
	// Handle is whatever the loader produced (runner address, process
	// handle). Opaque to the manager.
	Handle any
}

// Loader performs the actual load/unload against the accelerator. Production
// loaders wrap the model runtime; tests use counting fakes.
type Loader interface {
	Load(ctx context.Context, entry catalog.Entry) (any, error)
	Unload(ctx context.Context, m *Model) error
}

// Manager owns the residency slot. It is the only place that swaps the slot;
// two swaps can never race.
type Manager struct {
	catalog *catalog.Catalog
	loader  Loader
	logger  *slog.Logger
	metrics *observability.Registry

	// swapMu serializes load/unload; mu guards the fields below with
	// short critical sections so status reads never wait on a load.
	swapMu     sync.Mutex
	mu         sync.Mutex
	resident   *Model
	preloading bool
}

func NewManager(cat *catalog.Catalog, loader Loader, logger *slog.Logger) *Manager {
	return &Manager{
		catalog: cat,
		loader:  loader,
		logger:  logger,
		metrics: observability.Default,
	}
}

// EnsureLoaded returns the requested model, swapping it into the slot if
// necessary. The common already-resident case takes no exclusive lock beyond
// the residency read.
func (m *Manager) EnsureLoaded(ctx context.Context, modelName string) (*Model, error) {
	entry, ok := m.catalog.Lookup(modelName)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownModel, modelName)
	}

	// Fast path: already resident.
	m.mu.Lock()
	if m.resident != nil && m.resident.Name == modelName {
		model := m.resident
		m.mu.Unlock()
		return model, nil
	}
	m.mu.Unlock()

	return m.swap(ctx, entry)
}

// swap serializes load/unload. Callers racing for the same model find it
// resident on the re-check and return without a second load.
func (m *Manager) swap(ctx context.Context, entry catalog.Entry) (*Model, error) {
	m.swapMu.Lock()
	defer m.swapMu.Unlock()

	// Re-check: another caller may have swapped while we waited.
	m.mu.Lock()
	if m.resident != nil && m.resident.Name == entry.Name {
		model := m.resident
		m.mu.Unlock()
		return model, nil
	}
	current := m.resident
	m.mu.Unlock()

	if current != nil {
		m.logger.Info("unloading resident model",
			"model", current.Name,
			"next", entry.Name)
		if err := m.loader.Unload(ctx, current); err != nil {
			return nil, fmt.Errorf("unload %s: %w", current.Name, err)
		}
		m.mu.Lock()
		m.resident = nil
		m.mu.Unlock()
	}

	ctx, span := observability.StartSpan(ctx, "residency.load",
		attribute.String("model", entry.Name))
	defer span.End()

	m.logger.Info("loading model",
		"model", entry.Name,
		"parameters_m", entry.ParametersM)
	start := time.Now()
	handle, err := m.loader.Load(ctx, entry)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", entry.Name, err)
	}
	model := &Model{Name: entry.Name, Entry: entry, Handle: handle}
	m.mu.Lock()
	m.resident = model
	m.mu.Unlock()
	m.metrics.IncCounter(observability.MetricModelSwaps, map[string]string{"model": entry.Name}, 1)
	m.metrics.SetGauge(observability.MetricModelLoadSeconds, map[string]string{"model": entry.Name}, time.Since(start).Seconds())
	m.logger.Info("model loaded", "model", entry.Name, "elapsed", time.Since(start))
	return model, nil
}

// PreloadStatus is the immediate answer to a preload request.
type PreloadStatus string

const (
	PreloadStarted       PreloadStatus = "loading"
	PreloadAlreadyLoaded PreloadStatus = "already_loaded"
	PreloadInProgress    PreloadStatus = "loading_in_progress"
)

// Preload starts loading modelName in the background. At most one preload is
// in flight; a second request returns immediately without starting another
// load.
func (m *Manager) Preload(modelName string) (PreloadStatus, error) {
	if !m.catalog.Has(modelName) {
		return "", fmt.Errorf("%w: %s", ErrUnknownModel, modelName)
	}

	m.mu.Lock()
	if m.resident != nil && m.resident.Name == modelName {
		m.mu.Unlock()
		return PreloadAlreadyLoaded, nil
	}
	if m.preloading {
		m.mu.Unlock()
		m.metrics.IncCounter(observability.MetricPreloadRejected, nil, 1)
		return PreloadInProgress, nil
	}
	m.preloading = true
	m.mu.Unlock()

	go func() {
		defer func() {
			m.mu.Lock()
			m.preloading = false
			m.mu.Unlock()
		}()
		if _, err := m.EnsureLoaded(context.Background(), modelName); err != nil {
			m.logger.Error("preload failed", "model", modelName, "error", err)
		}
	}()
	return PreloadStarted, nil
}

// Loaded reports the resident model name, if any.
func (m *Manager) Loaded() (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.resident == nil {
		return "", false
	}
	return m.resident.Name, true
}

// Preloading reports whether a background preload is in flight.
func (m *Manager) Preloading() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.preloading
}
