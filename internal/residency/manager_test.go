package residency

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/robertftenbosch/tenbio/internal/catalog"
)

func testCatalog() *catalog.Catalog {
	return catalog.New(
		catalog.Entry{Name: "model_a", SpeedTier: "fast", Default: true},
		catalog.Entry{Name: "model_b", SpeedTier: "slow"},
	)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeLoader counts loads/unloads, tracks which models hold accelerator
// memory, and can stall loads to widen race windows.
type fakeLoader struct {
	mu        sync.Mutex
	loads     int
	unloads   int
	inMemory  map[string]bool
	loadDelay time.Duration
	loadErr   error
}

func newFakeLoader() *fakeLoader {
	return &fakeLoader{inMemory: make(map[string]bool)}
}

func (f *fakeLoader) Load(_ context.Context, entry catalog.Entry) (any, error) {
	if f.loadDelay > 0 {
		time.Sleep(f.loadDelay)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.loadErr != nil {
		return nil, f.loadErr
	}
	f.loads++
	f.inMemory[entry.Name] = true
	return entry.Name, nil
}

func (f *fakeLoader) Unload(_ context.Context, m *Model) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unloads++
	delete(f.inMemory, m.Name)
	return nil
}

func (f *fakeLoader) residentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.inMemory)
}

func (f *fakeLoader) loadCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.loads
}

func TestEnsureLoadedSwapsAndNeverKeepsTwoResident(t *testing.T) {
	loader := newFakeLoader()
	m := NewManager(testCatalog(), loader, testLogger())
	ctx := context.Background()

	if _, err := m.EnsureLoaded(ctx, "model_a"); err != nil {
		t.Fatalf("load model_a: %v", err)
	}
	if name, ok := m.Loaded(); !ok || name != "model_a" {
		t.Fatalf("expected model_a resident, got %q", name)
	}

	if _, err := m.EnsureLoaded(ctx, "model_b"); err != nil {
		t.Fatalf("swap to model_b: %v", err)
	}
	if name, _ := m.Loaded(); name != "model_b" {
		t.Fatalf("expected model_b resident, got %q", name)
	}
	if loader.residentCount() != 1 {
		t.Fatalf("two models hold accelerator memory")
	}
	if loader.unloads != 1 {
		t.Fatalf("expected 1 unload, got %d", loader.unloads)
	}
}

func TestEnsureLoadedFastPathSkipsLoader(t *testing.T) {
	loader := newFakeLoader()
	m := NewManager(testCatalog(), loader, testLogger())
	ctx := context.Background()

	if _, err := m.EnsureLoaded(ctx, "model_a"); err != nil {
		t.Fatalf("load: %v", err)
	}
	for i := 0; i < 5; i++ {
		if _, err := m.EnsureLoaded(ctx, "model_a"); err != nil {
			t.Fatalf("reload: %v", err)
		}
	}
	if loader.loadCount() != 1 {
		t.Fatalf("fast path triggered extra loads: %d", loader.loadCount())
	}
}

func TestConcurrentEnsureLoadedLoadsOnce(t *testing.T) {
	loader := newFakeLoader()
	loader.loadDelay = 20 * time.Millisecond
	m := NewManager(testCatalog(), loader, testLogger())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := m.EnsureLoaded(context.Background(), "model_a"); err != nil {
				t.Errorf("ensure loaded: %v", err)
			}
		}()
	}
	wg.Wait()
	// The double-check after acquiring the swap lock collapses the herd
	// into one load.
	if loader.loadCount() != 1 {
		t.Fatalf("expected 1 load, got %d", loader.loadCount())
	}
}

func TestEnsureLoadedUnknownModel(t *testing.T) {
	m := NewManager(testCatalog(), newFakeLoader(), testLogger())
	_, err := m.EnsureLoaded(context.Background(), "missing_model")
	if !errors.Is(err, ErrUnknownModel) {
		t.Fatalf("expected ErrUnknownModel, got %v", err)
	}
}

func TestPreloadSingleInFlight(t *testing.T) {
	loader := newFakeLoader()
	loader.loadDelay = 50 * time.Millisecond
	m := NewManager(testCatalog(), loader, testLogger())

	first, err := m.Preload("model_a")
	if err != nil {
		t.Fatalf("preload a: %v", err)
	}
	if first != PreloadStarted {
		t.Fatalf("expected started, got %s", first)
	}

	// Second preload for a different model while the first is in flight.
	second, err := m.Preload("model_b")
	if err != nil {
		t.Fatalf("preload b: %v", err)
	}
	if second != PreloadInProgress {
		t.Fatalf("expected in-progress, got %s", second)
	}

	deadline := time.Now().Add(2 * time.Second)
	for m.Preloading() && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if loader.loadCount() != 1 {
		t.Fatalf("second preload triggered a load: %d", loader.loadCount())
	}
	if name, _ := m.Loaded(); name != "model_a" {
		t.Fatalf("expected model_a resident, got %q", name)
	}
}

func TestPreloadAlreadyLoaded(t *testing.T) {
	loader := newFakeLoader()
	m := NewManager(testCatalog(), loader, testLogger())
	if _, err := m.EnsureLoaded(context.Background(), "model_a"); err != nil {
		t.Fatalf("load: %v", err)
	}
	status, err := m.Preload("model_a")
	if err != nil {
		t.Fatalf("preload: %v", err)
	}
	if status != PreloadAlreadyLoaded {
		t.Fatalf("expected already_loaded, got %s", status)
	}
	if loader.loadCount() != 1 {
		t.Fatalf("preload of resident model reloaded: %d", loader.loadCount())
	}
}

func TestPreloadUnknownModel(t *testing.T) {
	m := NewManager(testCatalog(), newFakeLoader(), testLogger())
	if _, err := m.Preload("missing_model"); !errors.Is(err, ErrUnknownModel) {
		t.Fatalf("expected ErrUnknownModel, got %v", err)
	}
	if m.Preloading() {
		t.Fatal("rejected preload left the in-flight flag set")
	}
}
