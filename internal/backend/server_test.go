package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/robertftenbosch/tenbio/internal/catalog"
	"github.com/robertftenbosch/tenbio/internal/gpu"
	"github.com/robertftenbosch/tenbio/pkg/structapi"
)

func newTestServer(t *testing.T) (*httptest.Server, *Service) {
	t.Helper()
	svc := newTestService(t, "protenix", catalog.Protenix(), &stubPredictor{})
	srv := httptest.NewServer(NewServer(svc, gpu.Static{Available: true, Name: "Test GPU"}, testLogger()).Handler())
	t.Cleanup(srv.Close)
	return srv, svc
}

func postJSON(t *testing.T, url string, payload any) *http.Response {
	t.Helper()
	b, err := json.Marshal(payload)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(b))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var out T
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return out
}

func TestHealthEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)
	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("health status %d", resp.StatusCode)
	}
	h := decode[structapi.HealthResponse](t, resp)
	if h.Status != "healthy" || !h.GPUAvailable || h.GPUName != "Test GPU" {
		t.Fatalf("health body: %+v", h)
	}
	if h.ModelLoaded {
		t.Fatal("no model should be resident at startup")
	}
}

func TestPredictPollDownloadFlow(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := postJSON(t, srv.URL+"/predict", validRequest())
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("predict status %d", resp.StatusCode)
	}
	submitted := decode[structapi.JobStatus](t, resp)
	if submitted.JobID == "" {
		t.Fatal("no job id in submit response")
	}

	var final structapi.JobStatus
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		r, err := http.Get(srv.URL + "/jobs/" + submitted.JobID)
		if err != nil {
			t.Fatal(err)
		}
		final = decode[structapi.JobStatus](t, r)
		if final.Status == structapi.StatusCompleted || final.Status == structapi.StatusFailed {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if final.Status != structapi.StatusCompleted {
		t.Fatalf("job ended %s (%s)", final.Status, final.Error)
	}

	r, err := http.Get(srv.URL + "/jobs/" + submitted.JobID + "/structure")
	if err != nil {
		t.Fatal(err)
	}
	defer r.Body.Close()
	if r.StatusCode != http.StatusOK {
		t.Fatalf("structure status %d", r.StatusCode)
	}
	if ct := r.Header.Get("Content-Type"); ct != "chemical/x-mmcif" {
		t.Fatalf("content type %q", ct)
	}
	if cd := r.Header.Get("Content-Disposition"); !strings.Contains(cd, submitted.JobID+".cif") {
		t.Fatalf("content disposition %q", cd)
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		t.Fatal(err)
	}
	if len(body) == 0 {
		t.Fatal("downloaded structure is empty")
	}
}

func TestPredictRejectsInvalidRequests(t *testing.T) {
	srv, svc := newTestServer(t)

	req := validRequest()
	req.ModelName = "alphafold99"
	resp := postJSON(t, srv.URL+"/predict", req)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("unknown model status %d", resp.StatusCode)
	}
	e := decode[structapi.ErrorResponse](t, resp)
	if !strings.Contains(e.Detail, "Unknown model 'alphafold99'") {
		t.Fatalf("detail %q", e.Detail)
	}

	req = validRequest()
	req.Sequences = []structapi.ChainInput{{Type: structapi.ChainLigand, Count: 1}}
	resp = postJSON(t, srv.URL+"/predict", req)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("missing ligand_id status %d", resp.StatusCode)
	}
	e = decode[structapi.ErrorResponse](t, resp)
	if !strings.Contains(e.Detail, "ligand_id") {
		t.Fatalf("detail %q", e.Detail)
	}
	if svc.store.Len() != 0 {
		t.Fatalf("rejected requests created %d jobs", svc.store.Len())
	}
}

func TestJobStatusNotFound(t *testing.T) {
	srv, _ := newTestServer(t)
	resp, err := http.Get(srv.URL + "/jobs/ffffffff-0000-0000-0000-000000000000")
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status %d", resp.StatusCode)
	}
	e := decode[structapi.ErrorResponse](t, resp)
	if e.Detail != "Job not found" {
		t.Fatalf("detail %q", e.Detail)
	}
}

func TestStructureNotReadyAndNotFound(t *testing.T) {
	srv, svc := newTestServer(t)

	status, err := svc.Submit(context.Background(), validRequest())
	if err != nil {
		t.Fatal(err)
	}
	// Poll the structure immediately; depending on timing the job may be
	// queued or running, both of which are a 400 not-ready.
	resp, err := http.Get(srv.URL + "/jobs/" + status.JobID + "/structure")
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusBadRequest && resp.StatusCode != http.StatusOK {
		t.Fatalf("structure while pending: %d", resp.StatusCode)
	}
	resp.Body.Close()

	// An unknown job id is a different 404 than a completed job with no
	// structure file.
	resp, err = http.Get(srv.URL + "/jobs/missing/structure")
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("missing job structure status %d", resp.StatusCode)
	}
	e := decode[structapi.ErrorResponse](t, resp)
	if e.Detail != "Job not found" {
		t.Fatalf("detail %q", e.Detail)
	}
}

func TestStructureGoneAfterCompletion(t *testing.T) {
	srv, svc := newTestServer(t)

	status, err := svc.Submit(context.Background(), validRequest())
	if err != nil {
		t.Fatal(err)
	}
	final := waitCompleted(t, svc, status.JobID)
	if final.Status != structapi.StatusCompleted {
		t.Fatalf("status %s (%s)", final.Status, final.Error)
	}

	// Remove the produced files: the job exists and completed, but no
	// structure file remains to serve.
	path, err := svc.Artifact(status.JobID)
	if err != nil {
		t.Fatalf("artifact: %v", err)
	}
	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}

	resp, err := http.Get(srv.URL + "/jobs/" + status.JobID + "/structure")
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status %d, want 404", resp.StatusCode)
	}
	e := decode[structapi.ErrorResponse](t, resp)
	if e.Detail != "No structure file found" {
		t.Fatalf("detail %q", e.Detail)
	}
}

func TestModelsEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)
	resp, err := http.Get(srv.URL + "/models")
	if err != nil {
		t.Fatal(err)
	}
	models := decode[structapi.ModelsResponse](t, resp)
	if len(models.Models) != 7 {
		t.Fatalf("expected 7 models, got %d", len(models.Models))
	}
	for _, m := range models.Models {
		if m.Loaded {
			t.Fatalf("model %s reported loaded before any job ran", m.Name)
		}
	}
}

func TestPreloadEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := postJSON(t, srv.URL+"/preload", structapi.PreloadRequest{ModelName: "protenix_tiny_default_v0.5.0"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("preload status %d", resp.StatusCode)
	}
	p := decode[structapi.PreloadResponse](t, resp)
	if p.Status != structapi.PreloadLoading {
		t.Fatalf("preload response %+v", p)
	}

	resp = postJSON(t, srv.URL+"/preload", structapi.PreloadRequest{ModelName: "bogus"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("bogus preload status %d", resp.StatusCode)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/metrics?format=prometheus")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Fatalf("prometheus content type %q", ct)
	}

	resp, err = http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Fatalf("json metrics content type %q", ct)
	}
}
