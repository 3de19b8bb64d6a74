package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/robertftenbosch/tenbio/pkg/structapi"
)

// Sentinel errors distinguishing routing outcomes.
var (
	// ErrBackendUnavailable reports a connection-level failure; surfaced
	// as 503 on submit/poll paths, swallowed only in listModels
	// aggregation.
	ErrBackendUnavailable = errors.New("backend unavailable")
	// ErrJobNotFound means a backend answered 404 for the job.
	ErrJobNotFound = errors.New("job not found")
)

// backendError carries a backend's error response upstream unchanged.
type backendError struct {
	StatusCode int
	Detail     string
}

func (e *backendError) Error() string { return e.Detail }

// client talks to one backend service.
type client struct {
	name    string
	baseURL string
	http    *http.Client
}

func newClient(name, baseURL string, timeout time.Duration) *client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &client{
		name:    name,
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

func (c *client) submit(ctx context.Context, req structapi.PredictionRequest) (structapi.JobStatus, error) {
	var out structapi.JobStatus
	if err := c.postJSON(ctx, "/predict", req, &out); err != nil {
		return structapi.JobStatus{}, err
	}
	return out, nil
}

func (c *client) jobStatus(ctx context.Context, jobID string) (structapi.JobStatus, error) {
	var out structapi.JobStatus
	if err := c.getJSON(ctx, "/jobs/"+jobID, &out); err != nil {
		return structapi.JobStatus{}, err
	}
	return out, nil
}

// structure fetches the artifact bytes along with the served content type.
func (c *client) structure(ctx context.Context, jobID string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/jobs/"+jobID+"/structure", nil)
	if err != nil {
		return nil, "", err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %s: %v", ErrBackendUnavailable, c.name, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, "", c.errorFromResponse(resp)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", err
	}
	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "chemical/x-mmcif"
	}
	return body, contentType, nil
}

func (c *client) listModels(ctx context.Context) ([]structapi.ModelInfo, error) {
	var out structapi.ModelsResponse
	if err := c.getJSON(ctx, "/models", &out); err != nil {
		return nil, err
	}
	return out.Models, nil
}

func (c *client) preload(ctx context.Context, modelName string) (structapi.PreloadResponse, error) {
	var out structapi.PreloadResponse
	if err := c.postJSON(ctx, "/preload", structapi.PreloadRequest{ModelName: modelName}, &out); err != nil {
		return structapi.PreloadResponse{}, err
	}
	return out, nil
}

func (c *client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *client) postJSON(ctx context.Context, path string, payload, out any) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *client) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrBackendUnavailable, c.name, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return c.errorFromResponse(resp)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *client) errorFromResponse(resp *http.Response) error {
	var envelope structapi.ErrorResponse
	_ = json.NewDecoder(resp.Body).Decode(&envelope)
	detail := envelope.Detail
	if detail == "" {
		detail = fmt.Sprintf("%s service error", c.name)
	}
	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%w: %s", ErrJobNotFound, detail)
	}
	return &backendError{StatusCode: resp.StatusCode, Detail: detail}
}
