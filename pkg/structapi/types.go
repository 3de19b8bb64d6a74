// Package structapi defines the wire contract shared by the gateway, the
// prediction backends, and their clients.
package structapi

import "time"

// Chain entity types accepted in a prediction request.
const (
	ChainProtein = "protein"
	ChainDNA     = "dna"
	ChainRNA     = "rna"
	ChainLigand  = "ligand"
	ChainIon     = "ion"
)

// Job statuses. Queued and Running are non-terminal; Completed and Failed are
// terminal and final.
const (
	StatusQueued    = "queued"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// ChainInput is a single chain/entity in a prediction request.
type ChainInput struct {
	Type     string `json:"type"`
	Sequence string `json:"sequence,omitempty"`
	LigandID string `json:"ligand_id,omitempty"`
	IonID    string `json:"ion_id,omitempty"`
	Count    int    `json:"count"`
}

// PredictionRequest submits a structure prediction job. Immutable once
// submitted.
type PredictionRequest struct {
	Name       string       `json:"name"`
	Sequences  []ChainInput `json:"sequences"`
	ModelName  string       `json:"model_name"`
	NumSeeds   int          `json:"num_seeds,omitempty"`
	NumSamples int          `json:"num_samples,omitempty"`
}

// SubmitResponse is returned by the gateway on a successful submission.
type SubmitResponse struct {
	JobID   string `json:"job_id"`
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// ConfidenceScores carries the confidence metrics of a completed prediction.
type ConfidenceScores struct {
	PLDDT        *float64 `json:"plddt,omitempty"`
	PTM          *float64 `json:"ptm,omitempty"`
	IPTM         *float64 `json:"iptm,omitempty"`
	RankingScore *float64 `json:"ranking_score,omitempty"`
}

// JobStatus is the polled view of a prediction job.
type JobStatus struct {
	JobID              string            `json:"job_id"`
	Status             string            `json:"status"`
	Progress           string            `json:"progress,omitempty"`
	CreatedAt          time.Time         `json:"created_at"`
	StartedAt          *time.Time        `json:"started_at,omitempty"`
	CompletedAt        *time.Time        `json:"completed_at,omitempty"`
	Error              string            `json:"error,omitempty"`
	Confidence         *ConfidenceScores `json:"confidence,omitempty"`
	StructureAvailable bool              `json:"structure_available"`
}

// ModelInfo is one catalog entry as served by GET /models.
type ModelInfo struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	ParametersM float64  `json:"parameters_m"`
	Features    []string `json:"features"`
	SpeedTier   string   `json:"speed_tier"`
	Default     bool     `json:"default"`
	Loaded      bool     `json:"loaded"`
}

// ModelsResponse wraps a model listing.
type ModelsResponse struct {
	Models []ModelInfo `json:"models"`
}

// Preload statuses.
const (
	PreloadLoading       = "loading"
	PreloadAlreadyLoaded = "already_loaded"
	PreloadError         = "error"
)

// PreloadRequest asks a backend to load a model eagerly.
type PreloadRequest struct {
	ModelName string `json:"model_name"`
}

// PreloadResponse reports the outcome of a preload request.
type PreloadResponse struct {
	ModelName string `json:"model_name"`
	Status    string `json:"status"`
	Message   string `json:"message"`
}

// HealthResponse reports backend liveness, GPU availability and model
// residency.
type HealthResponse struct {
	Status       string `json:"status"`
	GPUAvailable bool   `json:"gpu_available"`
	GPUName      string `json:"gpu_name,omitempty"`
	ModelLoaded  bool   `json:"model_loaded"`
	LoadedModel  string `json:"loaded_model,omitempty"`
}

// ErrorResponse is the error envelope used by all endpoints.
type ErrorResponse struct {
	Detail string `json:"detail"`
}
