package backend

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/robertftenbosch/tenbio/internal/gpu"
	"github.com/robertftenbosch/tenbio/internal/jobs"
	"github.com/robertftenbosch/tenbio/internal/observability"
	"github.com/robertftenbosch/tenbio/internal/residency"
	"github.com/robertftenbosch/tenbio/pkg/structapi"
)

// Server exposes one backend service over HTTP.
type Server struct {
	service *Service
	prober  gpu.Prober
	logger  *slog.Logger
}

func NewServer(service *Service, prober gpu.Prober, logger *slog.Logger) *Server {
	if prober == nil {
		prober = gpu.NvidiaSMI{}
	}
	return &Server{service: service, prober: prober, logger: logger}
}

// Handler builds the backend route tree.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Post("/predict", s.handlePredict)
	r.Get("/jobs/{jobID}", s.handleJobStatus)
	r.Get("/jobs/{jobID}/structure", s.handleStructure)
	r.Get("/models", s.handleModels)
	r.Post("/preload", s.handlePreload)
	r.Get("/metrics", s.handleMetrics)
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	info := s.prober.Probe(r.Context())
	loaded, ok := s.service.Residency().Loaded()
	writeJSON(w, http.StatusOK, structapi.HealthResponse{
		Status:       "healthy",
		GPUAvailable: info.Available,
		GPUName:      info.Name,
		ModelLoaded:  ok,
		LoadedModel:  loaded,
	})
}

func (s *Server) handlePredict(w http.ResponseWriter, r *http.Request) {
	var req structapi.PredictionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeDetail(w, http.StatusBadRequest, "invalid request body")
		return
	}
	status, err := s.service.Submit(r.Context(), req)
	if err != nil {
		var verr *ValidationError
		switch {
		case errors.As(err, &verr):
			writeDetail(w, http.StatusBadRequest, verr.Detail)
		case errors.Is(err, residency.ErrUnknownModel):
			writeDetail(w, http.StatusBadRequest,
				fmt.Sprintf("Unknown model '%s'. Use GET /models for available models.", req.ModelName))
		default:
			writeDetail(w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleJobStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.service.Status(chi.URLParam(r, "jobID"))
	if err != nil {
		writeDetail(w, http.StatusNotFound, "Job not found")
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleStructure(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	path, err := s.service.Artifact(jobID)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotReady):
			writeDetail(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, jobs.ErrNotFound):
			writeDetail(w, http.StatusNotFound, "Job not found")
		default:
			writeDetail(w, http.StatusNotFound, "No structure file found")
		}
		return
	}
	ext := filepath.Ext(path)
	if ext == "" {
		ext = ".cif"
	}
	w.Header().Set("Content-Type", contentTypeForExt(ext))
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", jobID+ext))
	http.ServeFile(w, r, path)
}

func (s *Server) handleModels(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, structapi.ModelsResponse{Models: s.service.ListModels()})
}

func (s *Server) handlePreload(w http.ResponseWriter, r *http.Request) {
	var req structapi.PreloadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeDetail(w, http.StatusBadRequest, "invalid request body")
		return
	}
	resp, err := s.service.Preload(req.ModelName)
	if err != nil {
		if errors.Is(err, residency.ErrUnknownModel) {
			writeDetail(w, http.StatusBadRequest,
				fmt.Sprintf("Unknown model '%s'. Use GET /models for available models.", req.ModelName))
			return
		}
		writeDetail(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("format") == "prometheus" {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		_, _ = w.Write([]byte(observability.Default.RenderPrometheus()))
		return
	}
	writeJSON(w, http.StatusOK, observability.Default.Snapshot())
}

func contentTypeForExt(ext string) string {
	switch ext {
	case ".pdb":
		return "chemical/x-pdb"
	default:
		return "chemical/x-mmcif"
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, structapi.ErrorResponse{Detail: detail})
}
