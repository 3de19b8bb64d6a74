package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/robertftenbosch/tenbio/internal/observability"
	"github.com/robertftenbosch/tenbio/pkg/structapi"
)

// Server exposes the gateway routes under /api/v1/structure.
type Server struct {
	router *Router
	logger *slog.Logger
}

func NewServer(router *Router, logger *slog.Logger) *Server {
	return &Server{router: router, logger: logger}
}

func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/metrics", s.handleMetrics)
	r.Route("/api/v1/structure", func(r chi.Router) {
		r.Post("/predict", s.handlePredict)
		r.Get("/jobs/{jobID}", s.handleJobStatus)
		r.Get("/jobs/{jobID}/structure", s.handleStructure)
		r.Get("/models", s.handleModels)
		r.Post("/preload", s.handlePreload)
	})
	return r
}

func (s *Server) handlePredict(w http.ResponseWriter, r *http.Request) {
	var req structapi.PredictionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeDetail(w, http.StatusBadRequest, "invalid request body")
		return
	}
	resp, err := s.router.Submit(r.Context(), req)
	if err != nil {
		s.writeRoutingError(w, err, req.ModelName)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleJobStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.router.JobStatus(r.Context(), chi.URLParam(r, "jobID"))
	if err != nil {
		s.writeRoutingError(w, err, "")
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleStructure(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	body, contentType, err := s.router.Structure(r.Context(), jobID)
	if err != nil {
		s.writeRoutingError(w, err, "")
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", jobID+".cif"))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

func (s *Server) handleModels(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, structapi.ModelsResponse{Models: s.router.ListModels(r.Context())})
}

func (s *Server) handlePreload(w http.ResponseWriter, r *http.Request) {
	var req structapi.PreloadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeDetail(w, http.StatusBadRequest, "invalid request body")
		return
	}
	resp, err := s.router.Preload(r.Context(), req.ModelName)
	if err != nil {
		s.writeRoutingError(w, err, req.ModelName)
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

// writeRoutingError maps routing failures onto the client-facing contract:
// unreachable backends are 503, unknown jobs 404, and backend error payloads
// pass through with their original status.
func (s *Server) writeRoutingError(w http.ResponseWriter, err error, modelName string) {
	var berr *backendError
	switch {
	case errors.Is(err, ErrBackendUnavailable):
		name := "backend"
		if modelName != "" {
			name = s.router.BackendDisplayName(modelName)
		}
		writeDetail(w, http.StatusServiceUnavailable,
			fmt.Sprintf("%s service is not available. Ensure the GPU service is running.", name))
	case errors.Is(err, ErrJobNotFound):
		writeDetail(w, http.StatusNotFound, "Job not found")
	case errors.As(err, &berr):
		writeDetail(w, berr.StatusCode, berr.Detail)
	default:
		writeDetail(w, http.StatusInternalServerError, err.Error())
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
