package server

import (
	"encoding/json"
	"net/http"

	"stemdesk/config"
	"stemdesk/core/apperr"
	"stemdesk/core/export"
	"stemdesk/core/intake"
	"stemdesk/core/pipeline"
	"stemdesk/core/stemmap"
	"stemdesk/core/workspace"
	"stemdesk/logger"
	"stemdesk/repository"
)

// APIHandler holds the injected services the REST endpoints dispatch to.
type APIHandler struct {
	uploads     repository.UploadRepository
	analyses    repository.AnalysisRepository
	exports     repository.ExportRepository
	intake      *intake.Service
	coordinator *pipeline.Coordinator
	stemmaps    *stemmap.Manager
	exporter    *export.Manager
	ws          *workspace.Workspace
	cfg         *config.Config
}

// NewAPIHandler creates the API handler with its collaborators.
func NewAPIHandler(
	uploads repository.UploadRepository,
	analyses repository.AnalysisRepository,
	exports repository.ExportRepository,
	intakeSvc *intake.Service,
	coordinator *pipeline.Coordinator,
	stemmaps *stemmap.Manager,
	exporter *export.Manager,
	ws *workspace.Workspace,
	cfg *config.Config,
) *APIHandler {
	return &APIHandler{
		uploads:     uploads,
		analyses:    analyses,
		exports:     exports,
		intake:      intakeSvc,
		coordinator: coordinator,
		stemmaps:    stemmaps,
		exporter:    exporter,
		ws:          ws,
		cfg:         cfg,
	}
}

// respondJSON writes a JSON response with the given status.
func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		if err := json.NewEncoder(w).Encode(payload); err != nil {
			logger.Error("encode response", logger.ErrorField(err))
		}
	}
}

// errorBody is the stable error envelope: a programmatically distinguishable
// kind plus a human-readable message, with collaborator diagnostics verbatim
// in detail when present.
type errorBody struct {
	Error  string `json:"error"`
	Kind   string `json:"kind"`
	Detail string `json:"detail,omitempty"`
}

// respondError maps an error to its HTTP status and stable kind.
func respondError(w http.ResponseWriter, err error) {
	status := apperr.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		logger.Error("request failed", logger.ErrorField(err))
	} else {
		logger.Warn("request rejected", logger.ErrorField(err))
	}
	respondJSON(w, status, errorBody{
		Error:  err.Error(),
		Kind:   string(apperr.KindOf(err)),
		Detail: apperr.DetailOf(err),
	})
}
