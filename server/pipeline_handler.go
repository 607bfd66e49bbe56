package server

import (
	"net/http"

	"github.com/gorilla/mux"
)

// PipelineHandler handles POST /pipeline/{uploadId}/{stage} with stage in
// {scan, analyze}. The call blocks until the external analyzer finishes; a
// concurrent stage for the same upload is rejected with 409.
func (h *APIHandler) PipelineHandler(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	result, err := h.coordinator.RunStage(r.Context(), vars["uploadId"], vars["stage"])
	if err != nil {
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success":       true,
		"step":          result.Stage,
		"uploadId":      result.UploadID,
		"rawIndex":      result.RawIndex,
		"duplicates":    result.Duplicates,
		"analysisIndex": result.AnalysisIndex,
		"fileCount":     result.FileCount,
		"nextStep":      result.NextStage,
	})
}
