package server

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"stemdesk/core/apperr"
	"stemdesk/model"
)

// ListUploadsHandler handles GET /uploads.
func (h *APIHandler) ListUploadsHandler(w http.ResponseWriter, r *http.Request) {
	uploads, err := h.uploads.GetAllUploads(r.Context())
	if err != nil {
		respondError(w, apperr.Wrap(apperr.KindStorage, "list uploads", err))
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"uploads": uploads,
	})
}

// GetUploadHandler handles GET /uploads/{uploadId}: the upload record plus
// everything needed to reconstruct dashboard state. Indexes are read from the
// durable workspace artifacts, never recomputed.
func (h *APIHandler) GetUploadHandler(w http.ResponseWriter, r *http.Request) {
	uploadID := mux.Vars(r)["uploadId"]

	upload, err := h.uploads.GetUploadByID(r.Context(), uploadID)
	if err != nil {
		respondError(w, apperr.Wrap(apperr.KindStorage, "look up upload", err))
		return
	}
	if upload == nil {
		respondError(w, apperr.Newf(apperr.KindNotFound, "upload %s not found", uploadID))
		return
	}

	// Workspace artifacts are the source of truth; missing ones simply mean
	// the producing stage has not run yet.
	var rawIndex *model.RawIndex
	var duplicates []model.DuplicateGroup
	if idx, readErr := h.ws.ReadRawIndex(uploadID); readErr == nil {
		rawIndex = idx
		duplicates = idx.Duplicates
	}
	var analysisIndex *model.AnalysisIndex
	if idx, readErr := h.ws.ReadAnalysisIndex(uploadID); readErr == nil {
		analysisIndex = idx
	}

	// When the workspace copies are gone the database mirror still lets the
	// dashboard show what the stages computed.
	if rawIndex == nil || analysisIndex == nil {
		if res, dbErr := h.analyses.GetAnalysisResultByUploadID(r.Context(), uploadID); dbErr == nil && res != nil {
			if rawIndex == nil && res.RawIndexJSON != "" {
				var idx model.RawIndex
				if json.Unmarshal([]byte(res.RawIndexJSON), &idx) == nil {
					rawIndex = &idx
					duplicates = idx.Duplicates
				}
			}
			if analysisIndex == nil && res.AnalysisIndexJSON != "" {
				var idx model.AnalysisIndex
				if json.Unmarshal([]byte(res.AnalysisIndexJSON), &idx) == nil {
					analysisIndex = &idx
				}
			}
		}
	}

	exports, err := h.exports.GetExportsByUploadID(r.Context(), uploadID)
	if err != nil {
		respondError(w, apperr.Wrap(apperr.KindStorage, "list exports", err))
		return
	}
	exportViews := make([]map[string]interface{}, 0, len(exports))
	for _, e := range exports {
		var manifest interface{}
		if e.ManifestJSON != "" {
			// Manifest JSON is stored verbatim; surface it structured.
			if err := json.Unmarshal([]byte(e.ManifestJSON), &manifest); err != nil {
				manifest = e.ManifestJSON
			}
		}
		exportViews = append(exportViews, map[string]interface{}{
			"id":         e.ID,
			"exportType": e.ExportType,
			"outputPath": e.OutputPath,
			"manifest":   manifest,
			"createdAt":  e.CreatedAt,
		})
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success":       true,
		"upload":        upload,
		"rawIndex":      rawIndex,
		"analysisIndex": analysisIndex,
		"duplicates":    duplicates,
		"availableDirs": h.ws.DirMap(uploadID),
		"exports":       exportViews,
	})
}
