package server

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"stemdesk/core/apperr"
	"stemdesk/core/workspace"
)

// exportRequest is the POST /export/{uploadId} body.
type exportRequest struct {
	Action     string `json:"action"`
	TopN       int    `json:"topN"`
	ExportType string `json:"exportType"` // bundle category for download
}

// ExportHandler handles POST /export/{uploadId} with action in
// {export-top, download}.
func (h *APIHandler) ExportHandler(w http.ResponseWriter, r *http.Request) {
	uploadID := mux.Vars(r)["uploadId"]

	var req exportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, apperr.Wrap(apperr.KindValidation, "decode request body", err))
		return
	}

	switch req.Action {
	case "export-top":
		topN := req.TopN
		if topN == 0 {
			topN = h.cfg.DefaultTopN
		}
		report, err := h.exporter.ExportTopN(r.Context(), uploadID, topN)
		if err != nil {
			respondError(w, err)
			return
		}
		respondJSON(w, http.StatusOK, map[string]interface{}{
			"success":   true,
			"action":    "export-top",
			"outputDir": workspace.ExportsDirName,
			"topN":      topN,
			"report":    report,
		})

	case "download":
		handle, err := h.exporter.PackageDirectory(r.Context(), uploadID, req.ExportType)
		if err != nil {
			respondError(w, err)
			return
		}
		respondJSON(w, http.StatusOK, map[string]interface{}{
			"success":      true,
			"action":       "download",
			"downloadPath": handle.DownloadPath,
			"bundleName":   handle.BundleName,
			"size":         handle.SizeBytes,
		})

	default:
		respondError(w, apperr.Newf(apperr.KindValidation, "invalid action %q", req.Action))
	}
}
