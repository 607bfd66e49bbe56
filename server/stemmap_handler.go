package server

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"stemdesk/core/apperr"
	"stemdesk/core/workspace"
	"stemdesk/model"
)

// GetStemmapHandler handles GET /stemmap/{uploadId}: the current document,
// or 404 if none has been generated yet.
func (h *APIHandler) GetStemmapHandler(w http.ResponseWriter, r *http.Request) {
	uploadID := mux.Vars(r)["uploadId"]

	doc, err := h.stemmaps.Load(r.Context(), uploadID)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"stemmap": doc,
		"slots":   model.SlotTypes(),
	})
}

// stemmapRequest is the POST /stemmap/{uploadId} body.
type stemmapRequest struct {
	Action       string                 `json:"action"`
	Title        string                 `json:"title"`
	BPMMin       int                    `json:"bpmMin"`
	BPMMax       int                    `json:"bpmMax"`
	Stemmap      *model.StemmapDocument `json:"stemmap"`
	PadToLongest bool                   `json:"padToLongest"`
}

// PostStemmapHandler handles POST /stemmap/{uploadId} with action in
// {generate, save, apply, prep-br864}.
func (h *APIHandler) PostStemmapHandler(w http.ResponseWriter, r *http.Request) {
	uploadID := mux.Vars(r)["uploadId"]

	var req stemmapRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, apperr.Wrap(apperr.KindValidation, "decode request body", err))
		return
	}

	switch req.Action {
	case "generate":
		doc, err := h.stemmaps.Generate(r.Context(), uploadID, req.Title, req.BPMMin, req.BPMMax)
		if err != nil {
			respondError(w, err)
			return
		}
		respondJSON(w, http.StatusOK, map[string]interface{}{
			"success": true,
			"action":  "generate",
			"stemmap": doc,
		})

	case "save":
		if req.Stemmap == nil {
			respondError(w, apperr.New(apperr.KindValidation, "stemmap document is required for save"))
			return
		}
		if err := h.stemmaps.Save(r.Context(), uploadID, req.Stemmap); err != nil {
			respondError(w, err)
			return
		}
		respondJSON(w, http.StatusOK, map[string]interface{}{
			"success": true,
			"action":  "save",
		})

	case "apply":
		outcome, err := h.stemmaps.Apply(r.Context(), uploadID)
		if err != nil {
			respondError(w, err)
			return
		}
		respondJSON(w, http.StatusOK, map[string]interface{}{
			"success":   true,
			"action":    "apply",
			"outputDir": workspace.Stems8DirName,
			"outcome":   outcome,
		})

	case "prep-br864":
		manifest, err := h.stemmaps.PrepareHardware(r.Context(), uploadID, req.PadToLongest)
		if err != nil {
			respondError(w, err)
			return
		}
		respondJSON(w, http.StatusOK, map[string]interface{}{
			"success":   true,
			"action":    "prep-br864",
			"outputDir": workspace.BR864DirName,
			"manifest":  manifest,
		})

	default:
		respondError(w, apperr.Newf(apperr.KindValidation, "invalid action %q", req.Action))
	}
}
