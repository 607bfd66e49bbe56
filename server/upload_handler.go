package server

import (
	"net/http"

	"stemdesk/core/apperr"
	"stemdesk/core/intake"
)

// UploadHandler handles POST /uploads: a multipart batch of stem files plus
// a folder label. Expected form fields:
// - files: one or more audio files
// - folderName: logical pack name (optional)
func (h *APIHandler) UploadHandler(w http.ResponseWriter, r *http.Request) {
	// Bound the in-memory part of multipart parsing; file bodies above this
	// spill to temp files.
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		respondError(w, apperr.Wrap(apperr.KindValidation, "parse multipart form", err))
		return
	}
	defer r.MultipartForm.RemoveAll()

	headers := r.MultipartForm.File["files"]
	batch := make([]intake.IncomingFile, 0, len(headers))
	opened := make([]interface{ Close() error }, 0, len(headers))
	defer func() {
		for _, f := range opened {
			f.Close()
		}
	}()

	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			respondError(w, apperr.Wrap(apperr.KindValidation, "open uploaded file", err))
			return
		}
		opened = append(opened, f)
		batch = append(batch, intake.IncomingFile{
			Name:   fh.Filename,
			Size:   fh.Size,
			Reader: f,
		})
	}

	upload, files, err := h.intake.BeginUpload(r.Context(), batch, r.FormValue("folderName"))
	if err != nil {
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success":    true,
		"uploadId":   upload.ID,
		"folderName": upload.FolderName,
		"fileCount":  upload.FileCount,
		"totalSize":  upload.TotalSizeBytes,
		"files":      files,
	})
}
