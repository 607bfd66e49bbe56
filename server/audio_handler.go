package server

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gorilla/mux"

	"stemdesk/core/apperr"
)

// audioContentTypes maps stem file extensions to their media types.
var audioContentTypes = map[string]string{
	".wav":  "audio/wav",
	".mp3":  "audio/mpeg",
	".m4a":  "audio/mp4",
	".flac": "audio/flac",
	".aif":  "audio/aiff",
	".aiff": "audio/aiff",
	".ogg":  "audio/ogg",
}

// AudioHandler handles GET /audio/{uploadId}/{filename}: streams one raw
// source file for preview with range-request support. The name resolves only
// inside the upload's raw-material directory.
func (h *APIHandler) AudioHandler(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	uploadID := vars["uploadId"]

	upload, err := h.uploads.GetUploadByID(r.Context(), uploadID)
	if err != nil {
		respondError(w, apperr.Wrap(apperr.KindStorage, "look up upload", err))
		return
	}
	if upload == nil {
		respondError(w, apperr.Newf(apperr.KindNotFound, "upload %s not found", uploadID))
		return
	}

	path, err := h.ws.ResolveRawFile(uploadID, vars["filename"])
	if err != nil {
		respondError(w, err)
		return
	}

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			respondError(w, apperr.Newf(apperr.KindNotFound, "file %s not found", vars["filename"]))
			return
		}
		respondError(w, apperr.Wrap(apperr.KindStorage, "open audio file", err))
		return
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil || fi.IsDir() {
		respondError(w, apperr.Newf(apperr.KindNotFound, "file %s not found", vars["filename"]))
		return
	}

	ext := strings.ToLower(filepath.Ext(path))
	contentType := audioContentTypes[ext]
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)

	// ServeContent handles Range and If-Modified-Since for waveform players.
	http.ServeContent(w, r, filepath.Base(path), fi.ModTime(), f)
}
