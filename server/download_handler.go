package server

import (
	"fmt"
	"net/http"
	"os"

	"github.com/gorilla/mux"

	"stemdesk/core/apperr"
)

// DownloadHandler handles GET /download/{uploadId}/{bundleName}: streams a
// previously packaged bundle. Names outside the closed bundle-name set never
// reach the filesystem.
func (h *APIHandler) DownloadHandler(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	path, err := h.exporter.Retrieve(r.Context(), vars["uploadId"], vars["bundleName"])
	if err != nil {
		respondError(w, err)
		return
	}

	f, err := os.Open(path)
	if err != nil {
		respondError(w, apperr.Wrap(apperr.KindStorage, "open bundle", err))
		return
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		respondError(w, apperr.Wrap(apperr.KindStorage, "stat bundle", err))
		return
	}

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename=%q`, vars["bundleName"]))
	http.ServeContent(w, r, vars["bundleName"], fi.ModTime(), f)
}
