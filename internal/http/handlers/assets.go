package handlers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

// ServeAsset streams a stored blob by its logical path. Traversal and
// absolute paths are rejected with 400.
func (a *App) ServeAsset(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	data, contentType, err := a.Tasks.Asset(r.Context(), userID, chi.URLParam(r, "*"))
	if err != nil {
		a.serviceError(w, r, err, "failed to read asset")
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("Cache-Control", "private, max-age=300")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
