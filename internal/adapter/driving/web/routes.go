package web

import (
	"io/fs"
	"net/http"
)

// RegisterRoutes registers the review pages and static assets on mux.
func RegisterRoutes(mux *http.ServeMux, h *Handler) {
	staticFS, _ := fs.Sub(StaticFS, "static")
	mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServerFS(staticFS)))

	mux.HandleFunc("GET /reviews/{id}", h.ReviewPage)
	mux.HandleFunc("POST /reviews/{id}/feedback", h.SubmitFeedback)
}
