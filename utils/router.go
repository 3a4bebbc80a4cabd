package utils

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"tgstream/handlers"
)

// CORS middleware to allow cross-origin requests
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, HEAD, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "*")
		w.Header().Set("Access-Control-Expose-Headers", "Content-Range, Content-Length, Accept-Ranges, Content-Disposition")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// NewRouter constructs the base mux router with common routes.
func NewRouter() *mux.Router {
	r := mux.NewRouter()
	r.Use(corsMiddleware)

	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	}).Methods(http.MethodGet)
	return r
}

// Routes bundles the handlers mounted by RegisterRoutes.
type Routes struct {
	Library  *handlers.LibraryHandler
	Stream   *handlers.StreamHandler
	Download *handlers.StreamHandler
	Upload   *handlers.UploadHandler
	Admin    *handlers.AdminHandler
	// Gatherer serves /metrics when set.
	Gatherer prometheus.Gatherer
}

// RegisterRoutes mounts the public surface on r.
func RegisterRoutes(r *mux.Router, routes Routes) {
	r.HandleFunc("/", routes.Library.Index).Methods(http.MethodGet)
	r.HandleFunc("/api/videos", routes.Library.List).Methods(http.MethodGet)
	r.Handle("/stream/{handle}", routes.Stream).Methods(http.MethodGet, http.MethodHead)
	r.Handle("/download/{handle}", routes.Download).Methods(http.MethodGet, http.MethodHead)
	r.HandleFunc("/upload", routes.Upload.Upload).Methods(http.MethodPost)
	if routes.Admin != nil {
		r.HandleFunc("/admin/streams", routes.Admin.GetActiveStreams).Methods(http.MethodGet)
	}
	if routes.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(routes.Gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "not found", http.StatusNotFound)
	})
}
