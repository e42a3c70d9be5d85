package server

import (
	"log/slog"
	"net/http"
	"strings"
)

// Config contains server configuration options.
type Config struct {
	// AllowedOrigins is the list of allowed CORS origins.
	AllowedOrigins []string
	// StaticDir is the staging directory served read-only at StaticPrefix.
	StaticDir string
	// StaticPrefix is the URL path staged files are served under, e.g.
	// "/uploads/videos/".
	StaticPrefix string
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		AllowedOrigins: []string{"*"},
	}
}

// NewRouter creates a new HTTP router with all routes configured.
// It uses Go 1.22+ ServeMux with method-based routing.
func NewRouter(h *Handlers, logger *slog.Logger, cfg Config) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", h.Health)

	mux.HandleFunc("POST /api/videos/upload", h.UploadVideo)
	mux.HandleFunc("POST /videos/upload", h.UploadVideo)
	mux.HandleFunc("GET /api/videos/download/{filename}", h.DownloadVideo)
	mux.HandleFunc("GET /videos/download/{filename}", h.DownloadVideo)

	if cfg.StaticDir != "" && cfg.StaticPrefix != "" {
		prefix := "/" + strings.Trim(cfg.StaticPrefix, "/") + "/"
		files := http.FileServer(http.Dir(cfg.StaticDir))
		mux.Handle("GET "+prefix, http.StripPrefix(strings.TrimSuffix(prefix, "/"), stagedFilesOnly(files)))
	}

	if h.metrics != nil {
		mux.Handle("GET /metrics", h.metrics.Handler())
	}

	return wrap(mux,
		Recover(logger),
		LogRequests(logger),
		AllowOrigins(cfg.AllowedOrigins),
	)
}

// stagedFilesOnly answers 404 for directory paths, nested paths and dot
// files, leaving only plain files directly inside the staging directory.
func stagedFilesOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name := strings.TrimPrefix(r.URL.Path, "/")
		if name == "" || strings.Contains(name, "/") || strings.HasPrefix(name, ".") {
			http.NotFound(w, r)
			return
		}
		next.ServeHTTP(w, r)
	})
}
