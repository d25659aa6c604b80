package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/NYTimes/gziphandler"
	"github.com/homedash/homedash/pkg/log"
	"github.com/homedash/homedash/pkg/metrics"
	"github.com/homedash/homedash/pkg/storage"
	"github.com/homedash/homedash/pkg/store"
	"github.com/homedash/homedash/pkg/view"
	"github.com/levenlabs/go-lflag"
)

// Server serves the dashboard and its JSON API. All dashboard data goes
// through the store; the storage only keeps the log of issued commands.
type Server struct {
	store    *store.Store
	renderer *view.Renderer
	storage  storage.Database
	metrics  *metrics.Metrics

	listenAddr       string
	httpServer       *http.Server
	serverName       string
	webCacheDuration time.Duration
	refreshInterval  time.Duration

	now func() time.Time
}

// Configured initializes the Server with dependencies.
// It uses lflag to register command-line flags for configuration.
func Configured(st *store.Store, db storage.Database, m *metrics.Metrics) *Server {
	srv := &Server{
		store:      st,
		storage:    db,
		metrics:    m,
		serverName: "homedash",
		now:        time.Now,
	}
	revision := os.Getenv("K_REVISION")
	if revision != "" {
		srv.serverName = revision
	}

	// get the port from PORT when running in cloud run
	port := os.Getenv("PORT")
	if port == "" {
		// otherwise default to 8080
		port = "8080"
	}

	listenAddr := lflag.String("http-listen", ":"+port, "HTTP server listen address")
	webCacheDuration := lflag.Duration("web-cache-duration", 0, "Duration to cache static files (e.g. 1h, 5m). 0 means no cache.")
	refreshInterval := lflag.Duration("refresh-interval", 0, "How often to reload dashboard data from the backend. 0 loads once at startup.")
	timezone := lflag.String("timezone", "Local", "Time zone used to display timestamps (e.g. America/Chicago)")

	lflag.Do(func() {
		srv.listenAddr = *listenAddr
		srv.webCacheDuration = *webCacheDuration
		srv.refreshInterval = *refreshInterval

		loc, err := time.LoadLocation(*timezone)
		if err != nil {
			panic(fmt.Sprintf("invalid timezone (%s): %v", *timezone, err))
		}
		srv.renderer, err = view.New(loc)
		if err != nil {
			panic(fmt.Sprintf("failed to load templates: %v", err))
		}
	})

	return srv
}

func (s *Server) setupHandler() http.Handler {
	mux := http.NewServeMux()
	handle := func(pattern string, h http.HandlerFunc) {
		mux.Handle(pattern, s.metrics.WrapHandler(pattern, h))
	}

	// html dashboard, forms redirect back to /
	handle("GET /{$}", s.handleDashboard)
	handle("POST /devices/{id}/toggle", s.handleToggleForm)
	handle("POST /alerts/{id}/resolve", s.handleResolveForm)
	handle("POST /reload", s.handleReloadForm)
	handle("POST /error/dismiss", s.handleDismissForm)

	// json api
	handle("GET /api/state", s.handleState)
	handle("POST /api/reload", s.handleReload)
	handle("POST /api/devices/{id}/toggle", s.handleToggle)
	handle("POST /api/alerts/{id}/resolve", s.handleResolve)
	handle("GET /api/actions", s.handleActions)
	handle("GET /api/actions/latest", s.handleLatestAction)

	mux.Handle("GET /static/", s.staticHandler())
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.Handle("GET /metrics", s.metrics.Handler())
	return s.revisionMiddleware(s.requestIDMiddleware(gziphandler.GzipHandler(s.securityHeadersMiddleware(mux))))
}

// Run starts the HTTP server and blocks until the context is canceled or an error occurs.
// It also handles graceful shutdown when the context is done.
func (s *Server) Run(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:         s.listenAddr,
		Handler:      s.setupHandler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  15 * time.Second,
	}

	go s.refreshLoop(ctx)

	// use a channel to capturing server errors
	errChan := make(chan error, 1)
	go func() {
		defer close(errChan)
		log.Ctx(ctx).InfoContext(ctx, "starting server", slog.String("addr", s.listenAddr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		// Context canceled, shut down gracefully
		log.Ctx(ctx).InfoContext(ctx, "shutting down server")
		s.store.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return nil
	case err := <-errChan:
		s.store.Close()
		return fmt.Errorf("server error: %w", err)
	}
}

// refreshLoop loads the dashboard data once and then every refreshInterval
// until ctx is done.
func (s *Server) refreshLoop(ctx context.Context) {
	ctx = log.WithAttrs(ctx, slog.String("component", "refresh"))
	// failures are recorded in the store and shown on the dashboard
	_ = s.store.LoadAll(ctx)

	if s.refreshInterval <= 0 {
		return
	}
	ticker := time.NewTicker(s.refreshInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.store.LoadAll(ctx); errors.Is(err, store.ErrClosed) {
				return
			}
		}
	}
}

func writeJSONError(w http.ResponseWriter, msg string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(struct {
		Error string `json:"error"`
	}{Error: msg}); err != nil {
		slog.Warn("failed to write error response", slog.Any("error", err))
		panic(http.ErrAbortHandler)
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		panic(http.ErrAbortHandler)
	}
}

// statusForError maps a store error to the status code of the JSON API.
func statusForError(err error) int {
	switch {
	case errors.Is(err, store.ErrDeviceNotFound):
		return http.StatusNotFound
	case errors.Is(err, store.ErrClosed), errors.Is(err, store.ErrNotLoaded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadGateway
	}
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("ok")); err != nil {
		panic(http.ErrAbortHandler)
	}
}

func (s *Server) staticHandler() http.Handler {
	fileServer := http.StripPrefix("/static/", http.FileServer(http.FS(view.Static())))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// cache static files if duration is set
		if s.webCacheDuration > 0 {
			w.Header().Set("Cache-Control", fmt.Sprintf("public, max-age=%d", int(s.webCacheDuration.Seconds())))
		}
		fileServer.ServeHTTP(w, r)
	})
}

func (s *Server) revisionMiddleware(next http.Handler) http.Handler {
	if s.serverName == "" {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Server", s.serverName)
		next.ServeHTTP(w, r)
	})
}
