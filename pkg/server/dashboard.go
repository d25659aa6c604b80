package server

import (
	"bytes"
	"log/slog"
	"net/http"

	"github.com/homedash/homedash/pkg/log"
	"github.com/homedash/homedash/pkg/types"
)

// handleDashboard renders the current snapshot. The page is rendered into a
// buffer first so a template error doesn't leave a half written page.
func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var buf bytes.Buffer
	if err := s.renderer.Render(&buf, s.store.Snapshot()); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to render dashboard", slog.Any("error", err))
		http.Error(w, "failed to render dashboard", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	if _, err := buf.WriteTo(w); err != nil {
		panic(http.ErrAbortHandler)
	}
}

// The form handlers below report failures through the store's error, which
// the dashboard shows after the redirect.

func (s *Server) handleToggleForm(w http.ResponseWriter, r *http.Request) {
	_, _ = s.toggle(commandContext(r), types.ID(r.PathValue("id")))
	redirectHome(w, r)
}

func (s *Server) handleResolveForm(w http.ResponseWriter, r *http.Request) {
	_ = s.resolve(commandContext(r), types.ID(r.PathValue("id")))
	redirectHome(w, r)
}

func (s *Server) handleReloadForm(w http.ResponseWriter, r *http.Request) {
	_ = s.store.LoadAll(commandContext(r))
	redirectHome(w, r)
}

func (s *Server) handleDismissForm(w http.ResponseWriter, r *http.Request) {
	s.store.DismissError()
	redirectHome(w, r)
}

func redirectHome(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, "/", http.StatusSeeOther)
}
