package server

import (
	"net/http"

	"github.com/homedash/homedash/pkg/types"
)

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, s.store.Snapshot())
}

// handleReload runs a full load and returns the resulting state. On failure
// the previous data is kept and the error is returned instead.
func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	if err := s.store.LoadAll(commandContext(r)); err != nil {
		writeJSONError(w, err.Error(), statusForError(err))
		return
	}
	writeJSON(w, s.store.Snapshot())
}

func (s *Server) handleToggle(w http.ResponseWriter, r *http.Request) {
	dev, err := s.toggle(commandContext(r), types.ID(r.PathValue("id")))
	if err != nil {
		writeJSONError(w, err.Error(), statusForError(err))
		return
	}
	writeJSON(w, dev)
}

func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	if err := s.resolve(commandContext(r), types.ID(r.PathValue("id"))); err != nil {
		writeJSONError(w, err.Error(), statusForError(err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
