package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/homedash/homedash/pkg/log"
	"github.com/homedash/homedash/pkg/storage"
	"github.com/homedash/homedash/pkg/types"
)

// recordAction appends a command to the action log. Failing to write the log
// never fails the command itself.
func (s *Server) recordAction(ctx context.Context, kind types.ActionKind, target types.ID, state types.DeviceState, cmdErr error) {
	if s.storage == nil {
		return
	}
	action := types.Action{
		ID:        uuid.NewString(),
		Timestamp: s.now(),
		Kind:      kind,
		TargetID:  target,
		State:     state,
		RequestID: requestID(ctx),
	}
	if cmdErr != nil {
		action.Failed = true
		action.Error = cmdErr.Error()
	}
	if err := s.storage.InsertAction(ctx, action); err != nil {
		log.Ctx(ctx).ErrorContext(
			ctx,
			"failed to record action",
			slog.String("kind", string(kind)),
			slog.String("targetID", string(target)),
			slog.Any("error", err),
		)
	}
}

func (s *Server) handleActions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if s.storage == nil {
		writeJSONError(w, "action log is disabled", http.StatusNotFound)
		return
	}
	start, end, err := s.parseTimeRange(r)
	if err != nil {
		writeJSONError(w, "invalid time range: "+err.Error(), http.StatusBadRequest)
		return
	}

	actions, err := s.storage.GetActionHistory(ctx, start, end)
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to get actions", slog.Any("error", err))
		writeJSONError(w, "failed to get actions", http.StatusInternalServerError)
		return
	}
	if actions == nil {
		actions = []types.Action{}
	}

	// a range that ended before today can't change anymore
	today := s.now().Truncate(24 * time.Hour)
	if end.Before(today) {
		w.Header().Set("Cache-Control", "private, max-age=86400")
	} else {
		w.Header().Set("Cache-Control", "private, no-cache")
	}
	writeJSON(w, actions)
}

// handleLatestAction returns the most recent command in the action log.
func (s *Server) handleLatestAction(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if s.storage == nil {
		writeJSONError(w, "action log is disabled", http.StatusNotFound)
		return
	}
	action, err := s.storage.GetLatestAction(ctx)
	if errors.Is(err, storage.ErrNoActions) {
		writeJSONError(w, "no actions recorded", http.StatusNotFound)
		return
	}
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to get latest action", slog.Any("error", err))
		writeJSONError(w, "failed to get latest action", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Cache-Control", "private, no-cache")
	writeJSON(w, action)
}

func (s *Server) parseTimeRange(r *http.Request) (time.Time, time.Time, error) {
	startStr := r.URL.Query().Get("start")
	endStr := r.URL.Query().Get("end")

	if startStr == "" || endStr == "" {
		// Default to last 24 hours if not specified
		end := s.now()
		start := end.Add(-24 * time.Hour)
		return start, end, nil
	}

	start, err := time.Parse(time.RFC3339, startStr)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid start time: %w", err)
	}

	end, err := time.Parse(time.RFC3339, endStr)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid end time: %w", err)
	}

	if end.Before(start) {
		return time.Time{}, time.Time{}, fmt.Errorf("start time must be before end time")
	}

	if end.Sub(start) > 24*time.Hour {
		return time.Time{}, time.Time{}, fmt.Errorf("time range cannot exceed 24 hours")
	}

	return start, end, nil
}
