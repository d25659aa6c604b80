package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/homedash/homedash/pkg/store"
	"github.com/homedash/homedash/pkg/types"
)

// commandContext detaches store operations from the client connection. The
// request's logger attributes are kept.
func commandContext(r *http.Request) context.Context {
	return context.WithoutCancel(r.Context())
}

// isRejected reports errors returned before anything was sent to the backend.
func isRejected(err error) bool {
	return errors.Is(err, store.ErrDeviceNotFound) || errors.Is(err, store.ErrClosed) || errors.Is(err, store.ErrNotLoaded)
}

// toggle flips a device through the store and logs the command. Rejected
// commands never reach the backend so they aren't logged.
func (s *Server) toggle(ctx context.Context, id types.ID) (types.Device, error) {
	target := types.DeviceStateOn
	if dev, ok := s.store.Snapshot().Device(id); ok {
		target = dev.CurrentState.Inverse()
	}
	dev, err := s.store.ToggleDevice(ctx, id)
	if isRejected(err) {
		return dev, err
	}
	if err == nil {
		target = dev.CurrentState
	}
	s.recordAction(ctx, types.ActionKindControl, id, target, err)
	return dev, err
}

func (s *Server) resolve(ctx context.Context, id types.ID) error {
	err := s.store.ResolveAlert(ctx, id)
	if isRejected(err) {
		return err
	}
	s.recordAction(ctx, types.ActionKindResolve, id, "", err)
	return err
}
