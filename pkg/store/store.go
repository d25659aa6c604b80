// Package store holds the dashboard's view state: the three collections
// loaded from the backend plus the loading and error flags. It is the only
// writer of that state; readers get immutable snapshots.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/homedash/homedash/pkg/api"
	"github.com/homedash/homedash/pkg/log"
	"github.com/homedash/homedash/pkg/metrics"
	"github.com/homedash/homedash/pkg/types"
	"golang.org/x/sync/errgroup"
)

var (
	// ErrDeviceNotFound is returned when toggling a device that isn't in the
	// published collection.
	ErrDeviceNotFound = errors.New("device not found")

	// ErrClosed is returned by every operation after Close. Results of
	// operations that were in flight when Close was called are discarded.
	ErrClosed = errors.New("store closed")

	// ErrNotLoaded is returned by commands issued before the first
	// successful load.
	ErrNotLoaded = errors.New("dashboard data is not loaded yet")
)

// fallback shown when an error has no message of its own
const genericLoadError = "An error occurred loading dashboard data"

// State is a point-in-time view of the dashboard data. The slices in a State
// are never modified after publication, so a State may be shared freely but
// must not be mutated by callers.
type State struct {
	Energy   []types.EnergyData `json:"energy"`
	Devices  []types.Device     `json:"devices"`
	Alerts   []types.Alert      `json:"alerts"`
	Loading  bool               `json:"loading"`
	Error    string             `json:"error,omitempty"`
	LoadedAt time.Time          `json:"loadedAt,omitempty"`
}

// Loaded returns true once a load cycle has succeeded.
func (s State) Loaded() bool {
	return !s.LoadedAt.IsZero()
}

// Device returns the device with the given id.
func (s State) Device(id types.ID) (types.Device, bool) {
	for _, d := range s.Devices {
		if d.ID == id {
			return d, true
		}
	}
	return types.Device{}, false
}

// ActiveAlerts returns the number of unresolved alerts.
func (s State) ActiveAlerts() int {
	var n int
	for _, a := range s.Alerts {
		if !a.Resolved {
			n++
		}
	}
	return n
}

// Store owns the dashboard state and synchronises it with the backend.
type Store struct {
	client  api.Client
	metrics *metrics.Metrics
	now     func() time.Time

	mu     sync.RWMutex
	state  State
	closed bool

	// loads are numbered when they start; a load only publishes if no later
	// load has published already
	loadSeq      uint64
	publishedSeq uint64
}

// New returns a store with empty collections that is marked as loading.
func New(client api.Client, m *metrics.Metrics) *Store {
	return &Store{
		client:  client,
		metrics: m,
		now:     time.Now,
		state: State{
			Energy:  []types.EnergyData{},
			Devices: []types.Device{},
			Alerts:  []types.Alert{},
			Loading: true,
		},
	}
}

// Snapshot returns the current state.
func (s *Store) Snapshot() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Close detaches the store. Any operation still in flight will not publish
// its result and later operations fail with ErrClosed.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
}

// DismissError clears the error message.
func (s *Store) DismissError() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Error = ""
}

// errorMessage converts any failure into the message shown to the user.
func errorMessage(err error) string {
	if msg := err.Error(); msg != "" {
		return msg
	}
	return genericLoadError
}

// LoadAll fetches energy data, devices and alerts concurrently and publishes
// them together. If any fetch fails the others are canceled, nothing is
// published, the previous collections are kept and the error is recorded.
//
// Loads may overlap. A load that finishes after a later one has published is
// dropped. If ctx is canceled the failure is returned but not recorded.
func (s *Store) LoadAll(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.loadSeq++
	seq := s.loadSeq
	s.mu.Unlock()
	start := time.Now()

	var (
		energy  []types.EnergyData
		devices []types.Device
		alerts  []types.Alert
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		energy, err = s.client.FetchEnergyData(gctx)
		if err == nil && energy == nil {
			err = &api.ValidationError{Collection: api.CollectionEnergy, Msg: api.CollectionEnergy + " must be an array"}
		}
		return err
	})
	g.Go(func() error {
		var err error
		devices, err = s.client.FetchDevices(gctx)
		if err == nil && devices == nil {
			err = &api.ValidationError{Collection: api.CollectionDevices, Msg: api.CollectionDevices + " must be an array"}
		}
		return err
	})
	g.Go(func() error {
		var err error
		alerts, err = s.client.FetchAlerts(gctx)
		if err == nil && alerts == nil {
			err = &api.ValidationError{Collection: api.CollectionAlerts, Msg: api.CollectionAlerts + " must be an array"}
		}
		return err
	})
	err := g.Wait()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		log.Ctx(ctx).DebugContext(ctx, "discarding load result after close")
		return ErrClosed
	}

	if seq < s.publishedSeq {
		log.Ctx(ctx).DebugContext(ctx, "discarding superseded load result", slog.Uint64("seq", seq), slog.Uint64("published", s.publishedSeq))
		if err != nil {
			return fmt.Errorf("failed to load dashboard data: %w", err)
		}
		return nil
	}

	if err != nil && ctx.Err() != nil {
		log.Ctx(ctx).DebugContext(ctx, "load canceled by caller", slog.Any("error", err))
		return fmt.Errorf("failed to load dashboard data: %w", err)
	}

	if err != nil {
		s.state.Loading = false
		s.state.Error = errorMessage(err)
		s.metrics.Load(false, 0, 0)
		log.Ctx(ctx).ErrorContext(ctx, "failed to load dashboard data", slog.String("kind", api.ErrorKind(err)), slog.Any("error", err))
		return fmt.Errorf("failed to load dashboard data: %w", err)
	}

	next := State{
		Energy:   energy,
		Devices:  normalizeDevices(devices),
		Alerts:   alerts,
		Loading:  false,
		LoadedAt: s.now(),
	}
	s.state = next
	s.publishedSeq = seq
	s.metrics.Load(true, len(next.Devices), next.ActiveAlerts())

	log.Ctx(ctx).InfoContext(
		ctx,
		"loaded dashboard data",
		slog.Int("energy", len(next.Energy)),
		slog.Int("devices", len(next.Devices)),
		slog.Int("alerts", len(next.Alerts)),
		slog.Duration("took", time.Since(start)),
	)
	return nil
}

// normalizeDevices returns devices with every absent state set to off. The
// input slice is not modified.
func normalizeDevices(devices []types.Device) []types.Device {
	out := make([]types.Device, len(devices))
	copy(out, devices)
	for i := range out {
		if out[i].CurrentState == "" {
			out[i].CurrentState = types.DeviceStateOff
		}
	}
	return out
}

// ToggleDevice sends the inverse of the device's current state to the
// backend and, once the backend accepted it, patches that one device. On
// failure the devices are left alone and the error is recorded.
func (s *Store) ToggleDevice(ctx context.Context, id types.ID) (types.Device, error) {
	s.mu.RLock()
	closed := s.closed
	loaded := s.state.Loaded()
	dev, ok := s.state.Device(id)
	s.mu.RUnlock()

	if closed {
		return types.Device{}, ErrClosed
	}
	if !loaded {
		return types.Device{}, ErrNotLoaded
	}
	if !ok {
		err := fmt.Errorf("%w: %s", ErrDeviceNotFound, id)
		s.mu.Lock()
		s.state.Error = errorMessage(err)
		s.mu.Unlock()
		return types.Device{}, err
	}

	action := dev.CurrentState.Inverse()
	err := s.client.ControlDevice(ctx, id, action)
	s.metrics.Command(string(types.ActionKindControl), err == nil)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		log.Ctx(ctx).DebugContext(ctx, "discarding toggle result after close", slog.String("deviceID", string(id)))
		return types.Device{}, ErrClosed
	}

	if err != nil {
		if ctx.Err() == nil {
			s.state.Error = errorMessage(err)
		}
		log.Ctx(ctx).ErrorContext(
			ctx,
			"failed to control device",
			slog.String("deviceID", string(id)),
			slog.String("action", string(action)),
			slog.Any("error", err),
		)
		return types.Device{}, err
	}

	// the collection may have been replaced by a load while the call was in
	// flight, so find the device again
	idx := -1
	for i, d := range s.state.Devices {
		if d.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		log.Ctx(ctx).WarnContext(ctx, "controlled device is no longer loaded", slog.String("deviceID", string(id)))
		dev.CurrentState = action
		return dev, nil
	}

	devices := make([]types.Device, len(s.state.Devices))
	copy(devices, s.state.Devices)
	devices[idx].CurrentState = action
	s.state.Devices = devices

	log.Ctx(ctx).InfoContext(
		ctx,
		"controlled device",
		slog.String("deviceID", string(id)),
		slog.String("state", string(action)),
	)
	return devices[idx], nil
}

// ResolveAlert asks the backend to resolve an alert. Nothing changes locally;
// the next load reflects the resolution.
func (s *Store) ResolveAlert(ctx context.Context, id types.ID) error {
	s.mu.RLock()
	closed, loaded := s.closed, s.state.Loaded()
	s.mu.RUnlock()
	if closed {
		return ErrClosed
	}
	if !loaded {
		return ErrNotLoaded
	}

	err := s.client.ResolveAlert(ctx, id)
	s.metrics.Command(string(types.ActionKindResolve), err == nil)
	if err == nil {
		log.Ctx(ctx).InfoContext(ctx, "resolved alert", slog.String("alertID", string(id)))
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if ctx.Err() == nil {
		s.state.Error = errorMessage(err)
	}
	log.Ctx(ctx).ErrorContext(ctx, "failed to resolve alert", slog.String("alertID", string(id)), slog.Any("error", err))
	return err
}
