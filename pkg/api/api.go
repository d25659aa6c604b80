// Package api talks to the smart home REST backend. Every list endpoint
// returns a paginated envelope; only the results of the first page are used.
package api

import (
	"context"

	"github.com/homedash/homedash/pkg/types"
)

// DefaultBaseURL is where the backend listens in a default install.
const DefaultBaseURL = "http://127.0.0.1:8000/api"

// Client is the set of backend operations the dashboard depends on. Each
// operation performs exactly one HTTP round trip and is never retried.
type Client interface {
	// FetchEnergyData returns the energy samples in the order the backend sent them.
	FetchEnergyData(ctx context.Context) ([]types.EnergyData, error)

	// FetchDevices returns the devices as sent by the backend. Device states
	// are validated but not defaulted; an absent state is left empty.
	FetchDevices(ctx context.Context) ([]types.Device, error)

	// FetchAlerts returns the alerts as sent by the backend.
	FetchAlerts(ctx context.Context) ([]types.Alert, error)

	// ControlDevice switches a device on or off.
	ControlDevice(ctx context.Context, id types.ID, action types.DeviceState) error

	// ResolveAlert marks an alert as resolved.
	ResolveAlert(ctx context.Context, id types.ID) error
}
