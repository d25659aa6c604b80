package backend

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/homedash/homedash/pkg/api"
	"github.com/homedash/homedash/pkg/log"
	"github.com/homedash/homedash/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	log.SetDefaultLogLevel(slog.LevelError)
}

func newTestBackend(t *testing.T) (*Backend, *api.HTTPClient) {
	t.Helper()
	b := New(1)
	b.now = func() time.Time { return time.Date(2024, 1, 2, 12, 30, 0, 0, time.UTC) }
	b.seed()
	ts := httptest.NewServer(b.Handler())
	t.Cleanup(ts.Close)
	return b, api.New(ts.URL+"/api", ts.Client(), nil)
}

func TestEnergyData(t *testing.T) {
	_, client := newTestBackend(t)

	data, err := client.FetchEnergyData(context.Background())
	require.NoError(t, err)
	require.Len(t, data, historyHours)

	assert.Equal(t, time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC), data[0].Timestamp.UTC())
	assert.Equal(t, time.Date(2024, 1, 2, 11, 0, 0, 0, time.UTC), data[len(data)-1].Timestamp.UTC())
	for i, d := range data {
		assert.Equal(t, types.EnergyTypeConsumption, d.Type)
		assert.Equal(t, deviceName, d.DeviceName)
		assert.GreaterOrEqual(t, d.Energy, 0.2)
		if i > 0 {
			assert.True(t, d.Timestamp.After(data[i-1].Timestamp))
		}
	}
}

func TestHourlyUsage(t *testing.T) {
	b := New(42)
	// the evening peak is always above the overnight baseline
	for range 20 {
		assert.Greater(t, b.hourlyUsage(19), b.hourlyUsage(3))
	}
}

func TestDevices(t *testing.T) {
	_, client := newTestBackend(t)

	devices, err := client.FetchDevices(context.Background())
	require.NoError(t, err)
	require.Len(t, devices, 4)

	assert.Equal(t, types.ID("1"), devices[0].ID)
	assert.Equal(t, types.DeviceTypeThermostat, devices[0].Type)
	require.NotNil(t, devices[0].LastReading)
	assert.InDelta(t, 21.5, *devices[0].LastReading, 0.5)
	// porch light has never reported a state
	assert.Equal(t, types.DeviceState(""), devices[3].CurrentState)
}

func TestControl(t *testing.T) {
	ctx := context.Background()

	t.Run("Success", func(t *testing.T) {
		_, client := newTestBackend(t)
		require.NoError(t, client.ControlDevice(ctx, "3", types.DeviceStateOn))

		devices, err := client.FetchDevices(ctx)
		require.NoError(t, err)
		assert.Equal(t, types.DeviceStateOn, devices[2].CurrentState)
	})

	t.Run("Unknown Device", func(t *testing.T) {
		_, client := newTestBackend(t)
		err := client.ControlDevice(ctx, "99", types.DeviceStateOn)
		var netErr *api.NetworkError
		require.ErrorAs(t, err, &netErr)
		assert.Equal(t, http.StatusNotFound, netErr.StatusCode)
	})

	t.Run("Invalid Action", func(t *testing.T) {
		b := New(1)
		w := httptest.NewRecorder()
		req := httptest.NewRequest("POST", "/api/devices/1/control/", strings.NewReader(`{"action":"standby"}`))
		b.Handler().ServeHTTP(w, req)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("Injected Failure", func(t *testing.T) {
		b, client := newTestBackend(t)
		b.FailNext("control", 1)

		err := client.ControlDevice(ctx, "1", types.DeviceStateOff)
		var netErr *api.NetworkError
		require.ErrorAs(t, err, &netErr)
		assert.Equal(t, http.StatusInternalServerError, netErr.StatusCode)

		// only the next request fails
		require.NoError(t, client.ControlDevice(ctx, "1", types.DeviceStateOff))
	})
}

func TestAlerts(t *testing.T) {
	ctx := context.Background()
	_, client := newTestBackend(t)

	alerts, err := client.FetchAlerts(ctx)
	require.NoError(t, err)
	require.Len(t, alerts, 3)
	for _, a := range alerts {
		assert.False(t, a.Resolved)
	}
	assert.Equal(t, types.SeverityDanger, alerts[0].Severity)
	assert.Equal(t, types.ID("1"), alerts[0].DeviceID)
	assert.Equal(t, "Living Room Thermostat", alerts[0].DeviceName)
	assert.Equal(t, time.Date(2024, 1, 2, 12, 10, 0, 0, time.UTC), alerts[0].Timestamp.UTC())

	require.NoError(t, client.ResolveAlert(ctx, "1"))
	alerts, err = client.FetchAlerts(ctx)
	require.NoError(t, err)
	assert.Len(t, alerts, 2)

	err = client.ResolveAlert(ctx, "99")
	var netErr *api.NetworkError
	require.ErrorAs(t, err, &netErr)
	assert.Equal(t, http.StatusNotFound, netErr.StatusCode)
}

func TestIncludeResolved(t *testing.T) {
	b := New(1)
	w := httptest.NewRecorder()
	b.Handler().ServeHTTP(w, httptest.NewRequest("GET", "/api/alerts/?include_resolved=true", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var env types.Envelope[alertRecord]
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	assert.Equal(t, 4, env.Count)
	assert.Len(t, env.Results, 4)
	assert.Nil(t, env.Next)
}

func TestFailNext(t *testing.T) {
	b, client := newTestBackend(t)
	b.FailNext("devices", 2)

	for range 2 {
		_, err := client.FetchDevices(context.Background())
		assert.Error(t, err)
	}
	_, err := client.FetchDevices(context.Background())
	assert.NoError(t, err)
}
