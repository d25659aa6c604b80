package view

import (
	"bytes"
	"io/fs"
	"strings"
	"testing"
	"time"

	"github.com/homedash/homedash/pkg/store"
	"github.com/homedash/homedash/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr[T any](v T) *T {
	return &v
}

func loadedState() store.State {
	return store.State{
		Energy: []types.EnergyData{
			{Timestamp: time.Date(2024, 1, 1, 2, 0, 0, 0, time.UTC), Energy: 3},
			{Timestamp: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), Energy: 1.5},
			{Timestamp: time.Date(2024, 1, 1, 1, 0, 0, 0, time.UTC), Energy: 2},
		},
		Devices: []types.Device{
			{ID: "d1", Name: "Lamp", Type: types.DeviceTypeLight, CurrentState: types.DeviceStateOn, Location: "Kitchen"},
			{ID: "d2", Name: "Thermostat", Type: types.DeviceTypeThermostat, CurrentState: types.DeviceStateOff, LastReading: ptr(21.5)},
		},
		Alerts: []types.Alert{
			{ID: "a1", Title: "Filter", Severity: types.SeverityInfo, Timestamp: time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)},
			{ID: "a2", Title: "Smoke", Severity: types.SeverityDanger, DeviceName: "Hallway"},
			{ID: "a3", Title: "Battery", Severity: types.SeverityWarning, Resolved: true},
		},
		LoadedAt: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestBuildPage(t *testing.T) {
	t.Run("Loading", func(t *testing.T) {
		p := BuildPage(store.State{Loading: true}, time.UTC)
		assert.True(t, p.Loading)
		assert.Empty(t, p.Fatal)
		assert.Empty(t, p.Devices)
	})

	t.Run("Loading With Error", func(t *testing.T) {
		p := BuildPage(store.State{Loading: true, Error: "resolve alert: backend returned status 404"}, time.UTC)
		assert.True(t, p.Loading)
		assert.Equal(t, "resolve alert: backend returned status 404", p.Banner)
	})

	t.Run("Error Before Load", func(t *testing.T) {
		p := BuildPage(store.State{Error: "fetch devices: backend returned status 500"}, time.UTC)
		assert.False(t, p.Loading)
		assert.Equal(t, "fetch devices: backend returned status 500", p.Fatal)
		assert.Empty(t, p.Banner)
	})

	t.Run("Error After Load", func(t *testing.T) {
		state := loadedState()
		state.Error = "control device: backend returned status 500"
		p := BuildPage(state, time.UTC)
		assert.Empty(t, p.Fatal)
		assert.Equal(t, state.Error, p.Banner)
		assert.Len(t, p.Devices, 2)
	})

	t.Run("Loaded", func(t *testing.T) {
		p := BuildPage(loadedState(), time.UTC)
		assert.Empty(t, p.Fatal)
		assert.Empty(t, p.Banner)
		assert.Equal(t, "Jan 1, 2024, 12:00 PM", p.LoadedAt)
		assert.Len(t, p.Chart.Points, 3)
		assert.Equal(t, 2, p.Alerts.Active)
	})
}

func TestDeviceRows(t *testing.T) {
	rows := DeviceRows([]types.Device{
		{ID: "d1", Name: "Lamp", Type: types.DeviceTypeLight, CurrentState: types.DeviceStateOn},
		{ID: "d2", Name: "Cam", Type: types.DeviceTypeCamera, CurrentState: types.DeviceStateOff, LastReading: ptr(3.14159)},
		{ID: "d3", Name: "Fridge", Type: "fridge"},
	})
	require.Len(t, rows, 3)

	assert.Equal(t, "ON", rows[0].StateLabel)
	assert.Equal(t, "Turn Off", rows[0].ButtonLabel)
	assert.Equal(t, "Light", rows[0].TypeLabel)
	assert.True(t, rows[0].On)

	assert.Equal(t, "OFF", rows[1].StateLabel)
	assert.Equal(t, "Turn On", rows[1].ButtonLabel)
	assert.Equal(t, "3.1", rows[1].Reading)

	assert.Equal(t, "OFF", rows[2].StateLabel)
	assert.Equal(t, "Device", rows[2].TypeLabel)

	assert.Empty(t, DeviceRows(nil))
}

func TestBuildAlertFeed(t *testing.T) {
	feed := BuildAlertFeed([]types.Alert{
		{ID: "1", Severity: types.SeverityInfo},
		{ID: "2", Severity: types.SeverityWarning},
		{ID: "3", Severity: "critical"},
		{ID: "4", Severity: types.SeverityDanger},
		{ID: "5", Severity: types.SeverityError, Resolved: true},
		{ID: "6", Severity: types.SeverityDanger, Device: &types.Device{ID: "d1", Name: "Lamp"}},
		{ID: "7"},
	}, time.UTC)

	var order []string
	for _, g := range feed.Groups {
		order = append(order, g.Severity)
	}
	assert.Equal(t, []string{"danger", "error", "warning", "info", "critical"}, order)

	danger := feed.Groups[0]
	require.Len(t, danger.Alerts, 2)
	assert.Equal(t, types.ID("4"), danger.Alerts[0].ID)
	assert.Equal(t, types.ID("6"), danger.Alerts[1].ID)
	assert.Equal(t, "Lamp", danger.Alerts[1].DeviceName)
	assert.Equal(t, "destructive", danger.Alerts[0].Variant)

	assert.Equal(t, "destructive", feed.Groups[1].Alerts[0].Variant)
	assert.Equal(t, "warning", feed.Groups[2].Alerts[0].Variant)
	assert.Equal(t, "secondary", feed.Groups[3].Alerts[0].Variant)
	assert.Equal(t, "secondary", feed.Groups[4].Alerts[0].Variant)

	// an empty severity is shown as info
	require.Len(t, feed.Groups[3].Alerts, 2)
	assert.Equal(t, "info", feed.Groups[3].Alerts[1].Severity)

	assert.Equal(t, 6, feed.Active)
	assert.Equal(t, "6 Active Alerts", feed.CountLabel)

	empty := BuildAlertFeed(nil, time.UTC)
	assert.Empty(t, empty.Groups)
	assert.Empty(t, empty.CountLabel)
}

func TestBadgeVariant(t *testing.T) {
	assert.Equal(t, "destructive", BadgeVariant(types.SeverityDanger))
	assert.Equal(t, "destructive", BadgeVariant(types.SeverityError))
	assert.Equal(t, "warning", BadgeVariant(types.SeverityWarning))
	assert.Equal(t, "secondary", BadgeVariant(types.SeverityInfo))
	assert.Equal(t, "secondary", BadgeVariant(""))
}

func TestBuildChart(t *testing.T) {
	t.Run("Empty", func(t *testing.T) {
		c := BuildChart(nil, time.UTC)
		assert.True(t, c.Empty())
		assert.Equal(t, "Energy Usage (kWh)", c.Series)
		assert.Equal(t, "Timestamp", c.XAxis)
		assert.Equal(t, "Energy (kWh)", c.YAxis)
	})

	t.Run("Sorted Ascending", func(t *testing.T) {
		state := loadedState()
		c := BuildChart(state.Energy, time.UTC)
		require.Len(t, c.Points, 3)

		assert.Equal(t, "1.50", c.Points[0].Value)
		assert.Equal(t, "2.00", c.Points[1].Value)
		assert.Equal(t, "3.00", c.Points[2].Value)
		assert.Equal(t, "Jan 1 00:00", c.Points[0].Label)

		assert.Equal(t, c.Left, c.Points[0].X)
		assert.Equal(t, c.Right, c.Points[2].X)
		assert.Less(t, c.Points[0].X, c.Points[1].X)
		// larger values are drawn higher up
		assert.Greater(t, c.Points[0].Y, c.Points[2].Y)
		assert.Equal(t, c.Top, c.Points[2].Y)

		assert.True(t, strings.HasPrefix(c.Path, "M"))
		assert.Equal(t, 2, strings.Count(c.Path, "L"))
		assert.Len(t, c.YTicks, 5)
		assert.Equal(t, "0.0", c.YTicks[0].Label)
		assert.Equal(t, "3.0", c.YTicks[4].Label)
		assert.Len(t, c.XTicks, 3)

		// input order is kept
		assert.Equal(t, 3.0, state.Energy[0].Energy)
	})

	t.Run("Single Sample", func(t *testing.T) {
		c := BuildChart([]types.EnergyData{{Timestamp: time.Unix(0, 0), Energy: 0}}, time.UTC)
		require.Len(t, c.Points, 1)
		assert.Equal(t, c.CenterX(), c.Points[0].X)
		assert.Len(t, c.XTicks, 1)
	})

	t.Run("Negative Values", func(t *testing.T) {
		c := BuildChart([]types.EnergyData{
			{Timestamp: time.Unix(0, 0), Energy: -2},
			{Timestamp: time.Unix(3600, 0), Energy: 2},
		}, time.UTC)
		assert.Equal(t, "-2.0", c.YTicks[0].Label)
		assert.Equal(t, c.Bottom, c.Points[0].Y)
	})
}

func TestRender(t *testing.T) {
	r, err := New(time.UTC)
	require.NoError(t, err)

	render := func(t *testing.T, state store.State) string {
		t.Helper()
		var buf bytes.Buffer
		require.NoError(t, r.Render(&buf, state))
		return buf.String()
	}

	t.Run("Loading", func(t *testing.T) {
		body := render(t, store.State{Loading: true})
		assert.Contains(t, body, LoadingText)
		assert.NotContains(t, body, "Connected Devices")

		body = render(t, store.State{Loading: true, Error: "resolve alert: backend returned status 404"})
		assert.Contains(t, body, LoadingText)
		assert.Contains(t, body, "resolve alert: backend returned status 404")
	})

	t.Run("Fatal Error", func(t *testing.T) {
		body := render(t, store.State{Error: "fetch devices: backend returned status 500"})
		assert.Contains(t, body, ErrorTitle)
		assert.Contains(t, body, "fetch devices: backend returned status 500")
		assert.NotContains(t, body, "Connected Devices")
	})

	t.Run("Empty Dashboard", func(t *testing.T) {
		body := render(t, store.State{LoadedAt: time.Unix(0, 0)})
		assert.Contains(t, body, NoDevicesText)
		assert.Contains(t, body, NoEnergyText)
		assert.Contains(t, body, NoAlertsText)
		assert.Contains(t, body, NoAlertsSubtext)
		assert.NotContains(t, body, ErrorTitle)
	})

	t.Run("Dashboard", func(t *testing.T) {
		state := loadedState()
		state.Error = "control device: backend returned status 500"
		state.Devices = append(state.Devices, types.Device{ID: "a/b", Name: "Porch", CurrentState: types.DeviceStateOff})
		body := render(t, state)

		assert.Contains(t, body, "Lamp")
		assert.Contains(t, body, "Turn Off")
		assert.Contains(t, body, "Turn On")
		assert.Contains(t, body, `action="/devices/d1/toggle"`)
		assert.Contains(t, body, `action="/devices/a%2Fb/toggle"`)
		assert.Contains(t, body, "Energy Usage (kWh)")
		assert.Contains(t, body, "<svg")
		assert.Contains(t, body, "2 Active Alerts")
		assert.Contains(t, body, `action="/alerts/a1/resolve"`)
		assert.NotContains(t, body, `action="/alerts/a3/resolve"`)
		assert.Contains(t, body, "Jan 1, 2024, 09:00 AM")
		assert.Contains(t, body, "control device: backend returned status 500")
		assert.Contains(t, body, `action="/error/dismiss"`)

		// danger is listed before info
		assert.Less(t, strings.Index(body, "Smoke"), strings.Index(body, "Filter"))
	})

	t.Run("Escaping", func(t *testing.T) {
		state := loadedState()
		state.Devices = []types.Device{{ID: "x", Name: "<script>alert(1)</script>"}}
		body := render(t, state)
		assert.NotContains(t, body, "<script>alert(1)</script>")
	})
}

func TestStatic(t *testing.T) {
	b, err := fs.ReadFile(Static(), "style.css")
	require.NoError(t, err)
	assert.Contains(t, string(b), ".energy-chart")
}
