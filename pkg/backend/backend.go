// Package backend is a simulated smart home REST API. It serves the same
// endpoints the dashboard consumes so the dashboard can be run and tested
// without real hardware.
package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/homedash/homedash/pkg/log"
	"github.com/homedash/homedash/pkg/types"
	"github.com/levenlabs/go-lflag"
)

// simulation constants for the household load curve
const (
	homeAvgKWH   = 1.5
	breakfastKWH = 2.0
	eveningKWH   = 4.0
	historyHours = 24
	deviceName   = "Whole Home"
)

type device struct {
	ID       int
	Name     string
	Type     types.DeviceType
	State    types.DeviceState
	Location string
	Reading  *float64
}

type alert struct {
	ID        int
	Title     string
	Message   string
	Severity  types.Severity
	DeviceID  int
	Resolved  bool
	Timestamp time.Time
}

// Backend holds the simulated devices and alerts.
type Backend struct {
	listenAddr string

	mu      sync.Mutex
	rng     *rand.Rand
	now     func() time.Time
	devices []*device
	alerts  []*alert
	failing map[string]int
}

// New returns a backend seeded with a few devices and alerts. The same seed
// produces the same energy data.
func New(seed int64) *Backend {
	b := &Backend{
		rng:     rand.New(rand.NewSource(seed)),
		now:     time.Now,
		failing: make(map[string]int),
	}
	b.seed()
	return b
}

// Configured sets up the backend from flags.
// It uses lflag to register command-line flags for configuration.
func Configured() *Backend {
	listenAddr := lflag.String("mockapi-listen", "127.0.0.1:8000", "Listen address of the simulated backend")
	seed := lflag.String("mockapi-seed", "", "Random seed for the simulated energy data (empty uses the current time)")

	b := New(0)
	lflag.Do(func() {
		b.listenAddr = *listenAddr
		s := time.Now().UnixNano()
		if *seed != "" {
			var err error
			s, err = strconv.ParseInt(*seed, 10, 64)
			if err != nil {
				panic(fmt.Sprintf("invalid mockapi-seed (%s): %v", *seed, err))
			}
		}
		b.rng = rand.New(rand.NewSource(s))
	})
	return b
}

func ptr(f float64) *float64 {
	return &f
}

func (b *Backend) seed() {
	b.devices = []*device{
		{ID: 1, Name: "Living Room Thermostat", Type: types.DeviceTypeThermostat, State: types.DeviceStateOn, Location: "Living Room", Reading: ptr(21.5)},
		{ID: 2, Name: "Front Door Camera", Type: types.DeviceTypeCamera, State: types.DeviceStateOn, Location: "Entrance"},
		{ID: 3, Name: "Kitchen Lights", Type: types.DeviceTypeLight, State: types.DeviceStateOff, Location: "Kitchen"},
		// never reported a state
		{ID: 4, Name: "Porch Light", Type: types.DeviceTypeLight, Location: "Porch"},
	}

	now := b.now()
	b.alerts = []*alert{
		{ID: 1, Title: "High Temperature", Message: "Living room temperature is above the comfort range", Severity: types.SeverityDanger, DeviceID: 1, Timestamp: now.Add(-20 * time.Minute)},
		{ID: 2, Title: "Low Battery", Message: "Front door camera battery is at 15%", Severity: types.SeverityWarning, DeviceID: 2, Timestamp: now.Add(-2 * time.Hour)},
		{ID: 3, Title: "Firmware Update", Message: "A firmware update is available for the kitchen lights", Severity: types.SeverityInfo, DeviceID: 3, Timestamp: now.Add(-26 * time.Hour)},
		{ID: 4, Title: "Motion Detected", Message: "Motion was detected at the front door", Severity: types.SeverityInfo, DeviceID: 2, Resolved: true, Timestamp: now.Add(-3 * time.Hour)},
	}
}

// FailNext makes the next n requests to the named endpoint ("energy",
// "devices", "alerts", "control" or "resolve") answer with a 500.
func (b *Backend) FailNext(endpoint string, n int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failing[endpoint] = n
}

// shouldFail consumes one pending failure for the endpoint. Callers hold mu.
func (b *Backend) shouldFail(endpoint string) bool {
	if b.failing[endpoint] <= 0 {
		return false
	}
	b.failing[endpoint]--
	return true
}

// Handler returns the REST API rooted at /api.
func (b *Backend) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/energy-data/", b.handleEnergyData)
	mux.HandleFunc("GET /api/devices/", b.handleDevices)
	mux.HandleFunc("GET /api/alerts/", b.handleAlerts)
	mux.HandleFunc("POST /api/devices/{id}/control/", b.handleControl)
	mux.HandleFunc("POST /api/alerts/{id}/resolve/", b.handleResolve)
	return mux
}

// Run starts the HTTP server and blocks until the context is canceled or an error occurs.
func (b *Backend) Run(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:         b.listenAddr,
		Handler:      b.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  15 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		defer close(errChan)
		log.Ctx(ctx).InfoContext(ctx, "starting simulated backend", slog.String("addr", b.listenAddr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Ctx(ctx).InfoContext(ctx, "shutting down simulated backend")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("backend shutdown failed: %w", err)
		}
		return nil
	case err := <-errChan:
		return fmt.Errorf("backend error: %w", err)
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		panic(http.ErrAbortHandler)
	}
}

func writePage[T any](w http.ResponseWriter, results []T) {
	if results == nil {
		results = []T{}
	}
	writeJSON(w, http.StatusOK, types.Envelope[T]{Count: len(results), Results: results})
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"detail": msg})
}

type energyRecord struct {
	Timestamp  string           `json:"timestamp"`
	Energy     float64          `json:"energy"`
	Type       types.EnergyType `json:"type"`
	DeviceName string           `json:"device_name"`
}

// hourlyUsage returns the simulated consumption for an hour of the day.
func (b *Backend) hourlyUsage(hour int) float64 {
	kwh := homeAvgKWH + b.rng.Float64()
	if hour >= 7 && hour < 9 {
		kwh += breakfastKWH
	} else if hour >= 18 && hour < 22 {
		kwh += eveningKWH
	} else if hour >= 10 && hour < 16 {
		// daytime solar offsets part of the load
		dist := math.Abs(float64(hour) - 13.0)
		kwh -= math.Min(kwh-0.2, 1.2*math.Exp(-(dist*dist)/12.0))
	}
	return math.Round(kwh*100) / 100
}

// energyData returns hourly consumption for the last day, oldest first.
func (b *Backend) energyData() []energyRecord {
	end := b.now().UTC().Truncate(time.Hour)
	start := end.Add(-historyHours * time.Hour)

	records := make([]energyRecord, 0, historyHours)
	for t := start; t.Before(end); t = t.Add(time.Hour) {
		records = append(records, energyRecord{
			Timestamp:  t.Format(time.RFC3339),
			Energy:     b.hourlyUsage(t.Hour()),
			Type:       types.EnergyTypeConsumption,
			DeviceName: deviceName,
		})
	}
	return records
}

func (b *Backend) handleEnergyData(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	if b.shouldFail("energy") {
		b.mu.Unlock()
		writeError(w, http.StatusInternalServerError, "energy data unavailable")
		return
	}
	records := b.energyData()
	b.mu.Unlock()

	writePage(w, records)
}

type deviceRecord struct {
	ID           int               `json:"id"`
	Name         string            `json:"name"`
	Type         types.DeviceType  `json:"type"`
	CurrentState types.DeviceState `json:"currentState,omitempty"`
	Location     string            `json:"location"`
	LastReading  *float64          `json:"lastReading,omitempty"`
}

func (d *device) record() deviceRecord {
	return deviceRecord{
		ID:           d.ID,
		Name:         d.Name,
		Type:         d.Type,
		CurrentState: d.State,
		Location:     d.Location,
		LastReading:  d.Reading,
	}
}

func (b *Backend) handleDevices(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	if b.shouldFail("devices") {
		b.mu.Unlock()
		writeError(w, http.StatusInternalServerError, "device list unavailable")
		return
	}
	records := make([]deviceRecord, 0, len(b.devices))
	for _, d := range b.devices {
		if d.Reading != nil && d.State == types.DeviceStateOn {
			// thermostats drift a little between polls
			v := math.Round((*d.Reading+(b.rng.Float64()-0.5)*0.4)*10) / 10
			d.Reading = &v
		}
		records = append(records, d.record())
	}
	b.mu.Unlock()

	writePage(w, records)
}

type alertRecord struct {
	ID         int            `json:"id"`
	Title      string         `json:"title"`
	Message    string         `json:"message"`
	Severity   types.Severity `json:"severity"`
	Device     int            `json:"device"`
	DeviceName string         `json:"device_name"`
	Resolved   bool           `json:"resolved"`
	Timestamp  string         `json:"timestamp"`
	CreatedAt  string         `json:"created_at"`
}

func (b *Backend) deviceByID(id int) *device {
	for _, d := range b.devices {
		if d.ID == id {
			return d
		}
	}
	return nil
}

// handleAlerts lists unresolved alerts, or every alert with
// ?include_resolved=true.
func (b *Backend) handleAlerts(w http.ResponseWriter, r *http.Request) {
	includeResolved := r.URL.Query().Get("include_resolved") == "true"

	b.mu.Lock()
	if b.shouldFail("alerts") {
		b.mu.Unlock()
		writeError(w, http.StatusInternalServerError, "alert list unavailable")
		return
	}
	records := make([]alertRecord, 0, len(b.alerts))
	for _, a := range b.alerts {
		if a.Resolved && !includeResolved {
			continue
		}
		rec := alertRecord{
			ID:        a.ID,
			Title:     a.Title,
			Message:   a.Message,
			Severity:  a.Severity,
			Device:    a.DeviceID,
			Resolved:  a.Resolved,
			Timestamp: a.Timestamp.UTC().Format(time.RFC3339),
			CreatedAt: a.Timestamp.UTC().Format(time.RFC3339),
		}
		if d := b.deviceByID(a.DeviceID); d != nil {
			rec.DeviceName = d.Name
		}
		records = append(records, rec)
	}
	b.mu.Unlock()

	writePage(w, records)
}

type controlRequest struct {
	Action types.DeviceState `json:"action"`
}

func (b *Backend) handleControl(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusNotFound, "device not found")
		return
	}

	var req controlRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !req.Action.Valid() {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid action %q", req.Action))
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.shouldFail("control") {
		writeError(w, http.StatusInternalServerError, "device did not respond")
		return
	}
	d := b.deviceByID(id)
	if d == nil {
		writeError(w, http.StatusNotFound, "device not found")
		return
	}
	d.State = req.Action
	log.Ctx(r.Context()).InfoContext(r.Context(), "simulated device controlled", slog.Int("deviceID", id), slog.String("state", string(req.Action)))

	writeJSON(w, http.StatusOK, struct {
		Status string       `json:"status"`
		Device deviceRecord `json:"device"`
	}{Status: "ok", Device: d.record()})
}

func (b *Backend) handleResolve(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusNotFound, "alert not found")
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.shouldFail("resolve") {
		writeError(w, http.StatusInternalServerError, "alert could not be resolved")
		return
	}
	for _, a := range b.alerts {
		if a.ID == id {
			a.Resolved = true
			writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
			return
		}
	}
	writeError(w, http.StatusNotFound, "alert not found")
}
