package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/homedash/homedash/pkg/types"
)

// envelope mirrors types.Envelope but keeps results raw so a missing or
// mistyped results field can be reported as a validation error.
type envelope struct {
	Count    int             `json:"count"`
	Next     *string         `json:"next"`
	Previous *string         `json:"previous"`
	Results  json.RawMessage `json:"results"`
}

// unwrap validates the envelope and returns the raw results array.
func unwrap(op, collection string, body []byte) (json.RawMessage, error) {
	if !json.Valid(body) {
		// run it through Unmarshal to get a useful offset in the error
		var v any
		err := json.Unmarshal(body, &v)
		if err == nil {
			err = fmt.Errorf("invalid JSON")
		}
		return nil, &ParseError{Op: op, Err: err}
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, &ValidationError{
			Collection: collection,
			Msg:        collection + " response must be a paginated envelope",
			Err:        err,
		}
	}

	results := bytes.TrimSpace(env.Results)
	if len(results) == 0 || results[0] != '[' {
		return nil, &ValidationError{
			Collection: collection,
			Msg:        collection + " must be an array",
		}
	}
	return results, nil
}

// decodeRecords unmarshals the results array into a slice of raw records.
func decodeRecords[T any](collection string, results json.RawMessage) ([]T, error) {
	var records []T
	if err := json.Unmarshal(results, &records); err != nil {
		return nil, &ValidationError{
			Collection: collection,
			Msg:        collection + " contains an invalid record",
			Err:        err,
		}
	}
	return records, nil
}

// timestamp layouts accepted from the backend, most specific first
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
}

func parseTimestamp(s string) (time.Time, error) {
	var firstErr error
	for _, layout := range timestampLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return t, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return time.Time{}, firstErr
}

type rawEnergy struct {
	Timestamp  string           `json:"timestamp"`
	Energy     *float64         `json:"energy"`
	Type       types.EnergyType `json:"type"`
	DeviceName string           `json:"device_name"`
}

func decodeEnergy(op string, body []byte) ([]types.EnergyData, error) {
	results, err := unwrap(op, CollectionEnergy, body)
	if err != nil {
		return nil, err
	}
	records, err := decodeRecords[*rawEnergy](CollectionEnergy, results)
	if err != nil {
		return nil, err
	}

	data := make([]types.EnergyData, 0, len(records))
	for i, r := range records {
		if r == nil {
			return nil, &ValidationError{Collection: CollectionEnergy, Msg: fmt.Sprintf("energy sample %d is null", i)}
		}
		ts, err := parseTimestamp(r.Timestamp)
		if err != nil {
			return nil, &ValidationError{
				Collection: CollectionEnergy,
				Msg:        fmt.Sprintf("energy sample %d has an invalid timestamp %q", i, r.Timestamp),
				Err:        err,
			}
		}
		if r.Energy == nil {
			return nil, &ValidationError{Collection: CollectionEnergy, Msg: fmt.Sprintf("energy sample %d has no energy value", i)}
		}
		switch r.Type {
		case "", types.EnergyTypeConsumption, types.EnergyTypeGeneration:
		default:
			return nil, &ValidationError{Collection: CollectionEnergy, Msg: fmt.Sprintf("energy sample %d has an invalid type %q", i, r.Type)}
		}
		data = append(data, types.EnergyData{
			Timestamp:  ts,
			Energy:     *r.Energy,
			Type:       r.Type,
			DeviceName: r.DeviceName,
		})
	}
	return data, nil
}

// rawDevice accepts both the camelCase keys the dashboard API uses and the
// snake_case keys some backend versions send.
type rawDevice struct {
	ID                types.ID          `json:"id"`
	Name              string            `json:"name"`
	Type              types.DeviceType  `json:"type"`
	CurrentState      types.DeviceState `json:"currentState"`
	CurrentStateSnake types.DeviceState `json:"current_state"`
	Location          string            `json:"location"`
	LastReading       *float64          `json:"lastReading"`
	LastReadingSnake  *float64          `json:"last_reading"`
	Metadata          map[string]any    `json:"metadata"`
}

func (r *rawDevice) device() (types.Device, error) {
	if r.ID == "" {
		return types.Device{}, fmt.Errorf("device has no id")
	}
	state := r.CurrentState
	if state == "" {
		state = r.CurrentStateSnake
	}
	// an absent state is allowed here, the store defaults it
	if state != "" && !state.Valid() {
		return types.Device{}, fmt.Errorf("device %s has an invalid state %q", r.ID, state)
	}
	reading := r.LastReading
	if reading == nil {
		reading = r.LastReadingSnake
	}
	return types.Device{
		ID:           r.ID,
		Name:         r.Name,
		Type:         r.Type,
		CurrentState: state,
		Location:     r.Location,
		LastReading:  reading,
		Metadata:     r.Metadata,
	}, nil
}

func decodeDevices(op string, body []byte) ([]types.Device, error) {
	results, err := unwrap(op, CollectionDevices, body)
	if err != nil {
		return nil, err
	}
	records, err := decodeRecords[*rawDevice](CollectionDevices, results)
	if err != nil {
		return nil, err
	}

	devices := make([]types.Device, 0, len(records))
	for i, r := range records {
		if r == nil {
			return nil, &ValidationError{Collection: CollectionDevices, Msg: fmt.Sprintf("device %d is null", i)}
		}
		d, err := r.device()
		if err != nil {
			return nil, &ValidationError{Collection: CollectionDevices, Msg: err.Error()}
		}
		devices = append(devices, d)
	}
	return devices, nil
}

type rawAlert struct {
	ID         types.ID        `json:"id"`
	Title      string          `json:"title"`
	Message    string          `json:"message"`
	Severity   types.Severity  `json:"severity"`
	Device     json.RawMessage `json:"device"`
	DeviceName string          `json:"device_name"`
	Resolved   bool            `json:"resolved"`
	Timestamp  string          `json:"timestamp"`
	CreatedAt  string          `json:"created_at"`
}

func (r *rawAlert) alert() (types.Alert, error) {
	a := types.Alert{
		ID:         r.ID,
		Title:      r.Title,
		Message:    r.Message,
		Severity:   r.Severity,
		DeviceName: r.DeviceName,
		Resolved:   r.Resolved,
	}
	if a.Severity == "" {
		a.Severity = types.SeverityInfo
	}

	// device is either a nested device, a bare id or null
	dev := bytes.TrimSpace(r.Device)
	switch {
	case len(dev) == 0 || string(dev) == "null":
	case dev[0] == '{':
		var rd rawDevice
		if err := json.Unmarshal(dev, &rd); err != nil {
			return types.Alert{}, fmt.Errorf("alert %s has an invalid device: %w", r.ID, err)
		}
		d, err := rd.device()
		if err != nil {
			return types.Alert{}, fmt.Errorf("alert %s: %w", r.ID, err)
		}
		a.Device = &d
		a.DeviceID = d.ID
		if a.DeviceName == "" {
			a.DeviceName = d.Name
		}
	default:
		if err := json.Unmarshal(dev, &a.DeviceID); err != nil {
			return types.Alert{}, fmt.Errorf("alert %s has an invalid device: %w", r.ID, err)
		}
	}

	ts := r.Timestamp
	if ts == "" {
		ts = r.CreatedAt
	}
	if ts != "" {
		t, err := parseTimestamp(ts)
		if err != nil {
			return types.Alert{}, fmt.Errorf("alert %s has an invalid timestamp %q", r.ID, ts)
		}
		a.Timestamp = t
	}
	return a, nil
}

func decodeAlerts(op string, body []byte) ([]types.Alert, error) {
	results, err := unwrap(op, CollectionAlerts, body)
	if err != nil {
		return nil, err
	}
	records, err := decodeRecords[*rawAlert](CollectionAlerts, results)
	if err != nil {
		return nil, err
	}

	alerts := make([]types.Alert, 0, len(records))
	for i, r := range records {
		if r == nil {
			return nil, &ValidationError{Collection: CollectionAlerts, Msg: fmt.Sprintf("alert %d is null", i)}
		}
		a, err := r.alert()
		if err != nil {
			return nil, &ValidationError{Collection: CollectionAlerts, Msg: err.Error()}
		}
		alerts = append(alerts, a)
	}
	return alerts, nil
}
