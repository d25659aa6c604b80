package types

import (
	"encoding/json"
	"fmt"
	"time"
)

// ID identifies a record on the backend. The backend encodes ids either as
// JSON strings or as integers; both decode to the same string form.
type ID string

// UnmarshalJSON accepts a JSON string, a JSON number or null.
func (id *ID) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*id = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("id must be a string or a number: %w", err)
	}
	*id = ID(n.String())
	return nil
}

// DeviceType is the category of a device.
type DeviceType string

const (
	DeviceTypeThermostat DeviceType = "thermostat"
	DeviceTypeCamera     DeviceType = "camera"
	DeviceTypeLight      DeviceType = "light"
)

// Label returns a human readable name for the device category.
func (t DeviceType) Label() string {
	switch t {
	case DeviceTypeThermostat:
		return "Thermostat"
	case DeviceTypeCamera:
		return "Camera"
	case DeviceTypeLight:
		return "Light"
	default:
		return "Device"
	}
}

// DeviceState is the binary power state of a device.
type DeviceState string

const (
	DeviceStateOn  DeviceState = "on"
	DeviceStateOff DeviceState = "off"
)

// Valid returns true if the state is one of the two defined values.
func (s DeviceState) Valid() bool {
	return s == DeviceStateOn || s == DeviceStateOff
}

// Inverse returns the action that flips a device out of state s. Anything
// that isn't on is treated as off.
func (s DeviceState) Inverse() DeviceState {
	if s == DeviceStateOn {
		return DeviceStateOff
	}
	return DeviceStateOn
}

// Device represents a controllable device as returned by the backend.
type Device struct {
	ID           ID             `json:"id"`
	Name         string         `json:"name"`
	Type         DeviceType     `json:"type"`
	CurrentState DeviceState    `json:"currentState"`
	Location     string         `json:"location"`
	LastReading  *float64       `json:"lastReading"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// IsOn returns true if the device is currently on.
func (d Device) IsOn() bool {
	return d.CurrentState == DeviceStateOn
}

// EnergyType tags an energy sample as consumed or generated.
type EnergyType string

const (
	EnergyTypeConsumption EnergyType = "consumption"
	EnergyTypeGeneration  EnergyType = "generation"
)

// EnergyData is a single timestamped energy sample.
type EnergyData struct {
	Timestamp  time.Time  `json:"timestamp"`
	Energy     float64    `json:"energy"` // kWh
	Type       EnergyType `json:"type,omitempty"`
	DeviceName string     `json:"deviceName,omitempty"`
}

// Severity is the importance of an alert.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityDanger  Severity = "danger"
	// SeverityError is only sent by older backends and is displayed like danger.
	SeverityError Severity = "error"
)

// Alert is a system alert shown in the alert feed.
type Alert struct {
	ID         ID        `json:"id"`
	Title      string    `json:"title"`
	Message    string    `json:"message"`
	Severity   Severity  `json:"severity"`
	Device     *Device   `json:"device,omitempty"`
	DeviceID   ID        `json:"deviceID,omitempty"`
	DeviceName string    `json:"deviceName,omitempty"`
	Resolved   bool      `json:"resolved"`
	Timestamp  time.Time `json:"timestamp"`
}

// Envelope is the paginated wrapper returned by every list endpoint.
type Envelope[T any] struct {
	Count    int     `json:"count"`
	Next     *string `json:"next"`
	Previous *string `json:"previous"`
	Results  []T     `json:"results"`
}

// ActionKind is the kind of command issued to the backend.
type ActionKind string

const (
	ActionKindControl ActionKind = "control"
	ActionKindResolve ActionKind = "resolve"
)

// Action represents a command the dashboard sent to the backend. Actions are
// logged for auditing only, device state always comes from the backend.
type Action struct {
	ID        string      `json:"id"`
	Timestamp time.Time   `json:"timestamp"`
	Kind      ActionKind  `json:"kind"`
	TargetID  ID          `json:"targetID"`
	State     DeviceState `json:"state,omitempty"`
	RequestID string      `json:"requestID,omitempty"`
	Failed    bool        `json:"failed,omitempty"`
	Error     string      `json:"error,omitempty"`
}
