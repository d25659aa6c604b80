package types

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIDUnmarshal(t *testing.T) {
	t.Run("string", func(t *testing.T) {
		var id ID
		require.NoError(t, json.Unmarshal([]byte(`"d1"`), &id))
		assert.Equal(t, ID("d1"), id)
	})

	t.Run("number", func(t *testing.T) {
		var id ID
		require.NoError(t, json.Unmarshal([]byte(`42`), &id))
		assert.Equal(t, ID("42"), id)
	})

	t.Run("null", func(t *testing.T) {
		id := ID("old")
		require.NoError(t, json.Unmarshal([]byte(`null`), &id))
		assert.Equal(t, ID(""), id)
	})

	t.Run("bool", func(t *testing.T) {
		var id ID
		assert.Error(t, json.Unmarshal([]byte(`true`), &id))
	})

	t.Run("in struct", func(t *testing.T) {
		var d Device
		require.NoError(t, json.Unmarshal([]byte(`{"id":7,"name":"Lamp","type":"light","currentState":"on"}`), &d))
		assert.Equal(t, ID("7"), d.ID)
		assert.True(t, d.IsOn())
	})
}

func TestDeviceState(t *testing.T) {
	assert.True(t, DeviceStateOn.Valid())
	assert.True(t, DeviceStateOff.Valid())
	assert.False(t, DeviceState("").Valid())
	assert.False(t, DeviceState("standby").Valid())

	assert.Equal(t, DeviceStateOff, DeviceStateOn.Inverse())
	assert.Equal(t, DeviceStateOn, DeviceStateOff.Inverse())
	assert.Equal(t, DeviceStateOn, DeviceState("").Inverse())
}

func TestDeviceTypeLabel(t *testing.T) {
	assert.Equal(t, "Thermostat", DeviceTypeThermostat.Label())
	assert.Equal(t, "Camera", DeviceTypeCamera.Label())
	assert.Equal(t, "Light", DeviceTypeLight.Label())
	assert.Equal(t, "Device", DeviceType("fridge").Label())
}
