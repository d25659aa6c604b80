package apimock

import (
	"context"

	"github.com/homedash/homedash/pkg/api"
	"github.com/homedash/homedash/pkg/types"
	"github.com/stretchr/testify/mock"
)

type MockClient struct {
	mock.Mock
}

var _ api.Client = (*MockClient)(nil)

func (m *MockClient) FetchEnergyData(ctx context.Context) ([]types.EnergyData, error) {
	args := m.Called(ctx)
	if v := args.Get(0); v != nil {
		return v.([]types.EnergyData), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockClient) FetchDevices(ctx context.Context) ([]types.Device, error) {
	args := m.Called(ctx)
	if v := args.Get(0); v != nil {
		return v.([]types.Device), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockClient) FetchAlerts(ctx context.Context) ([]types.Alert, error) {
	args := m.Called(ctx)
	if v := args.Get(0); v != nil {
		return v.([]types.Alert), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockClient) ControlDevice(ctx context.Context, id types.ID, action types.DeviceState) error {
	args := m.Called(ctx, id, action)
	return args.Error(0)
}

func (m *MockClient) ResolveAlert(ctx context.Context, id types.ID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}
