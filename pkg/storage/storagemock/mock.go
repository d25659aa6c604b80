package storagemock

import (
	"context"
	"time"

	"github.com/homedash/homedash/pkg/storage"
	"github.com/homedash/homedash/pkg/types"
	"github.com/stretchr/testify/mock"
)

type MockDatabase struct {
	mock.Mock
}

var _ storage.Database = (*MockDatabase)(nil)

func (m *MockDatabase) InsertAction(ctx context.Context, action types.Action) error {
	args := m.Called(ctx, action)
	return args.Error(0)
}

func (m *MockDatabase) GetActionHistory(ctx context.Context, start, end time.Time) ([]types.Action, error) {
	args := m.Called(ctx, start, end)
	if v := args.Get(0); v != nil {
		return v.([]types.Action), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockDatabase) GetLatestAction(ctx context.Context) (types.Action, error) {
	args := m.Called(ctx)
	return args.Get(0).(types.Action), args.Error(1)
}

func (m *MockDatabase) Close() error {
	args := m.Called()
	return args.Error(0)
}
