package storagemock

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/ugandapathways/pathways/pkg/storage"
	"github.com/ugandapathways/pathways/pkg/types"
)

type MockDatabase struct {
	mock.Mock
}

var _ storage.Database = (*MockDatabase)(nil)

func (m *MockDatabase) SaveRun(ctx context.Context, run types.Run) error {
	args := m.Called(ctx, run)
	return args.Error(0)
}

func (m *MockDatabase) GetRun(ctx context.Context, scenario string, ts time.Time) (types.Run, error) {
	args := m.Called(ctx, scenario, ts)
	return args.Get(0).(types.Run), args.Error(1)
}

func (m *MockDatabase) ListRuns(ctx context.Context, scenario string, start, end time.Time) ([]types.Run, error) {
	args := m.Called(ctx, scenario, start, end)
	// return empty if not specified, or checks args
	if runs, ok := args.Get(0).([]types.Run); ok {
		return runs, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockDatabase) GetLatestRun(ctx context.Context, scenario string) (types.Run, error) {
	args := m.Called(ctx, scenario)
	return args.Get(0).(types.Run), args.Error(1)
}

func (m *MockDatabase) Close() error {
	args := m.Called()
	return args.Error(0)
}
