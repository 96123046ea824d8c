package mock

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/acounsel/asfour/internal/progress"
)

// StoreMock mocks the progress Store interface
type StoreMock struct {
	mock.Mock
}

func (m *StoreMock) SetStage(ctx context.Context, jobID string, stage, total int, message string) error {
	args := m.Called(ctx, jobID, stage, total, message)
	return args.Error(0)
}

func (m *StoreMock) Get(ctx context.Context, jobID string) (*progress.State, error) {
	args := m.Called(ctx, jobID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*progress.State), args.Error(1)
}

func (m *StoreMock) Close() error {
	args := m.Called()
	return args.Error(0)
}
