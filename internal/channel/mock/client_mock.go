package mock

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/acounsel/asfour/internal/channel"
)

// ClientMock mocks the channel Client interface
type ClientMock struct {
	mock.Mock
}

func (m *ClientMock) Send(ctx context.Context, creds channel.Credentials, req channel.SendRequest) (string, error) {
	args := m.Called(ctx, creds, req)
	return args.String(0), args.Error(1)
}

func (m *ClientMock) CreateConferenceParticipant(ctx context.Context, creds channel.Credentials, conference, from, to string) (string, error) {
	args := m.Called(ctx, creds, conference, from, to)
	return args.String(0), args.Error(1)
}
