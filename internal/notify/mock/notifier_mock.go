package mock

import (
	"context"

	"github.com/stretchr/testify/mock"
)

// NotifierMock mocks the notify Notifier interface
type NotifierMock struct {
	mock.Mock
}

func (m *NotifierMock) SendEmail(ctx context.Context, to, subject, body string) error {
	args := m.Called(ctx, to, subject, body)
	return args.Error(0)
}

func (m *NotifierMock) SendHTMLEmail(ctx context.Context, to, subject, html string) error {
	args := m.Called(ctx, to, subject, html)
	return args.Error(0)
}
