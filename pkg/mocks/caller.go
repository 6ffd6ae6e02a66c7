package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/pay-theory/ecsbridge/pkg/query"
)

// MockCaller is a mock implementation of the ECS gateway
type MockCaller struct {
	mock.Mock
}

// Invoke records the action and the rendered query
func (m *MockCaller) Invoke(ctx context.Context, action string, q *query.Query) (map[string]any, error) {
	args := m.Called(ctx, action, q.String())
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]any), args.Error(1)
}
