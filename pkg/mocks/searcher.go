package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/pay-theory/ecsbridge/pkg/core"
)

// MockSearcher is a mock implementation of core.Searcher
type MockSearcher struct {
	mock.Mock
}

// Search executes a search
func (m *MockSearcher) Search(ctx context.Context, req core.Request) (*core.RecordList, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*core.RecordList), args.Error(1)
}
