package explore

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/xkilldash9x/suture/api/schemas"
	"github.com/xkilldash9x/suture/internal/selector"
)

// MockRepairEngine is a mock implementation of RepairEngine.
type MockRepairEngine struct {
	mock.Mock
}

func (m *MockRepairEngine) Run(ctx context.Context, sel selector.Selector, tests []string, space *selector.SearchSpace) ([]schemas.Attempt, error) {
	args := m.Called(ctx, sel, tests, space)
	batch, _ := args.Get(0).([]schemas.Attempt)
	return batch, args.Error(1)
}

// MockSweepEngine is a mock implementation of SweepEngine.
type MockSweepEngine struct {
	mock.Mock
}

func (m *MockSweepEngine) RunStrategies(ctx context.Context, tests []string, strategies []selector.Strategy, space *selector.SearchSpace) ([]schemas.Attempt, error) {
	args := m.Called(ctx, tests, strategies, space)
	batch, _ := args.Get(0).([]schemas.Attempt)
	return batch, args.Error(1)
}
