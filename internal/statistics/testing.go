package statistics

import (
	"context"

	"github.com/stretchr/testify/mock"
)

// MockMetricsClient implements MetricsClient
type MockMetricsClient struct {
	mock.Mock
}

func (m *MockMetricsClient) GetStatistics(ctx context.Context, q StatisticsQuery) ([]Datapoint, error) {
	args := m.Called(ctx, q)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]Datapoint), args.Error(1)
}
