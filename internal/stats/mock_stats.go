package stats

import (
	"time"

	"github.com/stretchr/testify/mock"
)

// MockStatsUpdater records gauge and request calls for assertions.
type MockStatsUpdater struct {
	mock.Mock
}

// NewMockStatsUpdater returns a mock that accepts any gauge or request
// call, for tests that do not assert on metrics.
func NewMockStatsUpdater() *MockStatsUpdater {
	su := &MockStatsUpdater{}
	su.On("RegisterMetric", mock.Anything).Return().Maybe()
	su.On("Incr", mock.Anything).Return().Maybe()
	su.On("Decr", mock.Anything).Return().Maybe()
	su.On("ObserveRequest", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return().Maybe()
	return su
}

func (m *MockStatsUpdater) Incr(name string) {
	m.Called(name)
}

func (m *MockStatsUpdater) Decr(name string) {
	m.Called(name)
}

func (m *MockStatsUpdater) RegisterMetric(name string) {
	m.Called(name)
}

func (m *MockStatsUpdater) ObserveRequest(method, route string, status int, d time.Duration) {
	m.Called(method, route, status, d)
}

func (m *MockStatsUpdater) Run() {
	m.Called()
}
