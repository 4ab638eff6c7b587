package stats

import "github.com/stretchr/testify/mock"

var (
	_ StatsProvider = (*StatsUpdater)(nil)
	_ StatsProvider = Nop{}
	_ StatsProvider = (*MockStatsProvider)(nil)
)

// MockStatsProvider records counter updates for assertions.
type MockStatsProvider struct {
	mock.Mock
}

func (m *MockStatsProvider) Incr(name string) {
	m.Called(name)
}
func (m *MockStatsProvider) RegisterMetric(name string) {
	m.Called(name)
}
func (m *MockStatsProvider) Run() {
	m.Called()
}
