package live

import (
	"github.com/dodo5517/shop-chat/internal/types"
	"github.com/stretchr/testify/mock"
)

type MockSubscriber struct {
	mock.Mock
	C chan Delivery
}

func NewMockSubscriber() *MockSubscriber {
	return &MockSubscriber{C: make(chan Delivery, deliveryBuffer)}
}

func (m *MockSubscriber) Switch(roomId int64) (uint64, error) {
	args := m.Called(roomId)
	return args.Get(0).(uint64), args.Error(1)
}
func (m *MockSubscriber) Publish(roomId int64, msg types.OutboundMessage) error {
	args := m.Called(roomId, msg)
	return args.Error(0)
}
func (m *MockSubscriber) Connected() bool {
	args := m.Called()
	return args.Bool(0)
}
func (m *MockSubscriber) Deliveries() <-chan Delivery {
	return m.C
}
func (m *MockSubscriber) Close() {
	m.Called()
}
