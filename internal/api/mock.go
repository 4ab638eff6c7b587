package api

import (
	"context"

	"github.com/dodo5517/shop-chat/internal/types"
	"github.com/stretchr/testify/mock"
)

type MockChatAPI struct {
	mock.Mock
}

func (m *MockChatAPI) CurrentUser(ctx context.Context) (types.User, error) {
	args := m.Called(ctx)
	return args.Get(0).(types.User), args.Error(1)
}
func (m *MockChatAPI) ChatRooms(ctx context.Context, id int64) ([]types.ChatRoom, error) {
	args := m.Called(ctx, id)
	if rooms, ok := args.Get(0).([]types.ChatRoom); ok {
		return rooms, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *MockChatAPI) ChatLog(ctx context.Context, roomId int64) ([]types.ChatLogEntry, error) {
	args := m.Called(ctx, roomId)
	if entries, ok := args.Get(0).([]types.ChatLogEntry); ok {
		return entries, args.Error(1)
	}
	return nil, args.Error(1)
}
