package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dodo5517/shop-chat/internal/api"
	"github.com/dodo5517/shop-chat/internal/live"
	"github.com/dodo5517/shop-chat/internal/testutil"
	"github.com/dodo5517/shop-chat/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var testRooms = []types.ChatRoom{
	{Id: 1, OtherUserName: "kim", LastMessage: "old"},
	{Id: 2, OtherUserName: "lee"},
}

func newTestSession(t *testing.T) (*Session, *api.MockChatAPI, *live.MockSubscriber) {
	t.Helper()
	chatAPI := &api.MockChatAPI{}
	sub := live.NewMockSubscriber()

	s, err := New(testutil.TestLogger(t), chatAPI, sub)
	require.NoError(t, err)
	assert.NotEmpty(t, s.Id(), "expected session id")

	return s, chatAPI, sub
}

func enteredSession(t *testing.T) (*Session, *api.MockChatAPI, *live.MockSubscriber) {
	t.Helper()
	s, chatAPI, sub := newTestSession(t)

	chatAPI.On("CurrentUser", mock.Anything).Return(types.User{Id: 42, Name: "me"}, nil).Once()
	chatAPI.On("ChatRooms", mock.Anything, int64(0)).Return(testRooms, nil).Once()
	chatAPI.On("ChatLog", mock.Anything, int64(1)).Return([]types.ChatLogEntry{
		{Id: 1, ChatRoomId: 1, SenderId: 7, Content: "hello"},
	}, nil).Once()
	sub.On("Switch", int64(1)).Return(uint64(1), nil).Once()

	require.NoError(t, s.LoadCurrentUser(context.Background()))
	require.NoError(t, s.LoadRooms(context.Background(), 0))
	require.NoError(t, s.EnterRoom(context.Background(), 1))

	return s, chatAPI, sub
}

func TestLoadCurrentUser(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		s, chatAPI, _ := newTestSession(t)
		chatAPI.On("CurrentUser", mock.Anything).Return(types.User{Id: 42, Name: "me"}, nil).Once()

		require.NoError(t, s.LoadCurrentUser(context.Background()))
		v := s.Snapshot()
		require.NotNil(t, v.User)
		assert.Equal(t, int64(42), v.User.Id)
		chatAPI.AssertExpectations(t)
	})

	t.Run("failure leaves user unset", func(t *testing.T) {
		s, chatAPI, _ := newTestSession(t)
		chatAPI.On("CurrentUser", mock.Anything).Return(types.User{}, errors.New("boom")).Once()

		assert.Error(t, s.LoadCurrentUser(context.Background()))
		assert.Nil(t, s.Snapshot().User)
	})
}

func TestLoadRooms(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		s, chatAPI, _ := newTestSession(t)
		chatAPI.On("ChatRooms", mock.Anything, int64(5)).Return(testRooms, nil).Once()

		require.NoError(t, s.LoadRooms(context.Background(), 5))
		assert.Equal(t, testRooms, s.Snapshot().Rooms)
	})

	t.Run("failure maps to generic error", func(t *testing.T) {
		s, chatAPI, _ := newTestSession(t)
		chatAPI.On("ChatRooms", mock.Anything, int64(0)).Return(nil, &api.ApiError{StatusCode: 500, Message: "internal server error"}).Once()

		err := s.LoadRooms(context.Background(), 0)
		assert.ErrorIs(t, err, ErrLoadRooms)
		assert.Equal(t, "failed to load rooms", ErrLoadRooms.Error())
		assert.Empty(t, s.Snapshot().Rooms)
	})
}

func TestEnterRoom(t *testing.T) {
	s, chatAPI, sub := enteredSession(t)
	defer chatAPI.AssertExpectations(t)
	defer sub.AssertExpectations(t)

	v := s.Snapshot()
	assert.Equal(t, int64(1), v.ActiveRoom)
	require.Len(t, v.Entries, 1)
	assert.Equal(t, "kim", v.Entries[0].OtherUserName, "expected entries annotated with room metadata")
}

func TestEnterRoomUnknownRoom(t *testing.T) {
	s, chatAPI, sub := newTestSession(t)
	chatAPI.On("ChatLog", mock.Anything, int64(9)).Return([]types.ChatLogEntry{{Id: 1, SenderId: 7}}, nil).Once()
	sub.On("Switch", int64(9)).Return(uint64(1), nil).Once()

	require.NoError(t, s.EnterRoom(context.Background(), 9))
	v := s.Snapshot()
	assert.Equal(t, UnknownUserName, v.Entries[0].OtherUserName)
}

func TestEnterRoomHistoryFailure(t *testing.T) {
	s, chatAPI, sub := enteredSession(t)
	chatAPI.On("ChatLog", mock.Anything, int64(2)).Return(nil, errors.New("timeout")).Once()

	assert.Error(t, s.EnterRoom(context.Background(), 2))

	v := s.Snapshot()
	assert.Equal(t, int64(1), v.ActiveRoom, "expected active room unchanged")
	sub.AssertNumberOfCalls(t, "Switch", 1)
}

func TestEnterRoomSwitchFailure(t *testing.T) {
	s, chatAPI, sub := newTestSession(t)
	chatAPI.On("ChatLog", mock.Anything, int64(1)).Return([]types.ChatLogEntry{}, nil).Once()
	sub.On("Switch", int64(1)).Return(uint64(0), live.ErrClosed).Once()

	err := s.EnterRoom(context.Background(), 1)
	assert.ErrorIs(t, err, live.ErrClosed)
	assert.Equal(t, int64(0), s.Snapshot().ActiveRoom)
}

func TestEnterRoomSuperseded(t *testing.T) {
	s, chatAPI, sub := newTestSession(t)
	chatAPI.On("ChatRooms", mock.Anything, int64(0)).Return(testRooms, nil).Once()
	require.NoError(t, s.LoadRooms(context.Background(), 0))

	release := make(chan struct{})
	chatAPI.On("ChatLog", mock.Anything, int64(1)).
		Run(func(mock.Arguments) { <-release }).
		Return([]types.ChatLogEntry{{Id: 1, ChatRoomId: 1, SenderId: 7, Content: "from A"}}, nil).Once()
	chatAPI.On("ChatLog", mock.Anything, int64(2)).
		Return([]types.ChatLogEntry{{Id: 2, ChatRoomId: 2, SenderId: 8, Content: "from B"}}, nil).Once()
	sub.On("Switch", int64(2)).Return(uint64(1), nil).Once()

	errA := make(chan error, 1)
	go func() {
		errA <- s.EnterRoom(context.Background(), 1)
	}()

	// wait until A's fetch is in flight before selecting B
	require.Eventually(t, func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.selectSeq == 1
	}, time.Second, time.Millisecond)

	require.NoError(t, s.EnterRoom(context.Background(), 2))
	close(release)

	assert.ErrorIs(t, <-errA, ErrSuperseded)

	v := s.Snapshot()
	assert.Equal(t, int64(2), v.ActiveRoom)
	require.Len(t, v.Entries, 1)
	assert.Equal(t, "from B", v.Entries[0].Content, "expected only B's entries after switching")
	sub.AssertNotCalled(t, "Switch", int64(1))
}

func TestEnterRoomSwitchDoesNotBlockState(t *testing.T) {
	s, chatAPI, sub := enteredSession(t)
	chatAPI.On("ChatLog", mock.Anything, int64(2)).
		Return([]types.ChatLogEntry{{Id: 2, ChatRoomId: 2, SenderId: 8, Content: "from B"}}, nil).Once()
	chatAPI.On("ChatLog", mock.Anything, int64(1)).
		Return([]types.ChatLogEntry{{Id: 3, ChatRoomId: 1, SenderId: 7, Content: "from A again"}}, nil).Once()

	switching := make(chan struct{})
	release := make(chan struct{})
	sub.On("Switch", int64(2)).
		Run(func(mock.Arguments) {
			close(switching)
			<-release
		}).
		Return(uint64(2), nil).Once()
	sub.On("Switch", int64(1)).Return(uint64(3), nil).Once()

	errB := make(chan error, 1)
	go func() {
		errB <- s.EnterRoom(context.Background(), 2)
	}()
	<-switching

	// the previous subscription is still tearing down
	snapshot := make(chan View, 1)
	go func() {
		snapshot <- s.Snapshot()
	}()
	select {
	case v := <-snapshot:
		assert.Equal(t, int64(1), v.ActiveRoom, "expected previous room until the switch completes")
	case <-time.After(time.Second):
		t.Fatal("Snapshot blocked while switching rooms")
	}
	assert.True(t, s.Deliver(live.Delivery{Generation: 1, RoomId: 1, Entry: types.ChatLogEntry{SenderId: 7, Content: "during switch"}}))

	errA := make(chan error, 1)
	go func() {
		errA <- s.EnterRoom(context.Background(), 1)
	}()
	require.Eventually(t, func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.selectSeq == 3
	}, time.Second, time.Millisecond)

	close(release)
	assert.ErrorIs(t, <-errB, ErrSuperseded, "expected room 2 superseded by the later selection")
	require.NoError(t, <-errA)

	v := s.Snapshot()
	assert.Equal(t, int64(1), v.ActiveRoom)
	require.Len(t, v.Entries, 1)
	assert.Equal(t, "from A again", v.Entries[0].Content)
	sub.AssertExpectations(t)
}

func TestDeliver(t *testing.T) {
	s, _, _ := enteredSession(t)
	createdAt := types.Timestamp{Time: time.Date(2024, 1, 1, 13, 5, 0, 0, time.UTC)}

	tcases := []struct {
		name     string
		delivery live.Delivery
		appended bool
	}{
		{
			name: "current generation",
			delivery: live.Delivery{Generation: 1, RoomId: 1, Entry: types.ChatLogEntry{
				Id: 2, ChatRoomId: 1, SenderId: 7, Content: "live", CreatedAt: createdAt,
			}},
			appended: true,
		},
		{
			name:     "stale generation",
			delivery: live.Delivery{Generation: 0, RoomId: 1, Entry: types.ChatLogEntry{Content: "stale"}},
			appended: false,
		},
		{
			name:     "other room",
			delivery: live.Delivery{Generation: 1, RoomId: 2, Entry: types.ChatLogEntry{Content: "other"}},
			appended: false,
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			before := len(s.Snapshot().Entries)
			assert.Equal(t, tc.appended, s.Deliver(tc.delivery))

			v := s.Snapshot()
			if !tc.appended {
				assert.Len(t, v.Entries, before)
				return
			}

			require.Len(t, v.Entries, before+1)
			last := v.Entries[len(v.Entries)-1]
			assert.Equal(t, tc.delivery.Entry.Content, last.Content)
			assert.Equal(t, "kim", last.OtherUserName)
			assert.Equal(t, "live", v.Rooms[0].LastMessage, "expected room preview refreshed")
			assert.True(t, v.Rooms[0].LastMessageSendTime.Equal(createdAt.Time))
		})
	}
}

func TestDeliverAfterSwitchDropsOldRoom(t *testing.T) {
	s, chatAPI, sub := enteredSession(t)
	chatAPI.On("ChatLog", mock.Anything, int64(2)).Return([]types.ChatLogEntry{{Id: 9, ChatRoomId: 2, SenderId: 8, Content: "b"}}, nil).Once()
	sub.On("Switch", int64(2)).Return(uint64(2), nil).Once()

	require.NoError(t, s.EnterRoom(context.Background(), 2))

	// a frame from room 1's subscription arriving after the switch
	assert.False(t, s.Deliver(live.Delivery{Generation: 1, RoomId: 1, Entry: types.ChatLogEntry{Content: "late a"}}))
	assert.True(t, s.Deliver(live.Delivery{Generation: 2, RoomId: 2, Entry: types.ChatLogEntry{SenderId: 8, Content: "b2"}}))

	v := s.Snapshot()
	require.Len(t, v.Entries, 2)
	for _, e := range v.Entries {
		assert.NotEqual(t, "late a", e.Content, "expected no stale entries from room 1")
	}
	assert.Equal(t, "lee", v.Entries[1].OtherUserName)
}

func TestSend(t *testing.T) {
	t.Run("publishes to active room", func(t *testing.T) {
		s, _, sub := enteredSession(t)
		sub.On("Connected").Return(true).Once()
		sub.On("Publish", int64(1), types.OutboundMessage{ChatRoomId: 1, SenderId: 42, Content: " hi "}).Return(nil).Once()

		require.NoError(t, s.Send(" hi "))
		sub.AssertExpectations(t)

		assert.Len(t, s.Snapshot().Entries, 1, "expected no optimistic local echo")
	})

	t.Run("whitespace is not published", func(t *testing.T) {
		for _, text := range []string{"", "   ", "\t\n"} {
			s, _, sub := enteredSession(t)
			assert.ErrorIs(t, s.Send(text), ErrEmptyMessage)
			sub.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything)
		}
	})

	t.Run("no active room", func(t *testing.T) {
		s, chatAPI, sub := newTestSession(t)
		chatAPI.On("CurrentUser", mock.Anything).Return(types.User{Id: 42}, nil).Once()
		require.NoError(t, s.LoadCurrentUser(context.Background()))

		assert.ErrorIs(t, s.Send("hi"), ErrNoActiveRoom)
		sub.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything)
	})

	t.Run("no user", func(t *testing.T) {
		s, chatAPI, sub := newTestSession(t)
		chatAPI.On("ChatLog", mock.Anything, int64(1)).Return([]types.ChatLogEntry{}, nil).Once()
		sub.On("Switch", int64(1)).Return(uint64(1), nil).Once()
		require.NoError(t, s.EnterRoom(context.Background(), 1))

		assert.ErrorIs(t, s.Send("hi"), ErrNoUser)
		sub.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything)
	})

	t.Run("not connected", func(t *testing.T) {
		s, _, sub := enteredSession(t)
		sub.On("Connected").Return(false).Once()

		assert.ErrorIs(t, s.Send("hi"), live.ErrNotConnected)
		sub.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything)
	})

	t.Run("publish error", func(t *testing.T) {
		s, _, sub := enteredSession(t)
		sub.On("Connected").Return(true).Once()
		sub.On("Publish", int64(1), mock.Anything).Return(errors.New("broken pipe")).Once()

		assert.Error(t, s.Send("hi"))
	})
}

func TestSnapshotIsCopy(t *testing.T) {
	s, _, _ := enteredSession(t)

	v := s.Snapshot()
	v.Entries[0].Content = "mutated"
	v.Rooms[0].OtherUserName = "mutated"
	v.User.Name = "mutated"

	fresh := s.Snapshot()
	assert.Equal(t, "hello", fresh.Entries[0].Content)
	assert.Equal(t, "kim", fresh.Rooms[0].OtherUserName)
	assert.Equal(t, "me", fresh.User.Name)
}

func TestClose(t *testing.T) {
	s, _, sub := newTestSession(t)
	sub.On("Close").Return().Once()

	s.Close()
	sub.AssertExpectations(t)
}
