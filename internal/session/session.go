package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/dodo5517/shop-chat/internal/api"
	"github.com/dodo5517/shop-chat/internal/live"
	"github.com/dodo5517/shop-chat/internal/types"
	"github.com/teris-io/shortid"
)

// UnknownUserName labels entries whose room is missing from the room list.
const UnknownUserName = "알 수 없음"

var (
	ErrLoadRooms    = errors.New("failed to load rooms")
	ErrEmptyMessage = errors.New("message is empty")
	ErrNoActiveRoom = errors.New("no active room")
	ErrNoUser       = errors.New("current user unknown")
	ErrUnknownRoom  = errors.New("room not in room list")
	ErrSuperseded   = errors.New("room selection superseded")
)

// Subscriber is the live side of a session.
type Subscriber interface {
	Switch(roomId int64) (uint64, error)
	Publish(roomId int64, msg types.OutboundMessage) error
	Connected() bool
	Deliveries() <-chan live.Delivery
	Close()
}

// View is a copy of the session state for rendering.
type View struct {
	User       *types.User
	Rooms      []types.ChatRoom
	ActiveRoom int64
	Entries    []types.ChatLogEntry
}

// Session holds the state of one chat view: the current user, the room list,
// the active room and its log. All of it lives here rather than in package
// state so two sessions never share anything.
type Session struct {
	id   string
	log  *log.Logger
	api  api.ChatAPI
	live Subscriber

	// switchLock serializes calls to live.Switch. mu is not held across
	// Switch, so Snapshot and Deliver do not wait on a subscription teardown.
	switchLock sync.Mutex

	mu         sync.Mutex
	user       *types.User
	rooms      []types.ChatRoom
	activeRoom int64
	generation uint64
	entries    []types.ChatLogEntry
	// selectSeq increases with every EnterRoom call; a history fetch whose
	// sequence is no longer the latest is discarded.
	selectSeq uint64
}

func New(logger *log.Logger, chatAPI api.ChatAPI, sub Subscriber) (*Session, error) {
	id, err := shortid.Generate()
	if err != nil {
		return nil, fmt.Errorf("generate session id: %w", err)
	}

	return &Session{
		id:   id,
		log:  log.New(logger.Writer(), logger.Prefix()+"["+id+"] ", logger.Flags()),
		api:  chatAPI,
		live: sub,
	}, nil
}

func (s *Session) Id() string {
	return s.id
}

func (s *Session) LoadCurrentUser(ctx context.Context) error {
	user, err := s.api.CurrentUser(ctx)
	if err != nil {
		s.log.Printf("load current user: %v", err)
		return err
	}

	s.mu.Lock()
	s.user = &user
	s.mu.Unlock()

	s.log.Printf("current user %d (%s)", user.Id, user.Name)
	return nil
}

// LoadRooms fetches the room list. id is the room the view was opened for,
// 0 when none.
func (s *Session) LoadRooms(ctx context.Context, id int64) error {
	rooms, err := s.api.ChatRooms(ctx, id)
	if err != nil {
		s.log.Printf("load rooms: %v", err)
		return fmt.Errorf("%w: %w", ErrLoadRooms, err)
	}

	s.mu.Lock()
	s.rooms = rooms
	s.mu.Unlock()

	s.log.Printf("loaded %d rooms", len(rooms))
	return nil
}

// EnterRoom loads the room's history, makes it the active room and moves the
// live subscription to it.
func (s *Session) EnterRoom(ctx context.Context, roomId int64) error {
	s.mu.Lock()
	s.selectSeq++
	seq := s.selectSeq
	room, known := s.findRoom(roomId)
	s.mu.Unlock()

	if !known {
		s.log.Printf("enter room %d: %v", roomId, ErrUnknownRoom)
	}

	entries, err := s.api.ChatLog(ctx, roomId)
	if err != nil {
		s.log.Printf("load chat log for room %d: %v", roomId, err)
		return fmt.Errorf("load chat log: %w", err)
	}

	name := UnknownUserName
	if known && room.OtherUserName != "" {
		name = room.OtherUserName
	}
	for i := range entries {
		entries[i].OtherUserName = name
	}

	s.switchLock.Lock()
	defer s.switchLock.Unlock()

	if !s.isLatest(seq) {
		s.log.Printf("enter room %d: %v", roomId, ErrSuperseded)
		return ErrSuperseded
	}

	gen, err := s.live.Switch(roomId)
	if err != nil {
		return fmt.Errorf("switch subscription: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if seq != s.selectSeq {
		s.log.Printf("enter room %d: %v after switch", roomId, ErrSuperseded)
		return ErrSuperseded
	}

	s.activeRoom = roomId
	s.generation = gen
	s.entries = entries

	s.log.Printf("entered room %d with %d entries (generation %d)", roomId, len(entries), gen)
	return nil
}

func (s *Session) isLatest(seq uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return seq == s.selectSeq
}

// Deliver appends a live message if it belongs to the current subscription.
// It reports whether the log changed.
func (s *Session) Deliver(d live.Delivery) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if d.Generation != s.generation || d.RoomId != s.activeRoom {
		s.log.Printf("dropping message for room %d (generation %d), active room %d (generation %d)",
			d.RoomId, d.Generation, s.activeRoom, s.generation)
		return false
	}

	entry := d.Entry
	if room, ok := s.findRoom(d.RoomId); ok && room.OtherUserName != "" {
		entry.OtherUserName = room.OtherUserName
	} else {
		entry.OtherUserName = UnknownUserName
	}
	s.entries = append(s.entries, entry)

	for i := range s.rooms {
		if s.rooms[i].Id == d.RoomId {
			s.rooms[i].LastMessage = entry.Content
			s.rooms[i].LastMessageSendTime = entry.CreatedAt
		}
	}

	return true
}

// Send publishes text to the active room. Nothing is appended locally; the
// message shows up when the server echoes it on the room topic.
func (s *Session) Send(text string) error {
	s.mu.Lock()
	roomId, user := s.activeRoom, s.user
	s.mu.Unlock()

	var err error
	switch {
	case strings.TrimSpace(text) == "":
		err = ErrEmptyMessage
	case roomId == 0:
		err = ErrNoActiveRoom
	case user == nil:
		err = ErrNoUser
	case !s.live.Connected():
		err = live.ErrNotConnected
	}
	if err != nil {
		s.log.Printf("send message: %v", err)
		return err
	}

	msg := types.OutboundMessage{
		ChatRoomId: roomId,
		SenderId:   user.Id,
		Content:    text,
	}
	if err := s.live.Publish(roomId, msg); err != nil {
		s.log.Printf("send message: %v", err)
		return err
	}

	return nil
}

func (s *Session) Snapshot() View {
	s.mu.Lock()
	defer s.mu.Unlock()

	v := View{
		ActiveRoom: s.activeRoom,
		Rooms:      append([]types.ChatRoom(nil), s.rooms...),
		Entries:    append([]types.ChatLogEntry(nil), s.entries...),
	}
	if s.user != nil {
		u := *s.user
		v.User = &u
	}

	return v
}

func (s *Session) Deliveries() <-chan live.Delivery {
	return s.live.Deliveries()
}

func (s *Session) Close() {
	s.log.Println("closing session")
	s.live.Close()
}

// findRoom must be called with mu held.
func (s *Session) findRoom(roomId int64) (types.ChatRoom, bool) {
	for _, r := range s.rooms {
		if r.Id == roomId {
			return r, true
		}
	}

	return types.ChatRoom{}, false
}
