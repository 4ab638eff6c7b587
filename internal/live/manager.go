package live

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"strconv"
	"sync"
	"time"

	"github.com/dodo5517/shop-chat/internal/stats"
	"github.com/dodo5517/shop-chat/internal/types"
	"github.com/go-stomp/stomp/v3"
	"github.com/teris-io/shortid"
)

const (
	topicPrefix   = "/topic/messages/"
	publishPrefix = "/app/sendMessage/"

	correlationHeader = "x-correlation-id"
	deliveryBuffer    = 64
)

var (
	ErrNotConnected = errors.New("no live connection")
	ErrRoomMismatch = errors.New("room is not the active subscription")
	ErrClosed       = errors.New("subscription manager closed")

	errSubscriptionClosed = errors.New("subscription channel closed")
)

// Dialer opens the byte stream STOMP frames are exchanged over.
type Dialer func(ctx context.Context) (io.ReadWriteCloser, error)

type Options struct {
	ReconnectDelay time.Duration
	HeartBeat      time.Duration
	Host           string
	AccessToken    string
}

// Delivery is one inbound message tagged with the subscription it came from.
type Delivery struct {
	Generation uint64
	RoomId     int64
	Entry      types.ChatLogEntry
}

type subscription struct {
	generation uint64
	roomId     int64
	cancel     context.CancelFunc
	done       chan struct{}
}

// Manager owns at most one STOMP connection, subscribed to the topic of the
// active room. Every Switch bumps the generation; deliveries carry the
// generation of the subscription that produced them.
type Manager struct {
	log   *log.Logger
	dial  Dialer
	opts  Options
	stats stats.StatsProvider

	// switchLock serializes Switch and Close so teardown of the previous
	// subscription always completes before the next one starts.
	switchLock sync.Mutex

	mu         sync.Mutex
	generation uint64
	current    *subscription
	conn       *stomp.Conn
	closed     bool

	deliveries chan Delivery
}

func NewManager(logger *log.Logger, dial Dialer, opts Options, sp stats.StatsProvider) *Manager {
	if sp == nil {
		sp = stats.Nop{}
	}

	return &Manager{
		log:        logger,
		dial:       dial,
		opts:       opts,
		stats:      sp,
		deliveries: make(chan Delivery, deliveryBuffer),
	}
}

func TopicDestination(roomId int64) string {
	return topicPrefix + strconv.FormatInt(roomId, 10)
}

func PublishDestination(roomId int64) string {
	return publishPrefix + strconv.FormatInt(roomId, 10)
}

func (m *Manager) Deliveries() <-chan Delivery {
	return m.deliveries
}

// Switch tears down the current subscription, waits for it to exit and then
// starts a new one for roomId. It returns the generation of the new
// subscription.
func (m *Manager) Switch(roomId int64) (uint64, error) {
	m.switchLock.Lock()
	defer m.switchLock.Unlock()

	m.mu.Lock()
	closed := m.closed
	m.mu.Unlock()
	if closed {
		return 0, ErrClosed
	}

	m.teardown()

	ctx, cancel := context.WithCancel(context.Background())

	m.mu.Lock()
	m.generation++
	sub := &subscription{
		generation: m.generation,
		roomId:     roomId,
		cancel:     cancel,
		done:       make(chan struct{}),
	}
	m.current = sub
	m.mu.Unlock()

	m.log.Printf("room %d: starting subscription (generation %d)", roomId, sub.generation)
	go m.run(ctx, sub)

	return sub.generation, nil
}

// Active returns the generation and room of the current subscription.
func (m *Manager) Active() (uint64, int64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current == nil {
		return 0, 0, false
	}

	return m.current.generation, m.current.roomId, true
}

func (m *Manager) Connected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.conn != nil
}

// Publish sends msg to the room's application destination without waiting
// for any acknowledgment.
func (m *Manager) Publish(roomId int64, msg types.OutboundMessage) error {
	m.mu.Lock()
	cur, conn := m.current, m.conn
	m.mu.Unlock()

	if cur == nil || conn == nil {
		return ErrNotConnected
	}
	if cur.roomId != roomId {
		return ErrRoomMismatch
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}

	id, err := shortid.Generate()
	if err != nil {
		return fmt.Errorf("generate correlation id: %w", err)
	}

	dest := PublishDestination(roomId)
	if err := conn.Send(dest, "application/json", body, stomp.SendOpt.Header(correlationHeader, id)); err != nil {
		return fmt.Errorf("send %s: %w", dest, err)
	}

	m.stats.Incr(stats.MessagesPublished)
	m.log.Printf("published message %s to %s", id, dest)
	return nil
}

// Close tears down the current subscription and closes the deliveries
// channel. The manager cannot be reused.
func (m *Manager) Close() {
	m.switchLock.Lock()
	defer m.switchLock.Unlock()

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	m.mu.Unlock()

	m.teardown()
	close(m.deliveries)
}

func (m *Manager) teardown() {
	m.mu.Lock()
	sub := m.current
	m.current = nil
	m.conn = nil
	m.mu.Unlock()

	if sub == nil {
		return
	}

	m.log.Printf("room %d: tearing down subscription (generation %d)", sub.roomId, sub.generation)
	sub.cancel()
	<-sub.done
}

func (m *Manager) isCurrent(generation uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.current != nil && m.current.generation == generation
}

func (m *Manager) setConn(generation uint64, conn *stomp.Conn) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current == nil || m.current.generation != generation {
		return false
	}
	m.conn = conn
	return true
}

func (m *Manager) clearConn(conn *stomp.Conn) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.conn == conn {
		m.conn = nil
	}
}

// run keeps the subscription alive until ctx is cancelled, reconnecting after
// a fixed delay. Messages sent while disconnected are not replayed.
func (m *Manager) run(ctx context.Context, sub *subscription) {
	defer func() {
		close(sub.done)
		m.log.Printf("room %d: subscription exited (generation %d)", sub.roomId, sub.generation)
	}()

	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			m.stats.Incr(stats.Reconnects)
		}

		err := m.connect(ctx, sub)
		if ctx.Err() != nil {
			return
		}
		m.log.Printf("room %d: connection lost: %v, reconnecting in %s", sub.roomId, err, m.opts.ReconnectDelay)

		timer := time.NewTimer(m.opts.ReconnectDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

func (m *Manager) connect(ctx context.Context, sub *subscription) error {
	rwc, err := m.dial(ctx)
	if err != nil {
		m.stats.Incr(stats.ConnectErrors)
		return fmt.Errorf("dial: %w", err)
	}

	// closing the stream is the only way to abort a pending CONNECT
	stop := context.AfterFunc(ctx, func() { rwc.Close() })
	conn, err := stomp.Connect(rwc, m.connectOptions()...)
	stop()
	if err != nil {
		rwc.Close()
		m.stats.Incr(stats.ConnectErrors)
		return fmt.Errorf("stomp connect: %w", err)
	}
	defer m.disconnect(conn, rwc)

	dest := TopicDestination(sub.roomId)
	stompSub, err := conn.Subscribe(dest, stomp.AckAuto)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", dest, err)
	}

	if !m.setConn(sub.generation, conn) {
		return ctx.Err()
	}
	defer m.clearConn(conn)

	m.log.Printf("room %d: connected, subscribed to %s", sub.roomId, dest)

	for {
		select {
		case <-ctx.Done():
			// no UNSUBSCRIBE: it waits for a receipt, and closing the
			// connection ends the subscription anyway
			return ctx.Err()
		case msg, ok := <-stompSub.C:
			if !ok {
				return errSubscriptionClosed
			}
			if msg.Err != nil {
				m.log.Printf("room %d: stomp error: %v", sub.roomId, msg.Err)
				return msg.Err
			}

			m.stats.Incr(stats.FramesReceived)
			entry, err := decodeEntry(msg.Body, sub.roomId)
			if err != nil {
				m.stats.Incr(stats.FramesDropped)
				m.log.Printf("room %d: dropping frame: %v", sub.roomId, err)
				continue
			}

			m.emit(ctx, Delivery{Generation: sub.generation, RoomId: sub.roomId, Entry: entry})
		}
	}
}

func (m *Manager) emit(ctx context.Context, d Delivery) {
	if !m.isCurrent(d.Generation) {
		m.stats.Incr(stats.FramesDropped)
		m.log.Printf("room %d: dropping frame from stale generation %d", d.RoomId, d.Generation)
		return
	}

	select {
	case m.deliveries <- d:
	case <-ctx.Done():
	}
}

// disconnect closes the connection without waiting on the peer. A graceful
// DISCONNECT blocks until the broker sends a receipt, which a stalled peer
// never does.
func (m *Manager) disconnect(conn *stomp.Conn, rwc io.Closer) {
	if err := rwc.Close(); err != nil {
		m.log.Printf("close stream: %v", err)
	}
	conn.MustDisconnect()
	m.log.Println("stomp disconnected")
}

func (m *Manager) connectOptions() []func(*stomp.Conn) error {
	opts := []func(*stomp.Conn) error{
		stomp.ConnOpt.HeartBeat(m.opts.HeartBeat, m.opts.HeartBeat),
	}
	if m.opts.Host != "" {
		opts = append(opts, stomp.ConnOpt.Host(m.opts.Host))
	}
	if m.opts.AccessToken != "" {
		opts = append(opts, stomp.ConnOpt.Header("Authorization", "Bearer "+m.opts.AccessToken))
	}

	return opts
}

// decodeEntry parses a frame body. Frames without a room or timestamp get the
// subscription's room and the receive time.
func decodeEntry(body []byte, roomId int64) (types.ChatLogEntry, error) {
	var entry types.ChatLogEntry
	if err := json.Unmarshal(body, &entry); err != nil {
		return types.ChatLogEntry{}, fmt.Errorf("decode frame body: %w", err)
	}

	if entry.ChatRoomId == 0 {
		entry.ChatRoomId = roomId
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = types.Timestamp{Time: time.Now()}
	}

	return entry, nil
}
