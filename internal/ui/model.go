// Package ui is the terminal front end: room list on the left, the active
// room's thread on the right and a composer underneath.
package ui

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/dodo5517/shop-chat/internal/live"
	"github.com/dodo5517/shop-chat/internal/session"
	"golang.org/x/text/language"
)

const (
	roomListWidth = 32
	composerLines = 3
	statusLines   = 1
	placeholder   = "메시지를 입력해주세요"
)

type focusArea int

const (
	focusRooms focusArea = iota
	focusComposer
)

type userLoadedMsg struct{ err error }

type roomsLoadedMsg struct{ err error }

type roomEnteredMsg struct {
	roomId int64
	err    error
}

type deliveryMsg struct{ delivery live.Delivery }

type deliveriesDoneMsg struct{}

type Options struct {
	// OpenRoom is entered as soon as the room list has loaded, 0 for none.
	OpenRoom int64
	Locale   language.Tag
	Location *time.Location
}

type Model struct {
	ctx     context.Context
	log     *log.Logger
	session *session.Session
	opts    Options
	styles  styles

	width  int
	height int
	focus  focusArea
	cursor int
	status string
	view   session.View

	viewport viewport.Model
	input    textinput.Model
}

func New(ctx context.Context, logger *log.Logger, s *session.Session, opts Options) Model {
	if opts.Location == nil {
		opts.Location = time.Local
	}

	ti := textinput.New()
	ti.Placeholder = placeholder
	ti.Prompt = "> "
	ti.CharLimit = 1000

	return Model{
		ctx:      ctx,
		log:      logger,
		session:  s,
		opts:     opts,
		styles:   defaultStyles(),
		focus:    focusRooms,
		viewport: viewport.New(80, 20),
		input:    ti,
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(
		m.loadUser(),
		m.loadRooms(),
		m.waitForDelivery(),
	)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.resize(msg.Width, msg.Height)
		m.refresh(true)
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case userLoadedMsg:
		// failure is logged by the session and otherwise silent
		m.refresh(false)
		return m, nil

	case roomsLoadedMsg:
		if msg.err != nil {
			m.status = session.ErrLoadRooms.Error()
			return m, nil
		}
		m.status = ""
		m.refresh(false)
		if m.opts.OpenRoom != 0 {
			if idx := m.roomIndex(m.opts.OpenRoom); idx >= 0 {
				m.cursor = idx
				return m, m.enterRoom(m.opts.OpenRoom)
			}
			m.log.Printf("room %d from deep link not in room list", m.opts.OpenRoom)
		}
		return m, nil

	case roomEnteredMsg:
		if msg.err != nil {
			// superseded selections and failed history loads stay off screen
			if !errors.Is(msg.err, session.ErrSuperseded) {
				m.log.Printf("enter room %d: %v", msg.roomId, msg.err)
			}
			return m, nil
		}
		if idx := m.roomIndex(msg.roomId); idx >= 0 {
			m.cursor = idx
		}
		m.refresh(true)
		return m, m.setFocus(focusComposer)

	case deliveryMsg:
		if m.session.Deliver(msg.delivery) {
			m.refresh(true)
		}
		return m, m.waitForDelivery()

	case deliveriesDoneMsg:
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "esc":
		return m, tea.Quit
	case "tab":
		if m.focus == focusRooms {
			return m, m.setFocus(focusComposer)
		}
		return m, m.setFocus(focusRooms)
	case "pgup", "pgdown":
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd
	}

	if m.focus == focusRooms {
		switch msg.String() {
		case "up", "k":
			if m.cursor > 0 {
				m.cursor--
			}
		case "down", "j":
			if m.cursor < len(m.view.Rooms)-1 {
				m.cursor++
			}
		case "enter":
			if m.cursor < len(m.view.Rooms) {
				return m, m.enterRoom(m.view.Rooms[m.cursor].Id)
			}
		}
		return m, nil
	}

	if msg.Type == tea.KeyEnter {
		m.send()
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// send publishes the composer text and clears it on success only.
func (m *Model) send() {
	if err := m.session.Send(m.input.Value()); err != nil {
		return
	}
	m.input.Reset()
}

func (m *Model) setFocus(f focusArea) tea.Cmd {
	m.focus = f
	if f == focusComposer {
		return m.input.Focus()
	}
	m.input.Blur()
	return nil
}

func (m *Model) resize(width, height int) {
	m.width = width
	m.height = height

	m.viewport.Width = max(width-roomListWidth-2, 10)
	m.viewport.Height = max(height-composerLines-statusLines, 3)
	m.input.Width = max(m.viewport.Width-len(m.input.Prompt)-2, 5)
}

// refresh re-reads the session and re-renders the thread. After a log update
// the thread scrolls to the bottom.
func (m *Model) refresh(scroll bool) {
	m.view = m.session.Snapshot()
	m.viewport.SetContent(m.renderThread())
	if scroll {
		m.viewport.GotoBottom()
	}
}

func (m Model) roomIndex(roomId int64) int {
	for i, r := range m.view.Rooms {
		if r.Id == roomId {
			return i
		}
	}
	return -1
}

func (m Model) loadUser() tea.Cmd {
	return func() tea.Msg {
		return userLoadedMsg{err: m.session.LoadCurrentUser(m.ctx)}
	}
}

func (m Model) loadRooms() tea.Cmd {
	return func() tea.Msg {
		return roomsLoadedMsg{err: m.session.LoadRooms(m.ctx, m.opts.OpenRoom)}
	}
}

func (m Model) enterRoom(roomId int64) tea.Cmd {
	return func() tea.Msg {
		return roomEnteredMsg{roomId: roomId, err: m.session.EnterRoom(m.ctx, roomId)}
	}
}

func (m Model) waitForDelivery() tea.Cmd {
	ch := m.session.Deliveries()
	return func() tea.Msg {
		d, ok := <-ch
		if !ok {
			return deliveriesDoneMsg{}
		}
		return deliveryMsg{delivery: d}
	}
}
