package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/dodo5517/shop-chat/internal/thread"
	"github.com/mattn/go-runewidth"
)

const emptyPreview = "채팅이 없습니다."

type styles struct {
	roomList    lipgloss.Style
	room        lipgloss.Style
	roomCursor  lipgloss.Style
	roomActive  lipgloss.Style
	roomPreview lipgloss.Style
	roomTime    lipgloss.Style
	senderName  lipgloss.Style
	bubbleMine  lipgloss.Style
	bubbleOther lipgloss.Style
	messageTime lipgloss.Style
	composer    lipgloss.Style
	status      lipgloss.Style
	placeholder lipgloss.Style
}

func defaultStyles() styles {
	return styles{
		roomList:    lipgloss.NewStyle().Width(roomListWidth).Border(lipgloss.NormalBorder(), false, true, false, false),
		room:        lipgloss.NewStyle().PaddingLeft(1),
		roomCursor:  lipgloss.NewStyle().PaddingLeft(1).Background(lipgloss.Color("237")),
		roomActive:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39")),
		roomPreview: lipgloss.NewStyle().Foreground(lipgloss.Color("245")),
		roomTime:    lipgloss.NewStyle().Foreground(lipgloss.Color("241")),
		senderName:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("245")),
		bubbleMine:  lipgloss.NewStyle().Padding(0, 1).Background(lipgloss.Color("39")).Foreground(lipgloss.Color("0")),
		bubbleOther: lipgloss.NewStyle().Padding(0, 1).Background(lipgloss.Color("238")),
		messageTime: lipgloss.NewStyle().Faint(true),
		composer:    lipgloss.NewStyle().Border(lipgloss.NormalBorder(), true, false, false, false),
		status:      lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
		placeholder: lipgloss.NewStyle().Faint(true),
	}
}

func (m Model) View() string {
	right := lipgloss.JoinVertical(lipgloss.Left,
		m.viewport.View(),
		m.styles.composer.Width(m.viewport.Width).Render(m.input.View()),
	)

	body := lipgloss.JoinHorizontal(lipgloss.Top,
		m.styles.roomList.Height(m.viewport.Height+composerLines-1).Render(m.renderRooms()),
		right,
	)

	return lipgloss.JoinVertical(lipgloss.Left, body, m.styles.status.Render(m.status))
}

func (m Model) renderRooms() string {
	if len(m.view.Rooms) == 0 {
		return m.styles.placeholder.Render(" no rooms")
	}

	inner := roomListWidth - 2
	var b strings.Builder
	for i, r := range m.view.Rooms {
		when := thread.FormatTime(r.LastMessageSendTime.Time, m.opts.Location, m.opts.Locale)
		nameWidth := max(inner-runewidth.StringWidth(when)-1, 1)

		name := runewidth.FillRight(runewidth.Truncate(r.OtherUserName, nameWidth, "…"), nameWidth)
		if r.Id == m.view.ActiveRoom {
			name = m.styles.roomActive.Render(name)
		}

		preview := r.LastMessage
		if preview == "" {
			preview = emptyPreview
		}
		preview = runewidth.Truncate(strings.ReplaceAll(preview, "\n", " "), inner, "…")

		entry := name + " " + m.styles.roomTime.Render(when) + "\n" + m.styles.roomPreview.Render(preview)
		if i == m.cursor && m.focus == focusRooms {
			b.WriteString(m.styles.roomCursor.Render(entry))
		} else {
			b.WriteString(m.styles.room.Render(entry))
		}
		b.WriteString("\n")
	}

	return b.String()
}

func (m Model) renderThread() string {
	if m.view.ActiveRoom == 0 {
		return m.styles.placeholder.Render("select a room")
	}

	var currentUserId int64
	if m.view.User != nil {
		currentUserId = m.view.User.Id
	}

	width := m.viewport.Width
	bubbleWidth := max(width*2/3, 10)
	mine := lipgloss.NewStyle().Width(width).Align(lipgloss.Right)
	other := lipgloss.NewStyle().Width(width).Align(lipgloss.Left)

	var b strings.Builder
	for _, line := range thread.Group(m.view.Entries, currentUserId) {
		if line.ShowSender {
			b.WriteString(m.styles.senderName.Render(line.Entry.OtherUserName))
			b.WriteString("\n")
		}

		when := m.styles.messageTime.Render(thread.FormatTime(line.Entry.CreatedAt.Time, m.opts.Location, m.opts.Locale))
		if line.Mine {
			bubble := m.styles.bubbleMine.MaxWidth(bubbleWidth).Render(line.Entry.Content)
			b.WriteString(mine.Render(lipgloss.JoinVertical(lipgloss.Right, bubble, when)))
		} else {
			bubble := m.styles.bubbleOther.MaxWidth(bubbleWidth).Render(line.Entry.Content)
			b.WriteString(other.Render(lipgloss.JoinVertical(lipgloss.Left, bubble, when)))
		}
		b.WriteString("\n")
	}

	return b.String()
}
