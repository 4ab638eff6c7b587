package thread

import (
	"testing"
	"time"

	"github.com/dodo5517/shop-chat/internal/types"
	"github.com/stretchr/testify/assert"
	"golang.org/x/text/language"
)

const me = int64(42)

func entries(senders ...int64) []types.ChatLogEntry {
	out := make([]types.ChatLogEntry, len(senders))
	for i, s := range senders {
		out[i] = types.ChatLogEntry{Id: int64(i + 1), SenderId: s}
	}
	return out
}

func TestGroup(t *testing.T) {
	tcases := []struct {
		name       string
		senders    []int64
		showSender []bool
		mine       []bool
	}{
		{
			name:       "empty",
			senders:    nil,
			showSender: []bool{},
			mine:       []bool{},
		},
		{
			name:       "run of other sender labelled once",
			senders:    []int64{7, 7, 7},
			showSender: []bool{true, false, false},
			mine:       []bool{false, false, false},
		},
		{
			name:       "mine never labelled",
			senders:    []int64{me, me},
			showSender: []bool{false, false},
			mine:       []bool{true, true},
		},
		{
			name:       "label again after my message",
			senders:    []int64{7, 7, me, 7, 7},
			showSender: []bool{true, false, false, true, false},
			mine:       []bool{false, false, true, false, false},
		},
		{
			name:       "different other senders each start a run",
			senders:    []int64{7, 8, 8, 7},
			showSender: []bool{true, true, false, true},
			mine:       []bool{false, false, false, false},
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			lines := Group(entries(tc.senders...), me)
			assert.Len(t, lines, len(tc.senders))
			for i, l := range lines {
				assert.Equal(t, tc.showSender[i], l.ShowSender, "show sender at %d", i)
				assert.Equal(t, tc.mine[i], l.Mine, "mine at %d", i)
				assert.Equal(t, int64(i+1), l.Entry.Id, "expected order preserved")
			}
		})
	}
}

func TestGroupEchoIsMine(t *testing.T) {
	// a message published by the current user and echoed back by the topic
	echo := types.ChatLogEntry{Id: 1, SenderId: me, Content: "hi"}
	lines := Group([]types.ChatLogEntry{echo}, me)
	assert.True(t, lines[0].Mine, "expected echoed message to render as mine")
	assert.False(t, lines[0].ShowSender)
}

func TestFormatTime(t *testing.T) {
	ts, err := types.ParseTimestamp("2024-01-01T13:05:00Z")
	assert.NoError(t, err)

	tcases := []struct {
		name     string
		t        time.Time
		tag      language.Tag
		expected string
	}{
		{name: "korean afternoon", t: ts, tag: language.Korean, expected: "오후 1:05"},
		{name: "english afternoon", t: ts, tag: language.AmericanEnglish, expected: "PM 1:05"},
		{name: "korean region tag", t: ts, tag: language.MustParse("ko-KR"), expected: "오후 1:05"},
		{name: "midnight", t: time.Date(2024, 1, 1, 0, 7, 0, 0, time.UTC), tag: language.Korean, expected: "오전 12:07"},
		{name: "noon", t: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC), tag: language.English, expected: "PM 12:00"},
		{name: "morning", t: time.Date(2024, 1, 1, 9, 30, 0, 0, time.UTC), tag: language.Korean, expected: "오전 9:30"},
		{name: "zero time", t: time.Time{}, tag: language.Korean, expected: ""},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, FormatTime(tc.t, time.UTC, tc.tag))
		})
	}
}

func TestFormatTimeLocation(t *testing.T) {
	seoul := time.FixedZone("KST", 9*60*60)
	ts := time.Date(2024, 1, 1, 13, 5, 0, 0, time.UTC)
	assert.Equal(t, "오후 10:05", FormatTime(ts, seoul, language.Korean))
}

func TestParseLocale(t *testing.T) {
	assert.Equal(t, language.Korean, ParseLocale("!!"), "expected fallback to korean")
	assert.Equal(t, defaultPeriods, PeriodTokens(ParseLocale("en-US")))
	assert.Equal(t, koreanPeriods, PeriodTokens(ParseLocale("ko")))
}
