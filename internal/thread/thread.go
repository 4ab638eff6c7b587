// Package thread turns a chat log into display lines: sender grouping and
// localized 12-hour timestamps.
package thread

import (
	"fmt"
	"time"

	"github.com/dodo5517/shop-chat/internal/types"
	"golang.org/x/text/language"
)

type Line struct {
	Entry types.ChatLogEntry
	// Mine marks entries sent by the current user.
	Mine bool
	// ShowSender is set on the first entry of a run of consecutive entries
	// from the same other sender.
	ShowSender bool
}

func Group(entries []types.ChatLogEntry, currentUserId int64) []Line {
	lines := make([]Line, len(entries))
	for i, e := range entries {
		mine := e.SenderId == currentUserId
		lines[i] = Line{
			Entry:      e,
			Mine:       mine,
			ShowSender: !mine && (i == 0 || entries[i-1].SenderId != e.SenderId),
		}
	}

	return lines
}

type Periods struct {
	AM string
	PM string
}

var (
	koreanPeriods  = Periods{AM: "오전", PM: "오후"}
	defaultPeriods = Periods{AM: "AM", PM: "PM"}

	koreanBase, _ = language.Korean.Base()
)

// PeriodTokens returns the before/after noon tokens for tag.
func PeriodTokens(tag language.Tag) Periods {
	base, _ := tag.Base()
	if base == koreanBase {
		return koreanPeriods
	}

	return defaultPeriods
}

// ParseLocale parses a BCP 47 tag, falling back to Korean.
func ParseLocale(s string) language.Tag {
	tag, err := language.Parse(s)
	if err != nil {
		return language.Korean
	}

	return tag
}

// FormatTime renders t in loc as "<period> h:mm", e.g. "오후 1:05".
func FormatTime(t time.Time, loc *time.Location, tag language.Tag) string {
	if t.IsZero() {
		return ""
	}
	if loc != nil {
		t = t.In(loc)
	}

	periods := PeriodTokens(tag)
	period := periods.AM
	if t.Hour() >= 12 {
		period = periods.PM
	}

	hour := t.Hour() % 12
	if hour == 0 {
		hour = 12
	}

	return fmt.Sprintf("%s %d:%02d", period, hour, t.Minute())
}
