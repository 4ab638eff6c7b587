package types

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// localLayout is the zone-less date-time the chat backend emits for
// LocalDateTime fields.
const localLayout = "2006-01-02T15:04:05.999999999"

type User struct {
	Id   int64  `json:"id"`
	Name string `json:"name"`
}

type ChatRoom struct {
	Id                    int64     `json:"chatRoomId"`
	OtherUserName         string    `json:"otherUserName"`
	OtherUserProfileImage string    `json:"otherUserProfileImage,omitempty"`
	LastMessage           string    `json:"lastMessage"`
	LastMessageSendTime   Timestamp `json:"lastMessageSendTime"`
}

type ChatLogEntry struct {
	Id            int64     `json:"id"`
	ChatRoomId    int64     `json:"chatRoomId"`
	SenderId      int64     `json:"senderId"`
	Content       string    `json:"content"`
	CreatedAt     Timestamp `json:"createdAt"`
	OtherUserName string    `json:"otherUserName,omitempty"`
}

type OutboundMessage struct {
	ChatRoomId int64  `json:"chatRoomId"`
	SenderId   int64  `json:"senderId"`
	Content    string `json:"content"`
}

// Timestamp decodes both RFC 3339 strings and zone-less local date-times.
// Zone-less values are interpreted in time.Local.
type Timestamp struct {
	time.Time
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		t.Time = time.Time{}
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("timestamp: %w", err)
	}

	parsed, err := ParseTimestamp(s)
	if err != nil {
		return err
	}

	t.Time = parsed
	return nil
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}

	return json.Marshal(t.Format(time.RFC3339Nano))
}

func ParseTimestamp(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}

	if ts, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return ts, nil
	}

	ts, err := time.ParseInLocation(localLayout, s, time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s, err)
	}

	return ts, nil
}
