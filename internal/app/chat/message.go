/*
Package chat contains the message model of a chat room and the timeline that merges
the durable backlog with the live feed.

This file defines the wire shapes exchanged with the backend: the Message record returned
by the history endpoint and pushed on the live channel, the Outbound publish body, and the
Inbound discriminator that tells chat messages and location frames apart by payload shape.
*/
package chat

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"accompany/internal/pkg/errs"
)

// MaxContentBytes is the maximum allowed size (in bytes) for text message content.
const MaxContentBytes = 5000

const (
	// locationMarker prefixes every location-share message.
	locationMarker = "📍"

	// leaveMarker prefixes every leave notice.
	leaveMarker = "🚪"
)

// timestampLayouts are the createdAt formats the backend is known to emit.
// The zone-less layouts are interpreted in UTC.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
}

// Timestamp is a time.Time that decodes the backend's createdAt strings.
type Timestamp struct {
	time.Time
}

// UnmarshalJSON accepts RFC 3339 and zone-less ISO timestamps, plus unix milliseconds.
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		t.Time = time.Time{}
		return nil
	}

	var millis int64
	if err := json.Unmarshal(data, &millis); err == nil {
		t.Time = time.UnixMilli(millis).UTC()
		return nil
	}

	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("chat: createdAt is neither string nor number: %w", err)
	}

	for _, layout := range timestampLayouts {
		if parsed, err := time.Parse(layout, raw); err == nil {
			t.Time = parsed
			return nil
		}
	}
	return fmt.Errorf("chat: unrecognized createdAt %q", raw)
}

// MarshalJSON encodes the timestamp as RFC 3339 with nanoseconds.
func (t Timestamp) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.UTC().Format(time.RFC3339Nano))
}

// Message is one chat record. It is immutable once created.
type Message struct {
	ID                 string    `json:"id"`
	ChatRoomID         int64     `json:"chatRoomId"`
	SenderID           string    `json:"senderId"`
	Content            string    `json:"content"`
	CreatedAt          Timestamp `json:"createdAt"`
	SenderNickname     string    `json:"senderNickname"`
	SenderProfileImage string    `json:"senderProfileImage"`

	// InfoFlag marks system/info messages (joins, leaves) as opposed to user messages.
	InfoFlag bool `json:"infoFlag"`
}

// Kind classifies the content of a message.
func (m Message) Kind() ContentKind {
	return ClassifyContent(m.Content)
}

// Outbound is the body published to /pub/chat/room/{roomId}. Plain text, location
// shares and leave notices all share this shape and differ only in Content.
type Outbound struct {
	ChatRoomID int64  `json:"chatRoomId"`
	SenderID   string `json:"senderId"`
	Content    string `json:"content"`
}

// Validate checks the content limits enforced before publishing.
func (o Outbound) Validate() error {
	if strings.TrimSpace(o.Content) == "" {
		return errs.NewError(errs.ErrMessageEmpty)
	}
	if len(o.Content) > MaxContentBytes {
		return errs.NewError(errs.ErrMessageContentTooLong, MaxContentBytes)
	}
	return nil
}

// ContentKind tells the three overloaded uses of the content field apart.
type ContentKind int

const (
	KindText ContentKind = iota
	KindLocationShare
	KindLeave
)

func (k ContentKind) String() string {
	switch k {
	case KindLocationShare:
		return "location"
	case KindLeave:
		return "leave"
	default:
		return "text"
	}
}

// ClassifyContent returns the kind encoded by content's leading marker.
func ClassifyContent(content string) ContentKind {
	switch {
	case strings.HasPrefix(content, locationMarker):
		return KindLocationShare
	case strings.HasPrefix(content, leaveMarker):
		return KindLeave
	default:
		return KindText
	}
}

// LocationShareContent formats the text of a location-share message.
func LocationShareContent(nickname, mapLink string) string {
	return fmt.Sprintf("%s%s 님의 실시간 위치 : %s", locationMarker, nickname, mapLink)
}

// LeaveContent formats the text of a leave notice.
func LeaveContent(nickname string) string {
	return fmt.Sprintf("%s%s 님이 채팅방을 나갔습니다.", leaveMarker, nickname)
}

// LocationLink extracts the map link from a location-share content, if any.
func LocationLink(content string) (string, bool) {
	if ClassifyContent(content) != KindLocationShare {
		return "", false
	}
	idx := strings.LastIndex(content, " : ")
	if idx < 0 {
		return "", false
	}
	link := strings.TrimSpace(content[idx+3:])
	return link, link != ""
}

// LocationFrame is the live frame the backend pushes when a member's tracked
// position changes. It carries no content field.
type LocationFrame struct {
	MemberID         int64   `json:"memberId,omitempty"`
	Lat              float64 `json:"lat"`
	Lng              float64 `json:"lng"`
	Nickname         string  `json:"nickname"`
	ProfileImagePath string  `json:"profileImagePath,omitempty"`
}

// Inbound is one decoded live frame: exactly one of Message or Location is set.
type Inbound struct {
	Message  *Message
	Location *LocationFrame
}

// DecodeInbound decodes a live frame body, discriminating by payload shape:
// a body with lat/lng and no content is a location frame, everything else a message.
func DecodeInbound(body []byte) (Inbound, error) {
	var probe struct {
		Content *string  `json:"content"`
		Lat     *float64 `json:"lat"`
		Lng     *float64 `json:"lng"`
	}
	if err := json.Unmarshal(body, &probe); err != nil {
		return Inbound{}, fmt.Errorf("chat: invalid live frame: %w", err)
	}

	if probe.Content == nil && probe.Lat != nil && probe.Lng != nil {
		var loc LocationFrame
		if err := json.Unmarshal(body, &loc); err != nil {
			return Inbound{}, fmt.Errorf("chat: invalid location frame: %w", err)
		}
		if loc.Nickname == "" {
			return Inbound{}, fmt.Errorf("chat: location frame without nickname")
		}
		return Inbound{Location: &loc}, nil
	}

	var msg Message
	if err := json.Unmarshal(body, &msg); err != nil {
		return Inbound{}, fmt.Errorf("chat: invalid message frame: %w", err)
	}
	if msg.ID == "" {
		return Inbound{}, fmt.Errorf("chat: message frame without id")
	}
	return Inbound{Message: &msg}, nil
}
