// ABOUTME: OneBot event sum type and the two-phase post_type dispatch decoder
// ABOUTME: Message, notice, request and meta events share a common header

package onebot

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/tidwall/gjson"
)

// PostType is the event discriminator.
type PostType string

const (
	PostTypeMessage   PostType = "message"
	PostTypeNotice    PostType = "notice"
	PostTypeRequest   PostType = "request"
	PostTypeMetaEvent PostType = "meta_event"
)

// Message types for MessageEvent.MessageType.
const (
	MessageTypeGroup   = "group"
	MessageTypePrivate = "private"
)

// Event is implemented by *MessageEvent, *NoticeEvent, *RequestEvent and
// *MetaEvent. Events are never mutated after Parse.
type Event interface {
	EventHeader() Header
	isEvent()
}

// Header holds the fields common to every event.
type Header struct {
	Time     int64    `json:"time"`
	SelfID   int64    `json:"self_id"`
	PostType PostType `json:"post_type"`
}

// EventHeader returns the common header.
func (h Header) EventHeader() Header { return h }

// Sender describes the author of a message event.
type Sender struct {
	UserID   int64  `json:"user_id"`
	Nickname string `json:"nickname"`
	Card     string `json:"card,omitempty"`
	Sex      string `json:"sex,omitempty"`
	Age      int    `json:"age,omitempty"`
	Role     string `json:"role,omitempty"`
}

// DisplayName prefers the group card over the nickname.
func (s Sender) DisplayName() string {
	if s.Card != "" {
		return s.Card
	}
	return s.Nickname
}

// MessageEvent is a group or private chat message.
type MessageEvent struct {
	Header
	MessageType string  `json:"message_type"`
	SubType     string  `json:"sub_type"`
	MessageID   int64   `json:"message_id"`
	UserID      int64   `json:"user_id"`
	GroupID     int64   `json:"group_id,omitempty"`
	Message     Message `json:"message"`
	RawMessage  string  `json:"raw_message"`
	Font        int     `json:"font,omitempty"`
	Sender      Sender  `json:"sender"`
}

func (*MessageEvent) isEvent() {}

// IsGroup reports whether the message was posted in a group.
func (e *MessageEvent) IsGroup() bool { return e.MessageType == MessageTypeGroup }

// IsPrivate reports whether the message is a direct message.
func (e *MessageEvent) IsPrivate() bool { return e.MessageType == MessageTypePrivate }

// PlainText concatenates the text segments of the message.
func (e *MessageEvent) PlainText() string { return e.Message.PlainText() }

// MentionsSelf reports whether the bot account is @-mentioned.
func (e *MessageEvent) MentionsSelf() bool { return e.Message.MentionsUser(e.SelfID) }

// SessionID is the group id for group messages and the user id otherwise.
func (e *MessageEvent) SessionID() string {
	if e.IsGroup() {
		return strconv.FormatInt(e.GroupID, 10)
	}
	return strconv.FormatInt(e.UserID, 10)
}

// NoticeEvent reports group or friend state changes.
type NoticeEvent struct {
	Header
	NoticeType string `json:"notice_type"`
	SubType    string `json:"sub_type,omitempty"`
	UserID     int64  `json:"user_id,omitempty"`
	GroupID    int64  `json:"group_id,omitempty"`
	OperatorID int64  `json:"operator_id,omitempty"`
	TargetID   int64  `json:"target_id,omitempty"`
	SenderID   int64  `json:"sender_id,omitempty"`
}

func (*NoticeEvent) isEvent() {}

// RequestEvent is a friend or group join request awaiting a decision.
type RequestEvent struct {
	Header
	RequestType string `json:"request_type"`
	SubType     string `json:"sub_type,omitempty"`
	UserID      int64  `json:"user_id"`
	GroupID     int64  `json:"group_id,omitempty"`
	Comment     string `json:"comment,omitempty"`
	Flag        string `json:"flag"`
}

func (*RequestEvent) isEvent() {}

// Meta event types.
const (
	MetaLifecycle = "lifecycle"
	MetaHeartbeat = "heartbeat"
)

// MetaEvent carries bridge lifecycle and heartbeat information.
type MetaEvent struct {
	Header
	MetaEventType string          `json:"meta_event_type"`
	SubType       string          `json:"sub_type,omitempty"`
	Status        json.RawMessage `json:"status,omitempty"`
	Interval      int64           `json:"interval,omitempty"`
}

func (*MetaEvent) isEvent() {}

// IsHeartbeat reports whether this is a periodic heartbeat.
func (e *MetaEvent) IsHeartbeat() bool { return e.MetaEventType == MetaHeartbeat }

// IsLifecycle reports whether this is a connect/enable/disable notification.
func (e *MetaEvent) IsLifecycle() bool { return e.MetaEventType == MetaLifecycle }

// Parse decodes an event frame. It reads post_type first and then decodes the
// matching variant; frames with a missing or unknown post_type yield a
// *ParseError wrapping ErrUnrecognized.
func Parse(data []byte) (Event, error) {
	if !gjson.ValidBytes(data) {
		return nil, newParseError("invalid json", data, ErrMalformed)
	}
	root := gjson.ParseBytes(data)
	if !root.IsObject() {
		return nil, newParseError("frame is not an object", data, ErrMalformed)
	}

	postType := root.Get("post_type")
	if !postType.Exists() {
		return nil, newParseError("missing post_type", data, ErrUnrecognized)
	}

	var ev Event
	switch PostType(postType.String()) {
	case PostTypeMessage:
		ev = &MessageEvent{}
	case PostTypeNotice:
		ev = &NoticeEvent{}
	case PostTypeRequest:
		ev = &RequestEvent{}
	case PostTypeMetaEvent:
		ev = &MetaEvent{}
	default:
		return nil, newParseError(fmt.Sprintf("unknown post_type %q", postType.String()), data, ErrUnrecognized)
	}

	if err := json.Unmarshal(data, ev); err != nil {
		return nil, newParseError("decoding "+postType.String()+" event", data, err)
	}
	return ev, nil
}
