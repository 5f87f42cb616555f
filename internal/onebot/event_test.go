// ABOUTME: Tests for event decoding, segment accessors and frame classification
// ABOUTME: Covers message parsing, unknown post types, and string-format messages

package onebot

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const groupMessageFrame = `{
	"time": 1700000000,
	"self_id": 10001,
	"post_type": "message",
	"message_type": "group",
	"sub_type": "normal",
	"message_id": 555,
	"user_id": 42,
	"group_id": 777,
	"message": [
		{"type": "at", "data": {"qq": "10001"}},
		{"type": "text", "data": {"text": " hello "}},
		{"type": "text", "data": {"text": "world"}}
	],
	"raw_message": "[CQ:at,qq=10001] hello world",
	"font": 0,
	"sender": {"user_id": 42, "nickname": "alice", "card": "Alice W"}
}`

func TestParse_GroupMessage(t *testing.T) {
	ev, err := Parse([]byte(groupMessageFrame))
	require.NoError(t, err)

	msg, ok := ev.(*MessageEvent)
	require.True(t, ok, "expected *MessageEvent, got %T", ev)

	assert.Equal(t, int64(10001), msg.SelfID)
	assert.Equal(t, PostTypeMessage, msg.EventHeader().PostType)
	assert.True(t, msg.IsGroup())
	assert.False(t, msg.IsPrivate())
	assert.Equal(t, int64(555), msg.MessageID)
	assert.Equal(t, int64(777), msg.GroupID)
	assert.Equal(t, " hello world", msg.PlainText())
	assert.Equal(t, []string{"10001"}, msg.Message.Mentions())
	assert.True(t, msg.MentionsSelf())
	assert.Equal(t, "777", msg.SessionID())
	assert.Equal(t, "Alice W", msg.Sender.DisplayName())
}

func TestParse_PrivateMessageStringFormat(t *testing.T) {
	frame := `{"time":1,"self_id":1,"post_type":"message","message_type":"private","message_id":9,"user_id":42,"message":"just text","raw_message":"just text","sender":{"user_id":42,"nickname":"bob"}}`

	ev, err := Parse([]byte(frame))
	require.NoError(t, err)

	msg := ev.(*MessageEvent)
	assert.True(t, msg.IsPrivate())
	require.Len(t, msg.Message, 1)
	assert.Equal(t, SegmentText, msg.Message[0].Type)
	assert.Equal(t, "just text", msg.PlainText())
	assert.Equal(t, "42", msg.SessionID())
	assert.Equal(t, "bob", msg.Sender.DisplayName())
}

func TestParse_Variants(t *testing.T) {
	tests := []struct {
		name  string
		frame string
		check func(t *testing.T, ev Event)
	}{
		{
			name:  "notice",
			frame: `{"time":1,"self_id":1,"post_type":"notice","notice_type":"group_increase","group_id":5,"user_id":6}`,
			check: func(t *testing.T, ev Event) {
				n, ok := ev.(*NoticeEvent)
				require.True(t, ok)
				assert.Equal(t, "group_increase", n.NoticeType)
				assert.Equal(t, int64(5), n.GroupID)
			},
		},
		{
			name:  "request",
			frame: `{"time":1,"self_id":1,"post_type":"request","request_type":"friend","user_id":6,"comment":"hi","flag":"abc"}`,
			check: func(t *testing.T, ev Event) {
				r, ok := ev.(*RequestEvent)
				require.True(t, ok)
				assert.Equal(t, "friend", r.RequestType)
				assert.Equal(t, "abc", r.Flag)
			},
		},
		{
			name:  "heartbeat",
			frame: `{"time":1,"self_id":1,"post_type":"meta_event","meta_event_type":"heartbeat","status":{"online":true},"interval":5000}`,
			check: func(t *testing.T, ev Event) {
				m, ok := ev.(*MetaEvent)
				require.True(t, ok)
				assert.True(t, m.IsHeartbeat())
				assert.False(t, m.IsLifecycle())
				assert.Equal(t, int64(5000), m.Interval)
				assert.JSONEq(t, `{"online":true}`, string(m.Status))
			},
		},
		{
			name:  "lifecycle",
			frame: `{"time":1,"self_id":1,"post_type":"meta_event","meta_event_type":"lifecycle","sub_type":"connect"}`,
			check: func(t *testing.T, ev Event) {
				m, ok := ev.(*MetaEvent)
				require.True(t, ok)
				assert.True(t, m.IsLifecycle())
				assert.Equal(t, "connect", m.SubType)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, err := Parse([]byte(tt.frame))
			require.NoError(t, err)
			tt.check(t, ev)
		})
	}
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name  string
		frame string
		want  error
	}{
		{"unknown post_type", `{"post_type":"mystery","self_id":1}`, ErrUnrecognized},
		{"missing post_type", `{"self_id":1}`, ErrUnrecognized},
		{"invalid json", `{"post_type":`, ErrMalformed},
		{"array frame", `[1,2,3]`, ErrMalformed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, err := Parse([]byte(tt.frame))
			assert.Nil(t, ev)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)

			var perr *ParseError
			require.True(t, errors.As(err, &perr))
			assert.NotEmpty(t, perr.Preview)
		})
	}
}

func TestParse_TypeMismatch(t *testing.T) {
	_, err := Parse([]byte(`{"post_type":"message","message_id":"not-a-number"}`))
	require.Error(t, err)

	var perr *ParseError
	require.True(t, errors.As(err, &perr))
	assert.NotErrorIs(t, err, ErrUnrecognized)
}

func TestPreview_Truncates(t *testing.T) {
	long := make([]byte, 500)
	for i := range long {
		long[i] = 'x'
	}
	p := Preview(long)
	assert.Len(t, p, previewLimit+3)
	assert.Equal(t, "short", Preview([]byte("short")))
}

func TestClassify(t *testing.T) {
	tests := []struct {
		frame string
		want  FrameKind
	}{
		{`{"post_type":"message"}`, FrameEvent},
		{`{"status":"ok","retcode":0,"echo":"1"}`, FrameResponse},
		{`{"post_type":"notice","echo":"1"}`, FrameEvent},
		{`{"status":"ok"}`, FrameUnknown},
		{`not json`, FrameUnknown},
		{`"string"`, FrameUnknown},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Classify([]byte(tt.frame)), tt.frame)
	}
	assert.Equal(t, "event", FrameEvent.String())
	assert.Equal(t, "response", FrameResponse.String())
	assert.Equal(t, "unknown", FrameUnknown.String())
}

func TestSegment_UnknownTypeRoundTrip(t *testing.T) {
	in := `[{"type":"mface","data":{"emoji_id":"abc","package_id":12,"nested":{"k":[1,2]}}},{"type":"text","data":{"text":"x"}}]`

	var msg Message
	require.NoError(t, json.Unmarshal([]byte(in), &msg))
	require.Len(t, msg, 2)
	assert.Equal(t, "mface", msg[0].Type)

	_, ok := msg[0].Text()
	assert.False(t, ok)

	out, err := json.Marshal(msg)
	require.NoError(t, err)
	assert.JSONEq(t, in, string(out))
}

func TestSegment_Accessors(t *testing.T) {
	txt, ok := Text("hi").Text()
	assert.True(t, ok)
	assert.Equal(t, "hi", txt)

	target, ok := At("all").AtTarget()
	assert.True(t, ok)
	assert.Equal(t, "all", target)

	var numeric Segment
	require.NoError(t, json.Unmarshal([]byte(`{"type":"at","data":{"qq":10001}}`), &numeric))
	target, ok = numeric.AtTarget()
	assert.True(t, ok)
	assert.Equal(t, "10001", target)

	id, ok := Reply("88").ReplyID()
	assert.True(t, ok)
	assert.Equal(t, "88", id)

	var img Segment
	require.NoError(t, json.Unmarshal([]byte(`{"type":"image","data":{"file":"a.png","url":"https://example.com/a.png"}}`), &img))
	url, ok := img.ImageURL()
	assert.True(t, ok)
	assert.Equal(t, "https://example.com/a.png", url)
	file, ok := img.File()
	assert.True(t, ok)
	assert.Equal(t, "a.png", file)

	_, ok = Text("x").File()
	assert.False(t, ok)
}

func TestSegment_MarshalEmptyData(t *testing.T) {
	out, err := json.Marshal(Segment{Type: "shake"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"shake","data":{}}`, string(out))
}

func TestMessage_ReplyTo(t *testing.T) {
	msg := Message{Reply("123"), Text("sure")}
	id, ok := msg.ReplyTo()
	assert.True(t, ok)
	assert.Equal(t, "123", id)

	_, ok = Message{Text("none")}.ReplyTo()
	assert.False(t, ok)
}

func TestMessage_NullAndEmpty(t *testing.T) {
	var msg Message
	require.NoError(t, json.Unmarshal([]byte(`null`), &msg))
	assert.Nil(t, msg)
	assert.Equal(t, "", msg.PlainText())
	assert.False(t, msg.MentionsUser(1))
}
