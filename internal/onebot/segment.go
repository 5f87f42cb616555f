// ABOUTME: Message segment model: ordered typed parts with raw JSON data
// ABOUTME: Unknown segment types are preserved byte-for-byte for round-tripping

package onebot

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
)

// Segment types understood by the accessors below.
const (
	SegmentText   = "text"
	SegmentImage  = "image"
	SegmentAt     = "at"
	SegmentFace   = "face"
	SegmentReply  = "reply"
	SegmentRecord = "record"
	SegmentVideo  = "video"
)

// Segment is one typed part of a message. Data is kept verbatim.
type Segment struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// MarshalJSON writes an empty object when Data is unset.
func (s Segment) MarshalJSON() ([]byte, error) {
	data := s.Data
	if len(bytes.TrimSpace(data)) == 0 {
		data = json.RawMessage(`{}`)
	}
	return json.Marshal(struct {
		Type string          `json:"type"`
		Data json.RawMessage `json:"data"`
	}{s.Type, data})
}

func newSegment(typ string, data map[string]string) Segment {
	raw, _ := json.Marshal(data)
	return Segment{Type: typ, Data: raw}
}

// Text builds a text segment.
func Text(text string) Segment {
	return newSegment(SegmentText, map[string]string{"text": text})
}

// Image builds an image segment from a file name, path or URL.
func Image(file string) Segment {
	return newSegment(SegmentImage, map[string]string{"file": file})
}

// At builds a mention segment. Use "all" to mention everyone.
func At(target string) Segment {
	return newSegment(SegmentAt, map[string]string{"qq": target})
}

// Face builds a built-in emoji segment.
func Face(id int) Segment {
	return newSegment(SegmentFace, map[string]string{"id": strconv.Itoa(id)})
}

// Reply builds a reply-reference segment.
func Reply(messageID string) Segment {
	return newSegment(SegmentReply, map[string]string{"id": messageID})
}

// Record builds a voice segment.
func Record(file string) Segment {
	return newSegment(SegmentRecord, map[string]string{"file": file})
}

// Video builds a video segment.
func Video(file string) Segment {
	return newSegment(SegmentVideo, map[string]string{"file": file})
}

// field reads a data field, accepting string or numeric encodings.
func (s Segment) field(name string) (string, bool) {
	v := gjson.GetBytes(s.Data, name)
	if !v.Exists() || v.Type == gjson.Null {
		return "", false
	}
	if v.Type == gjson.String {
		return v.Str, true
	}
	return v.Raw, true
}

// Text returns the text of a text segment.
func (s Segment) Text() (string, bool) {
	if s.Type != SegmentText {
		return "", false
	}
	return s.field("text")
}

// AtTarget returns the mentioned user id (or "all") of an at segment.
func (s Segment) AtTarget() (string, bool) {
	if s.Type != SegmentAt {
		return "", false
	}
	return s.field("qq")
}

// ReplyID returns the referenced message id of a reply segment.
func (s Segment) ReplyID() (string, bool) {
	if s.Type != SegmentReply {
		return "", false
	}
	return s.field("id")
}

// ImageURL returns the url of an image segment, falling back to its file.
func (s Segment) ImageURL() (string, bool) {
	if s.Type != SegmentImage {
		return "", false
	}
	if url, ok := s.field("url"); ok && url != "" {
		return url, true
	}
	return s.field("file")
}

// File returns the file field of a media segment (image, record, video).
func (s Segment) File() (string, bool) {
	switch s.Type {
	case SegmentImage, SegmentRecord, SegmentVideo:
		return s.field("file")
	}
	return "", false
}

// Message is an ordered list of segments.
type Message []Segment

// UnmarshalJSON accepts the array form and, for bridges configured with the
// string post format, a bare string which becomes a single text segment.
// CQ codes inside such a string are not interpreted.
func (m *Message) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return err
		}
		*m = Message{Text(s)}
		return nil
	}
	if bytes.Equal(trimmed, []byte("null")) {
		*m = nil
		return nil
	}
	var segs []Segment
	if err := json.Unmarshal(trimmed, &segs); err != nil {
		return err
	}
	*m = segs
	return nil
}

// PlainText concatenates all text segments.
func (m Message) PlainText() string {
	var b strings.Builder
	for _, seg := range m {
		if text, ok := seg.Text(); ok {
			b.WriteString(text)
		}
	}
	return b.String()
}

// Mentions returns the targets of all at segments in order.
func (m Message) Mentions() []string {
	var targets []string
	for _, seg := range m {
		if target, ok := seg.AtTarget(); ok {
			targets = append(targets, target)
		}
	}
	return targets
}

// MentionsUser reports whether the message mentions the given user id.
func (m Message) MentionsUser(userID int64) bool {
	id := strconv.FormatInt(userID, 10)
	for _, target := range m.Mentions() {
		if target == id {
			return true
		}
	}
	return false
}

// ReplyTo returns the message id referenced by the first reply segment.
func (m Message) ReplyTo() (string, bool) {
	for _, seg := range m {
		if id, ok := seg.ReplyID(); ok {
			return id, true
		}
	}
	return "", false
}
