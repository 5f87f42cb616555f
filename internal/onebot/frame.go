// ABOUTME: Frame classification and parse errors for inbound OneBot frames
// ABOUTME: Peeks discriminator fields with gjson before any full decode

package onebot

import (
	"errors"
	"fmt"

	"github.com/tidwall/gjson"
)

// ErrUnrecognized indicates a frame that is valid JSON but is neither a known
// event nor an action response.
var ErrUnrecognized = errors.New("unrecognized frame")

// ErrMalformed indicates a frame that is not a JSON object.
var ErrMalformed = errors.New("malformed frame")

// previewLimit bounds how much of a bad frame is kept for logging.
const previewLimit = 200

// ParseError describes why a frame could not be decoded.
type ParseError struct {
	Reason  string
	Preview string
	Err     error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("onebot: %s: %v", e.Reason, e.Err)
	}
	return "onebot: " + e.Reason
}

func (e *ParseError) Unwrap() error { return e.Err }

func newParseError(reason string, data []byte, err error) *ParseError {
	return &ParseError{Reason: reason, Preview: Preview(data), Err: err}
}

// Preview truncates a frame for log output.
func Preview(data []byte) string {
	if len(data) <= previewLimit {
		return string(data)
	}
	return string(data[:previewLimit]) + "..."
}

// FrameKind is the coarse type of an inbound frame.
type FrameKind int

const (
	FrameUnknown FrameKind = iota
	FrameEvent
	FrameResponse
)

func (k FrameKind) String() string {
	switch k {
	case FrameEvent:
		return "event"
	case FrameResponse:
		return "response"
	default:
		return "unknown"
	}
}

// Classify decides whether a frame is an event or an action response without
// decoding it. A frame with post_type is an event even if it also carries echo.
func Classify(data []byte) FrameKind {
	if !gjson.ValidBytes(data) {
		return FrameUnknown
	}
	root := gjson.ParseBytes(data)
	if !root.IsObject() {
		return FrameUnknown
	}
	if root.Get("post_type").Exists() {
		return FrameEvent
	}
	if root.Get("echo").Exists() {
		return FrameResponse
	}
	return FrameUnknown
}

// echoString normalizes an echo value. Bridges echo back whatever JSON value
// they received; numbers are kept in their literal form.
func echoString(v gjson.Result) string {
	switch v.Type {
	case gjson.String:
		return v.Str
	case gjson.Null:
		return ""
	default:
		return v.Raw
	}
}
