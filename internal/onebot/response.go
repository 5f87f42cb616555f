// ABOUTME: Inbound action responses matched to pending calls by echo token
// ABOUTME: Success is status "ok" or retcode 0; payload stays raw until decoded

package onebot

import (
	"encoding/json"
	"errors"

	"github.com/tidwall/gjson"
)

// ErrNoData is returned by DecodeData when the response carries no payload.
var ErrNoData = errors.New("response has no data")

// ActionResponse is the bridge's reply to an Action.
type ActionResponse struct {
	Status  string          `json:"status"`
	RetCode int             `json:"retcode"`
	Data    json.RawMessage `json:"data,omitempty"`
	Echo    string          `json:"echo"`
	Message string          `json:"message,omitempty"`
	Wording string          `json:"wording,omitempty"`
}

// OK reports whether the bridge accepted the action.
func (r *ActionResponse) OK() bool {
	return r.Status == "ok" || r.RetCode == 0
}

// DecodeData unmarshals the payload into v.
func (r *ActionResponse) DecodeData(v any) error {
	if len(r.Data) == 0 || gjson.ParseBytes(r.Data).Type == gjson.Null {
		return ErrNoData
	}
	return json.Unmarshal(r.Data, v)
}

// ParseActionResponse decodes a response frame. It returns false for anything
// that is not a response: invalid JSON, event frames, or frames without echo.
func ParseActionResponse(data []byte) (*ActionResponse, bool) {
	if Classify(data) != FrameResponse {
		return nil, false
	}
	echo, ok := peekEcho(data)
	if !ok {
		return nil, false
	}

	var raw struct {
		Status  string          `json:"status"`
		RetCode int             `json:"retcode"`
		Data    json.RawMessage `json:"data"`
		Message string          `json:"message"`
		Msg     string          `json:"msg"`
		Wording string          `json:"wording"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, false
	}

	resp := &ActionResponse{
		Status:  raw.Status,
		RetCode: raw.RetCode,
		Data:    raw.Data,
		Echo:    echo,
		Message: raw.Message,
		Wording: raw.Wording,
	}
	if resp.Message == "" {
		resp.Message = raw.Msg
	}
	return resp, true
}

// PeekEcho returns the echo token of a frame without decoding the rest of it.
func PeekEcho(data []byte) (string, bool) {
	return peekEcho(data)
}

func peekEcho(data []byte) (string, bool) {
	v := gjson.GetBytes(data, "echo")
	if !v.Exists() {
		return "", false
	}
	echo := echoString(v)
	return echo, echo != ""
}
