// ABOUTME: Tests for action envelopes and action response decoding
// ABOUTME: Verifies nil-param omission, echo normalization and success detection

package onebot

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

func TestAction_MarshalOmitsNilParams(t *testing.T) {
	a := UploadGroupFile(777, "/tmp/report.pdf", "report.pdf", "")
	a.Echo = "17"

	data, err := a.Marshal()
	require.NoError(t, err)

	assert.Equal(t, "upload_group_file", gjson.GetBytes(data, "action").String())
	assert.Equal(t, int64(777), gjson.GetBytes(data, "params.group_id").Int())
	assert.False(t, gjson.GetBytes(data, "params.folder").Exists())
	assert.Equal(t, "17", gjson.GetBytes(data, "echo").String())

	withFolder, err := UploadGroupFile(777, "/tmp/r.pdf", "r.pdf", "/docs").Marshal()
	require.NoError(t, err)
	assert.Equal(t, "/docs", gjson.GetBytes(withFolder, "params.folder").String())
	assert.False(t, gjson.GetBytes(withFolder, "echo").Exists())
}

func TestAction_RoundTrip(t *testing.T) {
	a := SendGroupMsg(777, Message{At("42"), Text(" hi")})
	a.Echo = "3"

	data, err := a.Marshal()
	require.NoError(t, err)

	parsed, err := ParseAction(data)
	require.NoError(t, err)
	assert.Equal(t, ActionSendGroupMsg, parsed.Name)
	assert.Equal(t, "3", parsed.Echo)
	assert.Equal(t, json.Number("777"), parsed.Params["group_id"])

	segs, ok := parsed.Params["message"].([]any)
	require.True(t, ok)
	assert.Len(t, segs, 2)
}

func TestAction_RoundTrip_LargeIDs(t *testing.T) {
	const id int64 = 9007199254740993 // 2^53 + 1

	data, err := DeleteMsg(id).Marshal()
	require.NoError(t, err)

	parsed, err := ParseAction(data)
	require.NoError(t, err)
	assert.Equal(t, json.Number("9007199254740993"), parsed.Params["message_id"])

	again, err := parsed.Marshal()
	require.NoError(t, err)
	assert.Equal(t, id, gjson.GetBytes(again, "params.message_id").Int())
	assert.Contains(t, string(again), `"message_id":9007199254740993`)
}

func TestAction_MarshalOmitsTypedNilParams(t *testing.T) {
	var folder *string
	var tags []string
	var extra map[string]any
	a := &Action{Name: ActionUploadGroupFile, Params: map[string]any{
		"group_id": int64(777),
		"folder":   folder,
		"tags":     tags,
		"extra":    extra,
		"empty":    []string{},
	}}

	data, err := a.Marshal()
	require.NoError(t, err)
	assert.JSONEq(t, `{"action":"upload_group_file","params":{"group_id":777,"empty":[]}}`, string(data))
}

func TestAction_EmptyParamsObject(t *testing.T) {
	data, err := GetLoginInfo().Marshal()
	require.NoError(t, err)
	assert.JSONEq(t, `{"action":"get_login_info","params":{}}`, string(data))

	parsed, err := ParseAction([]byte(`{"action":"get_status"}`))
	require.NoError(t, err)
	assert.NotNil(t, parsed.Params)
	assert.Empty(t, parsed.Echo)
}

func TestAction_MissingName(t *testing.T) {
	_, err := (&Action{}).Marshal()
	assert.ErrorIs(t, err, ErrMissingAction)

	_, err = ParseAction([]byte(`{"params":{}}`))
	assert.ErrorIs(t, err, ErrMissingAction)
}

func TestAction_Constructors(t *testing.T) {
	tests := []struct {
		action *Action
		name   string
		keys   []string
	}{
		{SendPrivateMsg(1, Message{Text("x")}), ActionSendPrivateMsg, []string{"user_id", "message"}},
		{GetMsg(5), ActionGetMsg, []string{"message_id"}},
		{DeleteMsg(5), ActionDeleteMsg, []string{"message_id"}},
		{GetGroupInfo(5), ActionGetGroupInfo, []string{"group_id"}},
		{GetGroupMemberInfo(5, 6, true), ActionGetGroupMemberInfo, []string{"group_id", "user_id", "no_cache"}},
		{UploadPrivateFile(1, "/f", "f"), ActionUploadPrivateFile, []string{"user_id", "file", "name"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.name, tt.action.Name)
			for _, k := range tt.keys {
				assert.Contains(t, tt.action.Params, k)
			}
		})
	}
}

func TestParseActionResponse(t *testing.T) {
	tests := []struct {
		name   string
		frame  string
		ok     bool
		echo   string
		status bool
	}{
		{"string echo", `{"status":"ok","retcode":0,"data":{"message_id":1},"echo":"12"}`, true, "12", true},
		{"numeric echo", `{"status":"ok","retcode":0,"data":null,"echo":12}`, true, "12", true},
		{"failed", `{"status":"failed","retcode":100,"msg":"bad group","wording":"group not found","echo":"9"}`, true, "9", false},
		{"event frame", `{"post_type":"message","echo":"1"}`, false, "", false},
		{"no echo", `{"status":"ok","retcode":0}`, false, "", false},
		{"null echo", `{"status":"ok","retcode":0,"echo":null}`, false, "", false},
		{"garbage", `{{{`, false, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, ok := ParseActionResponse([]byte(tt.frame))
			assert.Equal(t, tt.ok, ok)
			if !tt.ok {
				assert.Nil(t, resp)
				return
			}
			assert.Equal(t, tt.echo, resp.Echo)
			assert.Equal(t, tt.status, resp.OK())
		})
	}
}

func TestActionResponse_FailureFields(t *testing.T) {
	resp, ok := ParseActionResponse([]byte(`{"status":"failed","retcode":1404,"msg":"bad group","wording":"group not found","echo":"9"}`))
	require.True(t, ok)
	assert.False(t, resp.OK())
	assert.Equal(t, 1404, resp.RetCode)
	assert.Equal(t, "bad group", resp.Message)
	assert.Equal(t, "group not found", resp.Wording)
}

func TestActionResponse_DecodeData(t *testing.T) {
	resp, ok := ParseActionResponse([]byte(`{"status":"ok","retcode":0,"data":{"user_id":10001,"nickname":"bot"},"echo":"1"}`))
	require.True(t, ok)

	var info struct {
		UserID   int64  `json:"user_id"`
		Nickname string `json:"nickname"`
	}
	require.NoError(t, resp.DecodeData(&info))
	assert.Equal(t, int64(10001), info.UserID)
	assert.Equal(t, "bot", info.Nickname)

	empty, ok := ParseActionResponse([]byte(`{"status":"ok","retcode":0,"data":null,"echo":"2"}`))
	require.True(t, ok)
	assert.ErrorIs(t, empty.DecodeData(&info), ErrNoData)
}

func TestPeekEcho(t *testing.T) {
	echo, ok := PeekEcho([]byte(`{"echo":"abc"}`))
	assert.True(t, ok)
	assert.Equal(t, "abc", echo)

	_, ok = PeekEcho([]byte(`{"status":"ok"}`))
	assert.False(t, ok)
}
