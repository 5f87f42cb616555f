// ABOUTME: Outbound OneBot actions: envelope serialization and typed constructors
// ABOUTME: Nil parameters are dropped so optional fields never reach the wire as null

package onebot

import (
	"bytes"
	"encoding/json"
	"errors"
	"reflect"
)

// Action names used by the constructors below.
const (
	ActionSendGroupMsg       = "send_group_msg"
	ActionSendPrivateMsg     = "send_private_msg"
	ActionGetMsg             = "get_msg"
	ActionDeleteMsg          = "delete_msg"
	ActionGetLoginInfo       = "get_login_info"
	ActionGetGroupInfo       = "get_group_info"
	ActionGetGroupMemberInfo = "get_group_member_info"
	ActionUploadGroupFile    = "upload_group_file"
	ActionUploadPrivateFile  = "upload_private_file"
)

// ErrMissingAction is returned when an action envelope has no name.
var ErrMissingAction = errors.New("action name is required")

// Action is an outbound command. The transport assigns Echo before sending.
type Action struct {
	Name   string
	Params map[string]any
	Echo   string
}

type actionEnvelope struct {
	Action string          `json:"action"`
	Params map[string]any  `json:"params"`
	Echo   json.RawMessage `json:"echo,omitempty"`
}

// Marshal encodes the action envelope. Parameter keys come out sorted and
// parameters whose value is nil, including typed nil pointers, maps and
// slices, are omitted.
func (a *Action) Marshal() ([]byte, error) {
	if a.Name == "" {
		return nil, ErrMissingAction
	}
	params := make(map[string]any, len(a.Params))
	for k, v := range a.Params {
		if isNil(v) {
			continue
		}
		params[k] = v
	}
	env := actionEnvelope{Action: a.Name, Params: params}
	if a.Echo != "" {
		echo, err := json.Marshal(a.Echo)
		if err != nil {
			return nil, err
		}
		env.Echo = echo
	}
	return json.Marshal(env)
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Interface, reflect.Func, reflect.Chan:
		return rv.IsNil()
	}
	return false
}

// ParseAction decodes an action envelope. Parameter values decode to the
// generic JSON types (json.Number, string, bool, []any, map[string]any);
// numbers stay json.Number so 64-bit ids survive a round trip.
func ParseAction(data []byte) (*Action, error) {
	var env struct {
		Action string         `json:"action"`
		Params map[string]any `json:"params"`
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&env); err != nil {
		return nil, newParseError("decoding action", data, err)
	}
	if env.Action == "" {
		return nil, newParseError("decoding action", data, ErrMissingAction)
	}
	a := &Action{Name: env.Action, Params: env.Params}
	if a.Params == nil {
		a.Params = map[string]any{}
	}
	if echo, ok := peekEcho(data); ok {
		a.Echo = echo
	}
	return a, nil
}

// SendGroupMsg sends a message to a group.
func SendGroupMsg(groupID int64, message Message) *Action {
	return &Action{Name: ActionSendGroupMsg, Params: map[string]any{
		"group_id": groupID,
		"message":  message,
	}}
}

// SendPrivateMsg sends a direct message to a user.
func SendPrivateMsg(userID int64, message Message) *Action {
	return &Action{Name: ActionSendPrivateMsg, Params: map[string]any{
		"user_id": userID,
		"message": message,
	}}
}

// GetMsg fetches a message by id.
func GetMsg(messageID int64) *Action {
	return &Action{Name: ActionGetMsg, Params: map[string]any{"message_id": messageID}}
}

// DeleteMsg recalls a message.
func DeleteMsg(messageID int64) *Action {
	return &Action{Name: ActionDeleteMsg, Params: map[string]any{"message_id": messageID}}
}

// GetLoginInfo asks the bridge which account it is logged in as.
func GetLoginInfo() *Action {
	return &Action{Name: ActionGetLoginInfo, Params: map[string]any{}}
}

// GetGroupInfo fetches group metadata.
func GetGroupInfo(groupID int64) *Action {
	return &Action{Name: ActionGetGroupInfo, Params: map[string]any{"group_id": groupID}}
}

// GetGroupMemberInfo fetches a member profile, optionally bypassing the bridge cache.
func GetGroupMemberInfo(groupID, userID int64, noCache bool) *Action {
	return &Action{Name: ActionGetGroupMemberInfo, Params: map[string]any{
		"group_id": groupID,
		"user_id":  userID,
		"no_cache": noCache,
	}}
}

// UploadGroupFile uploads a local file to a group. An empty folder means the root.
func UploadGroupFile(groupID int64, file, name, folder string) *Action {
	params := map[string]any{
		"group_id": groupID,
		"file":     file,
		"name":     name,
		"folder":   nil,
	}
	if folder != "" {
		params["folder"] = folder
	}
	return &Action{Name: ActionUploadGroupFile, Params: params}
}

// UploadPrivateFile sends a local file to a user.
func UploadPrivateFile(userID int64, file, name string) *Action {
	return &Action{Name: ActionUploadPrivateFile, Params: map[string]any{
		"user_id": userID,
		"file":    file,
		"name":    name,
	}}
}
