// ABOUTME: Typed OneBot client over the transport's correlated SendAction
// ABOUTME: Non-OK responses surface as *ActionError; transport errors pass through

package qq

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/2389/onebot-gateway/internal/onebot"
)

// ActionSender sends one action and waits for its response.
// *reversews.Server implements it.
type ActionSender interface {
	SendAction(ctx context.Context, action *onebot.Action, timeout time.Duration) (*onebot.ActionResponse, error)
}

// ActionError is a response the bridge delivered with a failed status.
type ActionError struct {
	Action  string
	RetCode int
	Message string
}

func (e *ActionError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s failed: retcode %d: %s", e.Action, e.RetCode, e.Message)
	}
	return fmt.Sprintf("%s failed: retcode %d", e.Action, e.RetCode)
}

// LoginInfo is the account the bridge is logged in as.
type LoginInfo struct {
	UserID   int64  `json:"user_id"`
	Nickname string `json:"nickname"`
}

// GroupInfo is group metadata.
type GroupInfo struct {
	GroupID        int64  `json:"group_id"`
	GroupName      string `json:"group_name"`
	MemberCount    int    `json:"member_count"`
	MaxMemberCount int    `json:"max_member_count"`
}

// GroupMember is a member profile within a group.
type GroupMember struct {
	GroupID      int64  `json:"group_id"`
	UserID       int64  `json:"user_id"`
	Nickname     string `json:"nickname"`
	Card         string `json:"card"`
	Role         string `json:"role"`
	Title        string `json:"title"`
	JoinTime     int64  `json:"join_time"`
	LastSentTime int64  `json:"last_sent_time"`
}

// DisplayName prefers the group card over the nickname.
func (m *GroupMember) DisplayName() string {
	if m.Card != "" {
		return m.Card
	}
	return m.Nickname
}

// Client issues typed OneBot actions.
type Client struct {
	sender  ActionSender
	timeout time.Duration
}

// NewClient creates a Client. A timeout <= 0 defers to the sender's default.
func NewClient(sender ActionSender, timeout time.Duration) *Client {
	return &Client{sender: sender, timeout: timeout}
}

// Call sends a raw action. A response with a failed status is returned
// together with an *ActionError.
func (c *Client) Call(ctx context.Context, action *onebot.Action) (*onebot.ActionResponse, error) {
	resp, err := c.sender.SendAction(ctx, action, c.timeout)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", action.Name, err)
	}
	if !resp.OK() {
		return resp, &ActionError{Action: action.Name, RetCode: resp.RetCode, Message: resp.Message}
	}
	return resp, nil
}

// callInto sends action and decodes the payload into v.
func (c *Client) callInto(ctx context.Context, action *onebot.Action, v any) error {
	resp, err := c.Call(ctx, action)
	if err != nil {
		return err
	}
	if err := resp.DecodeData(v); err != nil {
		return fmt.Errorf("decoding %s response: %w", action.Name, err)
	}
	return nil
}

// sendMessage sends a message action and returns the new message id, or 0
// when the bridge does not report one.
func (c *Client) sendMessage(ctx context.Context, action *onebot.Action) (int64, error) {
	var out struct {
		MessageID int64 `json:"message_id"`
	}
	err := c.callInto(ctx, action, &out)
	if errors.Is(err, onebot.ErrNoData) {
		return 0, nil
	}
	return out.MessageID, err
}

// SendGroupMessage posts message to a group.
func (c *Client) SendGroupMessage(ctx context.Context, groupID int64, message onebot.Message) (int64, error) {
	return c.sendMessage(ctx, onebot.SendGroupMsg(groupID, message))
}

// SendPrivateMessage sends message to a user.
func (c *Client) SendPrivateMessage(ctx context.Context, userID int64, message onebot.Message) (int64, error) {
	return c.sendMessage(ctx, onebot.SendPrivateMsg(userID, message))
}

// Reply sends message to the chat ev came from: the group for group
// messages, the sender otherwise.
func (c *Client) Reply(ctx context.Context, ev *onebot.MessageEvent, message onebot.Message) (int64, error) {
	if ev.IsGroup() {
		return c.SendGroupMessage(ctx, ev.GroupID, message)
	}
	return c.SendPrivateMessage(ctx, ev.UserID, message)
}

// ReplyText is Reply with a single text segment.
func (c *Client) ReplyText(ctx context.Context, ev *onebot.MessageEvent, text string) (int64, error) {
	return c.Reply(ctx, ev, onebot.Message{onebot.Text(text)})
}

// ReplyRecord sends a voice clip to the chat ev came from.
func (c *Client) ReplyRecord(ctx context.Context, ev *onebot.MessageEvent, file string) (int64, error) {
	return c.Reply(ctx, ev, onebot.Message{onebot.Record(file)})
}

// ReplyVideo sends a video to the chat ev came from.
func (c *Client) ReplyVideo(ctx context.Context, ev *onebot.MessageEvent, file string) (int64, error) {
	return c.Reply(ctx, ev, onebot.Message{onebot.Video(file)})
}

// DeleteMessage recalls a message.
func (c *Client) DeleteMessage(ctx context.Context, messageID int64) error {
	_, err := c.Call(ctx, onebot.DeleteMsg(messageID))
	return err
}

// GetLoginInfo returns the bot account.
func (c *Client) GetLoginInfo(ctx context.Context) (*LoginInfo, error) {
	var info LoginInfo
	if err := c.callInto(ctx, onebot.GetLoginInfo(), &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// GetGroupInfo returns group metadata.
func (c *Client) GetGroupInfo(ctx context.Context, groupID int64) (*GroupInfo, error) {
	var info GroupInfo
	if err := c.callInto(ctx, onebot.GetGroupInfo(groupID), &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// GetGroupMemberInfo returns a member profile. noCache asks the bridge to
// refresh it.
func (c *Client) GetGroupMemberInfo(ctx context.Context, groupID, userID int64, noCache bool) (*GroupMember, error) {
	var member GroupMember
	if err := c.callInto(ctx, onebot.GetGroupMemberInfo(groupID, userID, noCache), &member); err != nil {
		return nil, err
	}
	return &member, nil
}

// UploadGroupFile uploads a file on the bridge host to a group folder.
// An empty folder means the root.
func (c *Client) UploadGroupFile(ctx context.Context, groupID int64, file, name, folder string) error {
	_, err := c.Call(ctx, onebot.UploadGroupFile(groupID, file, name, folder))
	return err
}

// UploadPrivateFile sends a file on the bridge host to a user.
func (c *Client) UploadPrivateFile(ctx context.Context, userID int64, file, name string) error {
	_, err := c.Call(ctx, onebot.UploadPrivateFile(userID, file, name))
	return err
}
