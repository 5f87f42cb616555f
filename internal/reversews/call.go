// ABOUTME: Correlated action calls: echo assignment, pending table, timeouts
// ABOUTME: Responses are matched purely by echo and may arrive in any order

package reversews

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/2389/onebot-gateway/internal/onebot"
)

// pendingCall is an in-flight action awaiting its response. Whoever removes
// it from the pending table owns the single send on done.
type pendingCall struct {
	connID string
	action string
	sentAt time.Time
	done   chan callResult
}

type callResult struct {
	resp *onebot.ActionResponse
	err  error
}

// SendAction sends action to the earliest-connected open bridge and waits for
// the response with the same echo. A timeout <= 0 uses Config.ActionTimeout.
//
// It fails immediately with ErrNoConnection when no bridge is open, with a
// *CallTimeoutError when the response does not arrive in time, and with
// ctx.Err() when ctx is done first. A response with a failed status is
// returned as is; check ActionResponse.OK. The caller's action is not
// modified.
func (s *Server) SendAction(ctx context.Context, action *onebot.Action, timeout time.Duration) (*onebot.ActionResponse, error) {
	c := s.primary()
	if c == nil {
		return nil, ErrNoConnection
	}
	if timeout <= 0 {
		timeout = s.cfg.ActionTimeout
	}

	echo := strconv.FormatUint(s.echoSeq.Add(1), 10)
	outgoing := *action
	outgoing.Echo = echo
	data, err := outgoing.Marshal()
	if err != nil {
		return nil, fmt.Errorf("encoding action %s: %w", action.Name, err)
	}

	call := &pendingCall{
		connID: c.id,
		action: action.Name,
		sentAt: time.Now(),
		done:   make(chan callResult, 1),
	}
	s.pending.Store(echo, call)

	if err := c.writeText(data); err != nil {
		s.pending.Delete(echo)
		if !errors.Is(err, ErrConnectionClosed) {
			// A failed write leaves the socket unusable.
			c.terminate()
		}
		return nil, &TransportIOError{ConnectionID: c.id, Op: "write", Err: err}
	}

	s.logger.Debug("action sent",
		"connection_id", c.id,
		"action", action.Name,
		"echo", echo,
	)

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case res := <-call.done:
		return res.resp, res.err
	case <-timer.C:
		if res, ok := s.abandon(echo, call); ok {
			return res.resp, res.err
		}
		s.logger.Warn("action timed out",
			"connection_id", c.id,
			"action", action.Name,
			"echo", echo,
			"timeout", timeout,
		)
		return nil, &CallTimeoutError{Action: action.Name, Echo: echo, Timeout: timeout}
	case <-ctx.Done():
		if res, ok := s.abandon(echo, call); ok {
			return res.resp, res.err
		}
		return nil, ctx.Err()
	}
}

// abandon removes a pending call. If the call was completed concurrently it
// returns that result instead.
func (s *Server) abandon(echo string, call *pendingCall) (callResult, bool) {
	if _, removed := s.pending.LoadAndDelete(echo); removed {
		return callResult{}, false
	}
	return <-call.done, true
}

// resolve completes the pending call matching resp.Echo. Responses nobody is
// waiting for (late or foreign) are discarded.
func (s *Server) resolve(c *Connection, resp *onebot.ActionResponse) {
	call, ok := s.pending.LoadAndDelete(resp.Echo)
	if !ok {
		s.logger.Debug("discarding response with no pending call",
			"connection_id", c.id,
			"echo", resp.Echo,
		)
		return
	}
	s.logger.Debug("action completed",
		"connection_id", c.id,
		"action", call.action,
		"echo", resp.Echo,
		"status", resp.Status,
		"elapsed", time.Since(call.sentAt),
	)
	call.done <- callResult{resp: resp}
}

// failPending fails every call written to connID. It returns the number failed.
func (s *Server) failPending(connID string) int {
	failed := 0
	s.pending.Range(func(echo string, call *pendingCall) bool {
		if call.connID != connID {
			return true
		}
		if _, ok := s.pending.LoadAndDelete(echo); ok {
			call.done <- callResult{err: &TransportIOError{
				ConnectionID: connID,
				Op:           "read",
				Err:          ErrConnectionClosed,
			}}
			failed++
		}
		return true
	})
	return failed
}

// PendingCount returns the number of calls awaiting a response.
func (s *Server) PendingCount() int {
	return s.pending.Size()
}
