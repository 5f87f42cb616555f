// ABOUTME: Admin HTTP API handlers for connections, sessions, audit events and raw actions
// ABOUTME: JSON in and out; transport errors map to 503/504/502

package gateway

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/tidwall/gjson"

	"github.com/2389/onebot-gateway/internal/auth"
	"github.com/2389/onebot-gateway/internal/onebot"
	"github.com/2389/onebot-gateway/internal/reversews"
	"github.com/2389/onebot-gateway/internal/sessiongate"
	"github.com/2389/onebot-gateway/internal/store"
)

// maxActionBody bounds POST /api/actions request bodies.
const maxActionBody = 1 << 20

// ConnectionsResponse is the JSON response for GET /api/connections.
type ConnectionsResponse struct {
	Connections    []reversews.ConnectionInfo `json:"connections"`
	PendingActions int                        `json:"pending_actions"`
}

// SessionsResponse is the JSON response for GET /api/sessions.
type SessionsResponse struct {
	MaxQueue int                    `json:"max_queue"`
	Sessions []sessiongate.KeyStats `json:"sessions"`
}

// EventsResponse is the JSON response for GET /api/events.
type EventsResponse struct {
	Events []*store.AuditEvent `json:"events"`
}

// ActionResult is the JSON response for POST /api/actions.
type ActionResult struct {
	Status  string          `json:"status"`
	RetCode int             `json:"retcode"`
	Data    json.RawMessage `json:"data,omitempty"`
	Echo    string          `json:"echo"`
	Message string          `json:"message,omitempty"`
	Wording string          `json:"wording,omitempty"`
}

// handleConnections handles GET /api/connections.
func (g *Gateway) handleConnections(w http.ResponseWriter, r *http.Request) {
	conns := g.transport.Connections()
	if conns == nil {
		conns = []reversews.ConnectionInfo{}
	}
	g.writeJSON(w, http.StatusOK, ConnectionsResponse{
		Connections:    conns,
		PendingActions: g.transport.PendingCount(),
	})
}

// handleSessions handles GET /api/sessions. Only busy sessions are listed.
func (g *Gateway) handleSessions(w http.ResponseWriter, r *http.Request) {
	sessions := g.gate.Snapshot()
	if sessions == nil {
		sessions = []sessiongate.KeyStats{}
	}
	g.writeJSON(w, http.StatusOK, SessionsResponse{
		MaxQueue: g.gate.MaxQueue(),
		Sessions: sessions,
	})
}

// handleEvents handles GET /api/events.
func (g *Gateway) handleEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	filter := store.EventFilter{
		Kind:       store.EventKind(q.Get("kind")),
		SessionKey: q.Get("session_key"),
	}
	if filter.Kind != "" && !filter.Kind.Valid() {
		g.sendJSONError(w, http.StatusBadRequest, "unknown event kind")
		return
	}
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			g.sendJSONError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		filter.Limit = limit
	}

	events, err := g.store.ListEvents(r.Context(), filter)
	if err != nil {
		g.logger.Error("listing audit events", "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "failed to list events")
		return
	}
	if events == nil {
		events = []*store.AuditEvent{}
	}
	g.writeJSON(w, http.StatusOK, EventsResponse{Events: events})
}

// handleAction handles POST /api/actions. The body is a OneBot action
// envelope ({"action": ..., "params": {...}}) with an optional "timeout"
// duration string.
func (g *Gateway) handleAction(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxActionBody))
	if err != nil {
		g.sendJSONError(w, http.StatusBadRequest, "failed to read body")
		return
	}

	action, err := onebot.ParseAction(body)
	if err != nil {
		g.sendJSONError(w, http.StatusBadRequest, "body must be an action envelope with a non-empty action")
		return
	}
	action.Echo = ""

	var timeout time.Duration
	if raw := gjson.GetBytes(body, "timeout"); raw.Exists() {
		timeout, err = time.ParseDuration(raw.String())
		if err != nil || timeout <= 0 {
			g.sendJSONError(w, http.StatusBadRequest, "timeout must be a positive duration")
			return
		}
	}

	caller := "anonymous"
	if id := auth.FromContext(r.Context()); id != nil && id.Subject != "" {
		caller = id.Subject
	}
	g.logger.Debug("admin action", "action", action.Name, "caller", caller)

	resp, err := g.transport.SendAction(r.Context(), action, timeout)
	switch {
	case err == nil:
	case errors.Is(err, reversews.ErrNoConnection):
		g.sendJSONError(w, http.StatusServiceUnavailable, "no bridge connected")
		return
	case errors.Is(err, reversews.ErrCallTimeout):
		g.sendJSONError(w, http.StatusGatewayTimeout, err.Error())
		return
	default:
		g.logger.Warn("admin action failed", "action", action.Name, "caller", caller, "error", err)
		g.sendJSONError(w, http.StatusBadGateway, err.Error())
		return
	}

	g.writeJSON(w, http.StatusOK, ActionResult{
		Status:  resp.Status,
		RetCode: resp.RetCode,
		Data:    resp.Data,
		Echo:    resp.Echo,
		Message: resp.Message,
		Wording: resp.Wording,
	})
}

func (g *Gateway) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		g.logger.Debug("writing response", "error", err)
	}
}

// sendJSONError writes a JSON error response.
func (g *Gateway) sendJSONError(w http.ResponseWriter, status int, message string) {
	g.writeJSON(w, status, map[string]string{"error": message})
}
