// ABOUTME: Audit ledger interface, event model and the no-op implementation
// ABOUTME: Kinds cover bridge lifecycle, admission overflow and delivery failures

package store

import (
	"context"
	"errors"
	"time"
)

// ErrInvalidKind is returned when recording an event with an unknown kind.
var ErrInvalidKind = errors.New("invalid audit event kind")

// EventKind classifies an audit event.
type EventKind string

const (
	KindBridgeConnected    EventKind = "bridge_connected"
	KindBridgeDisconnected EventKind = "bridge_disconnected"
	KindBridgeRejected     EventKind = "bridge_rejected"
	KindAdmissionOverflow  EventKind = "admission_overflow"
	KindDeliveryFailed     EventKind = "delivery_failed"
)

// ValidKinds lists every recordable kind.
var ValidKinds = []EventKind{
	KindBridgeConnected,
	KindBridgeDisconnected,
	KindBridgeRejected,
	KindAdmissionOverflow,
	KindDeliveryFailed,
}

// Valid reports whether k is a known kind.
func (k EventKind) Valid() bool {
	for _, v := range ValidKinds {
		if k == v {
			return true
		}
	}
	return false
}

// AuditEvent is one ledger row.
type AuditEvent struct {
	ID           string         `json:"id"`
	Kind         EventKind      `json:"kind"`
	ConnectionID string         `json:"connection_id,omitempty"`
	SelfID       int64          `json:"self_id,omitempty"`
	SessionKey   string         `json:"session_key,omitempty"`
	Detail       map[string]any `json:"detail,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
}

// EventFilter narrows ListEvents.
type EventFilter struct {
	Kind       EventKind // empty matches every kind
	SessionKey string    // empty matches every session
	Limit      int       // default 100, max 1000
}

// Store records and lists audit events.
type Store interface {
	RecordEvent(ctx context.Context, e *AuditEvent) error
	ListEvents(ctx context.Context, f EventFilter) ([]*AuditEvent, error)
	Close() error
}

// normalizeLimit applies the default (100) and cap (1000).
func normalizeLimit(limit int) int {
	switch {
	case limit <= 0:
		return 100
	case limit > 1000:
		return 1000
	default:
		return limit
	}
}

// Nop is a Store that keeps nothing.
type Nop struct{}

var _ Store = Nop{}

// RecordEvent validates the kind and discards the event.
func (Nop) RecordEvent(_ context.Context, e *AuditEvent) error {
	if !e.Kind.Valid() {
		return ErrInvalidKind
	}
	return nil
}

// ListEvents always returns an empty list.
func (Nop) ListEvents(context.Context, EventFilter) ([]*AuditEvent, error) {
	return []*AuditEvent{}, nil
}

// Close is a no-op.
func (Nop) Close() error { return nil }
