// ABOUTME: Audit recording for transport lifecycle hooks
// ABOUTME: Connects, disconnects and rejected upgrades become ledger rows

package gateway

import (
	"context"
	"net/http"

	"github.com/2389/onebot-gateway/internal/reversews"
	"github.com/2389/onebot-gateway/internal/store"
)

// recordEvent saves an audit event. Failures are logged, never returned;
// the ledger must not affect bridge traffic.
func (g *Gateway) recordEvent(ctx context.Context, event *store.AuditEvent) {
	if err := g.store.RecordEvent(context.WithoutCancel(ctx), event); err != nil {
		g.logger.Error("recording audit event", "kind", event.Kind, "error", err)
	}
}

// registerAuditHooks records transport lifecycle events.
func (g *Gateway) registerAuditHooks() {
	g.transport.OnConnect(func(ctx context.Context, info reversews.ConnectionInfo) {
		g.recordEvent(ctx, &store.AuditEvent{
			Kind:         store.KindBridgeConnected,
			ConnectionID: info.ID,
			SelfID:       info.SelfID,
			Detail: map[string]any{
				"remote_addr": info.RemoteAddr,
				"role":        info.Role,
				"subject":     info.Subject,
			},
		})
	})

	g.transport.OnDisconnect(func(ctx context.Context, info reversews.ConnectionInfo, cause error) {
		detail := map[string]any{"remote_addr": info.RemoteAddr}
		if cause != nil {
			detail["cause"] = cause.Error()
		}
		g.recordEvent(ctx, &store.AuditEvent{
			Kind:         store.KindBridgeDisconnected,
			ConnectionID: info.ID,
			SelfID:       info.SelfID,
			Detail:       detail,
		})
	})

	g.transport.OnReject(func(r *http.Request, cause error) {
		detail := map[string]any{
			"remote_addr": r.RemoteAddr,
			"reason":      cause.Error(),
		}
		g.recordEvent(r.Context(), &store.AuditEvent{
			Kind:   store.KindBridgeRejected,
			Detail: detail,
		})
	})
}
