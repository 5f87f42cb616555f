// ABOUTME: Routes inbound bridge events from the transport to the QQ adapter
// ABOUTME: Lifecycle meta events are logged; everything else is left to other handlers

package gateway

import (
	"context"
	"time"

	"github.com/2389/onebot-gateway/internal/onebot"
	"github.com/2389/onebot-gateway/internal/reversews"
)

// loginLookupTimeout bounds the get_login_info call made for bridges that
// connect without X-Self-ID.
const loginLookupTimeout = 5 * time.Second

// registerBridgeHandlers subscribes the adapter to message events.
func (g *Gateway) registerBridgeHandlers() {
	g.transport.OnMessage(g.adapter.HandleMessage)

	g.transport.OnMetaEvent(func(ctx context.Context, ev *onebot.MetaEvent) error {
		if ev.IsLifecycle() {
			g.logger.Info("bridge lifecycle event",
				"connection_id", reversews.ConnectionIDFromContext(ctx),
				"self_id", ev.SelfID,
				"sub_type", ev.SubType,
			)
		}
		return nil
	})

	g.transport.OnConnect(func(ctx context.Context, info reversews.ConnectionInfo) {
		// Bridges that omit X-Self-ID still answer get_login_info. With more
		// than one bridge the call could land on another connection.
		if info.SelfID != 0 || g.transport.ConnectionCount() != 1 {
			return
		}
		// Off the dispatch goroutine: a silent bridge must not hold up its events.
		go g.lookupLogin(ctx, info)
	})
}

func (g *Gateway) lookupLogin(ctx context.Context, info reversews.ConnectionInfo) {
	ctx, cancel := context.WithTimeout(ctx, loginLookupTimeout)
	defer cancel()

	login, err := g.client.GetLoginInfo(ctx)
	if err != nil {
		g.logger.Debug("login info unavailable", "connection_id", info.ID, "error", err)
		return
	}
	g.logger.Info("bridge account", "connection_id", info.ID, "self_id", login.UserID, "nickname", login.Nickname)
}
