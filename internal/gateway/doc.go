// Package gateway wires the onebot-gateway components together.
//
// # Overview
//
// A Gateway owns the reverse WebSocket transport, the per-session admission
// gate, the QQ adapter, the audit store and the admin HTTP server:
//
//	bridge --ws--> reversews.Server --OnMessage--> qq.Adapter --Reserve--> sessiongate.Gate
//	                     ^                              |
//	                     +------ SendAction ------------+ (agent replies)
//
// Transport lifecycle hooks (connect, disconnect, rejected upgrade) are
// written to the audit store, as are admission overflows and failed
// deliveries reported by the adapter.
//
// # Admin API
//
// Served on server.admin_addr unless it is "-":
//
//   - GET /health - Liveness check
//   - GET /health/ready - 200 when at least one bridge is connected
//   - GET /api/connections - Connected bridges
//   - GET /api/sessions - Busy sessions from the admission gate
//   - GET /api/events?limit=N&kind=K&session_key=S - Audit ledger
//   - POST /api/actions - Raw OneBot action passthrough
//
// The /api routes require the access token (or a JWT) when one is
// configured.
//
// # Lifecycle
//
//	gw, err := gateway.New(cfg, logger, &agent.EchoAgent{})
//	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
//	defer cancel()
//	err = gw.Run(ctx) // returns after graceful shutdown
//
// # Key Files
//
//   - gateway.go: Gateway struct, initialization, Run/Shutdown, health
//   - api.go: admin API handlers
//   - bridge.go: message routing from the transport to the adapter
//   - events.go: audit recording for transport lifecycle hooks
package gateway
