// Package reversews implements the OneBot v11 reverse WebSocket server.
//
// # Overview
//
// In a reverse connection the bridge (go-cqhttp, NapCat, Lagrange, ...) dials
// the gateway. The Server accepts the upgrade, authenticates it, then reads
// frames in a per-connection receive loop:
//
//   - frames with post_type are events, decoded by package onebot and handed
//     to the registered handlers;
//   - frames with echo and no post_type are action responses, matched to the
//     waiting SendAction call;
//   - anything else is logged with a short preview and dropped.
//
// # Actions
//
// SendAction assigns a fresh echo, writes the action to the earliest
// connected open bridge and waits for the matching response:
//
//	resp, err := srv.SendAction(ctx, onebot.SendGroupMsg(777, msg), 10*time.Second)
//	switch {
//	case errors.Is(err, reversews.ErrNoConnection): // no bridge, returned at once
//	case errors.Is(err, reversews.ErrCallTimeout):  // no answer in time
//	case errors.Is(err, reversews.ErrTransportIO):  // socket failed under the call
//	}
//
// Many calls may be outstanding; responses are matched by echo only, so they
// may arrive in any order. A response arriving after its call timed out is
// discarded.
//
// # Dispatch
//
// Each connection owns a dispatcher goroutine fed by an unbounded FIFO.
// Handlers for one connection run one at a time in arrival order, and a slow
// handler never blocks the socket reader, so a handler may itself call
// SendAction. Handler errors and panics are logged and do not affect the
// connection.
//
// # Lifecycle
//
// Connections move Connecting, Open, Closing, Closed. A connection is in
// the registry only while its receive loop runs. Stop sends close frames to
// every bridge concurrently, waits up to Config.StopTimeout, then disposes
// what is left.
package reversews
