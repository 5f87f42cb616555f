// ABOUTME: Package qq connects OneBot message events to an agent backend
// ABOUTME: Typed client calls plus the admission-gated message adapter

// Package qq is the upstream consumer of the reverse WebSocket transport.
//
// Client wraps any ActionSender (normally *reversews.Server) with typed
// OneBot calls. Adapter filters incoming message events, admits each one
// through a sessiongate.Gate keyed by chat, runs the agent, and streams the
// reply back to the chat it came from. Messages that would overflow a busy
// session are answered with a short notice and dropped.
package qq
