// Package agent defines the contract between channel adapters and the
// reasoning backend that produces replies.
//
// # Overview
//
// An Agent receives one user turn and streams events back:
//
//	events, err := a.Run(ctx, &agent.Request{SessionKey: "qq_777", Content: "hi"})
//	for ev := range events {
//	    switch ev.Kind {
//	    case agent.EventText:     // append ev.Text
//	    case agent.EventToolCall: // show progress for ev.ToolCall
//	    case agent.EventError:    // ev.Err
//	    case agent.EventDone:
//	    }
//	}
//
// The channel is closed after EventDone or EventError. Callers serialize turns
// per session (see package sessiongate); an Agent may be called concurrently
// for different sessions.
//
// # Implementations
//
//   - EchoAgent: replies with the prompt; used by the default serve command
//     and in tests.
//   - RoundRobin: spreads turns over several backends.
package agent
