// ABOUTME: Package sessiongate serializes agent turns per session key
// ABOUTME: One active holder per key, bounded FIFO waiters, fast overflow rejection

// Package sessiongate is a keyed admission gate.
//
// # Overview
//
// A Gate guarantees at most one outstanding Ticket per session key while
// different keys proceed in parallel. Callers that find a key busy wait in a
// per-key FIFO queue. When that queue already holds Options.MaxQueue waiters
// the next caller is rejected immediately with an *OverflowError, which
// matches ErrOverflow under errors.Is.
//
// # Reservations
//
// Acquire is Reserve followed by Wait. Splitting the two lets a caller fix its
// queue position synchronously (for example on a connection's dispatch
// goroutine, which preserves arrival order) and do the blocking wait on a
// worker goroutine:
//
//	res, err := gate.Reserve(key)
//	if errors.Is(err, sessiongate.ErrOverflow) {
//		// tell the user to try later
//	}
//	go func() {
//		ticket, err := res.Wait(ctx)
//		if err != nil {
//			return
//		}
//		defer ticket.Release()
//		// run the turn
//	}()
//
// Per-key state is created lazily and lives as long as the Gate.
package sessiongate
