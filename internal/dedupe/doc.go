// Package dedupe filters message events that a bridge delivers more than once.
//
// Bridges may resend an event after a reconnect, and several bridges logged
// into the same account report the same message. A Window remembers which
// (self_id, message_id) pairs were observed recently:
//
//	w := dedupe.New(5*time.Minute, 10000)
//	if w.Observe(dedupe.KeyOf(ev)) {
//		return // duplicate
//	}
//
// Entries expire after the TTL and the oldest entry is evicted when the window
// is full. Expired entries are swept lazily on each Observe, so there is no
// background goroutine to stop.
package dedupe
