// ABOUTME: Sliding TTL window of recently seen message ids
// ABOUTME: Insertion-ordered list gives O(1) eviction and lazy expiry sweeps

package dedupe

import (
	"container/list"
	"fmt"
	"sync"
	"time"

	"github.com/2389/onebot-gateway/internal/onebot"
)

// Key identifies a message as seen by one bot account.
type Key struct {
	SelfID    int64
	MessageID int64
}

func (k Key) String() string {
	return fmt.Sprintf("%d:%d", k.SelfID, k.MessageID)
}

// KeyOf returns the dedupe key of a message event.
func KeyOf(ev *onebot.MessageEvent) Key {
	return Key{SelfID: ev.SelfID, MessageID: ev.MessageID}
}

type entry struct {
	key    Key
	seenAt time.Time
}

// Window is a thread-safe, TTL and size bounded set of recently seen keys.
type Window struct {
	mu      sync.Mutex
	entries map[Key]*list.Element
	order   *list.List // *entry, oldest at front
	ttl     time.Duration
	maxSize int
	now     func() time.Time
}

// New creates a Window. A non-positive maxSize means no size bound.
func New(ttl time.Duration, maxSize int) *Window {
	return &Window{
		entries: make(map[Key]*list.Element),
		order:   list.New(),
		ttl:     ttl,
		maxSize: maxSize,
		now:     time.Now,
	}
}

// Observe records key and reports whether it was already seen within the TTL.
// Check and record happen under one lock, so concurrent callers with the same
// key see exactly one false.
func (w *Window) Observe(key Key) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.now()
	w.sweepLocked(now)

	if _, ok := w.entries[key]; ok {
		return true
	}

	if w.maxSize > 0 && len(w.entries) >= w.maxSize {
		w.removeLocked(w.order.Front())
	}
	w.entries[key] = w.order.PushBack(&entry{key: key, seenAt: now})
	return false
}

// Contains reports whether key was seen within the TTL without recording it.
func (w *Window) Contains(key Key) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	elem, ok := w.entries[key]
	if !ok {
		return false
	}
	return w.now().Sub(elem.Value.(*entry).seenAt) < w.ttl
}

// Len returns the number of tracked keys, including ones not yet swept.
func (w *Window) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.entries)
}

// sweepLocked drops expired entries from the front. Entries are appended in
// time order, so the scan stops at the first live one.
func (w *Window) sweepLocked(now time.Time) {
	for front := w.order.Front(); front != nil; front = w.order.Front() {
		if now.Sub(front.Value.(*entry).seenAt) < w.ttl {
			return
		}
		w.removeLocked(front)
	}
}

func (w *Window) removeLocked(elem *list.Element) {
	if elem == nil {
		return
	}
	e := w.order.Remove(elem).(*entry)
	delete(w.entries, e.key)
}
