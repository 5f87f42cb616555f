// ABOUTME: Keyed admission gate with per-key locking and FIFO hand-off
// ABOUTME: Reserve fixes queue position without blocking; Wait blocks until granted

package sessiongate

import (
	"container/list"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/puzpuzpuz/xsync/v3"
)

// ErrOverflow is matched by *OverflowError.
var ErrOverflow = errors.New("session queue is full")

// ErrReservationUsed is returned when Wait or Cancel is called on a
// reservation that was already waited on or cancelled.
var ErrReservationUsed = errors.New("reservation already used")

// OverflowError is returned when a key's wait queue is at capacity.
type OverflowError struct {
	Key      string
	MaxQueue int
}

func (e *OverflowError) Error() string {
	return fmt.Sprintf("session %q is busy: %d turns already queued", e.Key, e.MaxQueue)
}

// Is makes errors.Is(err, ErrOverflow) true.
func (e *OverflowError) Is(target error) bool {
	return target == ErrOverflow
}

// Unbounded disables the per-key queue limit.
const Unbounded = -1

// Options configures a Gate.
type Options struct {
	// MaxQueue is the number of waiters allowed per key in addition to the
	// active holder. Zero rejects every turn while the key is held; a
	// negative value (Unbounded) never rejects.
	MaxQueue int
	Logger   *slog.Logger
}

// KeyStats describes one key's admission state.
type KeyStats struct {
	Key    string `json:"key"`
	Active bool   `json:"active"`
	Queued int    `json:"queued"`
}

// Gate admits at most one turn per key at a time.
type Gate struct {
	maxQueue int
	logger   *slog.Logger
	keys     *xsync.MapOf[string, *keyState]
}

type keyState struct {
	mu      sync.Mutex
	active  bool
	waiters *list.List
}

type waiter struct {
	ready   chan struct{}
	elem    *list.Element
	granted bool
}

// New creates a Gate.
func New(opts Options) *Gate {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Gate{
		maxQueue: opts.MaxQueue,
		logger:   logger.With("component", "sessiongate"),
		keys:     xsync.NewMapOf[string, *keyState](),
	}
}

// MaxQueue returns the configured per-key queue limit.
func (g *Gate) MaxQueue() int {
	return g.maxQueue
}

func (g *Gate) state(key string) *keyState {
	st, _ := g.keys.LoadOrCompute(key, func() *keyState {
		return &keyState{waiters: list.New()}
	})
	return st
}

// Reserve claims the key or a place in its queue without blocking. It returns
// an *OverflowError when the queue is full.
func (g *Gate) Reserve(key string) (*Reservation, error) {
	st := g.state(key)

	st.mu.Lock()
	defer st.mu.Unlock()

	if !st.active {
		st.active = true
		g.logger.Debug("session admitted", "session_key", key)
		return &Reservation{gate: g, key: key, state: st}, nil
	}

	if g.maxQueue >= 0 && st.waiters.Len() >= g.maxQueue {
		g.logger.Warn("session queue full, rejecting turn",
			"session_key", key,
			"max_queue", g.maxQueue,
		)
		return nil, &OverflowError{Key: key, MaxQueue: g.maxQueue}
	}

	w := &waiter{ready: make(chan struct{})}
	w.elem = st.waiters.PushBack(w)
	g.logger.Debug("session busy, turn queued",
		"session_key", key,
		"position", st.waiters.Len(),
	)
	return &Reservation{gate: g, key: key, state: st, w: w}, nil
}

// Acquire blocks until the key is granted, the queue overflows, or ctx is done.
func (g *Gate) Acquire(ctx context.Context, key string) (*Ticket, error) {
	res, err := g.Reserve(key)
	if err != nil {
		return nil, err
	}
	return res.Wait(ctx)
}

// release hands the slot to the queue head or frees the key.
func (g *Gate) release(key string, st *keyState) {
	st.mu.Lock()
	defer st.mu.Unlock()

	if front := st.waiters.Front(); front != nil {
		w := st.waiters.Remove(front).(*waiter)
		w.elem = nil
		w.granted = true
		close(w.ready)
		g.logger.Debug("session handed to next turn",
			"session_key", key,
			"remaining", st.waiters.Len(),
		)
		return
	}
	st.active = false
}

// abandon removes a queued waiter. It returns false if the waiter was granted
// the slot first, in which case the caller owns it.
func (g *Gate) abandon(st *keyState, w *waiter) bool {
	st.mu.Lock()
	defer st.mu.Unlock()

	if w.granted {
		return false
	}
	if w.elem != nil {
		st.waiters.Remove(w.elem)
		w.elem = nil
	}
	return true
}

// Stats reports the state of one key.
func (g *Gate) Stats(key string) KeyStats {
	st, ok := g.keys.Load(key)
	if !ok {
		return KeyStats{Key: key}
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	return KeyStats{Key: key, Active: st.active, Queued: st.waiters.Len()}
}

// Snapshot returns the stats of every busy key, sorted by key.
func (g *Gate) Snapshot() []KeyStats {
	var out []KeyStats
	g.keys.Range(func(key string, _ *keyState) bool {
		if s := g.Stats(key); s.Active || s.Queued > 0 {
			out = append(out, s)
		}
		return true
	})
	slices.SortFunc(out, func(a, b KeyStats) int {
		return strings.Compare(a.Key, b.Key)
	})
	return out
}

// Reservation is a claim on a key returned by Reserve. It is either already
// granted or holds a place in the key's queue. Exactly one of Wait or Cancel
// should be called.
type Reservation struct {
	gate  *Gate
	key   string
	state *keyState
	w     *waiter // nil when granted by Reserve
	used  atomic.Bool
}

// Key returns the session key.
func (r *Reservation) Key() string {
	return r.key
}

// Queued reports whether the reservation had to join the queue.
func (r *Reservation) Queued() bool {
	return r.w != nil
}

// Wait blocks until the reservation is granted or ctx is done. On
// cancellation the waiter leaves the queue without disturbing the order of
// the others.
func (r *Reservation) Wait(ctx context.Context) (*Ticket, error) {
	if !r.used.CompareAndSwap(false, true) {
		return nil, ErrReservationUsed
	}
	if r.w == nil {
		return r.ticket(), nil
	}

	select {
	case <-r.w.ready:
		return r.ticket(), nil
	case <-ctx.Done():
		if !r.gate.abandon(r.state, r.w) {
			r.ticket().Release()
		}
		r.gate.logger.Debug("queued turn abandoned", "session_key", r.key, "error", ctx.Err())
		return nil, ctx.Err()
	}
}

// Cancel gives up the reservation. A slot that was already granted is passed
// to the next waiter.
func (r *Reservation) Cancel() {
	if !r.used.CompareAndSwap(false, true) {
		return
	}
	if r.w == nil || !r.gate.abandon(r.state, r.w) {
		r.ticket().Release()
	}
}

func (r *Reservation) ticket() *Ticket {
	return &Ticket{gate: r.gate, key: r.key, state: r.state}
}

// Ticket is the active slot for a key. Release must be called exactly once;
// further calls are no-ops.
type Ticket struct {
	gate  *Gate
	key   string
	state *keyState
	once  sync.Once
}

// Key returns the session key.
func (t *Ticket) Key() string {
	return t.key
}

// Release frees the slot or hands it to the next queued turn.
func (t *Ticket) Release() {
	t.once.Do(func() {
		t.gate.release(t.key, t.state)
	})
}
