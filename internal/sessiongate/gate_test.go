// ABOUTME: Tests for the session admission gate
// ABOUTME: Covers FIFO hand-off, overflow rejection, cancellation and key isolation

package sessiongate

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func waitTicket(t *testing.T, res *Reservation) <-chan *Ticket {
	t.Helper()
	ch := make(chan *Ticket, 1)
	go func() {
		ticket, err := res.Wait(context.Background())
		if err == nil {
			ch <- ticket
		}
	}()
	return ch
}

func assertPending(t *testing.T, ch <-chan *Ticket) {
	t.Helper()
	select {
	case <-ch:
		t.Fatal("ticket granted while key was held")
	case <-time.After(30 * time.Millisecond):
	}
}

func receive(t *testing.T, ch <-chan *Ticket) *Ticket {
	t.Helper()
	select {
	case ticket := <-ch:
		return ticket
	case <-time.After(2 * time.Second):
		t.Fatal("ticket not granted")
		return nil
	}
}

func TestGate_Acquire_Immediate(t *testing.T) {
	g := New(Options{MaxQueue: 2})

	ticket, err := g.Acquire(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, "s1", ticket.Key())
	assert.Equal(t, KeyStats{Key: "s1", Active: true}, g.Stats("s1"))

	ticket.Release()
	assert.Equal(t, KeyStats{Key: "s1"}, g.Stats("s1"))
}

func TestGate_OverflowScenario(t *testing.T) {
	g := New(Options{MaxQueue: 2})

	first, err := g.Reserve("s1")
	require.NoError(t, err)
	assert.False(t, first.Queued())

	second, err := g.Reserve("s1")
	require.NoError(t, err)
	assert.True(t, second.Queued())

	third, err := g.Reserve("s1")
	require.NoError(t, err)

	_, err = g.Reserve("s1")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrOverflow)

	var overflow *OverflowError
	require.True(t, errors.As(err, &overflow))
	assert.Equal(t, "s1", overflow.Key)
	assert.Equal(t, 2, overflow.MaxQueue)

	t1, err := first.Wait(context.Background())
	require.NoError(t, err)

	ch2 := waitTicket(t, second)
	ch3 := waitTicket(t, third)
	assertPending(t, ch2)
	assertPending(t, ch3)
	assert.Equal(t, KeyStats{Key: "s1", Active: true, Queued: 2}, g.Stats("s1"))

	t1.Release()
	t2 := receive(t, ch2)
	assertPending(t, ch3)

	t2.Release()
	t3 := receive(t, ch3)
	t3.Release()

	assert.Equal(t, KeyStats{Key: "s1"}, g.Stats("s1"))
}

func TestGate_OverflowDoesNotBlock(t *testing.T) {
	g := New(Options{MaxQueue: 1})

	held, err := g.Acquire(context.Background(), "k")
	require.NoError(t, err)
	defer held.Release()

	_, err = g.Reserve("k")
	require.NoError(t, err)

	start := time.Now()
	_, err = g.Acquire(context.Background(), "k")
	assert.ErrorIs(t, err, ErrOverflow)
	assert.Less(t, time.Since(start), 100*time.Millisecond)
}

func TestGate_FIFOOrder(t *testing.T) {
	g := New(Options{MaxQueue: Unbounded})

	held, err := g.Acquire(context.Background(), "k")
	require.NoError(t, err)

	const n = 10
	var (
		mu    sync.Mutex
		order []int
		wg    sync.WaitGroup
	)
	for i := 0; i < n; i++ {
		res, err := g.Reserve("k")
		require.NoError(t, err)
		wg.Add(1)
		go func(i int, res *Reservation) {
			defer wg.Done()
			ticket, err := res.Wait(context.Background())
			if err != nil {
				return
			}
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			ticket.Release()
		}(i, res)
	}

	assert.Equal(t, n, g.Stats("k").Queued)
	held.Release()
	wg.Wait()

	expected := make([]int, n)
	for i := range expected {
		expected[i] = i
	}
	assert.Equal(t, expected, order)
}

func TestGate_IndependentKeys(t *testing.T) {
	g := New(Options{MaxQueue: 1})

	k1, err := g.Acquire(context.Background(), "k1")
	require.NoError(t, err)
	defer k1.Release()

	queued, err := g.Reserve("k1")
	require.NoError(t, err)
	defer queued.Cancel()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	k2, err := g.Acquire(ctx, "k2")
	require.NoError(t, err)
	k2.Release()
}

func TestGate_WaitCancelled(t *testing.T) {
	g := New(Options{MaxQueue: 3})

	held, err := g.Acquire(context.Background(), "k")
	require.NoError(t, err)

	a, err := g.Reserve("k")
	require.NoError(t, err)
	b, err := g.Reserve("k")
	require.NoError(t, err)
	c, err := g.Reserve("k")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := b.Wait(ctx)
		errCh <- err
	}()

	cancel()
	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("cancelled wait did not return")
	}
	assert.Equal(t, 2, g.Stats("k").Queued)

	chA := waitTicket(t, a)
	chC := waitTicket(t, c)

	held.Release()
	ta := receive(t, chA)
	assertPending(t, chC)
	ta.Release()
	receive(t, chC).Release()

	assert.Equal(t, KeyStats{Key: "k"}, g.Stats("k"))
}

func TestGate_AcquireContextTimeout(t *testing.T) {
	g := New(Options{MaxQueue: Unbounded})

	held, err := g.Acquire(context.Background(), "k")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err = g.Acquire(ctx, "k")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 0, g.Stats("k").Queued)

	held.Release()
	assert.False(t, g.Stats("k").Active)
}

func TestReservation_CancelGrantedPassesSlot(t *testing.T) {
	g := New(Options{MaxQueue: Unbounded})

	held, err := g.Acquire(context.Background(), "k")
	require.NoError(t, err)

	next, err := g.Reserve("k")
	require.NoError(t, err)
	last, err := g.Reserve("k")
	require.NoError(t, err)

	// next is granted by this release but never waits.
	held.Release()
	next.Cancel()

	ticket, err := last.Wait(context.Background())
	require.NoError(t, err)
	ticket.Release()
	assert.False(t, g.Stats("k").Active)
}

func TestReservation_CancelImmediateGrant(t *testing.T) {
	g := New(Options{MaxQueue: Unbounded})

	res, err := g.Reserve("k")
	require.NoError(t, err)
	assert.True(t, g.Stats("k").Active)

	res.Cancel()
	assert.False(t, g.Stats("k").Active)

	_, err = res.Wait(context.Background())
	assert.ErrorIs(t, err, ErrReservationUsed)
}

func TestTicket_ReleaseIdempotent(t *testing.T) {
	g := New(Options{MaxQueue: Unbounded})

	first, err := g.Acquire(context.Background(), "k")
	require.NoError(t, err)

	second, err := g.Reserve("k")
	require.NoError(t, err)
	third, err := g.Reserve("k")
	require.NoError(t, err)

	first.Release()
	first.Release()

	t2, err := second.Wait(context.Background())
	require.NoError(t, err)

	// A double release must not grant third while second still holds the key.
	assert.Equal(t, KeyStats{Key: "k", Active: true, Queued: 1}, g.Stats("k"))

	t2.Release()
	t3, err := third.Wait(context.Background())
	require.NoError(t, err)
	t3.Release()
}

func TestGate_AtMostOneHolder(t *testing.T) {
	g := New(Options{MaxQueue: Unbounded})

	var (
		active  int32
		maxSeen int32
		mu      sync.Mutex
		wg      sync.WaitGroup
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ticket, err := g.Acquire(context.Background(), "shared")
			if err != nil {
				return
			}
			mu.Lock()
			active++
			if active > maxSeen {
				maxSeen = active
			}
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			active--
			mu.Unlock()
			ticket.Release()
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxSeen)
	assert.Equal(t, KeyStats{Key: "shared"}, g.Stats("shared"))
}

func TestGate_Snapshot(t *testing.T) {
	g := New(Options{MaxQueue: Unbounded})

	b, err := g.Acquire(context.Background(), "b")
	require.NoError(t, err)
	a, err := g.Acquire(context.Background(), "a")
	require.NoError(t, err)
	queued, err := g.Reserve("a")
	require.NoError(t, err)

	idle, err := g.Acquire(context.Background(), "idle")
	require.NoError(t, err)
	idle.Release()

	assert.Equal(t, []KeyStats{
		{Key: "a", Active: true, Queued: 1},
		{Key: "b", Active: true},
	}, g.Snapshot())

	queued.Cancel()
	a.Release()
	b.Release()
	assert.Empty(t, g.Snapshot())
}

func TestOverflowError_Message(t *testing.T) {
	err := &OverflowError{Key: "qq_1", MaxQueue: 4}
	assert.Contains(t, err.Error(), "qq_1")
	assert.True(t, errors.Is(err, ErrOverflow))
}

func TestGate_ZeroQueueRejectsWhileHeld(t *testing.T) {
	g := New(Options{MaxQueue: 0})

	held, err := g.Acquire(context.Background(), "k")
	require.NoError(t, err)

	_, err = g.Reserve("k")
	assert.ErrorIs(t, err, ErrOverflow)

	held.Release()
	again, err := g.Acquire(context.Background(), "k")
	require.NoError(t, err)
	again.Release()
}
