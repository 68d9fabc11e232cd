package room

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/judgegodwins/chess-relay/store"
	"github.com/stretchr/testify/require"
)

func TestEvictIdle(t *testing.T) {
	s := store.NewMemoryStore()
	r := newRegistry(t, s, nil)
	ctx := context.Background()

	a, b := newSession("a"), newSession("b")
	_, err := r.Join(ctx, "idle", a)
	require.NoError(t, err)
	_, err = r.ApplyPlayerMove(ctx, "idle", "e2e4")
	require.NoError(t, err)
	r.Leave("idle", a)

	_, err = r.Join(ctx, "busy", b)
	require.NoError(t, err)

	// not idle for long enough
	require.Zero(t, r.EvictIdle(time.Now(), time.Hour))
	require.Equal(t, 2, r.Len())

	require.Equal(t, 1, r.EvictIdle(time.Now().Add(2*time.Hour), time.Hour))
	require.Equal(t, 1, r.Len())

	_, ok := r.Snapshot("idle")
	require.False(t, ok)

	_, ok = r.Snapshot("busy")
	require.True(t, ok)

	// a later join reloads the stored position
	snap, err := r.Join(ctx, "idle", newSession("c"))
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(snap.Position, afterE4Board), snap.Position)
}

func TestEvictIdleSkipsBusyRoom(t *testing.T) {
	r := newRegistry(t, store.NewMemoryStore(), nil)

	a := newSession("a")
	_, err := r.Join(context.Background(), "r1", a)
	require.NoError(t, err)
	r.Leave("r1", a)

	rm := r.lookup("r1")
	rm.guard.Lock()
	require.Zero(t, r.EvictIdle(time.Now().Add(time.Hour), time.Minute))
	rm.guard.Unlock()

	require.Equal(t, 1, r.EvictIdle(time.Now().Add(time.Hour), time.Minute))
}

func TestJanitorSweep(t *testing.T) {
	r := newRegistry(t, store.NewMemoryStore(), nil)

	a := newSession("a")
	_, err := r.Join(context.Background(), "r1", a)
	require.NoError(t, err)
	r.Leave("r1", a)

	j := NewJanitor(JanitorOptions{
		Registry: r,
		Interval: time.Minute,
		IdleTTL:  30 * time.Minute,
	})

	require.Zero(t, j.Sweep(time.Now()))
	require.Equal(t, 1, j.Sweep(time.Now().Add(31*time.Minute)))
	require.Zero(t, r.Len())
}

func TestJanitorStart(t *testing.T) {
	r := newRegistry(t, store.NewMemoryStore(), nil)

	a := newSession("a")
	_, err := r.Join(context.Background(), "r1", a)
	require.NoError(t, err)
	r.Leave("r1", a)

	j := NewJanitor(JanitorOptions{
		Registry: r,
		Interval: 5 * time.Millisecond,
		IdleTTL:  time.Millisecond,
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		j.Start(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		return r.Len() == 0
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	<-done
}

func TestJanitorDisabled(t *testing.T) {
	j := NewJanitor(JanitorOptions{Registry: newRegistry(t, store.NewMemoryStore(), nil)})

	done := make(chan struct{})
	go func() {
		j.Start(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("disabled janitor should return immediately")
	}
}
