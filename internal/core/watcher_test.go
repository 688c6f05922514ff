package core

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/auto-dns/nodehostd/internal/domain"
	"github.com/auto-dns/nodehostd/internal/event"
	"github.com/auto-dns/nodehostd/internal/state"
)

type chanSource struct {
	ch  chan event.StateChange
	err error
}

func (s *chanSource) Subscribe(context.Context) (<-chan event.StateChange, error) {
	return s.ch, s.err
}

func TestWatcherAppliesKnownChanges(t *testing.T) {
	cache := state.NewStatusCache()
	cache.Set("web1", domain.StateStopped)
	src := &chanSource{ch: make(chan event.StateChange, 4)}
	src.ch <- event.StateChange{Name: "web1", State: domain.StateRunning}
	src.ch <- event.StateChange{Name: "ghost", State: domain.StateRunning}
	close(src.ch)

	w := NewWatcher(src, cache, zerolog.Nop())
	if err := w.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if st, _ := cache.Get("web1"); st != domain.StateRunning {
		t.Fatalf("web1 = %s", st)
	}
	if _, ok := cache.Get("ghost"); ok {
		t.Fatal("event created an unknown container")
	}
}

func TestWatcherStopsOnCancel(t *testing.T) {
	src := &chanSource{ch: make(chan event.StateChange)}
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- NewWatcher(src, state.NewStatusCache(), zerolog.Nop()).Run(ctx) }()
	cancel()
	// The real source closes its channel on cancel.
	close(src.ch)
	select {
	case err := <-errCh:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("Run = %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("watcher did not stop")
	}
}

func TestWatcherSubscribeError(t *testing.T) {
	src := &chanSource{err: errors.New("daemon unreachable")}
	if err := NewWatcher(src, state.NewStatusCache(), zerolog.Nop()).Run(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}
