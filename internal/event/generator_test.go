package event

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/docker/docker/api/types/events"
	"github.com/rs/zerolog"
	"go.uber.org/goleak"

	"github.com/auto-dns/nodehostd/internal/domain"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeDocker struct {
	msgs chan events.Message
	errs chan error
	opts events.ListOptions
}

func newFakeDocker() *fakeDocker {
	return &fakeDocker{msgs: make(chan events.Message, 10), errs: make(chan error, 1)}
}

func (f *fakeDocker) Events(_ context.Context, opts events.ListOptions) (<-chan events.Message, <-chan error) {
	f.opts = opts
	return f.msgs, f.errs
}

func msg(action events.Action, name string) events.Message {
	return events.Message{
		Type:     events.ContainerEventType,
		Action:   action,
		Actor:    events.Actor{ID: "abc123", Attributes: map[string]string{"name": name}},
		TimeNano: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC).UnixNano(),
	}
}

func TestFromEventsMessage(t *testing.T) {
	cases := []struct {
		action events.Action
		want   domain.State
	}{
		{events.ActionStart, domain.StateRunning},
		{events.ActionStop, domain.StateStopped},
		{events.ActionDie, domain.StateStopped},
	}
	for _, tc := range cases {
		got, err := fromEventsMessage(msg(tc.action, "web1"))
		if err != nil || got.State != tc.want || got.Name != "web1" {
			t.Errorf("%s: %+v, %v", tc.action, got, err)
		}
	}

	var unsupported *UnsupportedEventTypeError
	if _, err := fromEventsMessage(msg(events.ActionPause, "web1")); !errors.As(err, &unsupported) {
		t.Fatalf("pause: %v", err)
	}
	if _, err := fromEventsMessage(msg(events.ActionStart, "")); err == nil {
		t.Fatal("expected error for unnamed container")
	}
}

func TestSubscribeFiltersAndForwards(t *testing.T) {
	f := newFakeDocker()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := NewDockerGenerator(f, zerolog.Nop()).Subscribe(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !f.opts.Filters.ExactMatch("label", "nodehostd.managed-by=nodehostd") {
		t.Fatalf("missing label filter: %v", f.opts.Filters)
	}

	f.msgs <- msg(events.ActionPause, "web1")
	f.msgs <- msg(events.ActionStart, "web1")
	f.msgs <- msg(events.ActionDie, "web1")

	for _, want := range []domain.State{domain.StateRunning, domain.StateStopped} {
		select {
		case got := <-ch:
			if got.State != want {
				t.Fatalf("got %s, want %s", got.State, want)
			}
		case <-time.After(time.Second):
			t.Fatal("no event forwarded")
		}
	}

	cancel()
	for range ch {
	}
}

func TestSubscribeEndsOnStreamError(t *testing.T) {
	f := newFakeDocker()
	ch, err := NewDockerGenerator(f, zerolog.Nop()).Subscribe(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	f.errs <- errors.New("connection reset")
	select {
	case _, ok := <-ch:
		if ok {
			t.Fatal("unexpected event")
		}
	case <-time.After(time.Second):
		t.Fatal("channel not closed after stream error")
	}
}
