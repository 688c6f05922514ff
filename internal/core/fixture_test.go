package core

import (
	"context"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"github.com/auto-dns/nodehostd/internal/config"
	"github.com/auto-dns/nodehostd/internal/domain"
	"github.com/auto-dns/nodehostd/internal/metrics"
	"github.com/auto-dns/nodehostd/internal/runtime"
	"github.com/auto-dns/nodehostd/internal/runtime/runtimetest"
	"github.com/auto-dns/nodehostd/internal/session"
	"github.com/auto-dns/nodehostd/internal/state"
)

type recordingPublisher struct {
	mu        sync.Mutex
	snapshots []map[string]domain.State
	removed   []string
}

func (p *recordingPublisher) Publish(_ context.Context, snapshot map[string]domain.State) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.snapshots = append(p.snapshots, snapshot)
	return nil
}

func (p *recordingPublisher) Remove(_ context.Context, name string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.removed = append(p.removed, name)
	return nil
}

type fixture struct {
	rt       *runtimetest.Runtime
	cache    *state.StatusCache
	sessions *session.Registry
	pub      *recordingPublisher
	mgr      *Manager
	poller   *Poller
	cfg      *config.AppConfig
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureWith(t, nil)
}

// newFixtureWith lets a test swap in a runtime wrapper around the fake.
func newFixtureWith(t *testing.T, wrap func(*runtimetest.Runtime) runtime.Runtime) *fixture {
	t.Helper()
	fake := runtimetest.New()
	var rt runtime.Runtime = fake
	if wrap != nil {
		rt = wrap(fake)
	}
	cache := state.NewStatusCache()
	m := metrics.New()
	sessions := session.NewRegistry(context.Background(), rt, cache, session.Options{Backlog: 16}, m, zerolog.Nop())
	t.Cleanup(sessions.CloseAll)
	cfg := &config.AppConfig{
		NodeName:       "node-a",
		PollInterval:   1,
		CommandTimeout: 5,
		CreateTimeout:  5,
	}
	pub := &recordingPublisher{}
	return &fixture{
		rt:       fake,
		cache:    cache,
		sessions: sessions,
		pub:      pub,
		mgr:      NewManager(rt, cache, sessions, pub, cfg, m, zerolog.Nop()),
		poller:   NewPoller(rt, cache, pub, cfg, m, zerolog.Nop()),
		cfg:      cfg,
	}
}

func (f *fixture) create(t *testing.T, name string) {
	t.Helper()
	req, err := domain.NewCreateRequest(name, "512MB", "10GB", "node-a")
	if err != nil {
		t.Fatal(err)
	}
	if err := f.mgr.Create(context.Background(), req); err != nil {
		t.Fatalf("create %s: %v", name, err)
	}
}
