// Package session tracks the interactive terminal process of each running
// container and streams its output.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/auto-dns/nodehostd/internal/config"
	"github.com/auto-dns/nodehostd/internal/domain"
	"github.com/auto-dns/nodehostd/internal/metrics"
	"github.com/auto-dns/nodehostd/internal/runtime"
)

type Options struct {
	BufferSize        int
	Backlog           int
	ReadRetryInterval time.Duration
	CloseTimeout      time.Duration
	// SpawnTimeout bounds Attach. The spawned process itself lives on.
	SpawnTimeout time.Duration
}

var errSpawnAborted = errors.New("session closed while spawning")

func OptionsFromConfig(cfg *config.SessionConfig) Options {
	return Options{
		BufferSize:        cfg.BufferSize,
		Backlog:           cfg.Backlog,
		ReadRetryInterval: cfg.RetryEvery(),
		CloseTimeout:      cfg.CloseWait(),
	}
}

type stateReader interface {
	Get(name string) (domain.State, bool)
}

type attacher interface {
	Attach(ctx context.Context, name string) (runtime.Process, error)
}

// entry is a registry slot. ready is closed once the spawn has finished,
// after which exactly one of session or err is set. abort cancels a spawn
// still in flight.
type entry struct {
	ready   chan struct{}
	abort   context.CancelCauseFunc
	session *Session
	err     error
}

// Registry holds at most one session per container name.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*entry

	baseCtx context.Context
	rt      attacher
	states  stateReader
	opts    Options
	metrics *metrics.Metrics
	logger  zerolog.Logger
}

// NewRegistry creates a registry. Processes are bound to ctx, not to the
// request that opened them.
func NewRegistry(ctx context.Context, rt attacher, states stateReader, opts Options, m *metrics.Metrics, logger zerolog.Logger) *Registry {
	if opts.BufferSize <= 0 {
		opts.BufferSize = 64
	}
	if opts.ReadRetryInterval <= 0 {
		opts.ReadRetryInterval = 100 * time.Millisecond
	}
	if opts.CloseTimeout <= 0 {
		opts.CloseTimeout = 5 * time.Second
	}
	if opts.SpawnTimeout <= 0 {
		opts.SpawnTimeout = 60 * time.Second
	}
	return &Registry{
		sessions: make(map[string]*entry),
		baseCtx:  ctx,
		rt:       rt,
		states:   states,
		opts:     opts,
		metrics:  m,
		logger:   logger.With().Str("component", "sessions").Logger(),
	}
}

// Open returns the session for name, spawning it if needed. The bool result
// reports whether an existing session was reused.
func (r *Registry) Open(ctx context.Context, name string) (*Session, bool, error) {
	st, ok := r.states.Get(name)
	if !ok {
		return nil, false, domain.ErrNotFound
	}
	if st != domain.StateRunning {
		return nil, false, domain.ErrNotRunning
	}

	r.mu.Lock()
	if e, exists := r.sessions[name]; exists {
		r.mu.Unlock()
		select {
		case <-e.ready:
		case <-ctx.Done():
			return nil, false, ctx.Err()
		}
		if e.err != nil {
			return nil, false, e.err
		}
		return e.session, true, nil
	}
	spawnCtx, abort := context.WithCancelCause(r.baseCtx)
	e := &entry{ready: make(chan struct{}), abort: abort}
	r.sessions[name] = e
	r.mu.Unlock()

	// A stop or destroy may have landed between the check above and the
	// slot insert; it updates the cache before closing sessions.
	var proc runtime.Process
	var err error
	if st, ok := r.states.Get(name); !ok || st != domain.StateRunning {
		err = domain.ErrNotRunning
	} else {
		timer := time.AfterFunc(r.opts.SpawnTimeout, func() { abort(domain.ErrTimeout) })
		proc, err = r.rt.Attach(spawnCtx, name)
		timer.Stop()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	defer close(e.ready)
	if err == nil {
		if cause := context.Cause(spawnCtx); cause != nil || r.sessions[name] != e {
			if killErr := proc.Kill(); killErr != nil {
				r.logger.Warn().Err(killErr).Str("name", name).Msg("Failed to kill abandoned interactive process")
			}
			err = errSpawnAborted
		}
	}
	if err != nil {
		if r.sessions[name] == e {
			delete(r.sessions, name)
		}
		switch cause := context.Cause(spawnCtx); {
		case errors.Is(cause, domain.ErrTimeout):
			err = domain.NewRuntimeError("attach", name, "timeout", domain.ErrTimeout)
		case errors.Is(cause, errSpawnAborted):
			err = domain.ErrNotRunning
		}
		abort(err)
		e.err = err
		r.logger.Error().Err(err).Str("name", name).Msg("Failed to spawn interactive process")
		return nil, false, err
	}

	s := newSession(uuid.NewString(), name, proc, r.opts, r.logger, hooks{
		lineDropped: r.metrics.LineDropped,
		exited: func(s *Session) {
			abort(nil)
			r.forget(s)
		},
	})
	e.session = s
	r.metrics.SessionOpened()
	r.logger.Info().Str("name", name).Str("session_id", s.ID).Msg("Session started")
	go s.run()
	return s, false, nil
}

// forget drops the registry slot of a session whose process has exited.
func (r *Registry) forget(s *Session) {
	r.metrics.SessionClosed()
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.sessions[s.Name]; ok && e.session == s {
		delete(r.sessions, s.Name)
	}
}

// Get returns the live session for name, if one has finished spawning.
func (r *Registry) Get(name string) (*Session, bool) {
	r.mu.Lock()
	e, ok := r.sessions[name]
	r.mu.Unlock()
	if !ok {
		return nil, false
	}
	select {
	case <-e.ready:
		return e.session, e.session != nil
	default:
		return nil, false
	}
}

// Close terminates and removes the session for name. A spawn still in
// flight is aborted and waited for, bounded by the close timeout. It reports
// whether a live session was closed.
func (r *Registry) Close(name string) bool {
	r.mu.Lock()
	e, ok := r.sessions[name]
	if ok {
		delete(r.sessions, name)
	}
	r.mu.Unlock()
	if !ok {
		return false
	}
	select {
	case <-e.ready:
	default:
		e.abort(errSpawnAborted)
		select {
		case <-e.ready:
		case <-time.After(r.opts.CloseTimeout):
			r.logger.Warn().Str("name", name).Msg("Pending spawn did not finish in time")
			return false
		}
	}
	if e.session == nil {
		return false
	}
	e.session.Close()
	r.logger.Info().Str("name", name).Str("session_id", e.session.ID).Msg("Session closed")
	return true
}

// CloseAll terminates every session; used at shutdown.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	names := make([]string, 0, len(r.sessions))
	for name := range r.sessions {
		names = append(names, name)
	}
	r.mu.Unlock()

	var wg sync.WaitGroup
	for _, name := range names {
		wg.Add(1)
		go func(name string) {
			defer wg.Done()
			r.Close(name)
		}(name)
	}
	wg.Wait()
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}
