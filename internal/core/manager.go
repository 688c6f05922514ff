package core

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/auto-dns/nodehostd/internal/config"
	"github.com/auto-dns/nodehostd/internal/domain"
	"github.com/auto-dns/nodehostd/internal/metrics"
	"github.com/auto-dns/nodehostd/internal/runtime"
	"github.com/auto-dns/nodehostd/internal/state"
	"github.com/auto-dns/nodehostd/internal/util"
)

type opLock struct {
	mu   sync.Mutex
	refs int
}

// Manager drives container lifecycle transitions. It is the only writer of
// lifecycle results into the status cache; the poller writes observations.
type Manager struct {
	rt        runtime.Runtime
	cache     statusCache
	sessions  sessionCloser
	publisher statusPublisher
	cfg       *config.AppConfig
	metrics   *metrics.Metrics
	logger    zerolog.Logger

	locksMu sync.Mutex
	locks   *util.DefaultMap[string, *opLock]
}

func NewManager(rt runtime.Runtime, cache statusCache, sessions sessionCloser, publisher statusPublisher, cfg *config.AppConfig, m *metrics.Metrics, logger zerolog.Logger) *Manager {
	if publisher == nil {
		publisher = noopPublisher{}
	}
	return &Manager{
		rt:        rt,
		cache:     cache,
		sessions:  sessions,
		publisher: publisher,
		cfg:       cfg,
		metrics:   m,
		logger:    logger.With().Str("component", "lifecycle").Logger(),
		locks:     util.NewDefaultMap[string](func() *opLock { return &opLock{} }),
	}
}

// lockName serializes operations on one container. The returned func
// releases the lock and drops the slot once nobody else wants it.
func (m *Manager) lockName(name string) func() {
	m.locksMu.Lock()
	l := m.locks.Get(name)
	l.refs++
	m.locksMu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		m.locksMu.Lock()
		l.refs--
		if l.refs == 0 {
			m.locks.Delete(name)
		}
		m.locksMu.Unlock()
	}
}

func (m *Manager) call(ctx context.Context, timeout time.Duration, op, name string, fn func(context.Context) error) error {
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return asTimeout(callCtx, op, name, fn(callCtx))
}

// Create provisions a container and records it as STOPPED.
func (m *Manager) Create(ctx context.Context, req domain.CreateRequest) (err error) {
	started := time.Now()
	defer func() { m.metrics.ObserveOperation("create", started, err) }()

	if err := domain.ValidateName(req.Name); err != nil {
		return err
	}
	if req.Limits.MemoryMB <= 0 {
		return domain.NewValidationError("ram", "ram must be positive")
	}
	if m.cfg.NodeName != "" && req.Node != "" && req.Node != m.cfg.NodeName {
		m.logger.Warn().Str("name", req.Name).Str("requested_node", req.Node).Str("node", m.cfg.NodeName).Msg("Create request addressed to a different node")
	}

	unlock := m.lockName(req.Name)
	defer unlock()

	if _, exists := m.cache.Get(req.Name); exists {
		return domain.ErrAlreadyExists
	}

	err = m.call(ctx, m.cfg.CreateDeadline(), "create", req.Name, func(ctx context.Context) error {
		return m.rt.Create(ctx, req.Name, req.Limits)
	})
	if err != nil {
		m.logger.Error().Err(err).Str("name", req.Name).Msg("Error creating container")
		return err
	}
	m.cache.Set(req.Name, domain.StateStopped)
	m.logger.Info().Str("name", req.Name).Int64("memory_mb", req.Limits.MemoryMB).Str("disk", req.Limits.Disk).Msg("Container created")
	return nil
}

// Start boots a known container. suspended is the control plane's
// administrative hold; a suspended instance is never started.
func (m *Manager) Start(ctx context.Context, name string, suspended bool) (err error) {
	started := time.Now()
	defer func() { m.metrics.ObserveOperation("start", started, err) }()

	if err := requireName(name); err != nil {
		return err
	}
	unlock := m.lockName(name)
	defer unlock()

	if _, exists := m.cache.Get(name); !exists {
		return domain.ErrNotFound
	}
	if suspended {
		return domain.ErrSuspended
	}

	err = m.call(ctx, m.cfg.CommandDeadline(), "start", name, func(ctx context.Context) error {
		return m.rt.Start(ctx, name)
	})
	if err != nil {
		m.logger.Error().Err(err).Str("name", name).Msg("Error starting container")
		return err
	}
	m.cache.Set(name, domain.StateRunning)
	m.logger.Info().Str("name", name).Msg("Container started")
	return nil
}

// Stop halts a container. Stopping an already stopped container succeeds
// without touching the runtime.
func (m *Manager) Stop(ctx context.Context, name string) (res domain.StopResult, err error) {
	started := time.Now()
	defer func() { m.metrics.ObserveOperation("stop", started, err) }()

	if err := requireName(name); err != nil {
		return res, err
	}
	unlock := m.lockName(name)
	defer unlock()

	current, exists := m.cache.Get(name)
	if !exists {
		return res, domain.ErrNotFound
	}
	if current == domain.StateStopped {
		m.logger.Debug().Str("name", name).Msg("Container already stopped")
		return domain.StopResult{AlreadyStopped: true}, nil
	}

	err = m.call(ctx, m.cfg.CommandDeadline(), "stop", name, func(ctx context.Context) error {
		return m.rt.Stop(ctx, name)
	})
	if err != nil {
		m.logger.Error().Err(err).Str("name", name).Msg("Error stopping container")
		return res, err
	}
	m.cache.Set(name, domain.StateStopped)
	if m.sessions.Close(name) {
		m.logger.Debug().Str("name", name).Msg("Closed terminal session of stopped container")
	}
	m.logger.Info().Str("name", name).Msg("Container stopped")
	return res, nil
}

// Destroy removes the container, its cache entry and any terminal session.
func (m *Manager) Destroy(ctx context.Context, name string) (err error) {
	started := time.Now()
	defer func() { m.metrics.ObserveOperation("destroy", started, err) }()

	if err := requireName(name); err != nil {
		return err
	}
	unlock := m.lockName(name)
	defer unlock()

	if _, exists := m.cache.Get(name); !exists {
		return domain.ErrNotFound
	}

	err = m.call(ctx, m.cfg.CommandDeadline(), "destroy", name, func(ctx context.Context) error {
		return m.rt.Destroy(ctx, name)
	})
	if err != nil {
		m.logger.Error().Err(err).Str("name", name).Msg("Error deleting container")
		return err
	}
	m.cache.Remove(name)
	m.sessions.Close(name)
	if perr := m.publisher.Remove(ctx, name); perr != nil {
		m.logger.Warn().Err(perr).Str("name", name).Msg("Failed to remove container from status mirror")
	}
	m.logger.Info().Str("name", name).Msg("Container deleted")
	return nil
}

// Status reads the cached state; it never calls the runtime.
func (m *Manager) Status(name string) (domain.State, error) {
	if err := requireName(name); err != nil {
		return domain.StateUnknown, err
	}
	st, exists := m.cache.Get(name)
	if !exists {
		return domain.StateUnknown, domain.ErrNotFound
	}
	return st, nil
}

func (m *Manager) Instances() []state.Entry {
	return m.cache.Entries()
}

func (m *Manager) Driver() string {
	return m.rt.Name()
}
