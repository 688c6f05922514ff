package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	clientv3 "go.etcd.io/etcd/client/v3"
	"golang.org/x/sync/errgroup"

	"github.com/auto-dns/nodehostd/internal/api"
	"github.com/auto-dns/nodehostd/internal/config"
	"github.com/auto-dns/nodehostd/internal/core"
	"github.com/auto-dns/nodehostd/internal/event"
	"github.com/auto-dns/nodehostd/internal/metrics"
	"github.com/auto-dns/nodehostd/internal/registry"
	"github.com/auto-dns/nodehostd/internal/runtime"
	"github.com/auto-dns/nodehostd/internal/runtime/docker"
	"github.com/auto-dns/nodehostd/internal/runtime/lxc"
	"github.com/auto-dns/nodehostd/internal/session"
	"github.com/auto-dns/nodehostd/internal/state"
)

type App struct {
	cfg      *config.Config
	rt       runtime.Runtime
	closers  []io.Closer
	registry registry.Registry
	sessions *session.Registry
	poller   *core.Poller
	watcher  *core.Watcher
	server   *api.Server
	cancel   context.CancelFunc
	baseCtx  context.Context
	logger   zerolog.Logger
}

// New creates a new App by wiring up all dependencies.
func New(cfg *config.Config, logger zerolog.Logger) (*App, error) {
	if cfg.App.NodeName == "" {
		host, err := os.Hostname()
		if err != nil {
			return nil, fmt.Errorf("app.node_name unset and hostname unavailable: %w", err)
		}
		cfg.App.NodeName = host
	}

	a := &App{cfg: cfg, logger: logger}
	a.baseCtx, a.cancel = context.WithCancel(context.Background())

	// Runtime
	var events *event.DockerGenerator
	switch cfg.App.Driver {
	case config.DriverDocker:
		cli, err := docker.NewClient()
		if err != nil {
			return nil, err
		}
		adapter := docker.NewAdapter(cli, &cfg.Docker, logger)
		a.rt = adapter
		a.closers = append(a.closers, adapter)
		events = event.NewDockerGenerator(cli, logger)
	default:
		a.rt = lxc.NewAdapter(&cfg.Lxc, logger)
	}

	// Status mirror
	a.registry = registry.Noop{}
	if cfg.Etcd.Enabled {
		etcdClient, err := clientv3.New(clientv3.Config{
			Endpoints:   cfg.Etcd.Endpoints,
			DialTimeout: time.Duration(cfg.Etcd.DialTimeout) * time.Second,
		})
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to connect to etcd: %w", err)
		}
		a.registry = registry.NewEtcdRegistry(etcdClient, &cfg.Etcd, cfg.App.NodeName, logger)
	}

	// Core
	m := metrics.New()
	cache := state.NewStatusCache()
	sessionOpts := session.OptionsFromConfig(&cfg.Session)
	sessionOpts.SpawnTimeout = cfg.App.CommandDeadline()
	a.sessions = session.NewRegistry(a.baseCtx, a.rt, cache, sessionOpts, m, logger)
	manager := core.NewManager(a.rt, cache, a.sessions, a.registry, &cfg.App, m, logger)
	a.poller = core.NewPoller(a.rt, cache, a.registry, &cfg.App, m, logger)
	if events != nil {
		a.watcher = core.NewWatcher(events, cache, logger)
	}
	a.server = api.NewServer(a.baseCtx, &cfg.App, manager, a.sessions, m, logger)

	return a, nil
}

// Run reconciles the cache, then serves the API and polls until ctx is
// cancelled.
func (a *App) Run(ctx context.Context) error {
	a.logger.Info().
		Str("node", a.cfg.App.NodeName).
		Str("driver", a.rt.Name()).
		Msg("Application starting")

	if a.cfg.App.ReconcileOnStart {
		if err := a.poller.Reconcile(ctx); err != nil {
			a.logger.Warn().Err(err).Msg("Startup reconciliation failed, starting with an empty cache")
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.poller.Run(gctx)
	})
	g.Go(func() error {
		return a.server.Run(gctx)
	})
	if a.watcher != nil {
		g.Go(func() error {
			return a.watcher.Run(gctx)
		})
	}
	err := g.Wait()

	a.logger.Info().Msg("Closing terminal sessions")
	a.sessions.CloseAll()
	a.cancel()

	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (a *App) Close() error {
	a.cancel()
	var firstErr error
	if a.registry != nil {
		if err := a.registry.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close status registry: %w", err)
		}
	}
	for _, c := range a.closers {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close runtime client: %w", err)
		}
	}
	return firstErr
}
