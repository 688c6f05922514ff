package core

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/auto-dns/nodehostd/internal/config"
	"github.com/auto-dns/nodehostd/internal/domain"
	"github.com/auto-dns/nodehostd/internal/metrics"
	"github.com/auto-dns/nodehostd/internal/runtime"
)

// Poller periodically re-reads every known container's live state from the
// runtime and writes it into the status cache.
type Poller struct {
	rt        runtime.Runtime
	cache     statusCache
	publisher statusPublisher
	cfg       *config.AppConfig
	metrics   *metrics.Metrics
	logger    zerolog.Logger
}

func NewPoller(rt runtime.Runtime, cache statusCache, publisher statusPublisher, cfg *config.AppConfig, m *metrics.Metrics, logger zerolog.Logger) *Poller {
	if publisher == nil {
		publisher = noopPublisher{}
	}
	return &Poller{
		rt:        rt,
		cache:     cache,
		publisher: publisher,
		cfg:       cfg,
		metrics:   m,
		logger:    logger.With().Str("component", "poller").Logger(),
	}
}

func (p *Poller) info(ctx context.Context, name string) (domain.State, error) {
	callCtx, cancel := context.WithTimeout(ctx, p.cfg.CommandDeadline())
	defer cancel()
	st, err := p.rt.Info(callCtx, name)
	return st, asTimeout(callCtx, "info", name, err)
}

// Reconcile seeds the cache from the runtime's own container list.
func (p *Poller) Reconcile(ctx context.Context) error {
	callCtx, cancel := context.WithTimeout(ctx, p.cfg.CommandDeadline())
	names, err := p.rt.List(callCtx)
	err = asTimeout(callCtx, "list", "", err)
	cancel()
	if err != nil {
		return err
	}
	for _, name := range names {
		if _, known := p.cache.Get(name); known {
			continue
		}
		st, err := p.info(ctx, name)
		if err != nil {
			p.logger.Warn().Err(err).Str("name", name).Msg("Could not query container during reconciliation")
			st = domain.StateUnknown
		}
		p.cache.Set(name, st)
		p.logger.Info().Str("name", name).Str("state", st.String()).Msg("Recovered container from runtime")
	}
	return nil
}

// PollOnce runs a single poll cycle over a snapshot of known names. Names
// removed while the cycle runs are not brought back.
func (p *Poller) PollOnce(ctx context.Context) {
	started := time.Now()
	defer p.metrics.ObservePoll(started)

	for _, name := range p.cache.Names() {
		if ctx.Err() != nil {
			return
		}
		st, err := p.info(ctx, name)
		if err != nil {
			p.logger.Debug().Err(err).Str("name", name).Msg("Status query failed")
			st = domain.StateUnknown
		}
		prev, _ := p.cache.Get(name)
		if !p.cache.Update(name, st) {
			continue
		}
		if prev != st {
			p.logger.Info().Str("name", name).Str("from", prev.String()).Str("to", st.String()).Msg("Container state changed")
		}
	}

	snapshot := p.cache.Snapshot()
	p.metrics.SetContainerStates(snapshot)
	if err := p.publisher.Publish(ctx, snapshot); err != nil {
		p.logger.Error().Err(err).Msg("Error publishing status snapshot")
	}
}

// Run polls on a fixed interval until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) error {
	p.logger.Info().Dur("interval", p.cfg.PollEvery()).Msg("Starting status poller")

	ticker := time.NewTicker(p.cfg.PollEvery())
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			p.logger.Debug().Msg("Poll tick")
			p.PollOnce(ctx)
		case <-ctx.Done():
			p.logger.Info().Msg("Status poller shutting down")
			return ctx.Err()
		}
	}
}
