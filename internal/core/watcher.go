package core

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/auto-dns/nodehostd/internal/event"
)

type stateEventSource interface {
	Subscribe(ctx context.Context) (<-chan event.StateChange, error)
}

// Watcher applies state changes pushed by the runtime between polls. Like
// the poller it only refreshes names that are already known.
type Watcher struct {
	source stateEventSource
	cache  statusCache
	logger zerolog.Logger
}

func NewWatcher(source stateEventSource, cache statusCache, logger zerolog.Logger) *Watcher {
	return &Watcher{
		source: source,
		cache:  cache,
		logger: logger.With().Str("component", "watcher").Logger(),
	}
}

// Run consumes events until ctx is cancelled or the source closes its
// stream. A closed stream is not fatal; the poller keeps the cache fresh.
func (w *Watcher) Run(ctx context.Context) error {
	changes, err := w.source.Subscribe(ctx)
	if err != nil {
		return err
	}
	w.logger.Info().Msg("Watching runtime events")
	for change := range changes {
		w.apply(change)
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	w.logger.Warn().Msg("Runtime event stream ended, relying on polling")
	return nil
}

func (w *Watcher) apply(change event.StateChange) {
	prev, known := w.cache.Get(change.Name)
	if !known {
		w.logger.Debug().Str("name", change.Name).Msg("Ignoring event for unknown container")
		return
	}
	if prev == change.State {
		return
	}
	if w.cache.Update(change.Name, change.State) {
		w.logger.Info().Str("name", change.Name).Str("from", prev.String()).Str("to", change.State.String()).Msg("Container state changed")
	}
}
