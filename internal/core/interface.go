package core

import (
	"context"

	"github.com/auto-dns/nodehostd/internal/domain"
	"github.com/auto-dns/nodehostd/internal/state"
)

type statusCache interface {
	Get(name string) (domain.State, bool)
	Set(name string, st domain.State)
	Update(name string, st domain.State) bool
	Remove(name string) bool
	Snapshot() map[string]domain.State
	Entries() []state.Entry
	Names() []string
}

type sessionCloser interface {
	Close(name string) bool
}

// statusPublisher mirrors the node's container states to an external store.
type statusPublisher interface {
	Publish(ctx context.Context, snapshot map[string]domain.State) error
	Remove(ctx context.Context, name string) error
}

type noopPublisher struct{}

func (noopPublisher) Publish(context.Context, map[string]domain.State) error { return nil }
func (noopPublisher) Remove(context.Context, string) error                   { return nil }
