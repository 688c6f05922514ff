// Package registry mirrors the node's container states into an external
// store so that other hosts can see them.
package registry

import (
	"context"

	"github.com/auto-dns/nodehostd/internal/domain"
)

type Registry interface {
	Publish(ctx context.Context, snapshot map[string]domain.State) error
	Remove(ctx context.Context, name string) error
	Close() error
}

// Noop is used when no mirror is configured.
type Noop struct{}

func (Noop) Publish(context.Context, map[string]domain.State) error { return nil }
func (Noop) Remove(context.Context, string) error                   { return nil }
func (Noop) Close() error                                           { return nil }
