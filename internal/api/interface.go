package api

import (
	"context"

	"github.com/auto-dns/nodehostd/internal/domain"
	"github.com/auto-dns/nodehostd/internal/session"
	"github.com/auto-dns/nodehostd/internal/state"
)

type lifecycle interface {
	Create(ctx context.Context, req domain.CreateRequest) error
	Start(ctx context.Context, name string, suspended bool) error
	Stop(ctx context.Context, name string) (domain.StopResult, error)
	Destroy(ctx context.Context, name string) error
	Status(name string) (domain.State, error)
	Instances() []state.Entry
	Driver() string
}

type sessionStore interface {
	Open(ctx context.Context, name string) (*session.Session, bool, error)
	Get(name string) (*session.Session, bool)
	Len() int
}
