package core

import (
	"context"
	"errors"

	"github.com/auto-dns/nodehostd/internal/domain"
)

// asTimeout normalizes a deadline expiry into a RuntimeError wrapping
// domain.ErrTimeout, whatever the adapter returned.
func asTimeout(ctx context.Context, op, name string, err error) error {
	if err == nil || errors.Is(err, domain.ErrTimeout) {
		return err
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return domain.NewRuntimeError(op, name, "timeout", domain.ErrTimeout)
	}
	return err
}

func requireName(name string) error {
	if name == "" {
		return domain.NewValidationError("name", "instance name is required")
	}
	return nil
}
