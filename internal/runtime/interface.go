// Package runtime defines the adapter contract between the daemon and the
// external container runtime.
package runtime

import (
	"context"
	"io"

	"github.com/auto-dns/nodehostd/internal/domain"
)

// Runtime wraps the external container runtime. Every failure is returned as
// a *domain.RuntimeError carrying the runtime's diagnostic output.
type Runtime interface {
	// Create provisions the container and applies its resource limits.
	Create(ctx context.Context, name string, limits domain.Limits) error
	Start(ctx context.Context, name string) error
	Stop(ctx context.Context, name string) error
	Destroy(ctx context.Context, name string) error
	// Info queries the live state of the container.
	Info(ctx context.Context, name string) (domain.State, error)
	// List returns the names of all containers the runtime knows about.
	List(ctx context.Context) ([]string, error)
	// Attach spawns an interactive shell inside a running container. The
	// process is bound to ctx, so callers pass a long-lived context and
	// cancel it to abort a spawn that hangs.
	Attach(ctx context.Context, name string) (Process, error)
	Name() string
}

// Process is a live interactive process attached to a container.
type Process interface {
	// Output yields stdout and stderr interleaved.
	Output() io.Reader
	Input() io.Writer
	// Wait blocks until the process has exited.
	Wait() error
	// Kill terminates the process and releases its pipes.
	Kill() error
}
