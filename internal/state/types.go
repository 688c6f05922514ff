package state

import (
	"time"

	"github.com/auto-dns/nodehostd/internal/domain"
)

// Entry is one container's cached state.
type Entry struct {
	Name        string
	State       domain.State
	LastUpdated time.Time
}
