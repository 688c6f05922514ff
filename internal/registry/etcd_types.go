package registry

import (
	"time"

	"github.com/auto-dns/nodehostd/internal/domain"
)

// statusRecord is the JSON value stored per instance.
type statusRecord struct {
	State   domain.State `json:"state"`
	Node    string       `json:"node"`
	Updated time.Time    `json:"updated"`
}
