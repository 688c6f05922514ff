package registry

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/auto-dns/nodehostd/internal/domain"
)

func marshalEtcdValue(node string, st domain.State, now time.Time) (string, error) {
	b, err := json.Marshal(statusRecord{
		State:   st,
		Node:    node,
		Updated: now.UTC(),
	})
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func unmarshalEtcdValue(raw []byte) (statusRecord, error) {
	var rec statusRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return statusRecord{}, fmt.Errorf("decode etcd value: %w", err)
	}
	if !rec.State.IsValid() {
		return statusRecord{}, fmt.Errorf("invalid state %q in etcd value", rec.State)
	}
	return rec, nil
}
