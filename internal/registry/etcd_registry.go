package registry

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.etcd.io/etcd/api/v3/v3rpc/rpctypes"
	clientv3 "go.etcd.io/etcd/client/v3"

	"github.com/auto-dns/nodehostd/internal/config"
	"github.com/auto-dns/nodehostd/internal/domain"
	"github.com/auto-dns/nodehostd/internal/util"
)

// etcd rejects transactions with more operations than this by default.
const maxTxnOps = 128

type etcdClient interface {
	Get(ctx context.Context, key string, opts ...clientv3.OpOption) (*clientv3.GetResponse, error)
	Delete(ctx context.Context, key string, opts ...clientv3.OpOption) (*clientv3.DeleteResponse, error)
	Grant(ctx context.Context, ttl int64) (*clientv3.LeaseGrantResponse, error)
	KeepAliveOnce(ctx context.Context, id clientv3.LeaseID) (*clientv3.LeaseKeepAliveResponse, error)
	Txn(ctx context.Context) clientv3.Txn
	Revoke(ctx context.Context, id clientv3.LeaseID) (*clientv3.LeaseRevokeResponse, error)
	Close() error
}

// EtcdRegistry writes one key per instance under <prefix>/<node>/. All keys
// share a lease, so a node that dies stops being advertised once the TTL runs
// out.
type EtcdRegistry struct {
	client etcdClient
	cfg    *config.EtcdConfig
	node   string
	logger zerolog.Logger
	now    func() time.Time

	mu    sync.Mutex
	lease clientv3.LeaseID
}

func NewEtcdRegistry(client etcdClient, cfg *config.EtcdConfig, node string, logger zerolog.Logger) *EtcdRegistry {
	return &EtcdRegistry{
		client: client,
		cfg:    cfg,
		node:   node,
		logger: logger.With().Str("component", "etcd_registry").Logger(),
		now:    time.Now,
	}
}

// ensureLease refreshes the current lease, granting a new one if it has
// expired. Callers hold er.mu.
func (er *EtcdRegistry) ensureLease(ctx context.Context) (clientv3.LeaseID, error) {
	if er.lease != 0 {
		_, err := er.client.KeepAliveOnce(ctx, er.lease)
		if err == nil {
			return er.lease, nil
		}
		if !errors.Is(err, rpctypes.ErrLeaseNotFound) {
			return 0, err
		}
		er.logger.Warn().Int64("lease", int64(er.lease)).Msg("Lease expired, granting a new one")
		er.lease = 0
	}
	resp, err := er.client.Grant(ctx, er.cfg.LeaseTTL)
	if err != nil {
		return 0, err
	}
	er.lease = resp.ID
	er.logger.Debug().Int64("lease", int64(resp.ID)).Int64("ttl", resp.TTL).Msg("Granted lease")
	return er.lease, nil
}

// list returns what is currently published for this node.
func (er *EtcdRegistry) list(ctx context.Context) (map[string]statusRecord, error) {
	resp, err := er.client.Get(ctx, nodePrefix(er.cfg.PathPrefix, er.node), clientv3.WithPrefix())
	if err != nil {
		return nil, err
	}
	out := make(map[string]statusRecord, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		name, ok := nameFromKey(er.cfg.PathPrefix, er.node, string(kv.Key))
		if !ok {
			continue
		}
		rec, err := unmarshalEtcdValue(kv.Value)
		if err != nil {
			er.logger.Warn().Err(err).Str("key", string(kv.Key)).Msg("Could not parse key, overwriting")
			rec = statusRecord{State: domain.StateUnknown, Node: "invalid"}
		}
		out[name] = rec
	}
	return out, nil
}

// Publish makes the node's keys match snapshot: stale names are deleted and
// changed states rewritten.
func (er *EtcdRegistry) Publish(ctx context.Context, snapshot map[string]domain.State) error {
	er.mu.Lock()
	defer er.mu.Unlock()

	lease, err := er.ensureLease(ctx)
	if err != nil {
		return err
	}
	existing, err := er.list(ctx)
	if err != nil {
		return err
	}

	var ops []clientv3.Op
	for _, name := range util.SortedKeys(existing) {
		if _, ok := snapshot[name]; !ok {
			ops = append(ops, clientv3.OpDelete(keyFor(er.cfg.PathPrefix, er.node, name)))
		}
	}
	now := er.now()
	for _, name := range util.SortedKeys(snapshot) {
		st := snapshot[name]
		if prev, ok := existing[name]; ok && prev.State == st && prev.Node == er.node {
			continue
		}
		value, err := marshalEtcdValue(er.node, st, now)
		if err != nil {
			return err
		}
		ops = append(ops, clientv3.OpPut(keyFor(er.cfg.PathPrefix, er.node, name), value, clientv3.WithLease(lease)))
	}
	if err := er.commit(ctx, ops); err != nil {
		return err
	}
	if len(ops) > 0 {
		er.logger.Debug().Int("ops", len(ops)).Msg("Published status snapshot")
	}
	return nil
}

func (er *EtcdRegistry) commit(ctx context.Context, ops []clientv3.Op) error {
	for len(ops) > 0 {
		n := min(len(ops), maxTxnOps)
		if _, err := er.client.Txn(ctx).Then(ops[:n]...).Commit(); err != nil {
			return err
		}
		ops = ops[n:]
	}
	return nil
}

// Remove deletes the key of a destroyed instance.
func (er *EtcdRegistry) Remove(ctx context.Context, name string) error {
	key := keyFor(er.cfg.PathPrefix, er.node, name)
	if _, err := er.client.Delete(ctx, key); err != nil {
		return err
	}
	er.logger.Info().Str("key", key).Msg("Deleted key")
	return nil
}

// Close revokes the lease, which drops every key of this node, and closes
// the client.
func (er *EtcdRegistry) Close() error {
	er.mu.Lock()
	lease := er.lease
	er.lease = 0
	er.mu.Unlock()

	if lease != 0 {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if _, err := er.client.Revoke(ctx, lease); err != nil {
			er.logger.Warn().Err(err).Msg("Failed to revoke lease")
		}
		cancel()
	}
	return er.client.Close()
}
