package target

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lni/dragonboat/v4/logger"
	clientv3 "go.etcd.io/etcd/client/v3"
)

// Logger uses the same name as common.LoggerTarget, which can not be imported here
var Logger = logger.GetLogger("target")

// DefaultEtcdKey is the key under which the relay target is stored if no key is given
const DefaultEtcdKey = "/relay/target"

// EtcdStore keeps the target as a JSON value under a single etcd key, so several relay
// instances can share one target and follow changes to it (see Watch).
type EtcdStore struct {
	client  *clientv3.Client
	key     string
	timeout time.Duration
}

// NewEtcdStore connects to the given etcd endpoints. The timeout bounds the dial
// as well as every Load and Save call.
func NewEtcdStore(endpoints []string, key string, timeout time.Duration) (*EtcdStore, error) {
	c, err := clientv3.New(clientv3.Config{
		Endpoints:   endpoints,
		DialTimeout: timeout,
	})
	if err != nil {
		return nil, err
	}
	return NewEtcdStoreFromClient(c, key, timeout), nil
}

// NewEtcdStoreFromClient wraps an existing etcd client. The store takes ownership of the client.
func NewEtcdStoreFromClient(client *clientv3.Client, key string, timeout time.Duration) *EtcdStore {
	if key == "" {
		key = DefaultEtcdKey
	}
	return &EtcdStore{client: client, key: key, timeout: timeout}
}

// --------------------------------------------------------------------------
// Interface Methods (docu see target.IStore)
// --------------------------------------------------------------------------

func (s *EtcdStore) Load() (Target, error) {
	ctx, cancel := s.context()
	defer cancel()

	resp, err := s.client.Get(ctx, s.key)
	if err != nil {
		return Target{}, fmt.Errorf("failed to load target from etcd key %s: %w", s.key, err)
	}
	if len(resp.Kvs) == 0 {
		return Target{}, nil
	}
	return decodeTarget(resp.Kvs[0].Value)
}

func (s *EtcdStore) Save(t Target) error {
	if err := t.Validate(); err != nil {
		return err
	}

	val, err := json.Marshal(t)
	if err != nil {
		return err
	}

	ctx, cancel := s.context()
	defer cancel()

	if _, err = s.client.Put(ctx, s.key, string(val)); err != nil {
		return fmt.Errorf("failed to save target to etcd key %s: %w", s.key, err)
	}
	Logger.Infof("Stored relay target %s under %s", t, s.key)
	return nil
}

// --------------------------------------------------------------------------
// Additional Methods
// --------------------------------------------------------------------------

// Watch calls fn for every change of the stored target until ctx is done.
// A deleted key is reported as the zero Target. Malformed values are skipped.
func (s *EtcdStore) Watch(ctx context.Context, fn func(Target)) error {
	for resp := range s.client.Watch(ctx, s.key) {
		if err := resp.Err(); err != nil {
			return err
		}
		for _, ev := range resp.Events {
			if ev.Type == clientv3.EventTypeDelete {
				fn(Target{})
				continue
			}
			t, err := decodeTarget(ev.Kv.Value)
			if err != nil {
				Logger.Warningf("Skipping value of %s: %v", s.key, err)
				continue
			}
			fn(t)
		}
	}
	return ctx.Err()
}

// Close closes the underlying etcd client
func (s *EtcdStore) Close() error {
	return s.client.Close()
}

func (s *EtcdStore) context() (context.Context, context.CancelFunc) {
	if s.timeout > 0 {
		return context.WithTimeout(context.Background(), s.timeout)
	}
	return context.WithCancel(context.Background())
}

func decodeTarget(b []byte) (Target, error) {
	var t Target
	if err := json.Unmarshal(b, &t); err != nil {
		return Target{}, fmt.Errorf("malformed target value: %w", err)
	}
	return New(t.Host, t.Port), nil
}
