package endpoint

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/nats-io/nats.go/jetstream"
)

// Registry maps sandbox ports to externally reachable URLs. Entries are
// append-only: the first URL recorded for a port is kept for the life of the
// process.
type Registry interface {
	Record(ctx context.Context, port int, url string) error
	Lookup(ctx context.Context, port int) (string, bool, error)
}

// MemoryRegistry is an in-process Registry.
type MemoryRegistry struct {
	mu    sync.RWMutex
	ports map[int]string
}

func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{ports: map[int]string{}}
}

func (r *MemoryRegistry) Record(_ context.Context, port int, url string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.ports[port]; !ok {
		r.ports[port] = url
	}
	return nil
}

func (r *MemoryRegistry) Lookup(_ context.Context, port int) (string, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	url, ok := r.ports[port]
	return url, ok, nil
}

// Len reports the number of recorded ports.
func (r *MemoryRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.ports)
}

// KVBucket is the JetStream key-value bucket holding port entries.
const KVBucket = "ports"

// KVRegistry stores entries in a JetStream key-value bucket so every
// component attached to the embedded server sees the same mapping.
type KVRegistry struct {
	kv jetstream.KeyValue
}

// NewKVRegistry starts an empty in-memory ports bucket, dropping whatever an
// earlier process left behind. Entries last for the life of the process.
func NewKVRegistry(ctx context.Context, js jetstream.JetStream) (*KVRegistry, error) {
	if err := js.DeleteKeyValue(ctx, KVBucket); err != nil && !errors.Is(err, jetstream.ErrBucketNotFound) {
		return nil, fmt.Errorf("drop stale %s bucket: %w", KVBucket, err)
	}
	kv, err := js.CreateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:      KVBucket,
		Description: "sandbox port to preview URL",
		History:     1,
		Storage:     jetstream.MemoryStorage,
	})
	if err != nil {
		return nil, fmt.Errorf("create %s bucket: %w", KVBucket, err)
	}
	return &KVRegistry{kv: kv}, nil
}

func (r *KVRegistry) Record(ctx context.Context, port int, url string) error {
	_, err := r.kv.Create(ctx, strconv.Itoa(port), []byte(url))
	if err != nil && !errors.Is(err, jetstream.ErrKeyExists) {
		return fmt.Errorf("record port %d: %w", port, err)
	}
	return nil
}

func (r *KVRegistry) Lookup(ctx context.Context, port int) (string, bool, error) {
	entry, err := r.kv.Get(ctx, strconv.Itoa(port))
	if errors.Is(err, jetstream.ErrKeyNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("lookup port %d: %w", port, err)
	}
	return string(entry.Value()), true, nil
}
