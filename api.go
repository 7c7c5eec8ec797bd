package wirecache

import (
	"context"
	"time"

	c "github.com/nodeware/wirecache/codec"
	gen "github.com/nodeware/wirecache/genstore"
	pr "github.com/nodeware/wirecache/provider"
)

type SetCostFunc func(key string, raw []byte, isBulk bool, bulkCount int) int64

type Cache[V any] = CAS[V] // just and alias -> wirecache.Cache[User] or wirecache.CAS[User]

// Provider, Codec and GenStore are re-exported at the root so cache.go can
// name them unqualified; Options below is where a caller actually wires
// concrete implementations in.
type (
	Provider     = pr.Provider
	Codec[V any] = c.Codec[V]
	GenStore     = gen.GenStore
)

// NewLocalGenStore constructs the default in-process GenStore used when
// Options.GenStore is left nil.
func NewLocalGenStore(cleanupInterval, retention time.Duration) *gen.LocalGenStore {
	return gen.NewLocalGenStore(cleanupInterval, retention)
}

// CAS is the high-level, provider-agnostic cache API with CAS safety via per-key generations.
// V is the caller's value type. Serialization is handled by a pluggable Codec[V].
type CAS[V any] interface {
	Enabled() bool
	Close(context.Context) error

	// Single
	Get(ctx context.Context, key string) (v V, ok bool, err error)
	SetWithGen(ctx context.Context, key string, value V, observedGen uint64, ttl time.Duration) error
	Invalidate(ctx context.Context, key string) error

	// Bulk (order-agnostic return; use your own ordering by keys slice)
	GetBulk(ctx context.Context, keys []string) (values map[string]V, missing []string, err error)
	SetBulkWithGens(ctx context.Context, items map[string]V, observedGens map[string]uint64, ttl time.Duration) error

	// Generation snapshots (for CAS)
	SnapshotGen(key string) uint64
	SnapshotGens(keys []string) map[string]uint64
}

// Options tune the behavior of the generic CAS cache.
// Only Namespace and Provider are required; others have sensible defaults.
type Options[V any] struct {
	// Namespace and Provider are required; Codec defaults to codec.Wire[V] when nil.
	Namespace string // logical namespace to avoid collisions. e.g. "user", "profile", "order"
	Provider  pr.Provider
	Codec     c.Codec[V]

	Logger          Logger        // if nil, NopLogger is used
	Hooks           Hooks         // if nil, NopHooks is used
	DefaultTTL      time.Duration // singles; 0 => 10m
	BulkTTL         time.Duration // bulks; 0 => 10m
	CleanupInterval time.Duration // 0 => 1h
	GenRetention    time.Duration // 0 => 30d
	Disabled        bool          // default false (enabled)
	ComputeSetCost  SetCostFunc   // default 1
	GenStore        gen.GenStore  // nil => LocalGenStore (in-process)
	DisableBulk     bool          // default false => bulk enabled
}

func New[V any](opts Options[V]) (CAS[V], error) {
	return newCache[V](opts)
}
