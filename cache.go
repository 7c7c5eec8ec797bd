package wirecache

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/nodeware/wirecache/codec"
	"github.com/nodeware/wirecache/internal/frame"
	"github.com/nodeware/wirecache/internal/util"
)

const (
	defaultGenRetention = 30 * 24 * time.Hour
	defaultSweep        = time.Hour
)

type cache[V any] struct {
	ns             string
	provider       Provider
	codec          Codec[V]
	codecKind      frame.CodecKind
	log            Logger
	hooks          Hooks
	enabled        bool
	defaultTTL     time.Duration
	bulkTTL        time.Duration
	sweepInterval  time.Duration
	genRetention   time.Duration
	computeSetCost SetCostFunc
	gen            GenStore
	disableBulk    bool
}

// classifyCodec identifies which CodecKind a configured Codec[V] corresponds
// to, so frames written by it can be tagged and later checked against the
// codec the cache is currently configured with. codec.Bytes, codec.String
// and codec.Protobuf[T] are deliberately not handled here: they are not
// generically parameterized over V (they implement Codec[[]byte],
// Codec[string], or are constrained to proto.Message), so they can't be
// asserted against Codec[V] for an arbitrary V inside this generic
// function. Values produced by them fall back to CodecUnknown, which
// disables the codec-mismatch self-heal check but never blocks decoding.
func classifyCodec[V any](vc Codec[V]) frame.CodecKind {
	switch cc := vc.(type) {
	case codec.Wire[V]:
		return frame.CodecWire
	case codec.JSON[V]:
		return frame.CodecJSON
	case codec.CBOR[V]:
		return frame.CodecCBOR
	case codec.Msgpack[V]:
		return frame.CodecMsgpack
	case codec.LimitCodec[V]:
		if inner, ok := cc.Inner.(Codec[V]); ok {
			return classifyCodec[V](inner)
		}
		return frame.CodecUnknown
	default:
		return frame.CodecUnknown
	}
}

func newCache[V any](opts Options[V]) (*cache[V], error) {
	if opts.Provider == nil {
		return nil, fmt.Errorf("wirecache: provider is required")
	}
	if opts.Namespace == "" {
		return nil, fmt.Errorf("wirecache: namespace is required")
	}

	valueCodec := opts.Codec
	if valueCodec == nil {
		valueCodec = codec.Wire[V]{}
	}

	cc := &cache[V]{
		ns:        opts.Namespace,
		provider:  opts.Provider,
		codec:     valueCodec,
		codecKind:   classifyCodec[V](valueCodec),
		enabled:     !opts.Disabled,
		disableBulk: opts.DisableBulk,
	}

	// defaults
	cc.log = coalesce[Logger](opts.Logger, NopLogger{})
	cc.hooks = coalesce[Hooks](opts.Hooks, NopHooks{})
	cc.defaultTTL = coalesce[time.Duration](opts.DefaultTTL, 10*time.Minute)
	cc.bulkTTL = coalesce[time.Duration](opts.BulkTTL, 10*time.Minute)
	cc.sweepInterval = coalesce[time.Duration](opts.CleanupInterval, defaultSweep)
	cc.genRetention = coalesce[time.Duration](opts.GenRetention, defaultGenRetention)

	if opts.ComputeSetCost != nil {
		cc.computeSetCost = opts.ComputeSetCost
	} else {
		cc.computeSetCost = func(_ string, _ []byte, _ bool, _ int) int64 { return 1 }
	}

	if opts.GenStore != nil {
		cc.gen = opts.GenStore
	} else {
		// default to in-process generations with periodic cleanup
		cc.gen = NewLocalGenStore(cc.sweepInterval, cc.genRetention)
		if !opts.DisableBulk {
			// local generations don't survive a restart; bulk records read
			// back after one will appear stale and fall back to singles.
			cc.hooks.LocalGenWithBulk()
		}
	}

	return cc, nil
}

func (c *cache[V]) Enabled() bool { return c.enabled }

func (c *cache[V]) Close(ctx context.Context) error {
	// Close gen store first (best effort)
	if c.gen != nil {
		_ = c.gen.Close(ctx)
	}
	if c.provider != nil {
		return c.provider.Close(ctx)
	}
	return nil
}

func (c *cache[V]) Get(ctx context.Context, key string) (V, bool, error) {
	var zero V
	if !c.enabled {
		return zero, false, nil
	}
	k := c.singleKey(key)
	raw, ok, err := c.provider.Get(ctx, k)
	if err != nil || !ok {
		return zero, false, err
	}
	gen, codecKind, payload, err := frame.DecodeSingle(raw)
	if err != nil {
		_ = c.provider.Del(ctx, k) // self-heal corrupt
		c.hooks.SelfHealSingle(k, "corrupt frame: "+err.Error())
		return zero, false, nil
	}
	if codecKind != frame.CodecUnknown && c.codecKind != frame.CodecUnknown && codecKind != c.codecKind {
		// entry was written by a different Codec (e.g. across a deploy that
		// changed Options[V].Codec); decoding it with the current codec
		// would likely fail or silently misinterpret bytes, so treat it as
		// corrupt and let the caller re-populate under the new codec.
		_ = c.provider.Del(ctx, k)
		c.hooks.SelfHealSingle(k, fmt.Sprintf("codec mismatch: stored=%s current=%s", codecKind, c.codecKind))
		return zero, false, nil
	}
	// validate generation
	if gen != c.snapshotGen(k) {
		_ = c.provider.Del(ctx, k)
		c.hooks.SelfHealSingle(k, "stale generation")
		return zero, false, nil
	}
	v, err := c.codec.Decode(payload)
	if err != nil {
		_ = c.provider.Del(ctx, k) // self-heal
		c.hooks.SelfHealSingle(k, "codec decode error: "+err.Error())
		return zero, false, nil
	}
	return v, true, nil
}

func (c *cache[V]) SetWithGen(ctx context.Context, key string, value V, observedGen uint64, ttl time.Duration) error {
	if !c.enabled {
		return nil
	}
	if ttl == 0 {
		ttl = c.defaultTTL
	}
	k := c.singleKey(key)
	if c.snapshotGen(k) != observedGen {
		// generation moved; skip stale write
		c.log.Debug("SetWithGen skipped (gen mismatch)", Fields{"key": key, "obs": observedGen})
		return nil
	}
	payload, err := c.codec.Encode(value)
	if err != nil {
		return err
	}
	wireb, err := frame.EncodeSingle(observedGen, c.codecKind, payload)
	if err != nil {
		return err
	}
	ok, err := c.provider.Set(ctx, k, wireb, c.computeSetCost(k, wireb, false, 1), ttl)
	if err != nil {
		return err
	}
	if !ok {
		c.log.Debug("SetWithGen rejected by provider (pressure)", Fields{"key": key})
		c.hooks.ProviderSetRejected(k, false)
	}
	return nil
}

func (c *cache[V]) Invalidate(ctx context.Context, key string) error {
	if !c.enabled {
		return nil
	}
	k := c.singleKey(key)
	newGen, bumpErr := c.bumpGen(ctx, k)
	delErr := c.provider.Del(ctx, k)

	if bumpErr != nil && delErr != nil {
		c.hooks.InvalidateOutage(key, bumpErr, delErr)
		return &InvalidateError{Key: key, BumpErr: bumpErr, DelErr: delErr}
	}

	c.log.Debug("invalidated key (bumped gen + cleared single)", Fields{"key": key, "newGen": newGen})
	return nil
}

func (c *cache[V]) GetBulk(ctx context.Context, keys []string) (map[string]V, []string, error) {
	out := make(map[string]V, len(keys))
	if !c.enabled {
		missing := make([]string, 0, len(keys))
		missing = append(missing, keys...)
		return out, missing, nil
	}
	if len(keys) == 0 {
		return out, nil, nil
	}

	// dedup+sort once; reuse for both bulk key and completeness checking, so
	// a request containing duplicate keys still matches the (inherently
	// unique) key set a bulk record was written against.
	sorted := uniqSorted(keys)

	bulkKey := c.bulkKeySorted(sorted)
	if raw, ok, err := c.provider.Get(ctx, bulkKey); err == nil && ok {
		items, codecKind, err := frame.DecodeBulk(raw)
		codecOK := codecKind == frame.CodecUnknown || c.codecKind == frame.CodecUnknown || codecKind == c.codecKind
		if err == nil && codecOK && c.bulkValid(ctx, sorted, items) {
			byKey := make(map[string]V, len(items))
			genByKey := make(map[string]uint64, len(items))
			for _, it := range items {
				val, err := c.codec.Decode(it.Payload)
				if err != nil {
					continue
				}
				byKey[it.Key] = val
				genByKey[it.Key] = it.Gen
			}
			var missing []string
			for _, k := range keys {
				if v, ok := byKey[k]; ok {
					out[k] = v
					// opportunistic single warmup (CAS-protected)
					_ = c.SetWithGen(ctx, k, v, genByKey[k], c.defaultTTL)
				} else {
					missing = append(missing, k)
				}
			}
			return out, missing, nil
		}
		// stale or corrupt bulk; drop
		_ = c.provider.Del(ctx, bulkKey)
	}

	// Fallback: try singles
	var missing []string
	for _, k := range keys {
		if v, ok, _ := c.Get(ctx, k); ok {
			out[k] = v
		} else {
			missing = append(missing, k)
		}
	}
	return out, missing, nil
}

func (c *cache[V]) SetBulkWithGens(ctx context.Context, items map[string]V, observedGens map[string]uint64, ttl time.Duration) error {
	if !c.enabled || len(items) == 0 {
		return nil
	}
	if ttl == 0 {
		ttl = c.bulkTTL
	}

	if c.disableBulk {
		// bulk disabled: seed singles only, never write a bulk key
		for k, v := range items {
			_ = c.SetWithGen(ctx, k, v, observedGens[k], c.defaultTTL)
		}
		return nil
	}

	// verify all observed gens still current
	for k := range items {
		kk := c.singleKey(k)
		obs, ok := observedGens[k]
		if !ok || c.snapshotGen(kk) != obs {
			// skip bulk; seed singles instead
			c.log.Debug("SetBulkWithGens skipped (gen mismatch)", Fields{"key": k})
			c.hooks.BulkRejected(c.ns, len(items), "gen mismatch")
			for kk2, v := range items {
				if obs2, ok := observedGens[kk2]; ok {
					_ = c.SetWithGen(ctx, kk2, v, obs2, c.defaultTTL)
				}
			}
			return nil
		}
	}

	// encode all into wire bulk (deterministic key order)
	keys := make([]string, 0, len(items))
	for k := range items {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	wireItems := make([]frame.BulkItem, 0, len(items))
	for _, k := range keys {
		payload, err := c.codec.Encode(items[k])
		if err != nil {
			return err
		}
		wireItems = append(wireItems, frame.BulkItem{
			Key:     k,
			Gen:     observedGens[k],
			Payload: payload,
		})
	}
	wireb, err := frame.EncodeBulk(wireItems, c.codecKind)
	if err != nil {
		return err
	}

	// Use sorted keys for bulk key too
	bk := c.bulkKeySorted(keys)
	ok, err := c.provider.Set(ctx, bk, wireb, c.computeSetCost(bk, wireb, true, len(items)), ttl)
	if err != nil {
		return err
	}
	if !ok {
		c.log.Debug("bulk Set rejected; seeding singles", Fields{"bulkKey": bk})
		c.hooks.ProviderSetRejected(bk, true)
		for k, v := range items {
			_ = c.SetWithGen(ctx, k, v, observedGens[k], c.defaultTTL)
		}
		return nil
	}

	// also seed singles best-effort
	for k, v := range items {
		_ = c.SetWithGen(ctx, k, v, observedGens[k], c.defaultTTL)
	}
	return nil
}

func (c *cache[V]) SnapshotGen(key string) uint64 {
	k := c.singleKey(key)
	return c.snapshotGen(k)
}

func (c *cache[V]) SnapshotGens(keys []string) map[string]uint64 {
	storage := make([]string, len(keys))
	for i, k := range keys {
		storage[i] = c.singleKey(k)
	}
	m, err := c.gen.SnapshotMany(context.Background(), storage)
	if err != nil {
		c.hooks.GenSnapshotError(len(keys), err)
		// conservative fallback: one by one
		out := make(map[string]uint64, len(keys))
		for _, k := range keys {
			out[k] = c.SnapshotGen(k)
		}
		return out
	}
	out := make(map[string]uint64, len(keys))
	for _, k := range keys {
		out[k] = m[c.singleKey(k)]
	}
	return out
}

func (c *cache[V]) snapshotGen(storageKey string) uint64 {
	g, err := c.gen.Snapshot(context.Background(), storageKey)
	if err != nil {
		// Conservative: treat as 0 so CAS writes will skip; reads will self-heal
		c.log.Warn("gen snapshot error", Fields{"key": storageKey, "err": err})
		c.hooks.GenSnapshotError(1, err)
		return 0
	}
	return g
}

func (c *cache[V]) bumpGen(ctx context.Context, storageKey string) (uint64, error) {
	g, err := c.gen.Bump(ctx, storageKey)
	if err != nil {
		c.log.Error("gen bump error", Fields{"key": storageKey, "err": err})
		c.hooks.GenBumpError(storageKey, err)
	}
	return g, err
}

func (c *cache[V]) singleKey(userKey string) string {
	// isolate by namespace
	return "single:" + c.ns + ":" + userKey
}

func (c *cache[V]) bulkKeySorted(sortedKeys []string) string {
	// sortedKeys must be sorted ascending
	return util.BulkKeySorted("bulk:"+c.ns, sortedKeys)
}

// bulkValid reports whether a decoded bulk record still satisfies a
// request for keys: every requested key must be present in items with a
// generation matching its current snapshot. Items for keys not in the
// request are ignored (a bulk record can be a superset of what's asked for).
func (c *cache[V]) bulkValid(ctx context.Context, keys []string, items []frame.BulkItem) bool {
	byKey := make(map[string]frame.BulkItem, len(items))
	for _, it := range items {
		byKey[it.Key] = it
	}
	for _, k := range keys {
		it, ok := byKey[k]
		if !ok || it.Gen != c.snapshotGen(c.singleKey(k)) {
			return false
		}
	}
	return true
}

// uniqSorted returns a sorted copy of in with adjacent duplicates removed,
// so callers computing a bulk key from a possibly-duplicate-containing
// request get the same key a map-derived (inherently unique) key set would.
func uniqSorted(in []string) []string {
	s := make([]string, len(in))
	copy(s, in)
	sort.Strings(s)
	out := s[:0]
	for i, k := range s {
		if i == 0 || k != s[i-1] {
			out = append(out, k)
		}
	}
	return out
}
