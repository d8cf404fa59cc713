// Package attrresolve provides the Attribute Resolver collaborator (spec.md
// §6): a cube.AttributeResolver decorator that caches per-key-tuple
// resolutions, grounded on internal/database/spatial_optimizer.go's
// QueryCache (a ristretto-backed, TTL'd, md5-hashed-key result cache).
package attrresolve

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/dgraph-io/ristretto"

	"github.com/arx-os/datakernel-cube/internal/cube"
)

// Source is the uncached resolver a CachingResolver wraps -- typically a
// lookup against an external dimension table or service.
type Source interface {
	Capability() cube.ResolverCapability
	Resolve(ctx context.Context, keys []string, keyValues [][]any) ([]map[string]any, error)
}

// CachingResolver decorates a Source with a ristretto cache keyed by an
// md5 hash of the key tuple, the same key-generation scheme as
// QueryCache.generateKey, generalized from "hash a SQL query + its args"
// to "hash a dimension key tuple."
type CachingResolver struct {
	source Source
	cache  *ristretto.Cache
	ttl    time.Duration
}

// NewCachingResolver wraps source with an in-memory cache of at most
// maxCost total cost (ristretto's admission-weighted size bound) and the
// given per-entry TTL.
func NewCachingResolver(source Source, maxCost int64, ttl time.Duration) (*CachingResolver, error) {
	c, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: maxCost / 10,
		MaxCost:     maxCost,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("attrresolve: creating cache: %w", err)
	}
	return &CachingResolver{source: source, cache: c, ttl: ttl}, nil
}

func (r *CachingResolver) Capability() cube.ResolverCapability {
	return r.source.Capability()
}

// Resolve serves every key tuple it can from cache and forwards only the
// misses to the underlying source, preserving the caller's row order in
// the result.
func (r *CachingResolver) Resolve(ctx context.Context, keys []string, keyValues [][]any) ([]map[string]any, error) {
	out := make([]map[string]any, len(keyValues))
	var missIdx []int
	var missKeys [][]any

	for i, kv := range keyValues {
		key := cacheKey(keys, kv)
		if v, ok := r.cache.Get(key); ok {
			out[i] = v.(map[string]any)
			continue
		}
		missIdx = append(missIdx, i)
		missKeys = append(missKeys, kv)
	}

	if len(missKeys) == 0 {
		return out, nil
	}

	resolved, err := r.source.Resolve(ctx, keys, missKeys)
	if err != nil {
		return nil, err
	}
	for j, idx := range missIdx {
		var v map[string]any
		if j < len(resolved) {
			v = resolved[j]
		}
		out[idx] = v
		r.cache.SetWithTTL(cacheKey(keys, missKeys[j]), v, 1, r.ttl)
	}
	r.cache.Wait()
	return out, nil
}

func cacheKey(keys []string, values []any) string {
	h := md5.New()
	for _, k := range keys {
		h.Write([]byte(k))
	}
	for _, v := range values {
		fmt.Fprintf(h, "%v", v)
	}
	return hex.EncodeToString(h.Sum(nil))
}
