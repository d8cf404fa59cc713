package attrresolve

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arx-os/datakernel-cube/internal/cube"
)

type countingSource struct {
	calls atomic.Int64
}

func (s *countingSource) Capability() cube.ResolverCapability {
	return cube.ResolverCapability{KeyDims: []string{"country"}}
}

func (s *countingSource) Resolve(_ context.Context, _ []string, keyValues [][]any) ([]map[string]any, error) {
	s.calls.Add(1)
	out := make([]map[string]any, len(keyValues))
	for i, kv := range keyValues {
		out[i] = map[string]any{"country_name": kv[0]}
	}
	return out, nil
}

func TestCachingResolverServesRepeatLookupsFromCache(t *testing.T) {
	source := &countingSource{}
	resolver, err := NewCachingResolver(source, 1<<20, time.Minute)
	require.NoError(t, err)

	keys := []string{"country"}
	first, err := resolver.Resolve(context.Background(), keys, [][]any{{"DE"}, {"FR"}})
	require.NoError(t, err)
	require.Len(t, first, 2)
	assert.Equal(t, "DE", first[0]["country_name"])

	second, err := resolver.Resolve(context.Background(), keys, [][]any{{"DE"}, {"FR"}})
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, int64(1), source.calls.Load())
}

func TestCachingResolverOnlyForwardsMisses(t *testing.T) {
	source := &countingSource{}
	resolver, err := NewCachingResolver(source, 1<<20, time.Minute)
	require.NoError(t, err)

	keys := []string{"country"}
	_, err = resolver.Resolve(context.Background(), keys, [][]any{{"DE"}})
	require.NoError(t, err)
	assert.Equal(t, int64(1), source.calls.Load())

	result, err := resolver.Resolve(context.Background(), keys, [][]any{{"DE"}, {"IT"}})
	require.NoError(t, err)
	require.Len(t, result, 2)
	assert.Equal(t, "DE", result[0]["country_name"])
	assert.Equal(t, "IT", result[1]["country_name"])
	assert.Equal(t, int64(2), source.calls.Load())
}
