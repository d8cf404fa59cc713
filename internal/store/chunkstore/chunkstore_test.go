package chunkstore

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileChunkStoreRoundTrip(t *testing.T) {
	store, err := NewFileChunkStore(t.TempDir())
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, store.Put(ctx, "agg-1/chunk-7", []byte("payload")))

	got, err := store.Get(ctx, "agg-1/chunk-7")
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), got)

	require.NoError(t, store.Delete(ctx, "agg-1/chunk-7"))
	_, err = store.Get(ctx, "agg-1/chunk-7")
	assert.Error(t, err)
}

func TestFileChunkStoreDeleteIsIdempotent(t *testing.T) {
	store, err := NewFileChunkStore(t.TempDir())
	require.NoError(t, err)
	assert.NoError(t, store.Delete(context.Background(), "never-written"))
}

type memStore struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMemStore() *memStore { return &memStore{data: map[string][]byte{}} }

func (m *memStore) Put(_ context.Context, key string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = append([]byte(nil), data...)
	return nil
}
func (m *memStore) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data[key], nil
}
func (m *memStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}
func (m *memStore) has(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.data[key]
	return ok
}

func TestCoordinatingChunkStoreServesReadsFromPrimary(t *testing.T) {
	primary, mirror := newMemStore(), newMemStore()
	cs := NewCoordinatingChunkStore(primary, mirror)

	require.NoError(t, cs.Put(context.Background(), "k", []byte("v")))
	got, err := cs.Get(context.Background(), "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), got)
}

func TestCoordinatingChunkStoreMirrorsWritesAsynchronously(t *testing.T) {
	primary, mirror := newMemStore(), newMemStore()
	cs := NewCoordinatingChunkStore(primary, mirror)

	require.NoError(t, cs.Put(context.Background(), "k", []byte("v")))
	require.Eventually(t, func() bool { return mirror.has("k") }, time.Second, time.Millisecond)
}
