package memstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/usher2/sb2/storage"
)

func TestAddChunksAIdempotent(t *testing.T) {
	s := New()
	ctx := context.Background()
	entry := storage.AddChunkEntry{List: "L", ChunkNum: 1, Host: 42, Prefix: []byte{1, 2, 3, 4}}

	require.NoError(t, s.AddChunksA(ctx, []storage.AddChunkEntry{entry}))
	require.NoError(t, s.AddChunksA(ctx, []storage.AddChunkEntry{entry}))

	got, err := s.GetAddChunks(ctx, 42, []string{"L"})
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestGetAddChunksFiltersByList(t *testing.T) {
	s := New()
	ctx := context.Background()
	require.NoError(t, s.AddChunksA(ctx, []storage.AddChunkEntry{
		{List: "L1", ChunkNum: 1, Host: 7, Prefix: []byte{1}},
		{List: "L2", ChunkNum: 1, Host: 7, Prefix: []byte{2}},
	}))

	got, err := s.GetAddChunks(ctx, 7, []string{"L1"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "L1", got[0].List)
}

func TestDeleteAddChunksRemovesFromHostIndex(t *testing.T) {
	s := New()
	ctx := context.Background()
	require.NoError(t, s.AddChunksA(ctx, []storage.AddChunkEntry{
		{List: "L", ChunkNum: 1, Host: 7, Prefix: []byte{1}},
	}))
	require.NoError(t, s.DeleteAddChunks(ctx, "L", []uint32{1}))

	got, err := s.GetAddChunks(ctx, 7, []string{"L"})
	require.NoError(t, err)
	assert.Empty(t, got)

	a, _, err := s.GetRegions(ctx, "L")
	require.NoError(t, err)
	assert.Equal(t, "", a)
}

func TestGetRegionsFormatsCompactly(t *testing.T) {
	s := New()
	ctx := context.Background()
	for _, n := range []uint32{1, 2, 3, 5} {
		require.NoError(t, s.AddChunksA(ctx, []storage.AddChunkEntry{{List: "L", ChunkNum: n, Host: 1}}))
	}
	for _, n := range []uint32{9} {
		require.NoError(t, s.AddChunksS(ctx, []storage.SubChunkEntry{{List: "L", ChunkNum: n, Host: 1}}))
	}

	a, b, err := s.GetRegions(ctx, "L")
	require.NoError(t, err)
	assert.Equal(t, "1-3,5", a)
	assert.Equal(t, "9", b)
}

func TestFullHashCacheFreshnessAndEviction(t *testing.T) {
	s := New()
	ctx := context.Background()
	var h [32]byte
	h[0] = 0xAB

	old := time.Now().Add(-1 * time.Hour)
	require.NoError(t, s.AddFullHashes(ctx, []storage.FullHashEntry{{List: "L", ChunkNum: 1, Hash: h}}, old))

	fresh, err := s.GetFullHashes(ctx, "L", 1, time.Now().Add(-30*time.Minute))
	require.NoError(t, err)
	assert.Empty(t, fresh, "entry older than cutoff should be evicted and excluded")

	// re-insert with a fresh timestamp and confirm it's now returned.
	require.NoError(t, s.AddFullHashes(ctx, []storage.FullHashEntry{{List: "L", ChunkNum: 1, Hash: h}}, time.Now()))
	fresh, err = s.GetFullHashes(ctx, "L", 1, time.Now().Add(-30*time.Minute))
	require.NoError(t, err)
	require.Len(t, fresh, 1)
	assert.Equal(t, h, fresh[0].Hash)
}

func TestDeleteFullHashesOnAddChunkDelete(t *testing.T) {
	s := New()
	ctx := context.Background()
	var h [32]byte
	require.NoError(t, s.AddFullHashes(ctx, []storage.FullHashEntry{{List: "L", ChunkNum: 1, Hash: h}}, time.Now()))
	require.NoError(t, s.DeleteFullHashes(ctx, "L", []uint32{1}))

	fresh, err := s.GetFullHashes(ctx, "L", 1, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Empty(t, fresh)
}

func TestResetWipesList(t *testing.T) {
	s := New()
	ctx := context.Background()
	for i := uint32(1); i <= 100; i++ {
		require.NoError(t, s.AddChunksA(ctx, []storage.AddChunkEntry{{List: "L", ChunkNum: i, Host: i}}))
	}
	var h [32]byte
	require.NoError(t, s.AddFullHashes(ctx, []storage.FullHashEntry{{List: "L", ChunkNum: 1, Hash: h}}, time.Now()))

	require.NoError(t, s.Reset(ctx, "L"))

	a, b, err := s.GetRegions(ctx, "L")
	require.NoError(t, err)
	assert.Equal(t, "", a)
	assert.Equal(t, "", b)

	got, err := s.GetAddChunks(ctx, 1, []string{"L"})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestApplyingSameUpdateTwiceIsIdempotent(t *testing.T) {
	s := New()
	ctx := context.Background()
	entries := []storage.AddChunkEntry{
		{List: "L", ChunkNum: 1, Host: 1, Prefix: []byte{1, 2, 3, 4}},
		{List: "L", ChunkNum: 1, Host: 2, Prefix: nil},
	}
	require.NoError(t, s.AddChunksA(ctx, entries))
	require.NoError(t, s.AddChunksA(ctx, entries))

	got1, err := s.GetAddChunks(ctx, 1, []string{"L"})
	require.NoError(t, err)
	got2, err := s.GetAddChunks(ctx, 2, []string{"L"})
	require.NoError(t, err)
	assert.Len(t, got1, 1)
	assert.Len(t, got2, 1)
}
