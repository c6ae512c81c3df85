// Package storage defines the abstract contract the Update Engine and
// Lookup Engine need from a threat-list backing store (spec §4.6). It is
// the only polymorphic surface of the engine: callers may back it with
// anything that can answer these eleven operations, sharing it freely
// across concurrently-running per-list updates.
package storage

import (
	"context"
	"time"
)

// AddChunkEntry is one (list, chunknum, host, prefix) row.
type AddChunkEntry struct {
	List     string
	ChunkNum uint32
	Host     uint32
	Prefix   []byte
}

// SubChunkEntry is one (list, chunknum, add_chunknum, host, prefix) row.
type SubChunkEntry struct {
	List        string
	ChunkNum    uint32
	AddChunkNum uint32
	Host        uint32
	Prefix      []byte
}

// FullHashEntry is one (list, chunknum, hash) row, with the time it was
// fetched from the remote service.
type FullHashEntry struct {
	List      string
	ChunkNum  uint32
	Hash      [32]byte
	Timestamp time.Time
}

// Store is the full storage contract (spec §4.6). Implementations must be
// safe for concurrent use: the engine calls it from one goroutine per
// in-flight list update, and the lookup engine calls it concurrently with
// any running update.
type Store interface {
	// GetRegions returns the add-chunk and sub-chunk range strings
	// (chunkrange.Format output) currently stored for list.
	GetRegions(ctx context.Context, list string) (addRange, subRange string, err error)

	DeleteAddChunks(ctx context.Context, list string, chunkNums []uint32) error
	DeleteSubChunks(ctx context.Context, list string, chunkNums []uint32) error
	DeleteFullHashes(ctx context.Context, list string, chunkNums []uint32) error

	GetAddChunks(ctx context.Context, hostKey uint32, lists []string) ([]AddChunkEntry, error)
	GetSubChunks(ctx context.Context, hostKey uint32, lists []string) ([]SubChunkEntry, error)

	// GetFullHashes returns the cached full hashes for (list, chunkNum)
	// newer than minTimestamp, evicting anything older as a side effect.
	GetFullHashes(ctx context.Context, list string, chunkNum uint32, minTimestamp time.Time) ([]FullHashEntry, error)

	AddChunksA(ctx context.Context, entries []AddChunkEntry) error
	AddChunksS(ctx context.Context, entries []SubChunkEntry) error
	AddFullHashes(ctx context.Context, entries []FullHashEntry, timestamp time.Time) error

	// Reset wipes all add/sub/full-hash rows for list.
	Reset(ctx context.Context, list string) error
}
