package memstore

import (
	"context"
	"time"

	"github.com/usher2/sb2/storage"
)

// GetFullHashes returns the cached full hashes for (list, chunkNum) newer
// than minTimestamp, evicting anything at or older than minTimestamp as a
// side effect (spec §4.6).
func (s *Store) GetFullHashes(_ context.Context, list string, chunkNum uint32, minTimestamp time.Time) ([]storage.FullHashEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	byChunk := s.fullHashes[list]
	if byChunk == nil {
		return nil, nil
	}

	recs := byChunk[chunkNum]
	fresh := recs[:0]
	var out []storage.FullHashEntry
	for _, r := range recs {
		if r.timestamp.After(minTimestamp) {
			fresh = append(fresh, r)
			out = append(out, r.toEntry())
		}
	}
	if len(fresh) == 0 {
		delete(byChunk, chunkNum)
	} else {
		byChunk[chunkNum] = fresh
	}
	return out, nil
}

// AddFullHashes inserts full-hash entries, stamping each with timestamp.
func (s *Store) AddFullHashes(_ context.Context, entries []storage.FullHashEntry, timestamp time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range entries {
		byChunk, ok := s.fullHashes[e.List]
		if !ok {
			byChunk = make(map[uint32][]fullHashRecord)
			s.fullHashes[e.List] = byChunk
		}
		byChunk[e.ChunkNum] = append(byChunk[e.ChunkNum], fullHashRecord{
			list:      e.List,
			chunkNum:  e.ChunkNum,
			hash:      e.Hash,
			timestamp: timestamp,
		})
	}
	return nil
}

// DeleteFullHashes removes every cached full hash for (list, chunknum) for
// each chunknum in chunkNums — the companion delete an "ad:" directive
// requires (spec invariant §3).
func (s *Store) DeleteFullHashes(_ context.Context, list string, chunkNums []uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	byChunk := s.fullHashes[list]
	if byChunk == nil {
		return nil
	}
	for _, n := range chunkNums {
		delete(byChunk, n)
	}
	return nil
}

func (r fullHashRecord) toEntry() storage.FullHashEntry {
	return storage.FullHashEntry{List: r.list, ChunkNum: r.chunkNum, Hash: r.hash, Timestamp: r.timestamp}
}
