package memstore

import (
	"context"

	"github.com/usher2/sb2/storage"
)

// GetAddChunks returns every stored add-chunk entry for hostKey whose list
// is among lists.
func (s *Store) GetAddChunks(_ context.Context, hostKey uint32, lists []string) ([]storage.AddChunkEntry, error) {
	wanted := toSet(lists)

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []storage.AddChunkEntry
	for _, rec := range s.addsByHost[hostKey] {
		if _, ok := wanted[rec.list]; !ok {
			continue
		}
		out = append(out, rec.toEntry())
	}
	return out, nil
}

// AddChunksA bulk-inserts add-chunk entries, skipping any that already
// exist under their (list, chunknum, host, prefix) key.
func (s *Store) AddChunksA(_ context.Context, entries []storage.AddChunkEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range entries {
		rec := addRecord{list: e.List, chunkNum: e.ChunkNum, host: e.Host, prefix: string(e.Prefix)}

		byChunk, ok := s.addsByList[rec.list]
		if !ok {
			byChunk = make(map[uint32][]addRecord)
			s.addsByList[rec.list] = byChunk
		}
		if containsAdd(byChunk[rec.chunkNum], rec) {
			continue
		}

		byChunk[rec.chunkNum] = append(byChunk[rec.chunkNum], rec)
		s.addsByHost[rec.host] = append(s.addsByHost[rec.host], rec)
	}
	return nil
}

// DeleteAddChunks removes every add-chunk entry for (list, chunknum) for
// each chunknum in chunkNums. It does not touch full hashes — callers
// apply that companion delete themselves (spec §4.4).
func (s *Store) DeleteAddChunks(_ context.Context, list string, chunkNumsU []uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	byChunk := s.addsByList[list]
	if byChunk == nil {
		return nil
	}

	for _, n := range chunkNumsU {
		removed := byChunk[n]
		delete(byChunk, n)
		for _, rec := range removed {
			s.addsByHost[rec.host] = removeAdd(s.addsByHost[rec.host], rec)
		}
	}
	return nil
}

func (r addRecord) toEntry() storage.AddChunkEntry {
	return storage.AddChunkEntry{List: r.list, ChunkNum: r.chunkNum, Host: r.host, Prefix: []byte(r.prefix)}
}

func containsAdd(recs []addRecord, rec addRecord) bool {
	for _, r := range recs {
		if r == rec {
			return true
		}
	}
	return false
}

func removeAdd(recs []addRecord, rec addRecord) []addRecord {
	out := recs[:0]
	for _, r := range recs {
		if r != rec {
			out = append(out, r)
		}
	}
	return out
}

func toSet(lists []string) map[string]struct{} {
	m := make(map[string]struct{}, len(lists))
	for _, l := range lists {
		m[l] = struct{}{}
	}
	return m
}
