package memstore

import (
	"context"

	"github.com/usher2/sb2/storage"
)

// GetSubChunks returns every stored sub-chunk entry for hostKey whose
// list is among lists.
func (s *Store) GetSubChunks(_ context.Context, hostKey uint32, lists []string) ([]storage.SubChunkEntry, error) {
	wanted := toSet(lists)

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []storage.SubChunkEntry
	for _, rec := range s.subsByHost[hostKey] {
		if _, ok := wanted[rec.list]; !ok {
			continue
		}
		out = append(out, rec.toEntry())
	}
	return out, nil
}

// AddChunksS bulk-inserts sub-chunk entries, skipping any that already
// exist under their (list, chunknum, add_chunknum, host, prefix) key.
func (s *Store) AddChunksS(_ context.Context, entries []storage.SubChunkEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range entries {
		rec := subRecord{
			list:        e.List,
			chunkNum:    e.ChunkNum,
			addChunkNum: e.AddChunkNum,
			host:        e.Host,
			prefix:      string(e.Prefix),
		}

		byChunk, ok := s.subsByList[rec.list]
		if !ok {
			byChunk = make(map[uint32][]subRecord)
			s.subsByList[rec.list] = byChunk
		}
		if containsSub(byChunk[rec.chunkNum], rec) {
			continue
		}

		byChunk[rec.chunkNum] = append(byChunk[rec.chunkNum], rec)
		s.subsByHost[rec.host] = append(s.subsByHost[rec.host], rec)
	}
	return nil
}

// DeleteSubChunks removes every sub-chunk entry for (list, chunknum) for
// each chunknum in chunkNums.
func (s *Store) DeleteSubChunks(_ context.Context, list string, chunkNumsU []uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	byChunk := s.subsByList[list]
	if byChunk == nil {
		return nil
	}

	for _, n := range chunkNumsU {
		removed := byChunk[n]
		delete(byChunk, n)
		for _, rec := range removed {
			s.subsByHost[rec.host] = removeSub(s.subsByHost[rec.host], rec)
		}
	}
	return nil
}

func (r subRecord) toEntry() storage.SubChunkEntry {
	return storage.SubChunkEntry{
		List:        r.list,
		ChunkNum:    r.chunkNum,
		AddChunkNum: r.addChunkNum,
		Host:        r.host,
		Prefix:      []byte(r.prefix),
	}
}

func containsSub(recs []subRecord, rec subRecord) bool {
	for _, r := range recs {
		if r == rec {
			return true
		}
	}
	return false
}

func removeSub(recs []subRecord, rec subRecord) []subRecord {
	out := recs[:0]
	for _, r := range recs {
		if r != rec {
			out = append(out, r)
		}
	}
	return out
}
