// Package memstore is an in-memory storage.Store, structured the way the
// teacher repo's Dump type indexes its data: one sync.RWMutex guarding a
// handful of small "map of slice" indices, each keyed by the natural
// lookup key for its operation.
package memstore

import (
	"sync"

	"github.com/usher2/sb2/chunkrange"
)

// Store is an in-memory, reference implementation of storage.Store. It is
// safe for concurrent use.
type Store struct {
	mu sync.RWMutex

	addsByList map[string]map[uint32][]addRecord
	subsByList map[string]map[uint32][]subRecord

	addsByHost map[uint32][]addRecord
	subsByHost map[uint32][]subRecord

	fullHashes map[string]map[uint32][]fullHashRecord
}

// New constructs an empty Store.
func New() *Store {
	return &Store{
		addsByList: make(map[string]map[uint32][]addRecord),
		subsByList: make(map[string]map[uint32][]subRecord),
		addsByHost: make(map[uint32][]addRecord),
		subsByHost: make(map[uint32][]subRecord),
		fullHashes: make(map[string]map[uint32][]fullHashRecord),
	}
}

func chunkNums(m map[uint32][]addRecord) []int {
	out := make([]int, 0, len(m))
	for n := range m {
		out = append(out, int(n))
	}
	return out
}

func chunkNumsSub(m map[uint32][]subRecord) []int {
	out := make([]int, 0, len(m))
	for n := range m {
		out = append(out, int(n))
	}
	return out
}

func (s *Store) regionsLocked(list string) (addRange, subRange string) {
	return chunkrange.Format(chunkNums(s.addsByList[list])), chunkrange.Format(chunkNumsSub(s.subsByList[list]))
}
