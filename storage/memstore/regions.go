package memstore

import "context"

// GetRegions returns the compact add/sub chunk-range strings currently
// stored for list.
func (s *Store) GetRegions(_ context.Context, list string) (addRange, subRange string, err error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, b := s.regionsLocked(list)
	return a, b, nil
}

// Reset wipes all add/sub/full-hash rows for list.
func (s *Store) Reset(_ context.Context, list string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for n, recs := range s.addsByList[list] {
		for _, rec := range recs {
			s.addsByHost[rec.host] = removeAdd(s.addsByHost[rec.host], rec)
		}
		delete(s.addsByList[list], n)
	}
	delete(s.addsByList, list)

	for n, recs := range s.subsByList[list] {
		for _, rec := range recs {
			s.subsByHost[rec.host] = removeSub(s.subsByHost[rec.host], rec)
		}
		delete(s.subsByList[list], n)
	}
	delete(s.subsByList, list)

	delete(s.fullHashes, list)

	return nil
}
