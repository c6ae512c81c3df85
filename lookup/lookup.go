// Package lookup implements the Lookup Engine (spec §4.5): it answers
// "is URL U on list L?" by canonicalizing U, testing its host/path
// prefixes against the locally replicated chunk data, and confirming
// any local hit with a full-hash comparison, cached or freshly fetched
// from the remote service.
package lookup

import (
	"context"
	"time"

	"github.com/usher2/sb2/canon"
	"github.com/usher2/sb2/hash"
	"github.com/usher2/sb2/internal/logger"
	"github.com/usher2/sb2/smallconfig"
	"github.com/usher2/sb2/storage"
)

// HTTPClient is the subset of transport.Client the engine needs.
type HTTPClient interface {
	Post(ctx context.Context, url string, body []byte) ([]byte, int, error)
}

// Config carries the recognized options of spec §6 that govern the
// Lookup Engine.
type Config struct {
	Server   string // required; gethash requests go to <Server>gethash
	Key      string // required
	Version  string // default "2.2"
	CacheTTL time.Duration // default 2700s
}

func (c Config) version() string {
	if c.Version == "" {
		return "2.2"
	}
	return c.Version
}

func (c Config) cacheTTL() time.Duration {
	if c.CacheTTL <= 0 {
		return 2700 * time.Second
	}
	return c.CacheTTL
}

// Engine is the Lookup Engine.
type Engine struct {
	http   HTTPClient
	store  storage.Store
	config smallconfig.Store
	cfg    Config
}

// New builds an Engine.
func New(http HTTPClient, store storage.Store, config smallconfig.Store, cfg Config) *Engine {
	return &Engine{http: http, store: store, config: config, cfg: cfg}
}

// Lookup answers whether url is present on any of lists, returning the
// subset of lists that claim it (spec §4.5). A URL that fails
// canonicalization reports no match rather than an error.
func (e *Engine) Lookup(ctx context.Context, lists []string, rawURL string) ([]string, error) {
	res, ok := canon.Canonicalize(rawURL)
	if !ok {
		return nil, nil
	}

	patternHashes := make(map[[32]byte]struct{}, len(res.Patterns))
	prefixSet := make(map[string]struct{}, len(res.Patterns))
	for _, p := range res.Patterns {
		patternHashes[hash.Full(p)] = struct{}{}
		prefixSet[string(hash.Prefix(p, hash.PrefixLen))] = struct{}{}
	}

	matches := make(map[string]struct{})
	now := time.Now()

	for _, suffix := range res.HostSuffixes {
		hostKey := hash.HostKey(suffix)

		candidates, err := e.localLookup(ctx, hostKey, lists, prefixSet)
		if err != nil {
			logger.Error.Printf("lookup: local lookup %s: %s\n", suffix, err)
			continue
		}
		if len(candidates) == 0 {
			continue
		}

		if err := e.confirm(ctx, candidates, patternHashes, lists, now, matches); err != nil {
			logger.Warning.Printf("lookup: confirm %s: %s\n", suffix, err)
		}
	}

	out := make([]string, 0, len(matches))
	for list := range matches {
		out = append(out, list)
	}
	return out, nil
}

// localLookup implements spec §4.5.1: candidate add-chunks for hostKey,
// filtered to prefixes the URL actually produced and with matching
// sub-chunks subtracted.
func (e *Engine) localLookup(ctx context.Context, hostKey uint32, lists []string, prefixSet map[string]struct{}) ([]storage.AddChunkEntry, error) {
	adds, err := e.store.GetAddChunks(ctx, hostKey, lists)
	if err != nil {
		return nil, err
	}

	filtered := adds[:0]
	for _, a := range adds {
		if len(a.Prefix) > 0 {
			if _, ok := prefixSet[string(a.Prefix)]; !ok {
				continue
			}
		}
		filtered = append(filtered, a)
	}

	subs, err := e.store.GetSubChunks(ctx, hostKey, lists)
	if err != nil {
		return nil, err
	}
	for _, s := range subs {
		filtered = removeSubtracted(filtered, s)
	}

	return filtered, nil
}

func removeSubtracted(adds []storage.AddChunkEntry, s storage.SubChunkEntry) []storage.AddChunkEntry {
	out := adds[:0]
	for _, a := range adds {
		if a.List == s.List && a.ChunkNum == s.AddChunkNum && string(a.Prefix) == string(s.Prefix) {
			continue
		}
		out = append(out, a)
	}
	return out
}

type chunkKey struct {
	list     string
	chunkNum uint32
}

// confirm implements spec §4.5 steps f/g: for each distinct (list,
// chunknum) candidate, try the full-hash cache first and fall back to a
// gethash request, recording into matches any list among lists whose
// full hash equals one of the URL's pattern hashes.
func (e *Engine) confirm(ctx context.Context, candidates []storage.AddChunkEntry, patternHashes map[[32]byte]struct{}, lists []string, now time.Time, matches map[string]struct{}) error {
	wanted := make(map[string]struct{}, len(lists))
	for _, l := range lists {
		wanted[l] = struct{}{}
	}

	byKey := make(map[chunkKey]storage.AddChunkEntry)
	for _, c := range candidates {
		if _, ok := wanted[c.List]; !ok {
			continue
		}
		byKey[chunkKey{c.List, c.ChunkNum}] = c
	}
	if len(byKey) == 0 {
		return nil
	}

	cutoff := now.Add(-e.cfg.cacheTTL())
	var unresolved []storage.AddChunkEntry

	for key, candidate := range byKey {
		cached, err := e.store.GetFullHashes(ctx, key.list, key.chunkNum, cutoff)
		if err != nil {
			return err
		}

		hit := false
		for _, fh := range cached {
			if _, ok := patternHashes[fh.Hash]; ok {
				matches[key.list] = struct{}{}
				hit = true
			}
		}
		if !hit {
			unresolved = append(unresolved, candidate)
		}
	}

	if len(unresolved) == 0 {
		return nil
	}

	return e.fetchAndConfirm(ctx, unresolved, patternHashes, wanted, now, matches)
}
