package lookup

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"net/url"
	"time"

	"github.com/usher2/sb2/internal/logger"
	"github.com/usher2/sb2/smallconfig"
	"github.com/usher2/sb2/storage"
	"github.com/usher2/sb2/wire"
)

// failureWindow is how long a prefix's last recorded error must age
// before a subsequent error is allowed to promote its error count
// (spec §4.5.2's "first error free" policy).
const failureWindow = 5 * time.Minute

// fetchAndConfirm requests full hashes for candidates not resolved from
// cache, suppressing any prefix currently in backoff, then re-tests the
// fetched hashes against patternHashes (spec §4.5.2). gethash isn't
// scoped to the requested lists, so a response can legitimately name a
// list the caller never asked about; wanted restricts recorded matches
// to the lists actually requested, the same way confirm's cache path
// already does. Caching into storage stays unfiltered: the response is
// valid data for whatever list it names, regardless of what this call
// happened to be looking up.
func (e *Engine) fetchAndConfirm(ctx context.Context, candidates []storage.AddChunkEntry, patternHashes map[[32]byte]struct{}, wanted map[string]struct{}, now time.Time, matches map[string]struct{}) error {
	type pending struct {
		prefix []byte
		hex    string
	}

	seen := make(map[string]struct{})
	var toSend []pending

	for _, c := range candidates {
		prefix := c.Prefix
		if len(prefix) == 0 {
			prefix = make([]byte, 4)
			binary.BigEndian.PutUint32(prefix, c.Host)
		}

		hexPrefix := hex.EncodeToString(prefix)
		if _, dup := seen[hexPrefix]; dup {
			continue
		}
		seen[hexPrefix] = struct{}{}

		state, err := smallconfig.GetFullHashErrorState(ctx, e.config, hexPrefix)
		if err != nil {
			return err
		}
		if isSuppressed(state, now) {
			continue
		}

		toSend = append(toSend, pending{prefix: prefix, hex: hexPrefix})
	}
	if len(toSend) == 0 {
		return nil
	}

	prefixes := make([][]byte, len(toSend))
	for i, p := range toSend {
		prefixes[i] = p.prefix
	}

	body, err := wire.BuildFullHashRequest(prefixes)
	if err != nil {
		return fmt.Errorf("lookup: build gethash request: %w", err)
	}

	reqURL := fmt.Sprintf("%sgethash?client=api&apikey=%s&appver=%s&pver=2.2",
		e.cfg.Server, url.QueryEscape(e.cfg.Key), url.QueryEscape(e.cfg.version()))

	respBody, status, err := e.http.Post(ctx, reqURL, body)
	if err != nil || status != 200 || len(respBody) == 0 {
		for _, p := range toSend {
			if ferr := e.recordFailure(ctx, p.hex, now); ferr != nil {
				logger.Error.Printf("lookup: record full-hash failure for %s: %s\n", p.hex, ferr)
			}
		}
		if err != nil {
			return fmt.Errorf("lookup: gethash request: %w", err)
		}
		return fmt.Errorf("lookup: gethash status %d", status)
	}

	entries, err := wire.ParseFullHashResponse(respBody)
	if err != nil {
		for _, p := range toSend {
			if ferr := e.recordFailure(ctx, p.hex, now); ferr != nil {
				logger.Error.Printf("lookup: record full-hash failure for %s: %s\n", p.hex, ferr)
			}
		}
		return fmt.Errorf("lookup: parse gethash response: %w", err)
	}

	for _, p := range toSend {
		if cerr := smallconfig.ClearFullHashErrorState(ctx, e.config, p.hex); cerr != nil {
			logger.Error.Printf("lookup: clear full-hash error state for %s: %s\n", p.hex, cerr)
		}
	}

	storageEntries := make([]storage.FullHashEntry, len(entries))
	for i, e2 := range entries {
		storageEntries[i] = storage.FullHashEntry{List: e2.List, ChunkNum: e2.ChunkNum, Hash: e2.Hash}
	}
	if len(storageEntries) > 0 {
		if err := e.store.AddFullHashes(ctx, storageEntries, now); err != nil {
			return fmt.Errorf("lookup: cache full hashes: %w", err)
		}
	}

	for _, fh := range entries {
		if _, ok := wanted[fh.List]; !ok {
			continue
		}
		if _, ok := patternHashes[fh.Hash]; ok {
			matches[fh.List] = struct{}{}
		}
	}

	return nil
}

// isSuppressed reports whether state's backoff window (spec §4.5.2) is
// still in effect at now.
func isSuppressed(state smallconfig.FullHashErrorState, now time.Time) bool {
	switch {
	case state.Errors >= 5:
		return now.Sub(state.Timestamp) < 120*time.Minute
	case state.Errors == 4:
		return now.Sub(state.Timestamp) < 60*time.Minute
	case state.Errors == 3:
		return now.Sub(state.Timestamp) < 30*time.Minute
	default:
		return false
	}
}

// recordFailure implements the "first error free" promotion policy:
// a prefix's first-ever failure always sets errors=1; subsequent
// failures promote the counter only once failureWindow has elapsed
// since the last recorded failure, so flapping connectivity can't
// inflate the counter purely by retrying quickly.
func (e *Engine) recordFailure(ctx context.Context, hexPrefix string, now time.Time) error {
	state, err := smallconfig.GetFullHashErrorState(ctx, e.config, hexPrefix)
	if err != nil {
		return err
	}

	if state.Errors == 0 {
		return smallconfig.SetFullHashErrorState(ctx, e.config, hexPrefix, smallconfig.FullHashErrorState{Errors: 1, Timestamp: now})
	}
	if now.Sub(state.Timestamp) > failureWindow {
		return smallconfig.SetFullHashErrorState(ctx, e.config, hexPrefix, smallconfig.FullHashErrorState{Errors: state.Errors + 1, Timestamp: now})
	}
	return nil
}
