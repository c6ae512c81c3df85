// Package update implements the Update Engine (spec §4.4): it drives
// periodic synchronization of one or more threat lists against the
// Safe Browsing v2 "downloads" endpoint, applying deltas through a
// storage.Store and persisting sync state through a smallconfig.Store.
//
// The engine's public operation is Update, which the teacher's own
// control-flow shape (a scheduler invoking a long-lived worker per
// unit of work, see cmd/u2ckdump's main loop) is adapted into a plain
// blocking call: callers that want the teacher's fire-and-forget style
// just run Update in its own goroutine.
package update

import (
	"bytes"
	"context"
	"fmt"
	"math/rand"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/usher2/sb2/chunkrange"
	"github.com/usher2/sb2/internal/logger"
	"github.com/usher2/sb2/smallconfig"
	"github.com/usher2/sb2/storage"
	"github.com/usher2/sb2/wire"
)

// HTTPClient is the subset of transport.Client the engine needs. Any
// type satisfying it (including *transport.Client) may be used.
type HTTPClient interface {
	Get(ctx context.Context, url string) ([]byte, int, error)
	Post(ctx context.Context, url string, body []byte) ([]byte, int, error)
}

// Config carries the recognized options of spec §6 that govern the
// Update Engine.
type Config struct {
	Server       string // required
	MACServer    string // required when MACEnabled
	Key          string // required
	Version      string // default "2.2"
	MACEnabled   bool
	DefaultRetry time.Duration // default 30s
}

func (c Config) version() string {
	if c.Version == "" {
		return "2.2"
	}
	return c.Version
}

func (c Config) defaultRetry() time.Duration {
	if c.DefaultRetry <= 0 {
		return 30 * time.Second
	}
	return c.DefaultRetry
}

// Engine is the Update Engine. It enforces "at most one update in
// flight" across all lists via inUpdate (spec §5 re-entrancy rule).
type Engine struct {
	http   HTTPClient
	store  storage.Store
	config smallconfig.Store
	cfg    Config

	inUpdate int32

	rngMu sync.Mutex
	rng   *rand.Rand
}

// New builds an Engine. http, store, and config are shared with the
// rest of the process; the Engine never assumes exclusive ownership.
func New(http HTTPClient, store storage.Store, config smallconfig.Store, cfg Config) *Engine {
	return &Engine{
		http:   http,
		store:  store,
		config: config,
		cfg:    cfg,
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Update synchronizes every list in lists against the remote service and
// returns the minimum next-poll wait across all of them (spec §4.4). If
// an update is already in flight, it returns the configured default
// retry immediately without touching any list.
func (e *Engine) Update(ctx context.Context, lists []string, forced bool) (time.Duration, error) {
	if !atomic.CompareAndSwapInt32(&e.inUpdate, 0, 1) {
		return e.cfg.defaultRetry(), nil
	}
	defer atomic.StoreInt32(&e.inUpdate, 0)

	var (
		mu      sync.Mutex
		minWait = e.cfg.defaultRetry()
		first   = true
		wg      sync.WaitGroup
	)

	for _, list := range lists {
		list := list
		wg.Add(1)
		go func() {
			defer wg.Done()
			wait := e.updateList(ctx, list, forced)

			mu.Lock()
			if first || wait < minWait {
				minWait = wait
				first = false
			}
			mu.Unlock()
		}()
	}
	wg.Wait()

	return minWait, nil
}

// updateList runs the full request/response/redirect cycle for one list
// and returns its next-poll wait. Failures are logged and folded into
// backoff rather than returned, matching the "callbacks race, no error
// crosses the outer boundary" shape of spec §5.
func (e *Engine) updateList(ctx context.Context, list string, forced bool) time.Duration {
	now := time.Now()

	state, err := smallconfig.GetUpdateState(ctx, e.config, list)
	if err != nil {
		logger.Error.Printf("update: %s: read state: %s\n", list, err)
		return e.cfg.defaultRetry()
	}

	if !forced && !state.Time.IsZero() {
		due := state.Time.Add(time.Duration(state.Wait) * time.Second)
		if now.Before(due) {
			return due.Sub(now)
		}
	}

	var clientKey []byte
	var wrappedKey string
	if e.cfg.MACEnabled {
		keys, err := smallconfig.GetMACKeys(ctx, e.config)
		if err != nil {
			logger.Error.Printf("update: %s: read mac keys: %s\n", list, err)
			return e.cfg.defaultRetry()
		}
		if len(keys.ClientKey) == 0 {
			fetched, err := e.fetchMACKeys(ctx)
			if err != nil {
				logger.Warning.Printf("update: %s: fetch mac keys: %s\n", list, err)
				return e.cfg.defaultRetry()
			}
			keys = fetched
			if err := smallconfig.SetMACKeys(ctx, e.config, keys); err != nil {
				logger.Error.Printf("update: %s: persist mac keys: %s\n", list, err)
			}
		}
		clientKey, wrappedKey = keys.ClientKey, keys.WrappedKey
	}

	addRange, subRange, err := e.store.GetRegions(ctx, list)
	if err != nil {
		logger.Error.Printf("update: %s: get regions: %s\n", list, err)
		return e.backoff(ctx, list, now, state.Errors+1)
	}

	body := buildDownloadsBody(list, addRange, subRange, e.cfg.MACEnabled)
	reqURL := e.downloadsURL(wrappedKey)

	respBody, status, err := e.http.Post(ctx, reqURL, []byte(body))
	if err != nil {
		logger.Warning.Printf("update: %s: downloads request: %s\n", list, err)
		return e.backoff(ctx, list, now, state.Errors+1)
	}
	if status != 200 {
		logger.Warning.Printf("update: %s: downloads status %d\n", list, status)
		return e.backoff(ctx, list, now, state.Errors+1)
	}
	if len(respBody) == 0 {
		return e.success(ctx, list, now, int(e.cfg.defaultRetry().Seconds()))
	}

	resp, err := wire.ParseUpdateResponse(respBody)
	if err != nil {
		logger.Warning.Printf("update: %s: parse response: %s\n", list, err)
		return e.backoff(ctx, list, now, state.Errors+1)
	}

	if resp.HasMAC && e.cfg.MACEnabled {
		if !wire.VerifyMAC(clientKey, resp.UnMACedBody, resp.MACDigest) {
			logger.Warning.Printf("update: %s: mac validation failed\n", list)
			return e.backoff(ctx, list, now, state.Errors+1)
		}
	}

	waitSeconds := int(e.cfg.defaultRetry().Seconds())
	if resp.HasWait {
		waitSeconds = resp.WaitSeconds
	}

	type redirect struct {
		list string
		url  string
		hmac string
	}
	var redirects []redirect

	for _, ev := range resp.Events {
		evList := ev.List
		if evList == "" {
			// No "i:" directive has switched context yet; a single-list
			// downloads response implicitly concerns the list requested.
			evList = list
		}

		switch ev.Kind {
		case wire.EventRedirect:
			redirects = append(redirects, redirect{list: evList, url: ev.URL, hmac: ev.HMAC})
		case wire.EventDeleteAdd:
			nums, perr := chunkrange.Parse(ev.Range)
			if perr != nil {
				logger.Warning.Printf("update: %s: ad: range %q: %s\n", evList, ev.Range, perr)
				continue
			}
			u32 := toUint32Slice(nums)
			if err := e.store.DeleteAddChunks(ctx, evList, u32); err != nil {
				logger.Error.Printf("update: %s: delete add chunks: %s\n", evList, err)
			}
			if err := e.store.DeleteFullHashes(ctx, evList, u32); err != nil {
				logger.Error.Printf("update: %s: delete full hashes: %s\n", evList, err)
			}
		case wire.EventDeleteSub:
			nums, perr := chunkrange.Parse(ev.Range)
			if perr != nil {
				logger.Warning.Printf("update: %s: sd: range %q: %s\n", evList, ev.Range, perr)
				continue
			}
			if err := e.store.DeleteSubChunks(ctx, evList, toUint32Slice(nums)); err != nil {
				logger.Error.Printf("update: %s: delete sub chunks: %s\n", evList, err)
			}
		case wire.EventRekey:
			if err := smallconfig.DeleteMACKeys(ctx, e.config); err != nil {
				logger.Error.Printf("update: %s: delete mac keys: %s\n", list, err)
			}
			return e.success(ctx, list, now, int(rekeyWait.Seconds()))
		case wire.EventReset:
			if err := e.store.Reset(ctx, evList); err != nil {
				logger.Error.Printf("update: %s: reset: %s\n", evList, err)
			}
			return e.success(ctx, list, now, int(resetWait.Seconds()))
		}
	}

	for _, r := range redirects {
		ok := e.applyRedirect(ctx, r.list, r.url, r.hmac, clientKey)
		if !ok {
			return e.backoff(ctx, list, now, state.Errors+1)
		}
	}

	return e.success(ctx, list, now, waitSeconds)
}

// applyRedirect fetches one redirect payload, validates its MAC if
// required, decodes it, and bulk-inserts the result into Storage. It
// returns false on any failure, which stops the caller's redirect loop
// for this list (spec §4.4).
func (e *Engine) applyRedirect(ctx context.Context, list, redirectURL, hmacDigest string, clientKey []byte) bool {
	fullURL := "https://" + redirectURL

	body, status, err := e.http.Get(ctx, fullURL)
	if err != nil {
		logger.Warning.Printf("update: %s: redirect fetch %s: %s\n", list, fullURL, err)
		return false
	}
	if status != 200 {
		logger.Warning.Printf("update: %s: redirect fetch %s: status %d\n", list, fullURL, status)
		return false
	}

	if e.cfg.MACEnabled && hmacDigest != "" {
		if !wire.VerifyMAC(clientKey, body, hmacDigest) {
			logger.Warning.Printf("update: %s: redirect mac validation failed\n", list)
			return false
		}
	}

	blocks, err := wire.DecodeBlocks(bytes.NewReader(body))
	if err != nil {
		logger.Warning.Printf("update: %s: decode redirect payload: %s\n", list, err)
		return false
	}

	var adds []storage.AddChunkEntry
	var subs []storage.SubChunkEntry
	for _, b := range blocks {
		switch b.Kind {
		case wire.KindAdd:
			for _, a := range b.Adds {
				adds = append(adds, storage.AddChunkEntry{List: list, ChunkNum: b.ChunkNum, Host: a.Host, Prefix: a.Prefix})
			}
		case wire.KindSub:
			for _, s := range b.Subs {
				subs = append(subs, storage.SubChunkEntry{List: list, ChunkNum: b.ChunkNum, AddChunkNum: s.AddChunkNum, Host: s.Host, Prefix: s.Prefix})
			}
		}
	}

	if len(adds) > 0 {
		if err := e.store.AddChunksA(ctx, adds); err != nil {
			logger.Error.Printf("update: %s: insert add chunks: %s\n", list, err)
			return false
		}
	}
	if len(subs) > 0 {
		if err := e.store.AddChunksS(ctx, subs); err != nil {
			logger.Error.Printf("update: %s: insert sub chunks: %s\n", list, err)
			return false
		}
	}

	return true
}

func (e *Engine) success(ctx context.Context, list string, now time.Time, waitSeconds int) time.Duration {
	if err := smallconfig.SetUpdateState(ctx, e.config, list, smallconfig.UpdateState{Time: now, Wait: waitSeconds, Errors: 0}); err != nil {
		logger.Error.Printf("update: %s: persist state: %s\n", list, err)
	}
	return time.Duration(waitSeconds) * time.Second
}

func (e *Engine) backoff(ctx context.Context, list string, now time.Time, errors int) time.Duration {
	e.rngMu.Lock()
	waitSeconds := backoffSeconds(e.rng, errors)
	e.rngMu.Unlock()

	if err := smallconfig.SetUpdateState(ctx, e.config, list, smallconfig.UpdateState{Time: now, Wait: waitSeconds, Errors: errors}); err != nil {
		logger.Error.Printf("update: %s: persist backoff state: %s\n", list, err)
	}
	return time.Duration(waitSeconds) * time.Second
}

func (e *Engine) fetchMACKeys(ctx context.Context) (smallconfig.MACKeys, error) {
	reqURL := fmt.Sprintf("%snewkey?client=api&apikey=%s&appver=%s&pver=2.2",
		e.cfg.MACServer, url.QueryEscape(e.cfg.Key), url.QueryEscape(e.cfg.version()))

	body, status, err := e.http.Get(ctx, reqURL)
	if err != nil {
		return smallconfig.MACKeys{}, fmt.Errorf("update: newkey request: %w", err)
	}
	if status != 200 {
		return smallconfig.MACKeys{}, fmt.Errorf("update: newkey status %d", status)
	}

	resp, err := wire.ParseNewKeyResponse(body)
	if err != nil {
		return smallconfig.MACKeys{}, fmt.Errorf("update: parse newkey response: %w", err)
	}

	return smallconfig.MACKeys{ClientKey: resp.ClientKey, WrappedKey: resp.WrappedKey}, nil
}

func (e *Engine) downloadsURL(wrappedKey string) string {
	u := fmt.Sprintf("%sdownloads?client=api&apikey=%s&appver=%s&pver=2.2",
		e.cfg.Server, url.QueryEscape(e.cfg.Key), url.QueryEscape(e.cfg.version()))
	if e.cfg.MACEnabled && wrappedKey != "" {
		u += "&wrkey=" + url.QueryEscape(wrappedKey)
	}
	return u
}

// buildDownloadsBody renders "<list>;a:<a_range>:s:<s_range>[:mac]\n",
// omitting any part whose range is empty along with its separating ':'
// (spec §4.4 request construction rule 3).
func buildDownloadsBody(list, addRange, subRange string, macEnabled bool) string {
	var parts []string
	if addRange != "" {
		parts = append(parts, "a:"+addRange)
	}
	if subRange != "" {
		parts = append(parts, "s:"+subRange)
	}
	if macEnabled {
		parts = append(parts, "mac")
	}

	body := list + ";"
	for i, p := range parts {
		if i > 0 {
			body += ":"
		}
		body += p
	}
	return body + "\n"
}

func toUint32Slice(nums []int) []uint32 {
	out := make([]uint32, len(nums))
	for i, n := range nums {
		out[i] = uint32(n)
	}
	return out
}
