// Package sb2 is a client library for the Google Safe Browsing v2
// update and lookup protocol. It wires together the URL canonicalizer,
// chunk codec, update engine, and lookup engine (spec §2) around a
// caller-supplied storage.Store and a JSON-file-backed small-config
// store, the way the teacher repo's main.go wires its dump poller
// around a caller-supplied cache directory — except this package
// exposes no command-line surface of its own; it is a library the
// caller embeds and drives (spec §1 Non-goals).
package sb2

import (
	"fmt"
	"time"

	"github.com/usher2/sb2/lookup"
	"github.com/usher2/sb2/smallconfig"
	"github.com/usher2/sb2/smallconfig/filestore"
	"github.com/usher2/sb2/storage"
	"github.com/usher2/sb2/transport"
	"github.com/usher2/sb2/update"
)

// Config carries every recognized configuration option of spec §6.
type Config struct {
	// Server is the base downloads/gethash URL. Required.
	Server string

	// MACServer is the base newkey URL. Required when MAC is true.
	MACServer string

	// Key is the API key. Required.
	Key string

	// Version is the client's appver string. Default "2.2".
	Version string

	// MAC enables HMAC validation of update and redirect payloads.
	// Default false.
	MAC bool

	// HTTPTimeout bounds every HTTP request. Default 60s.
	HTTPTimeout time.Duration

	// UserAgent is sent on every HTTP request. Default
	// "sb2/1.0".
	UserAgent string

	// CacheTime is the full-hash cache TTL. Default 2700s.
	CacheTime time.Duration

	// DefaultRetry is the fallback wait used when no better value is
	// available. Default 30s.
	DefaultRetry time.Duration

	// DataFilepath is the path to the small-config JSON file.
	DataFilepath string
}

func (c Config) validate() error {
	if c.Server == "" {
		return fmt.Errorf("sb2: Server is required")
	}
	if c.Key == "" {
		return fmt.Errorf("sb2: Key is required")
	}
	if c.MAC && c.MACServer == "" {
		return fmt.Errorf("sb2: MACServer is required when MAC is enabled")
	}
	if c.DataFilepath == "" {
		return fmt.Errorf("sb2: DataFilepath is required")
	}
	return nil
}

// Client is the assembled engine pair plus the shared small-config
// store they persist sync state, MAC keys, and full-hash failure
// counters into.
type Client struct {
	Update *update.Engine
	Lookup *lookup.Engine

	config smallconfig.Store
}

// New opens cfg.DataFilepath (creating it with the documented empty
// shape if missing or corrupt) and assembles the Update and Lookup
// engines around store and a shared HTTP transport.
func New(cfg Config, store storage.Store) (*Client, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	config, err := filestore.Open(cfg.DataFilepath)
	if err != nil {
		return nil, fmt.Errorf("sb2: open data file: %w", err)
	}

	httpClient := transport.New(transport.Config{
		Timeout:   cfg.HTTPTimeout,
		UserAgent: cfg.UserAgent,
	})

	updateEngine := update.New(httpClient, store, config, update.Config{
		Server:       cfg.Server,
		MACServer:    cfg.MACServer,
		Key:          cfg.Key,
		Version:      cfg.Version,
		MACEnabled:   cfg.MAC,
		DefaultRetry: cfg.DefaultRetry,
	})

	lookupEngine := lookup.New(httpClient, store, config, lookup.Config{
		Server:   cfg.Server,
		Key:      cfg.Key,
		Version:  cfg.Version,
		CacheTTL: cfg.CacheTime,
	})

	return &Client{Update: updateEngine, Lookup: lookupEngine, config: config}, nil
}
