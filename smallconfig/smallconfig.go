// Package smallconfig defines the small, frequently-rewritten
// configuration store the engine persists next-poll times, MAC keys, and
// per-prefix failure counters into between process runs (spec §4.7).
package smallconfig

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Store is a hierarchical key-value store, paths separated by '/'.
// A Get on a path that has never been Set returns (nil, nil): absence is
// not an error.
type Store interface {
	Get(ctx context.Context, path string) (json.RawMessage, error)
	Set(ctx context.Context, path string, value any) error
	Delete(ctx context.Context, path string) error
}

// UpdateState is the per-list sync state stored at "updated/<list>".
type UpdateState struct {
	Time   time.Time `json:"time"`
	Wait   int       `json:"wait"`
	Errors int       `json:"errors"`
}

// MACKeys is the pair of keys stored at "mac_keys", shared across lists.
// ClientKey is stored base64-decoded (raw bytes); WrappedKey is opaque to
// the client and stored verbatim.
type MACKeys struct {
	ClientKey  []byte `json:"client_key"`
	WrappedKey string `json:"wrapped_key"`
}

// FullHashErrorState is the per-prefix failure state stored at
// "full_hash_errors/<hex_prefix>".
type FullHashErrorState struct {
	Errors    int       `json:"errors"`
	Timestamp time.Time `json:"timestamp"`
}

func updatedPath(list string) string {
	return "updated/" + list
}

func fullHashErrorsPath(hexPrefix string) string {
	return "full_hash_errors/" + hexPrefix
}

// GetUpdateState reads the per-list sync state, or the zero value if
// never set.
func GetUpdateState(ctx context.Context, s Store, list string) (UpdateState, error) {
	var st UpdateState
	raw, err := s.Get(ctx, updatedPath(list))
	if err != nil {
		return st, fmt.Errorf("smallconfig: get update state: %w", err)
	}
	if raw == nil {
		return st, nil
	}
	if err := json.Unmarshal(raw, &st); err != nil {
		return UpdateState{}, fmt.Errorf("smallconfig: decode update state: %w", err)
	}
	return st, nil
}

// SetUpdateState writes the per-list sync state.
func SetUpdateState(ctx context.Context, s Store, list string, st UpdateState) error {
	if err := s.Set(ctx, updatedPath(list), st); err != nil {
		return fmt.Errorf("smallconfig: set update state: %w", err)
	}
	return nil
}

// GetMACKeys reads the shared MAC key pair, or the zero value (both
// fields empty) if never set.
func GetMACKeys(ctx context.Context, s Store) (MACKeys, error) {
	var keys MACKeys
	raw, err := s.Get(ctx, "mac_keys")
	if err != nil {
		return keys, fmt.Errorf("smallconfig: get mac keys: %w", err)
	}
	if raw == nil {
		return keys, nil
	}
	if err := json.Unmarshal(raw, &keys); err != nil {
		return MACKeys{}, fmt.Errorf("smallconfig: decode mac keys: %w", err)
	}
	return keys, nil
}

// SetMACKeys writes the shared MAC key pair.
func SetMACKeys(ctx context.Context, s Store, keys MACKeys) error {
	if err := s.Set(ctx, "mac_keys", keys); err != nil {
		return fmt.Errorf("smallconfig: set mac keys: %w", err)
	}
	return nil
}

// DeleteMACKeys discards the shared MAC key pair (e:pleaserekey handling).
func DeleteMACKeys(ctx context.Context, s Store) error {
	if err := s.Delete(ctx, "mac_keys"); err != nil {
		return fmt.Errorf("smallconfig: delete mac keys: %w", err)
	}
	return nil
}

// GetFullHashErrorState reads the per-prefix failure state, or the zero
// value if never set.
func GetFullHashErrorState(ctx context.Context, s Store, hexPrefix string) (FullHashErrorState, error) {
	var st FullHashErrorState
	raw, err := s.Get(ctx, fullHashErrorsPath(hexPrefix))
	if err != nil {
		return st, fmt.Errorf("smallconfig: get full-hash error state: %w", err)
	}
	if raw == nil {
		return st, nil
	}
	if err := json.Unmarshal(raw, &st); err != nil {
		return FullHashErrorState{}, fmt.Errorf("smallconfig: decode full-hash error state: %w", err)
	}
	return st, nil
}

// SetFullHashErrorState writes the per-prefix failure state.
func SetFullHashErrorState(ctx context.Context, s Store, hexPrefix string, st FullHashErrorState) error {
	if err := s.Set(ctx, fullHashErrorsPath(hexPrefix), st); err != nil {
		return fmt.Errorf("smallconfig: set full-hash error state: %w", err)
	}
	return nil
}

// ClearFullHashErrorState discards the per-prefix failure state (a
// successful gethash response clears it).
func ClearFullHashErrorState(ctx context.Context, s Store, hexPrefix string) error {
	if err := s.Delete(ctx, fullHashErrorsPath(hexPrefix)); err != nil {
		return fmt.Errorf("smallconfig: clear full-hash error state: %w", err)
	}
	return nil
}
