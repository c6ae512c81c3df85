// Package filestore persists the small-config document (spec §4.7) as a
// single human-readable JSON file, written with the same temp-file-then-
// rename durability the teacher repo's fetch.go uses for its own small
// persisted marker (WriteCurrentDumpID).
package filestore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/usher2/sb2/internal/logger"
	"github.com/usher2/sb2/smallconfig"
)

type document struct {
	Updated        map[string]smallconfig.UpdateState        `json:"updated"`
	MACKeys        smallconfig.MACKeys                        `json:"mac_keys"`
	FullHashErrors map[string]smallconfig.FullHashErrorState `json:"full_hash_errors"`
}

func emptyDocument() document {
	return document{
		Updated:        make(map[string]smallconfig.UpdateState),
		MACKeys:        smallconfig.MACKeys{ClientKey: []byte{}, WrappedKey: ""},
		FullHashErrors: make(map[string]smallconfig.FullHashErrorState),
	}
}

// Store is a smallconfig.Store backed by a JSON file on disk.
type Store struct {
	mu   sync.Mutex
	path string
	doc  document
}

// Open loads path, recreating it with the documented empty shape if it is
// missing or unparsable.
func Open(path string) (*Store, error) {
	s := &Store{path: path, doc: emptyDocument()}

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		logger.Info.Printf("smallconfig: %s does not exist, creating empty store\n", path)
		if err := s.persistLocked(); err != nil {
			return nil, err
		}
		return s, nil
	case err != nil:
		return nil, fmt.Errorf("filestore: read %s: %w", path, err)
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		logger.Warning.Printf("smallconfig: %s is corrupt, recreating empty: %s\n", path, err)
		if err := s.persistLocked(); err != nil {
			return nil, err
		}
		return s, nil
	}

	if doc.Updated == nil {
		doc.Updated = make(map[string]smallconfig.UpdateState)
	}
	if doc.FullHashErrors == nil {
		doc.FullHashErrors = make(map[string]smallconfig.FullHashErrorState)
	}
	s.doc = doc

	return s, nil
}

// Get implements smallconfig.Store.
func (s *Store) Get(_ context.Context, path string) (json.RawMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case path == "mac_keys":
		return json.Marshal(s.doc.MACKeys)
	case strings.HasPrefix(path, "updated/"):
		list := strings.TrimPrefix(path, "updated/")
		st, ok := s.doc.Updated[list]
		if !ok {
			return nil, nil
		}
		return json.Marshal(st)
	case strings.HasPrefix(path, "full_hash_errors/"):
		hexPrefix := strings.TrimPrefix(path, "full_hash_errors/")
		st, ok := s.doc.FullHashErrors[hexPrefix]
		if !ok {
			return nil, nil
		}
		return json.Marshal(st)
	default:
		return nil, fmt.Errorf("filestore: unknown path %q", path)
	}
}

// Set implements smallconfig.Store.
func (s *Store) Set(_ context.Context, path string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("filestore: marshal %q: %w", path, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case path == "mac_keys":
		var keys smallconfig.MACKeys
		if err := json.Unmarshal(raw, &keys); err != nil {
			return fmt.Errorf("filestore: decode mac_keys: %w", err)
		}
		s.doc.MACKeys = keys
	case strings.HasPrefix(path, "updated/"):
		list := strings.TrimPrefix(path, "updated/")
		var st smallconfig.UpdateState
		if err := json.Unmarshal(raw, &st); err != nil {
			return fmt.Errorf("filestore: decode %q: %w", path, err)
		}
		s.doc.Updated[list] = st
	case strings.HasPrefix(path, "full_hash_errors/"):
		hexPrefix := strings.TrimPrefix(path, "full_hash_errors/")
		var st smallconfig.FullHashErrorState
		if err := json.Unmarshal(raw, &st); err != nil {
			return fmt.Errorf("filestore: decode %q: %w", path, err)
		}
		s.doc.FullHashErrors[hexPrefix] = st
	default:
		return fmt.Errorf("filestore: unknown path %q", path)
	}

	return s.persistLocked()
}

// Delete implements smallconfig.Store.
func (s *Store) Delete(_ context.Context, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case path == "mac_keys":
		s.doc.MACKeys = smallconfig.MACKeys{}
	case strings.HasPrefix(path, "updated/"):
		delete(s.doc.Updated, strings.TrimPrefix(path, "updated/"))
	case strings.HasPrefix(path, "full_hash_errors/"):
		delete(s.doc.FullHashErrors, strings.TrimPrefix(path, "full_hash_errors/"))
	default:
		return fmt.Errorf("filestore: unknown path %q", path)
	}

	return s.persistLocked()
}

func (s *Store) persistLocked() error {
	data, err := json.MarshalIndent(s.doc, "", "  ")
	if err != nil {
		return fmt.Errorf("filestore: marshal document: %w", err)
	}

	tmp := s.path + "-tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("filestore: write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("filestore: rename %s to %s: %w", tmp, s.path, err)
	}
	return nil
}
