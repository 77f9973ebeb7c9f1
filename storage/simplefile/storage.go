package simplefile

import (
	"encoding/gob"
	"os"
	"sync"

	"github.com/xmh1011/taskraft/storage/inmemory"
)

// Store implements a simple file-based store.
// Writes go to an in-memory cache and are persisted to a single file with
// encoding/gob when Flush is called. Unflushed writes are lost on crash.
// This is a simple alternative to LSM trees or B-Trees, suitable for small datasets or educational purposes.
type Store struct {
	mu       sync.Mutex
	filePath string
	cache    *inmemory.Store
	dirty    bool
}

// persistentData is the structure used for serialization.
type persistentData struct {
	Collections map[string]map[string][]byte
}

// NewStore creates a new simple file store, loading any previously flushed data.
func NewStore(filePath string) (*Store, error) {
	s := &Store{
		filePath: filePath,
		cache:    inmemory.NewStore(),
	}

	if err := s.load(); err != nil {
		// If file does not exist, initialize it
		if os.IsNotExist(err) {
			if err := s.persist(); err != nil {
				return nil, err
			}
		} else {
			return nil, err
		}
	}
	return s, nil
}

func (s *Store) load() error {
	f, err := os.Open(s.filePath)
	if err != nil {
		return err
	}
	defer f.Close()

	var data persistentData
	if err := gob.NewDecoder(f).Decode(&data); err != nil {
		return err
	}
	s.cache = inmemory.NewStoreFrom(data.Collections)
	return nil
}

func (s *Store) persist() error {
	data := persistentData{Collections: s.cache.Export()}

	// Write to temp file and rename for atomicity
	tmpPath := s.filePath + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return err
	}

	if err := gob.NewEncoder(f).Encode(data); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}

	return os.Rename(tmpPath, s.filePath)
}

func (s *Store) Create(collection string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cache.Exists(collection) {
		return nil
	}
	s.dirty = true
	return s.cache.Create(collection)
}

func (s *Store) Exists(collection string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cache.Exists(collection)
}

func (s *Store) Get(collection, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cache.Get(collection, key)
}

func (s *Store) Set(collection, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dirty = true
	return s.cache.Set(collection, key, value)
}

func (s *Store) Remove(collection, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dirty = true
	return s.cache.Remove(collection, key)
}

func (s *Store) Keys(collection string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cache.Keys(collection)
}

// Flush persists the whole cache if anything changed since the last flush.
func (s *Store) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.dirty {
		return nil
	}
	if err := s.persist(); err != nil {
		return err
	}
	s.dirty = false
	return nil
}

// Close flushes pending writes.
func (s *Store) Close() error {
	return s.Flush()
}
