package inmemory

import (
	"errors"
	"sync"
)

var (
	ErrKeyNotFound        = errors.New("key not found")
	ErrCollectionNotFound = errors.New("collection not found")
)

// Store 是 Store 接口的一个线程安全的内存实现，主要用于测试和模拟。
// Flush 是无操作的：所有写入立即可见。
type Store struct {
	mu          sync.RWMutex
	collections map[string]map[string][]byte
	flushes     int
}

// NewStore 创建一个新的内存存储实例。
func NewStore() *Store {
	return &Store{
		collections: make(map[string]map[string][]byte),
	}
}

func (s *Store) Create(collection string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.collections[collection]; !ok {
		s.collections[collection] = make(map[string][]byte)
	}
	return nil
}

func (s *Store) Exists(collection string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.collections[collection]
	return ok
}

func (s *Store) Get(collection, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.collections[collection]
	if !ok {
		return nil, ErrCollectionNotFound
	}
	v, ok := c[key]
	if !ok {
		return nil, ErrKeyNotFound
	}
	return append([]byte(nil), v...), nil
}

func (s *Store) Set(collection, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.collections[collection]
	if !ok {
		return ErrCollectionNotFound
	}
	c[key] = append([]byte(nil), value...)
	return nil
}

func (s *Store) Remove(collection, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.collections[collection]
	if !ok {
		return ErrCollectionNotFound
	}
	delete(c, key)
	return nil
}

func (s *Store) Keys(collection string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.collections[collection]
	if !ok {
		return nil, ErrCollectionNotFound
	}
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	return keys, nil
}

func (s *Store) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flushes++
	return nil
}

// Flushes returns how many times Flush was called.
func (s *Store) Flushes() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.flushes
}

// Close 在内存实现中是无操作的。
func (s *Store) Close() error {
	return nil
}

// Export returns a deep copy of every collection.
func (s *Store) Export() map[string]map[string][]byte {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]map[string][]byte, len(s.collections))
	for name, c := range s.collections {
		cp := make(map[string][]byte, len(c))
		for k, v := range c {
			cp[k] = append([]byte(nil), v...)
		}
		out[name] = cp
	}
	return out
}

// NewStoreFrom creates a store holding the given collections.
func NewStoreFrom(collections map[string]map[string][]byte) *Store {
	s := NewStore()
	for name, c := range collections {
		cp := make(map[string][]byte, len(c))
		for k, v := range c {
			cp[k] = v
		}
		s.collections[name] = cp
	}
	return s
}
