package kv

import "sync"

type memoryStore struct {
	sync.RWMutex

	values map[string]string
	closed bool
}

// NewMemory returns a Store that lives only as long as the process.
func NewMemory() Store {
	return &memoryStore{values: make(map[string]string)}
}

func (s *memoryStore) Get(key string) (string, bool, error) {
	s.RLock()
	defer s.RUnlock()
	if s.closed {
		return "", false, ErrClosed
	}
	v, ok := s.values[key]
	return v, ok, nil
}

func (s *memoryStore) Set(key, value string) error {
	s.Lock()
	defer s.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.values[key] = value
	return nil
}

func (s *memoryStore) Delete(keys ...string) error {
	s.Lock()
	defer s.Unlock()
	if s.closed {
		return ErrClosed
	}
	for _, k := range keys {
		delete(s.values, k)
	}
	return nil
}

func (s *memoryStore) Close() error {
	s.Lock()
	defer s.Unlock()
	s.closed = true
	return nil
}
