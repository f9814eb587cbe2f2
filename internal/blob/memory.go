package blob

import (
	"context"
	"sync"

	"verikey/pkg/platform/sentinel"
)

// InMemoryStore keeps objects in a map for tests and database-less dev runs.
type InMemoryStore struct {
	mu      sync.RWMutex
	objects map[string]memoryObject
}

type memoryObject struct {
	contentType string
	data        []byte
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{objects: make(map[string]memoryObject)}
}

func (s *InMemoryStore) Put(_ context.Context, key, contentType string, data []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := make([]byte, len(data))
	copy(cp, data)
	s.objects[key] = memoryObject{contentType: contentType, data: cp}
	return "memory://" + key, nil
}

func (s *InMemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, key)
	return nil
}

func (s *InMemoryStore) PresignGet(_ context.Context, key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.objects[key]; !ok {
		return "", sentinel.ErrNotFound
	}
	return "memory://" + key, nil
}

// Object returns the stored bytes and content type for assertions in tests.
func (s *InMemoryStore) Object(key string) (contentType string, data []byte, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	obj, found := s.objects[key]
	if !found {
		return "", nil, false
	}
	cp := make([]byte, len(obj.data))
	copy(cp, obj.data)
	return obj.contentType, cp, true
}

// Len reports how many objects are stored.
func (s *InMemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.objects)
}
