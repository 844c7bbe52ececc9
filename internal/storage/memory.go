package storage

import (
	"context"
	"io"
	"strings"
	"sync"
)

// MemoryStore is an in-memory ImageStore used by tests.
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string]memoryObject
}

type memoryObject struct {
	data        []byte
	contentType string
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: make(map[string]memoryObject)}
}

// Put stores an image in memory
func (s *MemoryStore) Put(_ context.Context, path, contentType string, body io.Reader) error {
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[path] = memoryObject{data: data, contentType: contentType}
	return nil
}

// Get returns a stored image
func (s *MemoryStore) Get(_ context.Context, path string) ([]byte, string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	obj, ok := s.objects[path]
	if !ok {
		return nil, "", ErrAbsent
	}
	return obj.data, obj.contentType, nil
}

// Delete removes a stored image
func (s *MemoryStore) Delete(_ context.Context, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, path)
	return nil
}

// DeletePrefix removes every image under a prefix
func (s *MemoryStore) DeletePrefix(_ context.Context, prefix string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for path := range s.objects {
		if strings.HasPrefix(path, prefix) {
			delete(s.objects, path)
		}
	}
	return nil
}

// SignedURL returns a fake URL for the path
func (s *MemoryStore) SignedURL(_ context.Context, path string) (string, error) {
	return "memory://" + path, nil
}

// Len reports how many objects are stored
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.objects)
}
