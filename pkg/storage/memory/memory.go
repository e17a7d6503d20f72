// Package memory keeps objects in process memory. It backs the CLI and tests.
package memory

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"io/fs"
	"sort"
	"sync"
	"time"
)

type object struct {
	data        []byte
	contentType string
	modified    time.Time
}

type MemoryStorage struct {
	mu      sync.RWMutex
	objects map[string]object
	now     func() time.Time
}

func New() *MemoryStorage {
	return &MemoryStorage{
		objects: make(map[string]object),
		now:     time.Now,
	}
}

// Store implements Storage.Store
func (m *MemoryStorage) Store(ctx context.Context, reader io.Reader, key string, contentType string) (string, error) {
	data, err := io.ReadAll(reader)
	if err != nil {
		return "", fmt.Errorf("failed to store file: %w", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = object{data: data, contentType: contentType, modified: m.now()}
	return key, nil
}

// Get implements Storage.Get
func (m *MemoryStorage) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	obj, ok := m.objects[key]
	if !ok {
		return nil, fmt.Errorf("failed to get file: %w: %s", fs.ErrNotExist, key)
	}
	return io.NopCloser(bytes.NewReader(obj.data)), nil
}

// Delete implements Storage.Delete
func (m *MemoryStorage) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	return nil
}

// CleanupBefore implements Storage.CleanupBefore
func (m *MemoryStorage) CleanupBefore(ctx context.Context, threshold time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for key, obj := range m.objects {
		if obj.modified.Before(threshold) {
			delete(m.objects, key)
		}
	}
	return nil
}

// Keys returns the stored keys in order.
func (m *MemoryStorage) Keys() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]string, 0, len(m.objects))
	for key := range m.objects {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// ContentType returns the content type key was stored with.
func (m *MemoryStorage) ContentType(key string) string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.objects[key].contentType
}
