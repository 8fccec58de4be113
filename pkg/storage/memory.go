package storage

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Memory is an in-process Bucket for tests. It is safe for concurrent use.
type Memory struct {
	mu       sync.RWMutex
	objects  map[string][]byte
	types    map[string]string
	getErrs  map[string]error
	putErr   error
	delErr   error
	pageSize int
	lists    int
}

// NewMemory returns an empty Memory bucket that lists pageSize keys per page.
func NewMemory(pageSize int) *Memory {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &Memory{
		objects:  make(map[string][]byte),
		types:    make(map[string]string),
		getErrs:  make(map[string]error),
		pageSize: pageSize,
	}
}

// PutString stores s at key. Convenience for test fixtures.
func (m *Memory) PutString(key, s string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = []byte(s)
}

// FailGet makes every Get of key return err.
func (m *Memory) FailGet(key string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.getErrs[key] = err
}

// FailPut makes every Put return err.
func (m *Memory) FailPut(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.putErr = err
}

// FailDelete makes every Delete return err.
func (m *Memory) FailDelete(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delErr = err
}

// Keys returns all stored keys, sorted.
func (m *Memory) Keys() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]string, 0, len(m.objects))
	for k := range m.objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ContentType returns the content type recorded by the last Put of key.
func (m *Memory) ContentType(key string) string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.types[key]
}

// ListCalls returns how many times List has been called.
func (m *Memory) ListCalls() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lists
}

// List pages over the sorted keys; the cursor is an opaque page token.
func (m *Memory) List(_ context.Context, prefix, cursor string) (Page, error) {
	m.mu.Lock()
	m.lists++
	m.mu.Unlock()

	var keys []string
	for _, k := range m.Keys() {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}

	start := 0
	if cursor != "" {
		if _, err := fmt.Sscanf(cursor, "page-%d", &start); err != nil {
			return Page{}, fmt.Errorf("storage: bad cursor %q", cursor)
		}
	}
	if start > len(keys) {
		start = len(keys)
	}
	end := start + m.pageSize
	if end >= len(keys) {
		return Page{Keys: keys[start:]}, nil
	}
	return Page{Keys: keys[start:end], Next: fmt.Sprintf("page-%d", end)}, nil
}

// Get returns a copy of the object at key.
func (m *Memory) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err, ok := m.getErrs[key]; ok {
		return nil, err
	}
	data, ok := m.objects[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return append([]byte(nil), data...), nil
}

// Put stores a copy of body at key.
func (m *Memory) Put(_ context.Context, key string, body []byte, contentType string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.putErr != nil {
		return m.putErr
	}
	m.objects[key] = append([]byte(nil), body...)
	m.types[key] = contentType
	return nil
}

// Delete removes keys.
func (m *Memory) Delete(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.delErr != nil {
		return m.delErr
	}
	for _, k := range keys {
		delete(m.objects, k)
		delete(m.types, k)
	}
	return nil
}

var _ Bucket = (*Memory)(nil)
