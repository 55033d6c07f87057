package blob

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"docrag/internal/util"
)

const memScheme = "mem"

// MemoryStore keeps blobs in process. Links use the mem:// scheme and are
// only meaningful to tests.
type MemoryStore struct {
	mu    sync.RWMutex
	blobs map[string][]byte
	ttl   time.Duration
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &MemoryStore{blobs: make(map[string][]byte), ttl: ttl}
}

func (m *MemoryStore) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blobs[key] = slices.Clone(data)
	return memScheme + "://" + key, nil
}

func (m *MemoryStore) Get(ctx context.Context, locator string) ([]byte, error) {
	key, err := splitLocator(locator, memScheme)
	if err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.blobs[key]
	if !ok {
		return nil, fmt.Errorf("%w: blob %s", util.ErrNotFound, key)
	}
	return slices.Clone(b), nil
}

func (m *MemoryStore) Delete(ctx context.Context, locator string) error {
	key, err := splitLocator(locator, memScheme)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.blobs, key)
	return nil
}

func (m *MemoryStore) DownloadURL(ctx context.Context, locator string) (string, time.Time, error) {
	key, err := splitLocator(locator, memScheme)
	if err != nil {
		return "", time.Time{}, err
	}
	m.mu.RLock()
	_, ok := m.blobs[key]
	m.mu.RUnlock()
	if !ok {
		return "", time.Time{}, fmt.Errorf("%w: blob %s", util.ErrNotFound, key)
	}
	exp := time.Now().Add(m.ttl)
	return fmt.Sprintf("%s?exp=%d", locator, exp.Unix()), exp, nil
}

func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.blobs)
}
