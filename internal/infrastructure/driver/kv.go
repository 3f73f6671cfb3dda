package driver

import (
	"errors"
	"sync"
	"time"
)

// ErrKeyNotFound Get on a missing or expired key
var ErrKeyNotFound = errors.New("Key not found")

// KeyValueDB define a key-value storage interface
type KeyValueDB interface {
	SetEX(key string, value string, expiration time.Duration) error
	Get(key string) (string, error)
	Exists(key string) (bool, error)
	Delete(key string) error
	Ping() error
}

// MemoryKV process local KeyValueDB, used when no kv server is configured and in tests
type MemoryKV struct {
	mu    sync.Mutex
	items map[string]memoryItem
	now   func() time.Time
}

type memoryItem struct {
	value   string
	expires time.Time // zero means no expiration
}

var _ KeyValueDB = &MemoryKV{}

// NewMemoryKV create an empty MemoryKV
func NewMemoryKV() *MemoryKV {
	return &MemoryKV{items: make(map[string]memoryItem), now: time.Now}
}

// SetEX implement KeyValueDB, expiration <= 0 keeps the key forever
func (m *MemoryKV) SetEX(key string, value string, expiration time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	item := memoryItem{value: value}
	if expiration > 0 {
		item.expires = m.now().Add(expiration)
	}
	m.items[key] = item
	return nil
}

// Get implement KeyValueDB
func (m *MemoryKV) Get(key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	item, ok := m.lookup(key)
	if !ok {
		return "", ErrKeyNotFound
	}
	return item.value, nil
}

// Exists implement KeyValueDB
func (m *MemoryKV) Exists(key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, ok := m.lookup(key)
	return ok, nil
}

// Delete implement KeyValueDB
func (m *MemoryKV) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.items, key)
	return nil
}

// Ping implement KeyValueDB
func (m *MemoryKV) Ping() error {
	return nil
}

// lookup caller holds the lock
func (m *MemoryKV) lookup(key string) (memoryItem, bool) {
	item, ok := m.items[key]
	if !ok {
		return item, false
	}
	if !item.expires.IsZero() && !m.now().Before(item.expires) {
		delete(m.items, key)
		return item, false
	}
	return item, true
}
