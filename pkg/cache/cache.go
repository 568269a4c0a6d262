// Package cache provides small string caches with explicit TTLs.
package cache

import (
	"context"
	"errors"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// ErrMiss is returned by Get when the key is absent or expired.
var ErrMiss = errors.New("cache: miss")

// TTLCache is the contract shared by the redis and in-memory caches.
type TTLCache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// DefaultMemorySize bounds NewMemory. The least recently used key goes first.
const DefaultMemorySize = 4096

type memoryEntry struct {
	value     string
	expiresAt time.Time
}

// Memory is a process-local TTLCache on a size-bounded LRU. Suitable for
// single-instance runs and tests.
type Memory struct {
	entries *expirable.LRU[string, memoryEntry]
	now     func() time.Time
}

// NewMemory builds an empty in-memory cache holding DefaultMemorySize keys.
func NewMemory() *Memory {
	return NewMemorySize(DefaultMemorySize)
}

// NewMemorySize builds an empty in-memory cache holding at most size keys.
func NewMemorySize(size int) *Memory {
	if size <= 0 {
		size = DefaultMemorySize
	}
	// TTLs are per entry, so the LRU itself never expires anything.
	return &Memory{entries: expirable.NewLRU[string, memoryEntry](size, nil, 0), now: time.Now}
}

func (m *Memory) Get(_ context.Context, key string) (string, error) {
	entry, ok := m.entries.Get(key)
	if !ok {
		return "", ErrMiss
	}
	if !entry.expiresAt.IsZero() && !m.now().Before(entry.expiresAt) {
		m.entries.Remove(key)
		return "", ErrMiss
	}
	return entry.value, nil
}

func (m *Memory) Set(_ context.Context, key, value string, ttl time.Duration) error {
	entry := memoryEntry{value: value}
	if ttl > 0 {
		entry.expiresAt = m.now().Add(ttl)
	}
	m.entries.Add(key, entry)
	return nil
}

func (m *Memory) Delete(_ context.Context, key string) error {
	m.entries.Remove(key)
	return nil
}
