package cache

import (
	"context"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// DefaultSize is the entry limit of the memory backend when none is configured.
const DefaultSize = 10000

// MemoryHandler is an in-process LRU cache with optional expiry.
type MemoryHandler struct {
	lru *expirable.LRU[string, string]
}

// NewMemoryHandler creates a memory cache holding at most size entries.
// A ttl of zero disables expiry.
func NewMemoryHandler(size int, ttl time.Duration) *MemoryHandler {
	if size <= 0 {
		size = DefaultSize
	}
	return &MemoryHandler{lru: expirable.NewLRU[string, string](size, nil, ttl)}
}

func (m *MemoryHandler) Put(_ context.Context, key Key, value string) error {
	m.lru.Add(key.String(), value)
	return nil
}

func (m *MemoryHandler) Get(_ context.Context, key Key) (string, bool, error) {
	v, ok := m.lru.Get(key.String())
	return v, ok, nil
}

func (m *MemoryHandler) Contains(_ context.Context, key Key) (bool, error) {
	return m.lru.Contains(key.String()), nil
}

func (m *MemoryHandler) Flush(_ context.Context, key Key) error {
	m.lru.Remove(key.String())
	return nil
}

func (m *MemoryHandler) FlushEndpoint(_ context.Context, project, endpointID string) error {
	m.removePrefix(EndpointPrefix(project, endpointID))
	return nil
}

func (m *MemoryHandler) FlushAll(_ context.Context, project string) error {
	m.removePrefix(Namespace(project))
	return nil
}

func (m *MemoryHandler) removePrefix(prefix string) {
	for _, k := range m.lru.Keys() {
		if strings.HasPrefix(k, prefix) {
			m.lru.Remove(k)
		}
	}
}

// Len returns the number of cached entries across all projects.
func (m *MemoryHandler) Len() int { return m.lru.Len() }

func (m *MemoryHandler) Close() error {
	m.lru.Purge()
	return nil
}
