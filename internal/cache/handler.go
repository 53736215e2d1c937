// Package cache stores raw endpoint responses keyed by (project, endpoint, query).
//
// Every backend scopes keys by project so that FlushAll only ever removes
// the named project's entries. The federation engine treats the cache as
// optional: a nil Handler, or a Handler returning errors, degrades to always
// fetching from the remote endpoint.
package cache

import (
	"context"
	"fmt"
	"time"
)

// Handler is a project-scoped key/value store for raw endpoint responses.
type Handler interface {
	// Put stores value under key, replacing any previous value.
	Put(ctx context.Context, key Key, value string) error
	// Get returns the cached value and whether it was present.
	Get(ctx context.Context, key Key) (string, bool, error)
	// Contains reports whether key is cached.
	Contains(ctx context.Context, key Key) (bool, error)
	// Flush removes a single key.
	Flush(ctx context.Context, key Key) error
	// FlushEndpoint removes every key of one endpoint of the project.
	FlushEndpoint(ctx context.Context, project, endpointID string) error
	// FlushAll removes every key of the project.
	FlushAll(ctx context.Context, project string) error
	// Close releases the backend.
	Close() error
}

// Backend names accepted by New.
const (
	BackendNone   = "none"
	BackendMemory = "memory"
	BackendBolt   = "bolt"
	BackendRedis  = "redis"
)

// Config selects and configures a backend. TTL bounds the lifetime of each
// entry from the moment it is stored; zero keeps entries until evicted or
// flushed.
type Config struct {
	Backend   string
	Size      int
	TTL       time.Duration
	Path      string
	RedisAddr string
	RedisDB   int
}

// New creates the configured backend. The "none" backend yields a nil Handler.
func New(cfg Config) (Handler, error) {
	switch cfg.Backend {
	case BackendNone:
		return nil, nil
	case "", BackendMemory:
		return NewMemoryHandler(cfg.Size, cfg.TTL), nil
	case BackendBolt:
		h, err := NewBoltHandler(cfg.Path, cfg.TTL)
		if err != nil {
			return nil, err
		}
		return h, nil
	case BackendRedis:
		h, err := NewRedisHandler(cfg.RedisAddr, cfg.RedisDB, cfg.TTL)
		if err != nil {
			return nil, err
		}
		return h, nil
	default:
		return nil, fmt.Errorf("unknown cache backend: %s", cfg.Backend)
	}
}
