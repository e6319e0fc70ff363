// Package kv provides the durable string key-value storage that the local
// fallback store, the identity provider and the share tally persist into.
package kv

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/sujalbistaa/confessions/internal/common"
	"github.com/sujalbistaa/confessions/internal/db"
)

// Store is a string key-value store.
//
// Get returns common.ErrNotFound when the key has never been set.
// Set failures wrap common.ErrStorage.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
}

// Open builds a Store from a URL:
//
//	memory://            process memory, lost on restart
//	sqlite://<path>      a kv_entries table in a sqlite file
//	redis://<addr>/<db>  a redis instance
func Open(url string, log *zap.Logger) (Store, error) {
	switch {
	case strings.HasPrefix(url, "memory://"):
		return NewMemory(), nil
	case strings.HasPrefix(url, "redis://"), strings.HasPrefix(url, "rediss://"):
		opts, err := redis.ParseURL(url)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		return NewRedis(redis.NewClient(opts)), nil
	default:
		gdb, err := db.Open(url, log)
		if err != nil {
			return nil, err
		}
		return NewGorm(gdb)
	}
}

// Memory is an in-process Store.
type Memory struct {
	mu   sync.RWMutex
	data map[string]string
}

func NewMemory() *Memory {
	return &Memory{data: make(map[string]string)}
}

func (m *Memory) Get(_ context.Context, key string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	if !ok {
		return "", common.ErrNotFound
	}
	return v, nil
}

func (m *Memory) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}
