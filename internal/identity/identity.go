// Package identity issues the stable anonymous identity of a client.
package identity

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sujalbistaa/confessions/internal/common"
	"github.com/sujalbistaa/confessions/internal/kv"
)

// StorageKey is where the identity token is persisted.
const StorageKey = "anon_uid"

// Prefix marks every anonymous identity token.
const Prefix = "anon_"

// NewToken returns a fresh unguessable identity token.
func NewToken() string {
	return Prefix + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// Provider returns the identity persisted in a client's key-value store,
// creating it on first use.
type Provider struct {
	store kv.Store
	log   *zap.Logger

	mu        sync.Mutex
	ephemeral string
}

func NewProvider(store kv.Store, log *zap.Logger) *Provider {
	if log == nil {
		log = zap.NewNop()
	}
	return &Provider{store: store, log: log}
}

// GetOrCreate never fails. When the store cannot be read or written, it
// returns an identity that lives only as long as this Provider.
func (p *Provider) GetOrCreate(ctx context.Context) string {
	id, err := p.store.Get(ctx, StorageKey)
	if err == nil && strings.HasPrefix(id, Prefix) {
		return id
	}
	if err != nil && !errors.Is(err, common.ErrNotFound) {
		p.log.Warn("identity store unreadable, using ephemeral identity", zap.Error(err))
		return p.ephemeralID()
	}

	id = NewToken()
	if err := p.store.Set(ctx, StorageKey, id); err != nil {
		p.log.Warn("identity not persisted, using ephemeral identity", zap.Error(err))
		return p.ephemeralID()
	}
	return id
}

func (p *Provider) ephemeralID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ephemeral == "" {
		p.ephemeral = NewToken()
	}
	return p.ephemeral
}
