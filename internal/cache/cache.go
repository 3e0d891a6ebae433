package cache

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/storage"
)

// AnswerCache maps question fingerprints to previously generated answers.
// Entries never expire. The in-memory map is the source of truth for reads;
// writes go through to storage so entries survive restarts. Storage failures
// on the read path degrade to a miss rather than failing the question.
type AnswerCache struct {
	mu      sync.RWMutex
	entries map[string]*models.CacheEntry
	store   storage.Storage
	logger  *zap.Logger
}

// NewAnswerCache creates a cache backed by store, warm-loading persisted
// entries.
func NewAnswerCache(ctx context.Context, store storage.Storage, logger *zap.Logger) (*AnswerCache, error) {
	persisted, err := store.ListCacheEntries(ctx)
	if err != nil {
		return nil, err
	}
	entries := make(map[string]*models.CacheEntry, len(persisted))
	for _, e := range persisted {
		entries[e.Fingerprint] = e
	}
	logger.Info("answer cache loaded", zap.Int("entries", len(entries)))
	return &AnswerCache{entries: entries, store: store, logger: logger}, nil
}

// Lookup returns the cached entry for fingerprint, or ok=false on a miss.
// A hit bumps the persistent hit counter best-effort.
func (c *AnswerCache) Lookup(ctx context.Context, fingerprint string) (*models.CacheEntry, bool) {
	c.mu.RLock()
	entry, ok := c.entries[fingerprint]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if err := c.store.IncrementCacheHit(ctx, fingerprint); err != nil {
		c.logger.Warn("failed to record cache hit", zap.String("fingerprint", fingerprint), zap.Error(err))
	}
	return entry, true
}

// Store saves entry under its fingerprint, replacing any previous entry
// (last write wins). The write is applied to storage first; on storage
// failure the in-memory map is left untouched and the error returned.
func (c *AnswerCache) Store(ctx context.Context, entry *models.CacheEntry) error {
	if entry.Fingerprint == "" {
		return errors.New("cache entry has no fingerprint")
	}
	if err := c.store.UpsertCacheEntry(ctx, entry); err != nil {
		return err
	}
	c.mu.Lock()
	c.entries[entry.Fingerprint] = entry
	c.mu.Unlock()
	return nil
}

// Invalidate removes the entries for the given fingerprints from memory and
// storage. Unknown fingerprints are ignored.
func (c *AnswerCache) Invalidate(ctx context.Context, fingerprints []string) error {
	if len(fingerprints) == 0 {
		return nil
	}
	if err := c.store.DeleteCacheEntries(ctx, fingerprints); err != nil {
		return err
	}
	c.mu.Lock()
	for _, fp := range fingerprints {
		delete(c.entries, fp)
	}
	c.mu.Unlock()
	return nil
}

// InvalidateByChunks removes every entry whose answer cites any of the given
// chunk IDs. Returns the number of entries removed.
func (c *AnswerCache) InvalidateByChunks(ctx context.Context, chunkIDs []string) (int, error) {
	if len(chunkIDs) == 0 {
		return 0, nil
	}
	deleted := make(map[string]bool, len(chunkIDs))
	for _, id := range chunkIDs {
		deleted[id] = true
	}

	c.mu.RLock()
	var stale []string
	for fp, entry := range c.entries {
		for _, src := range entry.SourceChunkIDs {
			if deleted[src] {
				stale = append(stale, fp)
				break
			}
		}
	}
	c.mu.RUnlock()

	if err := c.Invalidate(ctx, stale); err != nil {
		return 0, err
	}
	return len(stale), nil
}

// Size returns the number of entries currently cached.
func (c *AnswerCache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
