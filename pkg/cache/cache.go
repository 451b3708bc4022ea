// Package cache remembers translations for the lifetime of the process so
// the same fragment is never sent to the model twice.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/dgraph-io/ristretto"
)

type Config struct {
	TTL     time.Duration
	MaxCost int64
}

// Cache maps source text to a previously obtained translation. Keys are
// content-addressed, so identical fragments from different pages share one
// entry. The cache is never the sole source of truth: a miss is always
// resolvable through normal dispatch.
type Cache struct {
	store *ristretto.Cache
	ttl   time.Duration
}

func New(cfg *Config) (*Cache, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.TTL == 0 {
		cfg.TTL = 15 * time.Minute
	}
	if cfg.MaxCost == 0 {
		cfg.MaxCost = 1e7
	}

	store, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 1e7,
		MaxCost:     cfg.MaxCost,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create cache: %w", err)
	}

	return &Cache{store: store, ttl: cfg.TTL}, nil
}

// Get returns the cached translation for sourceText.
func (c *Cache) Get(sourceText string) (string, bool) {
	v, found := c.store.Get(key("text", sourceText))
	if !found {
		return "", false
	}
	return v.(string), true
}

// Set stores the translation for sourceText.
func (c *Cache) Set(sourceText, translated string) {
	c.store.SetWithTTL(key("text", sourceText), translated, 1, c.ttl)
}

// GetRendered looks up a translation by the rendered markup of its source.
// Call sites that replace markup by exact match key on the serialized form
// rather than the plain text.
func (c *Cache) GetRendered(renderedSource string) (string, bool) {
	v, found := c.store.Get(key("markup", renderedSource))
	if !found {
		return "", false
	}
	return v.(string), true
}

// SetRendered stores the same translation under its rendered source key.
func (c *Cache) SetRendered(renderedSource, translated string) {
	c.store.SetWithTTL(key("markup", renderedSource), translated, 1, c.ttl)
}

// Wait blocks until pending writes are visible to Get. Ristretto applies
// sets asynchronously; dispatch does not need the guarantee but tests do.
func (c *Cache) Wait() {
	c.store.Wait()
}

// Close releases the underlying store.
func (c *Cache) Close() {
	c.store.Close()
}

func key(kind, content string) string {
	hash := sha256.Sum256([]byte(fmt.Sprintf("%s:%s", kind, content)))
	return hex.EncodeToString(hash[:])
}
