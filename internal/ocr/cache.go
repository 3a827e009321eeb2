package ocr

import (
	"context"
	"crypto/sha256"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Cached memoises extraction results by image digest
type Cached struct {
	next  Extractor
	cache *lru.Cache[[sha256.Size]byte, string]
}

// NewCached wraps next in an LRU of the given size. A size below one
// returns next unchanged.
func NewCached(next Extractor, size int) (Extractor, error) {
	if size < 1 {
		return next, nil
	}
	cache, err := lru.New[[sha256.Size]byte, string](size)
	if err != nil {
		return nil, err
	}
	return &Cached{next: next, cache: cache}, nil
}

func (c *Cached) Name() string { return c.next.Name() }

func (c *Cached) Extract(ctx context.Context, img []byte) (string, error) {
	key := sha256.Sum256(img)
	if text, ok := c.cache.Get(key); ok {
		return text, nil
	}

	text, err := c.next.Extract(ctx, img)
	if err != nil {
		return "", err
	}
	c.cache.Add(key, text)
	return text, nil
}

// Len returns the number of cached results
func (c *Cached) Len() int { return c.cache.Len() }
