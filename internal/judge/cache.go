package judge

import (
	"context"
	"crypto/sha256"
	"encoding/hex"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Cached memoizes successful judgments by task and content digest. Failed
// calls are never cached.
type Cached struct {
	next  Judge
	cache *lru.Cache[string, Judgment]
}

// NewCached wraps next with an LRU of size entries.
func NewCached(next Judge, size int) (*Cached, error) {
	if size <= 0 {
		size = 1024
	}
	cache, err := lru.New[string, Judgment](size)
	if err != nil {
		return nil, err
	}
	return &Cached{next: next, cache: cache}, nil
}

func (c *Cached) Name() string { return c.next.Name() + "+cache" }

func (c *Cached) Judge(ctx context.Context, req Request) (*Judgment, error) {
	key := cacheKey(req)
	if j, ok := c.cache.Get(key); ok {
		out := j
		return &out, nil
	}
	j, err := c.next.Judge(ctx, req)
	if err != nil {
		return nil, err
	}
	c.cache.Add(key, *j)
	return j, nil
}

// Len reports the number of cached judgments.
func (c *Cached) Len() int { return c.cache.Len() }

func cacheKey(req Request) string {
	sum := sha256.Sum256([]byte(req.Content))
	return string(req.Task) + ":" + hex.EncodeToString(sum[:])
}
