package catalog

import (
	"context"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/mikey-austin/tandem/internal/core"
	"github.com/mikey-austin/tandem/internal/ports"
)

// Cached memoises successful lookups of another catalog. Failures are not
// cached, so a later sync can retry.
type Cached struct {
	next  ports.Catalog
	cache *lru.Cache[string, core.Track]
}

// NewCached wraps next with an LRU of size entries.
func NewCached(next ports.Catalog, size int) (*Cached, error) {
	if size <= 0 {
		size = 256
	}
	cache, err := lru.New[string, core.Track](size)
	if err != nil {
		return nil, err
	}
	return &Cached{next: next, cache: cache}, nil
}

// GetTrack implements ports.Catalog.
func (c *Cached) GetTrack(ctx context.Context, id string) (core.Track, error) {
	if track, ok := c.cache.Get(id); ok {
		return track, nil
	}
	track, err := c.next.GetTrack(ctx, id)
	if err != nil {
		return core.Track{}, err
	}
	c.cache.Add(id, track)
	return track, nil
}

// Len returns the number of cached tracks.
func (c *Cached) Len() int {
	return c.cache.Len()
}
