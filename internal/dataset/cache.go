package dataset

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
)

// Loader turns a source path into a Dataset.
type Loader func(path string) (*Dataset, error)

type cacheKey struct {
	path string
	mod  int64 // unix nanoseconds
	size int64
}

// Cache is a single-slot dataset cache keyed by source path and modification time.
// Filter or selection changes never touch it; only a changed file or Invalidate does.
type Cache struct {
	mu     sync.Mutex
	load   Loader
	logger *zap.Logger

	key   cacheKey
	ds    *Dataset
	loads int
	hits  int
}

// NewCache returns an empty cache backed by load.
func NewCache(load Loader, logger *zap.Logger) *Cache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cache{load: load, logger: logger}
}

// Get returns the cached dataset for path, reloading when the slot holds another
// path or the file changed on disk.
func (c *Cache) Get(path string) (*Dataset, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", path, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("stat dataset: %w", err)
	}
	key := cacheKey{path: abs, mod: info.ModTime().UnixNano(), size: info.Size()}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ds != nil && c.key == key {
		c.hits++
		return c.ds, nil
	}
	ds, err := c.load(abs)
	if err != nil {
		return nil, err
	}
	c.loads++
	c.key = key
	c.ds = ds
	c.logger.Info("dataset loaded",
		zap.String("path", abs),
		zap.Int("rows", ds.Len()),
		zap.Int("columns", len(ds.cols)))
	return ds, nil
}

// Invalidate empties the slot so the next Get reloads.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ds = nil
	c.key = cacheKey{}
	c.logger.Debug("dataset cache invalidated")
}

// Stats returns how many loads and cache hits Get has served.
func (c *Cache) Stats() (loads, hits int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loads, c.hits
}
