package resample

import (
	"sync"

	"aicallswitch/internal/logging"
)

// Cache is the ResamplerCache: a concurrent map from input sample rate to a
// cached Resampler instance, fixed to one output rate for its lifetime (one
// AIAutoResponder). Map-wide locking only guards insertion; each cached
// resampler is mutated under its own instance lock thereafter.
type Cache struct {
	mu      sync.Mutex
	byRate  map[int]*Resampler
	outRate int
	quality Quality
	logger  logging.Logger
}

// NewCache creates a cache fixed to outRate and quality, for one AIAutoResponder.
func NewCache(outRate int, quality Quality, logger logging.Logger) *Cache {
	return &Cache{
		byRate:  make(map[int]*Resampler),
		outRate: outRate,
		quality: quality,
		logger:  logger,
	}
}

// Get returns the cached Resampler for inRate, creating it on first use.
func (c *Cache) Get(inRate int) *Resampler {
	c.mu.Lock()
	defer c.mu.Unlock()
	if r, ok := c.byRate[inRate]; ok {
		return r
	}
	r := newResampler(inRate, c.outRate, c.quality, c.logger)
	c.byRate[inRate] = r
	return r
}

// Close evicts every cached resampler. Called on AIAutoResponder.dispose().
func (c *Cache) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.byRate = make(map[int]*Resampler)
}
