package metacache

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/vertextoedge/sharelink/internal/domain"
)

// Cache is a size-bounded LRU of file metadata whose entries expire after a TTL
type Cache struct {
	lru    *expirable.LRU[int64, *domain.FileMetadata]
	hits   prometheus.Counter
	misses prometheus.Counter
}

// New creates a cache of at most size entries living ttl each.
// Hit and miss counters are registered on reg when it is not nil;
// backend names the file store in the metric labels.
func New(size int, ttl time.Duration, backend string, reg prometheus.Registerer) *Cache {
	if size <= 0 {
		size = 1024
	}
	c := &Cache{
		lru: expirable.NewLRU[int64, *domain.FileMetadata](size, nil, ttl),
		hits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "sharelink",
			Subsystem:   "file_metadata_cache",
			Name:        "hits_total",
			Help:        "File metadata cache hits.",
			ConstLabels: prometheus.Labels{"backend": backend},
		}),
		misses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "sharelink",
			Subsystem:   "file_metadata_cache",
			Name:        "misses_total",
			Help:        "File metadata cache misses.",
			ConstLabels: prometheus.Labels{"backend": backend},
		}),
	}
	if reg != nil {
		reg.MustRegister(c.hits, c.misses)
	}
	return c
}

// Get returns a copy of the cached metadata of fileID
func (c *Cache) Get(fileID int64) (*domain.FileMetadata, bool) {
	meta, ok := c.lru.Get(fileID)
	if !ok {
		c.misses.Inc()
		return nil, false
	}
	c.hits.Inc()
	cp := *meta
	return &cp, true
}

// Set stores a copy of meta under its file id
func (c *Cache) Set(meta *domain.FileMetadata) {
	cp := *meta
	c.lru.Add(meta.ID, &cp)
}

// Delete drops the entry of fileID
func (c *Cache) Delete(fileID int64) {
	c.lru.Remove(fileID)
}

// Len returns the number of live entries
func (c *Cache) Len() int {
	return c.lru.Len()
}
