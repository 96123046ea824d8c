package cache

import (
	"fmt"
	"hash/fnv"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/bits-and-blooms/bloom/v3"

	"github.com/acounsel/asfour/internal/observer"
)

// ContactCache uses dual bloom filters to answer "have we seen this phone
// before" without a database round trip. Inbound webhooks are dominated by
// repeat senders; a maybe-known answer lets reconciliation skip the create
// path, a maybe-new answer lets it skip the lookup.
type ContactCache struct {
	knownFilter *bloom.BloomFilter // phones that resolved to an existing contact
	newFilter   *bloom.BloomFilter // phones that previously required a create
	mu          sync.RWMutex
	hits        atomic.Int64
	misses      atomic.Int64
}

// NewContactCache creates a dual bloom filter cache sized for the expected
// contact population.
func NewContactCache(expectedKnown, expectedNew uint, fpRate float64) *ContactCache {
	return &ContactCache{
		knownFilter: bloom.NewWithEstimates(expectedKnown, fpRate),
		newFilter:   bloom.NewWithEstimates(expectedNew, fpRate),
	}
}

// generateKey creates a cache key from org and phone using FNV-1a hash
func (c *ContactCache) generateKey(orgID int64, phone string) string {
	h := fnv.New64a()
	h.Write([]byte(strconv.FormatInt(orgID, 10) + ":" + phone))
	return fmt.Sprintf("%x", h.Sum64())
}

// Check returns the filter's best guess for an org/phone pair. Answers are
// probabilistic: MaybeKnown and MaybeNew can be false positives, Unknown is
// definitive absence from both filters.
func (c *ContactCache) Check(orgID int64, phone string) ContactStatus {
	key := c.generateKey(orgID, phone)

	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.knownFilter.TestString(key) {
		c.hits.Add(1)
		observer.IncCacheCheck(orgID, "bloom_known", "possible_hit")
		return StatusMaybeKnown
	}

	if c.newFilter.TestString(key) {
		c.hits.Add(1)
		observer.IncCacheCheck(orgID, "bloom_new", "possible_hit")
		return StatusMaybeNew
	}

	c.misses.Add(1)
	observer.IncCacheCheck(orgID, "bloom", "miss")
	return StatusUnknown
}

// MarkKnown records that the phone resolved to an existing contact.
func (c *ContactCache) MarkKnown(orgID int64, phone string) {
	key := c.generateKey(orgID, phone)

	c.mu.Lock()
	defer c.mu.Unlock()

	c.knownFilter.AddString(key)
}

// MarkNew records that the phone required creating a contact. Once created
// the contact exists, so the known filter is updated too.
func (c *ContactCache) MarkNew(orgID int64, phone string) {
	key := c.generateKey(orgID, phone)

	c.mu.Lock()
	defer c.mu.Unlock()

	c.newFilter.AddString(key)
	c.knownFilter.AddString(key)
}

// Stats returns cache hit statistics.
func (c *ContactCache) Stats() ContactCacheStats {
	hits := c.hits.Load()
	misses := c.misses.Load()
	total := hits + misses

	hitRate := float64(0)
	if total > 0 {
		hitRate = float64(hits) / float64(total)
	}

	c.mu.RLock()
	knownSize := c.knownFilter.ApproximatedSize()
	newSize := c.newFilter.ApproximatedSize()
	c.mu.RUnlock()

	return ContactCacheStats{
		Hits:      hits,
		Misses:    misses,
		HitRate:   hitRate,
		KnownSize: uint64(knownSize),
		NewSize:   uint64(newSize),
	}
}

// ContactStatus represents the cache check result
type ContactStatus int

const (
	StatusUnknown ContactStatus = iota
	StatusMaybeKnown
	StatusMaybeNew
)

type ContactCacheStats struct {
	Hits      int64
	Misses    int64
	HitRate   float64
	KnownSize uint64
	NewSize   uint64
}
