// Package store holds uploaded sample tables in memory.
package store

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"

	"github.com/Brownie44l1/fishmate-api/internal/zones"
)

// DefaultMaxEntries is the index size used when none is configured.
const DefaultMaxEntries = 16

// Datasets keeps the most recently uploaded table and indexes uploads by id
// until their TTL passes. At most maxEntries uploads are indexed; the oldest
// is evicted first. The latest table never expires; it is only replaced by
// the next upload.
type Datasets struct {
	mu       sync.RWMutex
	latest   *zones.Table
	latestID string

	byID       *cache.Cache
	order      []string
	maxEntries int
}

// New creates a store. A ttl of zero or less keeps uploads until they are
// evicted; maxEntries of zero or less selects DefaultMaxEntries.
func New(ttl time.Duration, maxEntries int) *Datasets {
	cleanup := ttl
	if ttl <= 0 {
		ttl = cache.NoExpiration
		cleanup = 0
	}
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	return &Datasets{byID: cache.New(ttl, cleanup), maxEntries: maxEntries}
}

// Put stores t as the latest table and returns its id.
func (d *Datasets) Put(t *zones.Table) string {
	id := uuid.NewString()

	d.mu.Lock()
	defer d.mu.Unlock()
	d.byID.SetDefault(id, t)
	d.order = append(d.order, id)
	for len(d.order) > d.maxEntries {
		d.byID.Delete(d.order[0])
		d.order = d.order[1:]
	}
	d.latest, d.latestID = t, id
	return id
}

// Latest returns the most recent upload.
func (d *Datasets) Latest() (*zones.Table, string, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.latest, d.latestID, d.latest != nil
}

// Get returns the upload with the given id if it has not expired.
func (d *Datasets) Get(id string) (*zones.Table, bool) {
	if id == "" {
		return nil, false
	}
	d.mu.RLock()
	if id == d.latestID && d.latest != nil {
		t := d.latest
		d.mu.RUnlock()
		return t, true
	}
	d.mu.RUnlock()

	v, ok := d.byID.Get(id)
	if !ok {
		return nil, false
	}
	return v.(*zones.Table), true
}

// Len returns the number of indexed uploads, expired ones excluded.
func (d *Datasets) Len() int {
	return len(d.byID.Items())
}
