package occupancy

import (
	"time"

	"github.com/patrickmn/go-cache"
)

// Cache holds the last-known occupancy status per classroom. It is
// authoritative for "current state" reads; the time-series store is only
// consulted on a miss.
type Cache struct {
	c *cache.Cache
}

// NewCache creates the occupancy cache. A positive staleAfter expires entries
// that long after their last update, so a classroom whose sensor goes silent
// falls back to the store instead of reporting its last state forever.
// Zero means entries never expire.
func NewCache(staleAfter time.Duration) *Cache {
	ttl := cache.NoExpiration
	cleanup := time.Duration(0)
	if staleAfter > 0 {
		ttl = staleAfter
		cleanup = 2 * staleAfter
	}
	return &Cache{c: cache.New(ttl, cleanup)}
}

// Get returns the cached status for a classroom, if present.
func (oc *Cache) Get(classroomID string) (*Status, bool) {
	v, found := oc.c.Get(classroomID)
	if !found {
		return nil, false
	}
	return v.(*Status), true
}

// Set overwrites the cached status for the status's classroom.
func (oc *Cache) Set(status *Status) {
	oc.c.SetDefault(status.ClassroomID, status)
}

// Len returns the number of cached classroom entries.
func (oc *Cache) Len() int {
	return oc.c.ItemCount()
}
