package occupancy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCache_StaleEntriesExpire(t *testing.T) {
	cache := NewCache(50 * time.Millisecond)
	cache.Set(&Status{ClassroomID: "c-1", IsOccupied: true})

	_, found := cache.Get("c-1")
	assert.True(t, found)

	time.Sleep(80 * time.Millisecond)

	_, found = cache.Get("c-1")
	assert.False(t, found, "an entry past its staleness window must not be served")
}

func TestCache_ZeroStalenessNeverExpires(t *testing.T) {
	cache := NewCache(0)
	cache.Set(&Status{ClassroomID: "c-1"})

	time.Sleep(20 * time.Millisecond)

	_, found := cache.Get("c-1")
	assert.True(t, found)
	assert.Equal(t, 1, cache.Len())
}
