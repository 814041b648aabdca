package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/pantheonhq/pantheon/internal/clock"
)

func TestTTLCacheExpiresEntries(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	c := NewTTLCacheWithClock[string, int](clk)

	c.Set("a", 1, time.Minute)

	got, ok := c.Get("a")
	assert.True(t, ok)
	assert.Equal(t, 1, got)

	clk.Advance(2 * time.Minute)

	_, ok = c.Get("a")
	assert.False(t, ok)
}

func TestTTLCacheZeroTTLNeverExpires(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	c := NewTTLCacheWithClock[string, string](clk)

	c.Set("a", "forever", 0)
	clk.Advance(24 * time.Hour)

	got, ok := c.Get("a")
	assert.True(t, ok)
	assert.Equal(t, "forever", got)
}

func TestTTLCacheDelete(t *testing.T) {
	c := NewTTLCache[string, int]()

	c.Set("a", 1, time.Minute)
	c.Delete("a")

	_, ok := c.Get("a")
	assert.False(t, ok)
}
