package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTTL(t *testing.T) {
	now := time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewTTL[string, []float64](time.Minute)
	c.now = func() time.Time { return now }

	c.Set("combined_1wk.csv", []float64{1, 2})
	v, ok := c.Get("combined_1wk.csv")
	assert.True(t, ok)
	assert.Equal(t, []float64{1, 2}, v)

	now = now.Add(2 * time.Minute)
	_, ok = c.Get("combined_1wk.csv")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())
}

func TestTTLNoExpiry(t *testing.T) {
	c := NewTTL[int, string](0)
	c.Set(1, "a")
	v, ok := c.Get(1)
	assert.True(t, ok)
	assert.Equal(t, "a", v)
	c.Delete(1)
	_, ok = c.Get(1)
	assert.False(t, ok)
}
