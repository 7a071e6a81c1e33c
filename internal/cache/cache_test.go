package cache

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

// A nil *Cache must behave as an always-miss cache so callers never need to
// branch on whether Redis caching is configured.
func TestNilCache_BehavesAsAlwaysMiss(t *testing.T) {
	var c *Cache

	var dst map[string]string
	assert.False(t, c.GetJSON(context.Background(), "some-key", &dst))

	// Must not panic.
	c.SetJSON(context.Background(), "some-key", map[string]string{"a": "b"})

	assert.Error(t, c.Ping(context.Background()))
	assert.NoError(t, c.Close())
}

func TestNew_RejectsInvalidURL(t *testing.T) {
	_, err := New("not-a-redis-url", 0)
	assert.Error(t, err)
}

func TestNew_ParsesValidURL(t *testing.T) {
	c, err := New("redis://localhost:6379/0", 0)
	assert.NoError(t, err)
	assert.NotNil(t, c)
}
