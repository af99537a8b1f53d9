package ratelimit

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAllow_WithinLimit(t *testing.T) {
	l := New(3, time.Minute, 100)

	assert.True(t, l.Allow("k"))
	assert.True(t, l.Allow("k"))
	assert.True(t, l.Allow("k"))
	assert.False(t, l.Allow("k"))
}

func TestAllow_WindowReset(t *testing.T) {
	l := New(1, time.Minute, 100)
	base := time.Now()
	l.now = func() time.Time { return base }

	assert.True(t, l.Allow("k"))
	assert.False(t, l.Allow("k"))

	l.now = func() time.Time { return base.Add(2 * time.Minute) }
	assert.True(t, l.Allow("k"))
}

func TestAllow_KeysIndependent(t *testing.T) {
	l := New(1, time.Minute, 100)

	assert.True(t, l.Allow("a"))
	assert.True(t, l.Allow("b"))
	assert.False(t, l.Allow("a"))
}

func TestAllow_BoundedKeys(t *testing.T) {
	l := New(1, time.Minute, 3)
	base := time.Now()
	l.now = func() time.Time { return base }

	for i := 0; i < 3; i++ {
		assert.True(t, l.Allow(fmt.Sprintf("k%d", i)))
	}
	// table is full of live windows
	assert.False(t, l.Allow("k-new"))
	assert.Equal(t, 3, l.Len())

	// once windows expire, new keys evict them
	l.now = func() time.Time { return base.Add(2 * time.Minute) }
	assert.True(t, l.Allow("k-new"))
	assert.Equal(t, 1, l.Len())
}
