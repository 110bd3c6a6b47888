package blobcache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPutGetRoundTrip(t *testing.T) {
	c := New(time.Minute)
	defer c.Close()

	c.Put(1, []byte("hello"))
	blob, ok := c.Get(1)
	assert.True(t, ok)
	assert.Equal(t, []byte("hello"), blob)
}

func TestMissingEntry(t *testing.T) {
	c := New(time.Minute)
	defer c.Close()

	_, ok := c.Get(42)
	assert.False(t, ok)
}

func TestInvalidateRemovesEntry(t *testing.T) {
	c := New(time.Minute)
	defer c.Close()

	c.Put(1, []byte("x"))
	c.Invalidate(1)
	_, ok := c.Get(1)
	assert.False(t, ok)
}

func TestSweepRemovesExpiredEntries(t *testing.T) {
	c := New(time.Minute)
	defer c.Close()

	c.Put(1, []byte("old"))
	c.sweep(time.Now().Add(2 * time.Minute))

	_, ok := c.Get(1)
	assert.False(t, ok)
}
