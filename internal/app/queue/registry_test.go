package queue

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInFlightRegistry(t *testing.T) {
	r := NewInFlightRegistry()

	assert.True(t, r.TryAcquire("b"))
	assert.True(t, r.TryAcquire("a"))
	assert.False(t, r.TryAcquire("a"))
	assert.True(t, r.Contains("a"))
	assert.Equal(t, 2, r.Len())
	assert.Equal(t, []string{"a", "b"}, r.IDs())

	r.Release("a")
	r.Release("missing")
	assert.False(t, r.Contains("a"))
	assert.True(t, r.TryAcquire("a"))

	r.Reset()
	assert.Zero(t, r.Len())
	assert.Empty(t, r.IDs())
}
