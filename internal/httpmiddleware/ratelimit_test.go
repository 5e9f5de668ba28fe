package httpmiddleware

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTokenBucket_Allow(t *testing.T) {
	t.Parallel()

	l := NewTokenBucket(3)
	for i := 0; i < 3; i++ {
		assert.True(t, l.Allow("10.0.0.1"), "request %d within budget", i+1)
	}
	assert.False(t, l.Allow("10.0.0.1"), "budget exhausted")
	assert.True(t, l.Allow("10.0.0.2"), "limits are per client")
}
