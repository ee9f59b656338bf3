package testutil

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFixedTraceGenerator_ReturnsSameToken(t *testing.T) {
	gen := NewFixedTraceGenerator("req-123")

	assert.Equal(t, "req-123", gen.Generate())
	assert.Equal(t, "req-123", gen.Generate())
}

func TestFixedTraceGenerator_EmptyTokenDefault(t *testing.T) {
	gen := NewFixedTraceGenerator("")
	assert.Equal(t, "test-request-default", gen.Generate())
}

func TestFixedTraceGenerator_ThreadSafe(t *testing.T) {
	gen := NewFixedTraceGenerator("thread-safe-token")

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				assert.Equal(t, "thread-safe-token", gen.Generate())
			}
		}()
	}
	wg.Wait()
}
