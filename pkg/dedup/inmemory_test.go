package dedup_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/illmade-knight/go-mail-relay/pkg/dedup"
)

func TestInMemoryStore_MarkAndSeen(t *testing.T) {
	// Arrange
	ctx := context.Background()
	store := dedup.NewInMemoryStore()

	// Act & Assert
	seen, err := store.Seen(ctx, "msg-1")
	require.NoError(t, err)
	assert.False(t, seen)

	require.NoError(t, store.Mark(ctx, "msg-1"))

	seen, err = store.Seen(ctx, "msg-1")
	require.NoError(t, err)
	assert.True(t, seen)
	require.NoError(t, store.Close())
}

func TestInMemoryStore_ConcurrentAccess(t *testing.T) {
	// Arrange
	ctx := context.Background()
	store := dedup.NewInMemoryStore()
	var wg sync.WaitGroup

	// Act
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			id := fmt.Sprintf("msg-%d", n)
			assert.NoError(t, store.Mark(ctx, id))
			seen, err := store.Seen(ctx, id)
			assert.NoError(t, err)
			assert.True(t, seen)
		}(i)
	}
	wg.Wait()
}
