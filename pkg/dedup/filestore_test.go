package dedup_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/illmade-knight/go-mail-relay/pkg/dedup"
)

func newTestFileStore(t *testing.T, path string) *dedup.FileStore {
	t.Helper()
	store, err := dedup.NewFileStore(path, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestFileStore_MarkAndSeen(t *testing.T) {
	// Arrange
	ctx := context.Background()
	store := newTestFileStore(t, filepath.Join(t.TempDir(), "processed.txt"))

	// Act & Assert
	seen, err := store.Seen(ctx, "msg-1")
	require.NoError(t, err)
	assert.False(t, seen)

	require.NoError(t, store.Mark(ctx, "msg-1"))

	seen, err = store.Seen(ctx, "msg-1")
	require.NoError(t, err)
	assert.True(t, seen)
}

func TestFileStore_SurvivesRestart(t *testing.T) {
	// Arrange
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "processed.txt")

	store := newTestFileStore(t, path)
	require.NoError(t, store.Mark(ctx, "msg-1"))
	require.NoError(t, store.Mark(ctx, "msg-2"))
	require.NoError(t, store.Close())

	// Act: reopen and check the set was reloaded from disk.
	reopened := newTestFileStore(t, path)

	// Assert
	for _, id := range []string{"msg-1", "msg-2"} {
		seen, err := reopened.Seen(ctx, id)
		require.NoError(t, err)
		assert.True(t, seen, "id %s should survive a restart", id)
	}
	seen, err := reopened.Seen(ctx, "msg-3")
	require.NoError(t, err)
	assert.False(t, seen)
}

func TestFileStore_OneIdentifierPerLine(t *testing.T) {
	// Arrange
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "processed.txt")
	store := newTestFileStore(t, path)

	// Act
	require.NoError(t, store.Mark(ctx, "first-id"))
	require.NoError(t, store.Mark(ctx, "second-id"))

	// Assert: the durable format is one identifier string per line.
	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "first-id\nsecond-id\n", string(content))
}

func TestFileStore_MarkIsIdempotent(t *testing.T) {
	// Arrange
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "processed.txt")
	store := newTestFileStore(t, path)

	// Act
	require.NoError(t, store.Mark(ctx, "msg-1"))
	require.NoError(t, store.Mark(ctx, "msg-1"))

	// Assert
	assert.Equal(t, 1, store.Len())
	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "msg-1\n", string(content))
}
