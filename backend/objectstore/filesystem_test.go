package objectstore

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/PhilHem/secureone/backend/apperr"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileSystemStore_PutGetDelete(t *testing.T) {
	base := t.TempDir()
	store := NewFileSystemStore(base)
	ctx := context.Background()
	key := "users/abc/2026/03/01/1f0e"

	require.NoError(t, store.Put(ctx, key, strings.NewReader("hello"), 5))

	_, err := os.Stat(filepath.Join(base, "users", "abc", "2026", "03", "01", "1f0e"))
	require.NoError(t, err, "key segments should become directories")

	data, err := store.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))

	require.NoError(t, store.Delete(ctx, key))
	_, err = store.Get(ctx, key)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestFileSystemStore_DeleteMissingIsNoop(t *testing.T) {
	store := NewFileSystemStore(t.TempDir())
	assert.NoError(t, store.Delete(context.Background(), "users/none"))
}

func TestFileSystemStore_ShortWriteLeavesNothing(t *testing.T) {
	base := t.TempDir()
	store := NewFileSystemStore(base)
	ctx := context.Background()

	err := store.Put(ctx, "k", strings.NewReader("abc"), 10)
	require.Error(t, err)

	_, err = store.Get(ctx, "k")
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	entries, _ := os.ReadDir(base)
	assert.Empty(t, entries, "temp file should be removed")
}

func TestFileSystemStore_CancelledContext(t *testing.T) {
	store := NewFileSystemStore(t.TempDir())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.Error(t, store.Put(ctx, "k", strings.NewReader("abc"), 3))
}

func TestFileSystemStore_RejectsEscapingKeys(t *testing.T) {
	store := NewFileSystemStore(t.TempDir())
	ctx := context.Background()

	for _, key := range []string{"", "../etc/passwd", "users/../../x", "/abs"} {
		assert.Error(t, store.Put(ctx, key, strings.NewReader("x"), 1), key)
		_, err := store.Get(ctx, key)
		assert.Error(t, err, key)
	}
}
