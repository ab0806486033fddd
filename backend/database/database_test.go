package database

import (
	"context"
	"testing"
	"time"

	"github.com/PhilHem/secureone/backend/apperr"
	"github.com/PhilHem/secureone/backend/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := Open("sqlite", "file::memory:")
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	return db
}

func TestOpen_UnknownDriver(t *testing.T) {
	_, err := Open("oracle", "x")
	assert.Error(t, err)
}

func TestUserStore_CreateAndFind(t *testing.T) {
	store := NewUserStore(setupTestDB(t))
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, &models.User{Name: "Alice", Email: "a@x.com", Password: "hash"}))

	got, err := store.FindByEmail(ctx, "a@x.com")
	require.NoError(t, err)
	assert.Equal(t, "Alice", got.Name)
	assert.Equal(t, "hash", got.Password)
}

func TestUserStore_FindIsCaseSensitive(t *testing.T) {
	store := NewUserStore(setupTestDB(t))
	ctx := context.Background()
	require.NoError(t, store.Create(ctx, &models.User{Name: "Alice", Email: "a@x.com", Password: "hash"}))

	_, err := store.FindByEmail(ctx, "A@X.COM")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestUserStore_DuplicateEmail(t *testing.T) {
	store := NewUserStore(setupTestDB(t))
	ctx := context.Background()
	require.NoError(t, store.Create(ctx, &models.User{Name: "Alice", Email: "a@x.com", Password: "hash"}))

	err := store.Create(ctx, &models.User{Name: "Mallory", Email: "a@x.com", Password: "other"})
	assert.ErrorIs(t, err, apperr.ErrUserExists)
}

func TestFileStore_OwnerScopedLifecycle(t *testing.T) {
	store := NewFileStore(setupTestDB(t))
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, store.Insert(ctx, &models.File{FileID: "f1", OwnerEmail: "a@x.com", OriginalName: "a.txt", CloudPath: "k1", FileSize: 3, CreatedAt: now.Add(-time.Minute)}))
	require.NoError(t, store.Insert(ctx, &models.File{FileID: "f2", OwnerEmail: "a@x.com", OriginalName: "b.txt", CloudPath: "k2", FileSize: 5, CreatedAt: now}))
	require.NoError(t, store.Insert(ctx, &models.File{FileID: "f3", OwnerEmail: "b@x.com", OriginalName: "c.txt", CloudPath: "k3", FileSize: 7, CreatedAt: now}))

	list, err := store.ListByOwner(ctx, "a@x.com")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "f2", list[0].FileID, "newest first")

	empty, err := store.ListByOwner(ctx, "nobody@x.com")
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)

	f, err := store.Get(ctx, "f3")
	require.NoError(t, err)
	assert.Equal(t, "b@x.com", f.OwnerEmail)

	_, err = store.Get(ctx, "missing")
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	assert.ErrorIs(t, store.Delete(ctx, "a@x.com", "f3"), apperr.ErrNotFound, "cannot delete another owner's row")
	require.NoError(t, store.Delete(ctx, "b@x.com", "f3"))
	_, err = store.Get(ctx, "f3")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}
