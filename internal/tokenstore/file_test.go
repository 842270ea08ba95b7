package tokenstore

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "tokens.json")

	store, err := NewFileStore(path)
	require.NoError(t, err)

	_, err = store.Read(ctx, "access_token")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, store.Write(ctx, "access_token", "a1"))
	require.NoError(t, store.Write(ctx, "refresh_token", "r1"))

	got, err := store.Read(ctx, "access_token")
	require.NoError(t, err)
	assert.Equal(t, "a1", got)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	require.NoError(t, store.Delete(ctx, "access_token"))
	_, err = store.Read(ctx, "access_token")
	assert.ErrorIs(t, err, ErrNotFound)

	got, err = store.Read(ctx, "refresh_token")
	require.NoError(t, err)
	assert.Equal(t, "r1", got)
}

func TestFileStore_DeleteLastKeyRemovesFile(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "tokens.json")

	store, err := NewFileStore(path)
	require.NoError(t, err)

	require.NoError(t, store.Delete(ctx, "refresh_token"))
	require.NoError(t, store.Write(ctx, "refresh_token", "r1"))
	require.NoError(t, store.Delete(ctx, "refresh_token"))
	require.NoError(t, store.Delete(ctx, "refresh_token"))

	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestFileStore_InsecurePermissions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tokens.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"access_token":"a"}`), 0644))

	store, err := NewFileStore(path)
	require.NoError(t, err)

	_, err = store.Read(context.Background(), "access_token")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insecure permissions")
}

func TestFileStore_CanceledContext(t *testing.T) {
	store, err := NewFileStore(filepath.Join(t.TempDir(), "tokens.json"))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, store.Write(ctx, "access_token", "a"), context.Canceled)
}

func TestNewFileStore_EmptyPath(t *testing.T) {
	_, err := NewFileStore("")
	assert.Error(t, err)
}
