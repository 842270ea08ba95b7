package session

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/townspark/townspark/internal/tokenstore"
)

// failingBackend fails writes for one key.
type failingBackend struct {
	*tokenstore.MemoryStore
	failKey string
}

func (f *failingBackend) Write(ctx context.Context, key, value string) error {
	if key == f.failKey {
		return errors.New("backend unavailable")
	}
	return f.MemoryStore.Write(ctx, key, value)
}

func newStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(tokenstore.NewMemoryStore())
	require.NoError(t, err)
	return s
}

func TestStore_StoreTokensThenRead(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	require.NoError(t, s.StoreTokens(ctx, TokenPair{Access: "a", Refresh: "r"}))

	access, err := s.AccessToken(ctx)
	require.NoError(t, err)
	assert.Equal(t, "a", access)

	refresh, err := s.RefreshToken(ctx)
	require.NoError(t, err)
	assert.Equal(t, "r", refresh)

	assert.True(t, s.HasTokens(ctx))
	assert.Equal(t, Authenticated, s.State(ctx))
}

func TestStore_UnreadableSessionReportsAbsent(t *testing.T) {
	s := newStore(t)
	require.NoError(t, s.StoreTokens(context.Background(), TokenPair{Access: "a", Refresh: "r"}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.False(t, s.HasTokens(ctx))
	assert.Equal(t, Anonymous, s.State(ctx))

	// The tokens are still there; only the typed reads tell the cases apart.
	_, err := s.AccessToken(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, ErrNotFound)
	assert.Equal(t, Authenticated, s.State(context.Background()))
}

func TestStore_ClearTokens(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	require.NoError(t, s.StoreTokens(ctx, TokenPair{Access: "a", Refresh: "r"}))
	require.NoError(t, s.ClearTokens(ctx))
	require.NoError(t, s.ClearTokens(ctx))

	assert.False(t, s.HasTokens(ctx))
	assert.False(t, s.HasAccessToken(ctx))
	assert.False(t, s.HasRefreshToken(ctx))
	assert.Equal(t, Anonymous, s.State(ctx))

	_, err := s.AccessToken(ctx)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_DeleteAccessTokenKeepsRefresh(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	require.NoError(t, s.StoreTokens(ctx, TokenPair{Access: "a", Refresh: "r"}))
	require.NoError(t, s.DeleteAccessToken(ctx))
	require.NoError(t, s.DeleteAccessToken(ctx))

	assert.False(t, s.HasAccessToken(ctx))
	assert.True(t, s.HasRefreshToken(ctx))
	assert.Equal(t, Anonymous, s.State(ctx))
}

func TestStore_RejectsEmptyTokens(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	assert.Error(t, s.SetAccessToken(ctx, ""))
	assert.Error(t, s.StoreTokens(ctx, TokenPair{Access: "a"}))
	assert.False(t, s.HasAccessToken(ctx))
}

func TestStore_StoreTokensRollsBackOnFailure(t *testing.T) {
	ctx := context.Background()
	s, err := NewStore(&failingBackend{MemoryStore: tokenstore.NewMemoryStore(), failKey: RefreshTokenKey})
	require.NoError(t, err)

	err = s.StoreTokens(ctx, TokenPair{Access: "a", Refresh: "r"})
	require.Error(t, err)
	assert.False(t, s.HasAccessToken(ctx))
}

func TestStore_ReadOnlyBackend(t *testing.T) {
	t.Setenv("TS_TEST_ACCESS_TOKEN", "a")
	t.Setenv("TS_TEST_REFRESH_TOKEN", "r")

	env, err := tokenstore.NewEnvStore("TS_TEST_")
	require.NoError(t, err)
	s, err := NewStore(env)
	require.NoError(t, err)

	ctx := context.Background()
	assert.True(t, s.HasTokens(ctx))
	assert.ErrorIs(t, s.SetAccessToken(ctx, "b"), tokenstore.ErrReadOnly)
}

func TestTokenPair_NeverPrintsValues(t *testing.T) {
	pair := TokenPair{Access: "secret-access", Refresh: "secret-refresh"}

	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	logger.Info("tokens", "pair", pair)

	for _, out := range []string{buf.String(), fmt.Sprint(pair), fmt.Sprintf("%+v", pair), fmt.Sprintf("%#v", pair)} {
		assert.NotContains(t, out, "secret-access")
		assert.NotContains(t, out, "secret-refresh")
	}
	assert.Contains(t, buf.String(), redacted)
}

func TestNewStore_NilBackend(t *testing.T) {
	_, err := NewStore(nil)
	assert.Error(t, err)
}
