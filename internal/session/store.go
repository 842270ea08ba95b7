// Package session owns the token pair of a user session and derives the session
// state from it. Storage is delegated to a tokenstore.TokenStore backend.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/townspark/townspark/internal/tokenstore"
)

// Keys under which the token pair is stored in the backend.
const (
	AccessTokenKey  = "access_token"
	RefreshTokenKey = "refresh_token"
)

// ErrNotFound is returned when the requested token is not stored.
var ErrNotFound = tokenstore.ErrNotFound

// redacted replaces token values wherever a TokenPair would otherwise be printed.
const redacted = "[REDACTED_TOKEN]"

// TokenPair is an access token together with the refresh token that renews it.
type TokenPair struct {
	Access  string
	Refresh string
}

// String implements fmt.Stringer without exposing token values.
func (p TokenPair) String() string {
	return fmt.Sprintf("TokenPair{Access: %s, Refresh: %s}", mask(p.Access), mask(p.Refresh))
}

// GoString implements fmt.GoStringer for %#v.
func (p TokenPair) GoString() string {
	return p.String()
}

// LogValue implements slog.LogValuer without exposing token values.
func (p TokenPair) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("access", mask(p.Access)),
		slog.String("refresh", mask(p.Refresh)),
	)
}

func mask(token string) string {
	if token == "" {
		return ""
	}
	return redacted
}

// State is the authentication state derived from the stored tokens.
type State int

const (
	Anonymous State = iota
	Authenticated
)

func (s State) String() string {
	if s == Authenticated {
		return "authenticated"
	}
	return "anonymous"
}

// MarshalText lets State be used directly in JSON payloads.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Store persists the token pair of one session.
type Store struct {
	backend tokenstore.TokenStore
}

// NewStore creates a Store on top of the given backend.
func NewStore(backend tokenstore.TokenStore) (*Store, error) {
	if backend == nil {
		return nil, fmt.Errorf("missing token store backend")
	}
	return &Store{backend: backend}, nil
}

// SetAccessToken stores the access token.
func (s *Store) SetAccessToken(ctx context.Context, token string) error {
	return s.set(ctx, AccessTokenKey, token)
}

// SetRefreshToken stores the refresh token.
func (s *Store) SetRefreshToken(ctx context.Context, token string) error {
	return s.set(ctx, RefreshTokenKey, token)
}

// AccessToken returns the stored access token or ErrNotFound.
func (s *Store) AccessToken(ctx context.Context) (string, error) {
	return s.backend.Read(ctx, AccessTokenKey)
}

// RefreshToken returns the stored refresh token or ErrNotFound.
func (s *Store) RefreshToken(ctx context.Context) (string, error) {
	return s.backend.Read(ctx, RefreshTokenKey)
}

// StoreTokens stores both tokens of a successful login or refresh. Both values are
// written before it returns; if the refresh token cannot be written the access token
// is removed again so no half-written pair remains.
func (s *Store) StoreTokens(ctx context.Context, pair TokenPair) error {
	if pair.Access == "" || pair.Refresh == "" {
		return fmt.Errorf("incomplete token pair")
	}

	if err := s.SetAccessToken(ctx, pair.Access); err != nil {
		return err
	}
	if err := s.SetRefreshToken(ctx, pair.Refresh); err != nil {
		if delErr := s.backend.Delete(context.WithoutCancel(ctx), AccessTokenKey); delErr != nil {
			return errors.Join(err, fmt.Errorf("rolling back access token: %w", delErr))
		}
		return err
	}
	return nil
}

// ClearTokens removes both tokens. Missing tokens are not an error.
func (s *Store) ClearTokens(ctx context.Context) error {
	return errors.Join(
		s.del(ctx, AccessTokenKey),
		s.del(ctx, RefreshTokenKey),
	)
}

// DeleteAccessToken removes the access token. A missing token is not an error.
func (s *Store) DeleteAccessToken(ctx context.Context) error {
	return s.del(ctx, AccessTokenKey)
}

// HasAccessToken reports whether an access token is stored.
func (s *Store) HasAccessToken(ctx context.Context) bool {
	return s.has(ctx, AccessTokenKey)
}

// HasRefreshToken reports whether a refresh token is stored.
func (s *Store) HasRefreshToken(ctx context.Context) bool {
	return s.has(ctx, RefreshTokenKey)
}

// HasTokens reports whether both tokens are stored. A read that fails, including one
// on a cancelled context, counts as absent, so false is not proof of a logout; use
// AccessToken or RefreshToken to tell a missing token from an unreadable one.
func (s *Store) HasTokens(ctx context.Context) bool {
	return s.HasAccessToken(ctx) && s.HasRefreshToken(ctx)
}

// State derives the session state from the stored tokens. Like HasTokens, it reports
// Anonymous when the backend cannot be read.
func (s *Store) State(ctx context.Context) State {
	if s.HasTokens(ctx) {
		return Authenticated
	}
	return Anonymous
}

func (s *Store) set(ctx context.Context, key, token string) error {
	if token == "" {
		return fmt.Errorf("refusing to store empty %s", key)
	}
	if err := s.backend.Write(ctx, key, token); err != nil {
		return fmt.Errorf("storing %s: %w", key, err)
	}
	return nil
}

func (s *Store) del(ctx context.Context, key string) error {
	if err := s.backend.Delete(ctx, key); err != nil {
		return fmt.Errorf("deleting %s: %w", key, err)
	}
	return nil
}

// has treats backend failures as absence; they are logged without the key's value.
func (s *Store) has(ctx context.Context, key string) bool {
	_, err := s.backend.Read(ctx, key)
	if err != nil && !errors.Is(err, tokenstore.ErrNotFound) {
		slog.WarnContext(ctx, "token store read failed", "key", key, "error", err)
	}
	return err == nil
}
