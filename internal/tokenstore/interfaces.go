package tokenstore

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned by Read when no value is stored under the key.
	ErrNotFound = errors.New("token not found")

	// ErrReadOnly is returned by Write and Delete on backends that cannot be modified.
	ErrReadOnly = errors.New("token storage is read-only")

	// ErrExchangeClosed is returned by request-scoped backends written after their
	// response has been sent.
	ErrExchangeClosed = errors.New("token storage exchange already closed")
)

// TokenStore reads and writes tokens to persistent storage.
type TokenStore interface {
	// Read returns the value stored under key. Returns ErrNotFound if the key is
	// missing or empty.
	Read(ctx context.Context, key string) (string, error)

	// Write persists the value under key, overwriting any existing value. Returns
	// error if the storage backend is read-only or unavailable.
	Write(ctx context.Context, key, value string) error

	// Delete removes the value stored under key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}
