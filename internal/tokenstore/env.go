package tokenstore

import (
	"context"
	"fmt"
	"os"
	"strings"
)

// EnvStore provides read-only access to tokens stored in environment variables.
// The variable for a key is the prefix followed by the upper-cased key,
// e.g. TOWNSPARK_TOKEN_REFRESH_TOKEN for key "refresh_token".
type EnvStore struct {
	prefix string
	lookup func(string) (string, bool)
}

// Compile-time check to ensure EnvStore implements TokenStore
var _ TokenStore = (*EnvStore)(nil)

// NewEnvStore creates an EnvStore for variables starting with prefix.
func NewEnvStore(prefix string) (*EnvStore, error) {
	if prefix == "" {
		return nil, fmt.Errorf("environment prefix cannot be empty")
	}

	return &EnvStore{
		prefix: prefix,
		lookup: os.LookupEnv,
	}, nil
}

// Read returns the token from the environment variable for key.
func (e *EnvStore) Read(ctx context.Context, key string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	token, ok := e.lookup(e.variable(key))
	if !ok || strings.TrimSpace(token) == "" {
		return "", ErrNotFound
	}
	return strings.TrimSpace(token), nil
}

// Write is not supported for environment variables (they are read-only).
func (e *EnvStore) Write(ctx context.Context, key, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return fmt.Errorf("environment variable %s: %w", e.variable(key), ErrReadOnly)
}

// Delete is not supported for environment variables (they are read-only).
func (e *EnvStore) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return fmt.Errorf("environment variable %s: %w", e.variable(key), ErrReadOnly)
}

func (e *EnvStore) variable(key string) string {
	return e.prefix + strings.ToUpper(key)
}
