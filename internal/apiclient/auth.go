package apiclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"golang.org/x/oauth2"

	"github.com/townspark/townspark/internal/session"
)

// Auth endpoint paths, relative to the API base URL.
const (
	UsersPath       = "/auth/users/"
	CurrentUserPath = "/auth/users/me/"
)

// Login exchanges credentials for a token pair and stores it in the session.
func (c *Client) Login(ctx context.Context, creds Credentials) error {
	if err := c.validate.StructCtx(ctx, creds); err != nil {
		return fmt.Errorf("invalid credentials: %w", err)
	}
	if c.opts.loginField == "email" {
		if err := c.validate.VarCtx(ctx, creds.Email, "email"); err != nil {
			return fmt.Errorf("invalid credentials: email: %w", err)
		}
	}

	tok, err := c.opts.authenticator.Login(ctx, creds.Email, creds.Password)
	if err != nil {
		return tokenError("login", err)
	}
	if tok.AccessToken == "" || tok.RefreshToken == "" {
		return fmt.Errorf("login: incomplete token pair in response")
	}

	return c.store.StoreTokens(ctx, session.TokenPair{
		Access:  tok.AccessToken,
		Refresh: tok.RefreshToken,
	})
}

// Signup registers a new account. It does not log in.
func (c *Client) Signup(ctx context.Context, in Signup) (*User, error) {
	if err := c.validate.StructCtx(ctx, in); err != nil {
		return nil, fmt.Errorf("invalid signup: %w", err)
	}

	var user User
	// Registration must not carry (possibly stale) credentials of a previous session.
	if err := c.Do(anonymous(ctx), http.MethodPost, UsersPath, nil, in, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// CurrentUser returns the account of the session.
func (c *Client) CurrentUser(ctx context.Context) (*User, error) {
	var user User
	if err := c.Do(ctx, http.MethodGet, CurrentUserPath, nil, nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// Logout ends the session by clearing the stored tokens.
func (c *Client) Logout(ctx context.Context) error {
	return c.store.ClearTokens(ctx)
}

// tokenError maps an Authenticator failure onto the client's error taxonomy.
func tokenError(op string, err error) error {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) && re.Response != nil {
		return &HTTPError{StatusCode: re.Response.StatusCode, Header: re.Response.Header, Body: re.Body}
	}
	var ue *url.Error
	if errors.As(err, &ue) {
		return &NetworkError{Err: err}
	}
	return fmt.Errorf("%s: %w", op, err)
}
