package apiclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"

	"github.com/townspark/townspark/internal/session"
	"github.com/townspark/townspark/internal/tokensource"
)

type ctxKey int

const (
	retriedKey ctxKey = iota
	anonymousKey
	requestIDKey
)

// markRetried records on the call's context that its refresh-and-retry was used.
func markRetried(ctx context.Context) context.Context {
	return context.WithValue(ctx, retriedKey, true)
}

func isRetried(ctx context.Context) bool {
	retried, _ := ctx.Value(retriedKey).(bool)
	return retried
}

// anonymous marks a call that must go out without credentials (signup).
func anonymous(ctx context.Context) context.Context {
	return context.WithValue(ctx, anonymousKey, true)
}

func isAnonymous(ctx context.Context) bool {
	anon, _ := ctx.Value(anonymousKey).(bool)
	return anon
}

// refreshGroup coalesces concurrent refreshes of the same refresh token. It is shared
// by every client derived from the same parent.
type refreshGroup struct {
	flight        singleflight.Group
	authenticator Authenticator
	timeout       time.Duration
	metrics       *Metrics
}

// refresh exchanges refreshToken once for all concurrent callers. The exchange runs
// detached from the caller's cancellation; a caller that gives up stops waiting but
// does not abort the exchange for the others. If it gives up, late receives the
// token once the exchange succeeds.
func (g *refreshGroup) refresh(ctx context.Context, refreshToken string, late func(context.Context, *oauth2.Token)) (*oauth2.Token, error) {
	ch := g.flight.DoChan(refreshToken, func() (any, error) {
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), g.timeout)
		defer cancel()

		tok, err := g.authenticator.Refresh(rctx, refreshToken)
		switch {
		case err == nil:
			g.metrics.refresh("success")
		case errors.Is(err, tokensource.ErrRejected):
			g.metrics.refresh("rejected")
		default:
			g.metrics.refresh("error")
		}
		return tok, err
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*oauth2.Token), nil
	case <-ctx.Done():
		if late != nil {
			lctx := context.WithoutCancel(ctx)
			go func() {
				if res := <-ch; res.Err == nil {
					late(lctx, res.Val.(*oauth2.Token))
				}
			}()
		}
		return nil, ctx.Err()
	}
}

// authTransport attaches bearer credentials from a session store and renews the
// session once when the API rejects them.
type authTransport struct {
	base          http.RoundTripper
	// origin is the API base URL; credentials are never sent anywhere else.
	origin        *url.URL
	store         *session.Store
	refreshes     *refreshGroup
	onAuthExpired func(context.Context)
}

// Compile-time check that authTransport implements http.RoundTripper.
var _ http.RoundTripper = (*authTransport)(nil)

// RoundTrip implements the attach, send, refresh-once and retry-once cycle.
func (t *authTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()

	if isAnonymous(ctx) || !t.sameOrigin(req.URL) {
		return t.base.RoundTrip(req)
	}

	// Clone request for modification
	out := req.Clone(ctx)
	access, err := t.store.AccessToken(ctx)
	switch {
	case err == nil:
		out.Header.Set("Authorization", "Bearer "+access)
	case !errors.Is(err, session.ErrNotFound):
		closeBody(req)
		return nil, &storeError{err: err}
	}

	resp, err := t.base.RoundTrip(out)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusUnauthorized || isRetried(ctx) {
		return resp, nil
	}

	refreshToken, err := t.store.RefreshToken(ctx)
	if errors.Is(err, session.ErrNotFound) {
		return resp, nil
	}
	if err != nil {
		drain(resp)
		return nil, &storeError{err: err}
	}
	// A body that cannot be rebuilt cannot be resent.
	if req.Body != nil && req.Body != http.NoBody && req.GetBody == nil {
		return resp, nil
	}
	drain(resp)

	ctx = markRetried(ctx)
	tok, err := t.refreshes.refresh(ctx, refreshToken, func(ctx context.Context, tok *oauth2.Token) {
		t.persistLate(ctx, refreshToken, tok)
	})
	if err != nil {
		if errors.Is(err, tokensource.ErrRejected) {
			t.expire(ctx)
			return nil, ErrAuthExpired
		}
		return nil, fmt.Errorf("refreshing session: %w", err)
	}

	if err := t.persist(context.WithoutCancel(ctx), refreshToken, tok); err != nil {
		return nil, &storeError{err: err}
	}

	retry := req.Clone(ctx)
	if req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, fmt.Errorf("rebuilding request body: %w", err)
		}
		retry.Body = body
	}
	retry.Header.Set("Authorization", "Bearer "+tok.AccessToken)

	return t.base.RoundTrip(retry)
}

// persist stores a renewed access token, and the refresh token if it was rotated.
func (t *authTransport) persist(ctx context.Context, used string, tok *oauth2.Token) error {
	if err := t.store.SetAccessToken(ctx, tok.AccessToken); err != nil {
		return err
	}
	if tok.RefreshToken != "" && tok.RefreshToken != used {
		if err := t.store.SetRefreshToken(ctx, tok.RefreshToken); err != nil {
			// The new access token is usable; the next renewal will fail instead.
			slog.ErrorContext(ctx, "failed to persist rotated refresh token", "error", err)
		}
	}
	return nil
}

// persistLate stores the result of a refresh nobody waited for. A session that moved
// on meanwhile (logout, new login) is left alone.
func (t *authTransport) persistLate(ctx context.Context, used string, tok *oauth2.Token) {
	current, err := t.store.RefreshToken(ctx)
	if err != nil || current != used {
		return
	}
	if err := t.persist(ctx, used, tok); err != nil {
		slog.WarnContext(ctx, "failed to persist late token refresh", "error", err)
	}
}

// sameOrigin reports whether u addresses the API's scheme, host and port.
func (t *authTransport) sameOrigin(u *url.URL) bool {
	return strings.EqualFold(u.Scheme, t.origin.Scheme) &&
		strings.EqualFold(u.Hostname(), t.origin.Hostname()) &&
		port(u) == port(t.origin)
}

func port(u *url.URL) string {
	if p := u.Port(); p != "" {
		return p
	}
	switch strings.ToLower(u.Scheme) {
	case "https":
		return "443"
	case "http":
		return "80"
	}
	return ""
}

// expire ends the session after a rejected refresh.
func (t *authTransport) expire(ctx context.Context) {
	ctx = context.WithoutCancel(ctx)
	if err := t.store.ClearTokens(ctx); err != nil {
		slog.ErrorContext(ctx, "failed to clear tokens after rejected refresh", "error", err)
	}
	t.refreshes.metrics.forcedLogout()
	slog.InfoContext(ctx, "session expired, re-authentication required")

	if t.onAuthExpired != nil {
		t.onAuthExpired(ctx)
	}
}

// drain discards and closes a response that is not handed to the caller, so the
// connection can be reused.
func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	_ = resp.Body.Close()
}

func closeBody(req *http.Request) {
	if req.Body != nil {
		_ = req.Body.Close()
	}
}
