package tokenstore

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"
)

// DefaultCookiePrefix is prepended to every key to form the cookie name.
const DefaultCookiePrefix = "townspark_"

// CookieOption configures a CookieStore.
type CookieOption func(*CookieStore)

// WithCookiePrefix overrides DefaultCookiePrefix.
func WithCookiePrefix(prefix string) CookieOption {
	return func(c *CookieStore) {
		c.prefix = prefix
	}
}

// WithCookieMaxAge sets the lifetime of cookies written for key.
// Keys without a max age produce session cookies.
func WithCookieMaxAge(key string, maxAge time.Duration) CookieOption {
	return func(c *CookieStore) {
		c.maxAge[key] = maxAge
	}
}

// CookieStore keeps tokens in cookies of a single HTTP exchange. Reads come from the
// inbound request, writes become Set-Cookie headers on the response.
//
// Every cookie is HttpOnly, Secure, SameSite=Strict and scoped to "/", so it is never
// readable by page scripts and only sent back over HTTPS to this origin.
//
// Writes are buffered and become Set-Cookie headers on Commit, which happens at the
// latest when the response header is written through ResponseWriter. Writes after
// Commit fail with ErrExchangeClosed.
type CookieStore struct {
	w      http.ResponseWriter
	r      *http.Request
	prefix string
	maxAge map[string]time.Duration

	mu sync.Mutex
	// pending holds values written during this exchange; an empty string marks a deletion.
	pending   map[string]string
	out       []*http.Cookie
	committed bool
}

// Compile-time check to ensure CookieStore implements TokenStore
var _ TokenStore = (*CookieStore)(nil)

// NewCookieStore creates a CookieStore bound to one request/response pair.
func NewCookieStore(w http.ResponseWriter, r *http.Request, opts ...CookieOption) (*CookieStore, error) {
	if w == nil || r == nil {
		return nil, fmt.Errorf("cookie store requires a request and a response writer")
	}

	c := &CookieStore{
		w:       w,
		r:       r,
		prefix:  DefaultCookiePrefix,
		maxAge:  make(map[string]time.Duration),
		pending: make(map[string]string),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Read returns the value written earlier in this exchange, or the inbound cookie.
func (c *CookieStore) Read(ctx context.Context, key string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if v, ok := c.pending[key]; ok {
		if v == "" {
			return "", ErrNotFound
		}
		return v, nil
	}

	cookie, err := c.r.Cookie(c.prefix + key)
	if err != nil || cookie.Value == "" {
		return "", ErrNotFound
	}
	return cookie.Value, nil
}

// Write queues a cookie for key on the response.
func (c *CookieStore) Write(ctx context.Context, key, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	cookie := c.cookie(key, value)
	if maxAge, ok := c.maxAge[key]; ok && maxAge > 0 {
		cookie.MaxAge = int(maxAge / time.Second)
		cookie.Expires = time.Now().Add(maxAge)
	}
	if err := cookie.Valid(); err != nil {
		return fmt.Errorf("invalid cookie %s: %w", cookie.Name, err)
	}

	return c.queue(key, value, cookie)
}

// Delete queues an expiring cookie for key.
func (c *CookieStore) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	cookie := c.cookie(key, "")
	cookie.MaxAge = -1
	cookie.Expires = time.Unix(0, 0)

	return c.queue(key, "", cookie)
}

func (c *CookieStore) queue(key, value string, cookie *http.Cookie) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.committed {
		return ErrExchangeClosed
	}
	c.pending[key] = value
	c.out = append(c.out, cookie)
	return nil
}

// Commit adds the buffered cookies to the response header and closes the store for
// writes. It must run on the goroutine serving the exchange. Repeated calls are no-ops.
func (c *CookieStore) Commit() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.committed {
		return
	}
	c.committed = true
	for _, cookie := range c.out {
		http.SetCookie(c.w, cookie)
	}
	c.out = nil
}

// ResponseWriter wraps the exchange's writer so the buffered cookies are committed
// right before the response header goes out.
func (c *CookieStore) ResponseWriter() http.ResponseWriter {
	return &cookieWriter{ResponseWriter: c.w, store: c}
}

type cookieWriter struct {
	http.ResponseWriter
	store *CookieStore
}

func (w *cookieWriter) WriteHeader(code int) {
	w.store.Commit()
	w.ResponseWriter.WriteHeader(code)
}

func (w *cookieWriter) Write(b []byte) (int, error) {
	w.store.Commit()
	return w.ResponseWriter.Write(b)
}

// Unwrap exposes the underlying writer to http.ResponseController.
func (w *cookieWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

func (c *CookieStore) cookie(key, value string) *http.Cookie {
	return &http.Cookie{
		Name:     c.prefix + key,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteStrictMode,
	}
}
