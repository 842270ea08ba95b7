package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"github.com/townspark/townspark/internal/session"
	"github.com/townspark/townspark/internal/tokensource"
)

// Default client settings.
const (
	DefaultTimeout        = 30 * time.Second
	DefaultRefreshTimeout = 15 * time.Second
	DefaultUserAgent      = "townspark-client"

	// maxResponseSize bounds how much of a response body is read into memory.
	maxResponseSize = 10 << 20
)

// Authenticator performs the login and refresh exchanges. Rejections by the token
// endpoints must be reported wrapped with tokensource.ErrRejected.
type Authenticator interface {
	Login(ctx context.Context, identifier, password string) (*oauth2.Token, error)
	Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error)
}

// Compile-time check that the JWT authenticator satisfies Authenticator.
var _ Authenticator = (*tokensource.Authenticator)(nil)

// Option configures a Client.
type Option func(*options)

type options struct {
	transport      http.RoundTripper
	timeout        time.Duration
	refreshTimeout time.Duration
	authenticator  Authenticator
	onAuthExpired  func(context.Context)
	metrics        *Metrics
	userAgent      string
	loginField     string
}

// WithTransport sets the base transport for API and token requests.
// If not provided, http.DefaultTransport is used.
func WithTransport(transport http.RoundTripper) Option {
	return func(o *options) {
		o.transport = transport
	}
}

// WithTimeout bounds every API call including its refresh and retry.
func WithTimeout(timeout time.Duration) Option {
	return func(o *options) {
		o.timeout = timeout
	}
}

// WithRefreshTimeout bounds each refresh exchange.
func WithRefreshTimeout(timeout time.Duration) Option {
	return func(o *options) {
		o.refreshTimeout = timeout
	}
}

// WithAuthenticator replaces the JWT authenticator built from the base URL.
func WithAuthenticator(a Authenticator) Option {
	return func(o *options) {
		o.authenticator = a
	}
}

// WithAuthExpiredHandler registers a callback run after a rejected refresh has cleared
// the session. It is how the caller routes the user back to login.
func WithAuthExpiredHandler(fn func(context.Context)) Option {
	return func(o *options) {
		o.onAuthExpired = fn
	}
}

// WithMetrics records call and refresh counters.
func WithMetrics(m *Metrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}

// WithUserAgent sets the User-Agent of outbound calls.
func WithUserAgent(ua string) Option {
	return func(o *options) {
		o.userAgent = ua
	}
}

// WithLoginField sets the JSON field the login identifier is sent in.
func WithLoginField(field string) Option {
	return func(o *options) {
		o.loginField = field
	}
}

// Client performs calls against the TownSpark API on behalf of one session.
type Client struct {
	baseURL    *url.URL
	opts       *options
	refreshes  *refreshGroup
	store      *session.Store
	httpClient *http.Client
	validate   *validator.Validate
}

// New creates a Client for the API at baseURL whose session lives in store.
func New(baseURL string, store *session.Store, opts ...Option) (*Client, error) {
	base, err := url.Parse(baseURL)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid API base URL %q", baseURL)
	}
	if store == nil {
		return nil, fmt.Errorf("missing session store")
	}

	o := &options{
		transport:      http.DefaultTransport,
		timeout:        DefaultTimeout,
		refreshTimeout: DefaultRefreshTimeout,
		userAgent:      DefaultUserAgent,
		loginField:     tokensource.DefaultLoginField,
	}
	for _, opt := range opts {
		opt(o)
	}

	if o.authenticator == nil {
		auth, err := tokensource.New(baseURL,
			tokensource.WithTransport(o.transport),
			tokensource.WithTimeout(o.refreshTimeout),
			tokensource.WithLoginField(o.loginField),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create authenticator: %w", err)
		}
		o.authenticator = auth
	}

	c := &Client{
		baseURL: base,
		opts:    o,
		refreshes: &refreshGroup{
			authenticator: o.authenticator,
			timeout:       o.refreshTimeout,
			metrics:       o.metrics,
		},
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
	return c.bind(store), nil
}

// WithStore returns a client for another session. It shares the parent's transport,
// options and refresh coalescing.
func (c *Client) WithStore(store *session.Store) *Client {
	return c.bind(store)
}

// Session returns the session store the client is bound to.
func (c *Client) Session() *session.Store {
	return c.store
}

func (c *Client) bind(store *session.Store) *Client {
	return &Client{
		baseURL:   c.baseURL,
		opts:      c.opts,
		refreshes: c.refreshes,
		store:     store,
		validate:  c.validate,
		httpClient: &http.Client{
			Timeout: c.opts.timeout,
			Transport: &authTransport{
				base:          c.opts.transport,
				origin:        c.baseURL,
				store:         store,
				refreshes:     c.refreshes,
				onAuthExpired: c.opts.onAuthExpired,
			},
		},
	}
}

// Response is a successful API response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Do sends in as the JSON body of a call to path and decodes the response into out.
// Either may be nil.
func (c *Client) Do(ctx context.Context, method, path string, query url.Values, in, out any) error {
	var body []byte
	if in != nil {
		var err error
		body, err = json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
	}

	resp, err := c.Forward(ctx, method, path, query, body)
	if err != nil {
		return err
	}

	if out == nil || len(bytes.TrimSpace(resp.Body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.Body, out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

// Forward sends a raw JSON body to path and returns the response verbatim. Non-2xx
// responses are returned as *HTTPError.
func (c *Client) Forward(ctx context.Context, method, path string, query url.Values, body []byte) (*Response, error) {
	req, err := c.newRequest(ctx, method, path, query, body)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.opts.metrics.request(method, 0)
		return nil, classify(err)
	}
	defer func() { _ = resp.Body.Close() }()

	c.opts.metrics.request(method, resp.StatusCode)

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, &NetworkError{Err: fmt.Errorf("reading response: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &HTTPError{StatusCode: resp.StatusCode, Header: resp.Header, Body: data}
	}

	return &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: data}, nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, query url.Values, body []byte) (*http.Request, error) {
	u := c.baseURL.JoinPath(path)
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}

	var r io.Reader
	if body != nil {
		r = bytes.NewReader(body)
	}
	// bytes.Reader bodies get GetBody set, which makes the call replayable.
	req, err := http.NewRequestWithContext(ctx, method, u.String(), r)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("User-Agent", c.opts.userAgent)

	id := RequestIDFromContext(ctx)
	if id == "" {
		id = uuid.NewString()
	}
	req.Header.Set("X-Request-ID", id)

	return req, nil
}

// classify maps an http.Client error onto the client's error taxonomy.
func classify(err error) error {
	if errors.Is(err, ErrAuthExpired) {
		return ErrAuthExpired
	}
	var se *storeError
	if errors.As(err, &se) {
		return se
	}
	return &NetworkError{Err: err}
}

// ContextWithRequestID attaches the id sent as X-Request-ID on outbound calls.
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFromContext returns the id set by ContextWithRequestID, if any.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}
