package tokensource

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"
)

// ErrRejected is returned when a token endpoint answers with a non-2xx status.
var ErrRejected = errors.New("token request rejected")

// Option configures an Authenticator.
type Option func(*config)

// config holds configuration for New.
type config struct {
	baseTransport http.RoundTripper
	timeout       time.Duration
	loginField    string
}

// WithTransport sets a custom base transport for token requests.
// If not provided, http.DefaultTransport is used.
func WithTransport(transport http.RoundTripper) Option {
	return func(c *config) {
		c.baseTransport = transport
	}
}

// WithTimeout bounds every token request. Defaults to 30 seconds.
func WithTimeout(timeout time.Duration) Option {
	return func(c *config) {
		c.timeout = timeout
	}
}

// WithLoginField sets the JSON field the user identifier is sent in (e.g. "username").
func WithLoginField(field string) Option {
	return func(c *config) {
		c.loginField = field
	}
}

// Authenticator obtains and renews token pairs from the API's JWT endpoints.
type Authenticator struct {
	login      *oauth2.Config
	refresh    *oauth2.Config
	httpClient *http.Client
}

// New creates an Authenticator for the API at baseURL.
func New(baseURL string, opts ...Option) (*Authenticator, error) {
	base, err := url.Parse(baseURL)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid API base URL %q", baseURL)
	}

	cfg := &config{
		baseTransport: http.DefaultTransport,
		timeout:       30 * time.Second,
		loginField:    DefaultLoginField,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	endpoint := func(path string) oauth2.Endpoint {
		return oauth2.Endpoint{
			TokenURL:  base.JoinPath(path).String(),
			AuthStyle: oauth2.AuthStyleInParams,
		}
	}

	return &Authenticator{
		// Public client: no client id or secret is sent.
		login:   &oauth2.Config{Endpoint: endpoint(LoginPath)},
		refresh: &oauth2.Config{Endpoint: endpoint(RefreshPath)},
		httpClient: &http.Client{
			Timeout: cfg.timeout,
			Transport: &jwtTransport{
				base:       cfg.baseTransport,
				loginField: cfg.loginField,
			},
		},
	}, nil
}

// Login exchanges credentials for a token pair.
func (a *Authenticator) Login(ctx context.Context, identifier, password string) (*oauth2.Token, error) {
	// oauth2 picks up the HTTP client from the context (oauth2.HTTPClient key).
	ctx = context.WithValue(ctx, oauth2.HTTPClient, a.httpClient)

	tok, err := a.login.PasswordCredentialsToken(ctx, identifier, password)
	if err != nil {
		return nil, wrapError("login", err)
	}
	return tok, nil
}

// Refresh exchanges a refresh token for a new access token. The returned token keeps
// refreshToken unless the server rotated it.
func (a *Authenticator) Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	if refreshToken == "" {
		return nil, fmt.Errorf("refresh: missing refresh token")
	}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, a.httpClient)

	// An empty access token forces the token source to refresh immediately.
	tok, err := a.refresh.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		return nil, wrapError("refresh", err)
	}
	return tok, nil
}

// Expiry returns the expiry recorded in an access token's exp claim. The signature is
// not verified; the value is informational only.
func Expiry(accessToken string) (time.Time, bool) {
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(accessToken, &claims); err != nil {
		return time.Time{}, false
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, false
	}
	return claims.ExpiresAt.Time, true
}

func wrapError(op string, err error) error {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		return fmt.Errorf("%s: %w: %w", op, ErrRejected, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// jwtTransport converts oauth2's form-encoded token requests into the JSON bodies of
// the JWT endpoints, and successful JWT responses into oauth2 token responses.
// The oauth2 package guarantees this transport only receives token endpoint requests.
type jwtTransport struct {
	base       http.RoundTripper
	loginField string
}

// Compile-time check that jwtTransport implements http.RoundTripper.
var _ http.RoundTripper = (*jwtTransport)(nil)

// RoundTrip rewrites the request body, forwards it and rewrites a successful response.
func (t *jwtTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	// We consume the body entirely and create a new body for the cloned request.
	defer func() { _ = req.Body.Close() }()
	body, err := io.ReadAll(req.Body)
	if err != nil {
		return nil, fmt.Errorf("reading request body: %w", err)
	}

	formData, err := url.ParseQuery(string(body))
	if err != nil {
		return nil, fmt.Errorf("parsing form data: %w", err)
	}

	var payload map[string]string
	switch grant := formData.Get("grant_type"); grant {
	case "password":
		payload = map[string]string{
			t.loginField: formData.Get("username"),
			"password":   formData.Get("password"),
		}
	case "refresh_token":
		payload = map[string]string{"refresh": formData.Get("refresh_token")}
	default:
		return nil, fmt.Errorf("unsupported grant type %q", grant)
	}

	jsonBody, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshaling JSON request: %w", err)
	}

	newReq := req.Clone(req.Context())
	newReq.Body = io.NopCloser(bytes.NewReader(jsonBody))
	newReq.ContentLength = int64(len(jsonBody))
	newReq.Header.Set("Content-Type", "application/json")
	newReq.Header.Set("Accept", "application/json")

	resp, err := t.base.RoundTrip(newReq)
	if err != nil {
		return nil, err
	}
	// Failures pass through untouched; oauth2 turns them into a RetrieveError.
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return resp, nil
	}

	return convertResponse(resp)
}

// jwtResponse is the body of a successful create or refresh call.
type jwtResponse struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh,omitempty"`
}

// oauth2Response is the token response shape oauth2 expects.
type oauth2Response struct {
	AccessToken  string `json:"access_token,omitempty"`
	TokenType    string `json:"token_type,omitempty"`
	RefreshToken string `json:"refresh_token,omitempty"`
	ExpiresIn    int64  `json:"expires_in,omitempty"`
}

func convertResponse(resp *http.Response) (*http.Response, error) {
	original := resp.Body
	defer func() { _ = original.Close() }()
	body, err := io.ReadAll(io.LimitReader(original, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("reading token response: %w", err)
	}

	var in jwtResponse
	if err := json.Unmarshal(body, &in); err != nil {
		return nil, fmt.Errorf("parsing token response: %w", err)
	}

	out := oauth2Response{
		AccessToken:  in.Access,
		TokenType:    "Bearer",
		RefreshToken: in.Refresh,
	}
	if exp, ok := Expiry(in.Access); ok {
		if secs := int64(time.Until(exp) / time.Second); secs > 0 {
			out.ExpiresIn = secs
		}
	}

	converted, err := json.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("marshaling token response: %w", err)
	}

	resp.Body = io.NopCloser(bytes.NewReader(converted))
	resp.ContentLength = int64(len(converted))
	resp.Header = resp.Header.Clone()
	if resp.Header == nil {
		resp.Header = make(http.Header)
	}
	resp.Header.Set("Content-Type", "application/json")
	resp.Header.Set("Content-Length", strconv.Itoa(len(converted)))
	resp.Header.Del("Content-Encoding")
	resp.TransferEncoding = nil
	return resp, nil
}
