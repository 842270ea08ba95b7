package commands

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/townspark/townspark/internal/apiclient"
)

// townsparkAPI is a small in-memory TownSpark API.
type townsparkAPI struct {
	t *testing.T

	mu      sync.Mutex
	access  string
	revoked bool
	deleted []string
	created map[string]any
}

func newTownsparkAPI(t *testing.T) (*townsparkAPI, *httptest.Server) {
	t.Helper()
	access, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "1",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString([]byte("test-secret"))
	require.NoError(t, err)

	api := &townsparkAPI{t: t, access: access}
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)
	return api, srv
}

func (a *townsparkAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a.mu.Lock()
	defer a.mu.Unlock()

	body, _ := io.ReadAll(r.Body)

	switch {
	case r.URL.Path == "/auth/jwt/create/":
		var creds map[string]string
		require.NoError(a.t, json.Unmarshal(body, &creds))
		if creds["email"] != "ana@example.com" || creds["password"] != "correct-horse" {
			send(w, http.StatusUnauthorized, `{"detail":"No active account found with the given credentials"}`)
			return
		}
		send(w, http.StatusOK, `{"access":"`+a.access+`","refresh":"refresh-1"}`)
		return
	case r.URL.Path == "/auth/jwt/refresh/":
		send(w, http.StatusUnauthorized, `{"detail":"Token is blacklisted","code":"token_not_valid"}`)
		return
	case r.URL.Path == "/auth/users/" && r.Method == http.MethodPost:
		var in map[string]string
		require.NoError(a.t, json.Unmarshal(body, &in))
		send(w, http.StatusCreated, `{"id":2,"email":"`+in["email"]+`","username":"`+in["username"]+`"}`)
		return
	}

	if a.revoked || r.Header.Get("Authorization") != "Bearer "+a.access {
		send(w, http.StatusUnauthorized, `{"detail":"Given token not valid for any token type"}`)
		return
	}

	switch {
	case r.Method == http.MethodGet && r.URL.Path == "/auth/users/me/":
		send(w, http.StatusOK, `{"id":1,"email":"ana@example.com","username":"ana"}`)
	case r.Method == http.MethodGet && r.URL.Path == "/issues/":
		send(w, http.StatusOK, `{"count":2,"next":null,"results":[
			{"id":1,"title":"Pothole on Main St","status":"open","category":"pothole","upvote_count":4},
			{"id":2,"title":"Broken streetlight","status":"resolved","category":"streetlight","upvote_count":1}]}`)
	case r.Method == http.MethodGet && r.URL.Path == "/issues/1/":
		send(w, http.StatusOK, `{"id":1,"title":"Pothole on Main St","description":"Deep","status":"open","category":"pothole","latitude":52.52,"longitude":13.405,"reporter":{"id":1,"email":"ana@example.com","username":"ana"}}`)
	case r.Method == http.MethodPost && r.URL.Path == "/issues/":
		require.NoError(a.t, json.Unmarshal(body, &a.created))
		send(w, http.StatusCreated, `{"id":3,"title":"Graffiti","status":"open","category":"graffiti"}`)
	case r.Method == http.MethodPatch && r.URL.Path == "/issues/1/":
		send(w, http.StatusOK, `{"id":1,"title":"Pothole on Main St","status":"resolved","category":"pothole"}`)
	case r.Method == http.MethodPost && r.URL.Path == "/issues/1/upvote/":
		send(w, http.StatusOK, `{"id":1,"upvote_count":5}`)
	case r.Method == http.MethodDelete && r.URL.Path == "/issues/1/":
		a.deleted = append(a.deleted, "1")
		w.WriteHeader(http.StatusNoContent)
	default:
		send(w, http.StatusNotFound, `{"detail":"Not found."}`)
	}
}

func send(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, body)
}

type cliHarness struct {
	environ []string
}

func newHarness(t *testing.T, baseURL string) *cliHarness {
	t.Helper()
	return &cliHarness{environ: []string{
		"TOWNSPARK_API__BASE_URL=" + baseURL,
		"TOWNSPARK_AUTH__STORAGE=file",
		"TOWNSPARK_AUTH__FILE=" + filepath.Join(t.TempDir(), "session.json"),
		"TOWNSPARK_LOG_LEVEL=error",
	}}
}

func (h *cliHarness) run(t *testing.T, stdin string, args ...string) (stdout, stderr string, err error) {
	t.Helper()
	var out, errOut bytes.Buffer
	root := newRootCommand(func() []string { return h.environ })
	root.Writer = &out
	root.ErrWriter = &errOut
	root.Reader = strings.NewReader(stdin)

	err = root.Run(t.Context(), append([]string{"townspark"}, args...))
	return out.String(), errOut.String(), err
}

func (h *cliHarness) login(t *testing.T) {
	t.Helper()
	out, _, err := h.run(t, "correct-horse\n", "login", "--email", "ana@example.com", "--password-stdin")
	require.NoError(t, err)
	require.Contains(t, out, "Logged in as ana@example.com.")
}

func TestCLI_SessionLifecycle(t *testing.T) {
	_, srv := newTownsparkAPI(t)
	h := newHarness(t, srv.URL)

	out, _, err := h.run(t, "", "status")
	require.NoError(t, err)
	assert.Contains(t, out, "Session: anonymous")

	h.login(t)

	out, _, err = h.run(t, "", "status")
	require.NoError(t, err)
	assert.Contains(t, out, "Session: authenticated")
	assert.Contains(t, out, "Access token: valid until")

	out, _, err = h.run(t, "", "whoami")
	require.NoError(t, err)
	assert.Equal(t, "ana <ana@example.com> (id 1)\n", out)

	out, _, err = h.run(t, "", "logout")
	require.NoError(t, err)
	assert.Contains(t, out, "Logged out.")

	out, _, err = h.run(t, "", "status")
	require.NoError(t, err)
	assert.Contains(t, out, "Session: anonymous")
}

func TestCLI_LoginPromptsForEmail(t *testing.T) {
	_, srv := newTownsparkAPI(t)
	h := newHarness(t, srv.URL)

	out, stderr, err := h.run(t, "ana@example.com\ncorrect-horse\n", "login", "--password-stdin")
	require.NoError(t, err)
	assert.Contains(t, stderr, "Email: ")
	assert.Contains(t, out, "Logged in as ana@example.com.")
}

func TestCLI_LoginRejected(t *testing.T) {
	_, srv := newTownsparkAPI(t)
	h := newHarness(t, srv.URL)

	_, _, err := h.run(t, "wrong\n", "login", "--email", "ana@example.com", "--password-stdin")

	var httpErr *apiclient.HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusUnauthorized, httpErr.StatusCode)
	assert.Contains(t, err.Error(), "No active account found")
}

func TestCLI_Signup(t *testing.T) {
	_, srv := newTownsparkAPI(t)
	h := newHarness(t, srv.URL)

	out, _, err := h.run(t, "long-enough\n", "signup", "--email", "ben@example.com", "--username", "ben", "--password-stdin")
	require.NoError(t, err)
	assert.Contains(t, out, "Account ben created.")
}

func TestCLI_Issues(t *testing.T) {
	api, srv := newTownsparkAPI(t)
	h := newHarness(t, srv.URL)
	h.login(t)

	out, _, err := h.run(t, "", "issues", "list", "--status", "open")
	require.NoError(t, err)
	assert.Contains(t, out, "Pothole on Main St")
	assert.Contains(t, out, "Broken streetlight")
	assert.Contains(t, strings.ToUpper(out), "UPVOTES")

	out, _, err = h.run(t, "", "issues", "show", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "52.520000, 13.405000")
	assert.Contains(t, out, "ana")

	out, _, err = h.run(t, "", "issues", "create",
		"--title", "Graffiti", "--description", "On the bridge", "--category", "graffiti", "--lat", "52.5")
	require.NoError(t, err)
	assert.Contains(t, out, "Graffiti")
	assert.Equal(t, map[string]any{"title": "Graffiti", "description": "On the bridge", "category": "graffiti", "latitude": 52.5}, api.created)

	out, _, err = h.run(t, "", "issues", "update", "--status", "resolved", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "resolved")

	out, _, err = h.run(t, "", "issues", "upvote", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "Issue 1 now has 5 upvotes.")

	out, _, err = h.run(t, "", "issues", "delete", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "Issue 1 deleted.")
	assert.Equal(t, []string{"1"}, api.deleted)
}

func TestCLI_IssueArguments(t *testing.T) {
	_, srv := newTownsparkAPI(t)
	h := newHarness(t, srv.URL)
	h.login(t)

	_, _, err := h.run(t, "", "issues", "show")
	assert.ErrorContains(t, err, "missing issue id")

	_, _, err = h.run(t, "", "issues", "show", "abc")
	assert.ErrorContains(t, err, "invalid issue id")

	_, _, err = h.run(t, "", "issues", "update", "1")
	assert.ErrorContains(t, err, "nothing to update")
}

func TestCLI_ForcedLogout(t *testing.T) {
	api, srv := newTownsparkAPI(t)
	h := newHarness(t, srv.URL)
	h.login(t)

	api.mu.Lock()
	api.revoked = true
	api.mu.Unlock()

	_, stderr, err := h.run(t, "", "whoami")
	require.ErrorIs(t, err, apiclient.ErrAuthExpired)
	assert.Contains(t, stderr, "townspark login")

	out, _, err := h.run(t, "", "status")
	require.NoError(t, err)
	assert.Contains(t, out, "Session: anonymous")
}
