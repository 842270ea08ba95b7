package apiclient_test

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/townspark/townspark/internal/apiclient"
	"github.com/townspark/townspark/internal/session"
	"github.com/townspark/townspark/internal/tokenstore"
)

// fakeAPI emulates the TownSpark API: JWT endpoints plus a few protected resources.
type fakeAPI struct {
	t *testing.T

	mu sync.Mutex
	// loginAccess is issued by the login endpoint.
	loginAccess string
	// validAccess is the only access token protected endpoints accept.
	validAccess string
	// validRefresh is the only refresh token the refresh endpoint accepts.
	validRefresh string
	// refreshedAccess is issued by the refresh endpoint.
	refreshedAccess string
	// rotatedRefresh, when set, is issued alongside refreshedAccess.
	rotatedRefresh string
	// alwaysUnauthorized rejects every protected call.
	alwaysUnauthorized bool
	// refreshGate, when set, blocks refresh calls until closed.
	refreshGate chan struct{}

	authHeaders    []string
	requestIDs     []string
	bodies         []string
	refreshCalls   atomic.Int32
	protectedCalls atomic.Int32
	rejectedCalls  atomic.Int32
}

func newFakeAPI(t *testing.T) (*fakeAPI, *httptest.Server) {
	t.Helper()
	api := &fakeAPI{
		t:               t,
		loginAccess:     "access-1",
		validAccess:     "access-1",
		validRefresh:    "refresh-1",
		refreshedAccess: "access-2",
	}
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)
	return api, srv
}

func (a *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.Method == http.MethodPost && r.URL.Path == "/auth/jwt/create/":
		a.login(w, r)
	case r.Method == http.MethodPost && r.URL.Path == "/auth/jwt/refresh/":
		a.refresh(w, r)
	case r.Method == http.MethodPost && r.URL.Path == "/auth/users/":
		a.signup(w, r)
	default:
		a.protected(w, r)
	}
}

func (a *fakeAPI) login(w http.ResponseWriter, r *http.Request) {
	var body map[string]string
	require.NoError(a.t, json.NewDecoder(r.Body).Decode(&body))
	if body["password"] != "correct-horse" {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "No active account found with the given credentials"})
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]string{"access": a.loginAccess, "refresh": a.validRefresh})
}

func (a *fakeAPI) refresh(w http.ResponseWriter, r *http.Request) {
	a.refreshCalls.Add(1)

	a.mu.Lock()
	gate := a.refreshGate
	a.mu.Unlock()
	if gate != nil {
		<-gate
	}

	var body map[string]string
	require.NoError(a.t, json.NewDecoder(r.Body).Decode(&body))

	a.mu.Lock()
	defer a.mu.Unlock()
	if body["refresh"] != a.validRefresh {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "Token is invalid or expired", "code": "token_not_valid"})
		return
	}

	a.validAccess = a.refreshedAccess
	resp := map[string]string{"access": a.refreshedAccess}
	if a.rotatedRefresh != "" {
		resp["refresh"] = a.rotatedRefresh
		a.validRefresh = a.rotatedRefresh
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *fakeAPI) signup(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("Authorization") != "" {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "Given token not valid for any token type"})
		return
	}
	var body map[string]string
	require.NoError(a.t, json.NewDecoder(r.Body).Decode(&body))
	writeJSON(w, http.StatusCreated, map[string]any{"id": 7, "email": body["email"], "username": body["username"]})
}

func (a *fakeAPI) protected(w http.ResponseWriter, r *http.Request) {
	a.protectedCalls.Add(1)

	raw, err := io.ReadAll(r.Body)
	require.NoError(a.t, err)
	body := string(raw)

	a.mu.Lock()
	auth := r.Header.Get("Authorization")
	a.authHeaders = append(a.authHeaders, auth)
	a.requestIDs = append(a.requestIDs, r.Header.Get("X-Request-ID"))
	a.bodies = append(a.bodies, body)
	ok := !a.alwaysUnauthorized && auth == "Bearer "+a.validAccess
	a.mu.Unlock()

	if !ok {
		a.rejectedCalls.Add(1)
		writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "Given token not valid for any token type", "code": "token_not_valid"})
		return
	}

	switch {
	case r.Method == http.MethodGet && r.URL.Path == "/auth/users/me/":
		writeJSON(w, http.StatusOK, map[string]any{"id": 1, "email": "ana@example.com", "username": "ana"})
	case r.Method == http.MethodGet && r.URL.Path == "/issues/":
		if r.URL.Query().Get("mine") == "true" {
			writeJSON(w, http.StatusOK, []map[string]any{{"id": 3, "title": "Broken streetlight", "status": "open"}})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"count": 2,
			"next":  nil,
			"results": []map[string]any{
				{"id": 1, "title": "Pothole on Main St", "category": "pothole", "status": "open"},
				{"id": 2, "title": "Graffiti on bridge", "category": "graffiti", "status": "resolved"},
			},
		})
	case r.Method == http.MethodPost && r.URL.Path == "/issues/":
		var in map[string]any
		require.NoError(a.t, json.Unmarshal(raw, &in))
		in["id"] = 10
		in["status"] = "open"
		writeJSON(w, http.StatusCreated, in)
	case r.Method == http.MethodPatch && r.URL.Path == "/issues/1/":
		writeJSON(w, http.StatusOK, map[string]any{"id": 1, "title": "Pothole on Main St", "status": "in_progress"})
	case r.Method == http.MethodDelete && r.URL.Path == "/issues/1/":
		w.WriteHeader(http.StatusNoContent)
	case r.Method == http.MethodPost && r.URL.Path == "/issues/1/upvote/":
		writeJSON(w, http.StatusOK, map[string]any{"id": 1, "upvote_count": 5})
	case r.Method == http.MethodGet && r.URL.Path == "/issues/1/":
		writeJSON(w, http.StatusOK, map[string]any{"id": 1, "title": "Pothole on Main St", "latitude": 52.52, "longitude": 13.405})
	default:
		writeJSON(w, http.StatusNotFound, map[string]string{"detail": "Not found."})
	}
}

func (a *fakeAPI) headers() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.authHeaders...)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func newStore(t *testing.T, pair *session.TokenPair) *session.Store {
	t.Helper()
	store, err := session.NewStore(tokenstore.NewMemoryStore())
	require.NoError(t, err)
	if pair != nil {
		require.NoError(t, store.StoreTokens(t.Context(), *pair))
	}
	return store
}

func newClient(t *testing.T, baseURL string, store *session.Store, opts ...apiclient.Option) *apiclient.Client {
	t.Helper()
	c, err := apiclient.New(baseURL, store, opts...)
	require.NoError(t, err)
	return c
}
