package gateway

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/townspark/townspark/internal/apiclient"
	"github.com/townspark/townspark/internal/session"
)

// maxBodySize bounds inbound request bodies.
const maxBodySize = 1 << 20

// StateResponse reports whether the browser holds a session.
type StateResponse struct {
	State session.State `json:"state"`
}

func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(r.Context(), w, map[string]string{"status": "ok"}, http.StatusOK)
}

func (g *Gateway) handleState(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	client := clientFrom(ctx)
	writeJSON(ctx, w, StateResponse{State: client.Session().State(ctx)}, http.StatusOK)
}

func (g *Gateway) handleLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var creds apiclient.Credentials
	if err := decodeJSON(w, r, &creds); err != nil {
		writeJSONError(ctx, w, "invalid request body", http.StatusBadRequest)
		return
	}

	client := clientFrom(ctx)
	if err := client.Login(ctx, creds); err != nil {
		g.writeError(w, r, err)
		return
	}

	writeJSON(ctx, w, StateResponse{State: session.Authenticated}, http.StatusOK)
}

func (g *Gateway) handleSignup(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var in apiclient.Signup
	if err := decodeJSON(w, r, &in); err != nil {
		writeJSONError(ctx, w, "invalid request body", http.StatusBadRequest)
		return
	}

	user, err := clientFrom(ctx).Signup(ctx, in)
	if err != nil {
		g.writeError(w, r, err)
		return
	}

	writeJSON(ctx, w, user, http.StatusCreated)
}

func (g *Gateway) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := clientFrom(r.Context()).Logout(r.Context()); err != nil {
		g.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (g *Gateway) handleMe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	user, err := clientFrom(ctx).CurrentUser(ctx)
	if err != nil {
		g.writeError(w, r, err)
		return
	}

	writeJSON(ctx, w, user, http.StatusOK)
}

// handleForward relays /api/<path> to <path> on the API, including the refresh cycle.
func (g *Gateway) handleForward(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var body []byte
	if r.Body != nil && r.Body != http.NoBody {
		var err error
		body, err = io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodySize))
		if err != nil {
			writeJSONError(ctx, w, "invalid request body", http.StatusBadRequest)
			return
		}
	}

	path := "/" + strings.TrimPrefix(chi.URLParam(r, "*"), "/")
	resp, err := clientFrom(ctx).Forward(ctx, r.Method, path, r.URL.Query(), body)
	if err != nil {
		g.writeError(w, r, err)
		return
	}

	writeRaw(w, resp.StatusCode, resp.Header, resp.Body)
}

// writeError maps client errors onto gateway responses.
func (g *Gateway) writeError(w http.ResponseWriter, r *http.Request, err error) {
	ctx := r.Context()

	var (
		httpErr     *apiclient.HTTPError
		netErr      *apiclient.NetworkError
		validateErr validator.ValidationErrors
	)
	switch {
	case errors.Is(err, apiclient.ErrAuthExpired):
		// The client has already expired the session cookies.
		writeJSON(ctx, w, ErrorResponse{Error: "session expired", Redirect: g.loginPath}, http.StatusUnauthorized)
	case errors.As(err, &httpErr):
		writeRaw(w, httpErr.StatusCode, httpErr.Header, httpErr.Body)
	case errors.As(err, &netErr):
		slog.WarnContext(ctx, "API unreachable", "error", err)
		writeJSONError(ctx, w, "upstream unavailable", http.StatusBadGateway)
	case errors.As(err, &validateErr):
		writeJSONError(ctx, w, err.Error(), http.StatusBadRequest)
	default:
		slog.ErrorContext(ctx, "request failed", "error", err)
		writeJSONError(ctx, w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

// writeRaw writes an API response verbatim, keeping only its content type.
func writeRaw(w http.ResponseWriter, status int, header http.Header, body []byte) {
	if ct := header.Get("Content-Type"); ct != "" {
		w.Header().Set("Content-Type", ct)
	}
	w.WriteHeader(status)
	if len(body) > 0 {
		_, _ = w.Write(body)
	}
}
