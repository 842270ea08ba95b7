package gateway

import (
	"context"
	"net/http"

	"github.com/townspark/townspark/internal/apiclient"
	"github.com/townspark/townspark/internal/session"
	"github.com/townspark/townspark/internal/tokenstore"
)

type ctxKey struct{}

// withSession binds a copy of the API client to the cookies of the current exchange.
func (g *Gateway) withSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookies, err := tokenstore.NewCookieStore(w, r, g.cookieOpts...)
		if err != nil {
			writeJSONError(r.Context(), w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			return
		}
		store, err := session.NewStore(cookies)
		if err != nil {
			writeJSONError(r.Context(), w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			return
		}

		ctx := context.WithValue(r.Context(), ctxKey{}, g.client.WithStore(store))
		next.ServeHTTP(cookies.ResponseWriter(), r.WithContext(ctx))
		// Handlers that never write still get their cookies.
		cookies.Commit()
	})
}

// clientFrom returns the session-bound client installed by withSession.
func clientFrom(ctx context.Context) *apiclient.Client {
	c, _ := ctx.Value(ctxKey{}).(*apiclient.Client)
	return c
}
