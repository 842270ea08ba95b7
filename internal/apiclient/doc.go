// Package apiclient is the authenticated HTTP client of the TownSpark REST API.
//
// Every call attaches the stored access token as a bearer credential. When the API
// answers 401 and a refresh token is stored, the client performs exactly one refresh and
// resends the call once with the new access token; the caller only sees the result of
// that retry. If the refresh itself is rejected, the stored tokens are cleared, the
// configured auth-expired handler runs and the call fails with ErrAuthExpired.
//
// Failures are reported as:
//   - *NetworkError: no response was received
//   - *HTTPError: the API answered with a non-2xx status (after any retry)
//   - ErrAuthExpired: the session could not be renewed; the user must log in again
//
// A Client is bound to one session.Store. Use WithStore to derive a client for another
// session (e.g. one per inbound request) that shares connections and refresh
// coalescing with its parent.
package apiclient
