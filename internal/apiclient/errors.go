package apiclient

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/tidwall/gjson"
)

// ErrAuthExpired is returned when the session could not be renewed. The stored tokens
// have been cleared by the time it is returned.
var ErrAuthExpired = errors.New("session expired: re-authentication required")

// NetworkError reports a call that received no response.
type NetworkError struct {
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error: %v", e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// HTTPError reports a non-2xx response. Body holds the raw response body.
type HTTPError struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

func (e *HTTPError) Error() string {
	if detail := e.Detail(); detail != "" {
		return fmt.Sprintf("api error %d: %s", e.StatusCode, detail)
	}
	return fmt.Sprintf("api error %d: %s", e.StatusCode, http.StatusText(e.StatusCode))
}

// Detail extracts the human-readable message of an API error body, if any.
func (e *HTTPError) Detail() string {
	if len(e.Body) == 0 || !gjson.ValidBytes(e.Body) {
		return ""
	}
	for _, path := range []string{"detail", "non_field_errors.0", "error"} {
		if r := gjson.GetBytes(e.Body, path); r.Exists() && r.String() != "" {
			return r.String()
		}
	}
	return ""
}

// storeError carries token store failures through http.Client, which would otherwise
// make them indistinguishable from transport failures.
type storeError struct {
	err error
}

func (e *storeError) Error() string {
	return "token store: " + e.err.Error()
}

func (e *storeError) Unwrap() error {
	return e.err
}
