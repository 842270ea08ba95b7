package tokensource

// Token endpoint paths, relative to the API base URL.
const (
	LoginPath   = "/auth/jwt/create/"
	RefreshPath = "/auth/jwt/refresh/"
)

// DefaultLoginField is the JSON field carrying the user identifier on login.
const DefaultLoginField = "email"
