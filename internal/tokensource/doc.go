// Package tokensource performs the JWT login and refresh exchanges of the TownSpark API.
//
// The API issues tokens from two JSON endpoints instead of a standard OAuth2 token
// endpoint:
//   - POST /auth/jwt/create/  {"email", "password"} -> {"access", "refresh"}
//   - POST /auth/jwt/refresh/ {"refresh"}           -> {"access"} (plus "refresh" when rotated)
//
// Both exchanges are driven through golang.org/x/oauth2 (password and refresh_token
// grants) with a transport that rewrites oauth2's form-encoded requests into these JSON
// bodies and the responses back into oauth2 token responses.
//
// # Usage
//
//	auth, err := tokensource.New("https://api.townspark.example")
//	tok, err := auth.Login(ctx, email, password)
//	tok, err = auth.Refresh(ctx, tok.RefreshToken)
//
// Rejections (any non-2xx answer) are reported wrapped with ErrRejected.
package tokensource
