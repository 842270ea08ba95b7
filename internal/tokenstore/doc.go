// Package tokenstore provides storage backends for authentication tokens.
//
// Every backend stores string values under a small set of well-known keys
// (the access and refresh token) and hides the storage medium from callers:
//   - Cookie: HTTP-only, secure, strict same-site cookies bound to one HTTP exchange
//   - File: Local filesystem storage with atomic writes and secure permissions
//   - Keyring: OS-native credential storage (macOS Keychain, Windows Credential Manager, etc.)
//   - Env: Read-only environment variable access (requires external secret management)
//   - Memory: Process-local storage, lost on exit
//
// Refreshing sessions requires writable storage, so the env backend is only suitable
// for pre-provisioned tokens.
package tokenstore
