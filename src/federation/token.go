package federation

// ResolveToken picks the auth token for a backend connection. Precedence:
// the backend's own token, then the federation default token, then the
// local server token. Empty means unauthenticated.
func ResolveToken(perServer, defaultToken, localToken string) string {
	if perServer != "" {
		return perServer
	}
	if defaultToken != "" {
		return defaultToken
	}
	return localToken
}
