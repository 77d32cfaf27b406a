package api

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/deepgram/wsh/src/apierr"
)

// bearerToken extracts the Bearer token from the Authorization header.
func bearerToken(r *http.Request) (string, bool) {
	auth := r.Header.Get("Authorization")
	if token, ok := strings.CutPrefix(auth, "Bearer "); ok {
		return token, true
	}
	return "", false
}

// isWSUpgrade reports whether the request is a WebSocket upgrade.
func isWSUpgrade(r *http.Request) bool {
	return strings.EqualFold(r.Header.Get("Upgrade"), "websocket")
}

// RequireAuth authenticates every request on the group it is applied to.
//
// Flow:
//  1. A Bearer token, when present, must match the configured token
//     (constant-time compare); a wrong token is 403, never a fallthrough.
//  2. WebSocket upgrades without a Bearer token may authenticate with a
//     single-use ?ticket= nonce.
//  3. Anything else is 401.
//
// With no token configured, all requests pass.
func RequireAuth(token string, tickets *TicketStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token == "" {
			c.Next()
			return
		}
		if presented, ok := bearerToken(c.Request); ok {
			if subtle.ConstantTimeCompare([]byte(presented), []byte(token)) == 1 {
				c.Next()
				return
			}
			abortWith(c, apierr.AuthInvalid())
			return
		}
		if isWSUpgrade(c.Request) && tickets != nil {
			if nonce := c.Query("ticket"); nonce != "" && tickets.Validate(nonce) {
				c.Next()
				return
			}
		}
		abortWith(c, apierr.AuthRequired())
	}
}

// CheckWSOrigin validates the Origin header on WebSocket upgrades.
//
// Without auth (localhost), browsers can be tricked into cross-origin
// WebSocket connections (CSWSH). Non-WebSocket requests pass (CORS covers
// HTTP), as do requests with no Origin header (curl, agents). Browser
// origins must exactly match the allow-list.
func CheckWSOrigin(allowedOrigins []string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !isWSUpgrade(c.Request) {
			c.Next()
			return
		}
		origin := c.Request.Header.Get("Origin")
		if origin == "" {
			c.Next()
			return
		}
		for _, allowed := range allowedOrigins {
			if allowed == origin {
				c.Next()
				return
			}
		}
		abortWith(c, apierr.OriginNotAllowed(origin))
	}
}

// abortWith renders an API error and stops the chain.
func abortWith(c *gin.Context, err *apierr.Error) {
	c.AbortWithStatusJSON(err.Status(), err.Body())
}
