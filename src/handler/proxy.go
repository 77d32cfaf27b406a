package handler

import (
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/deepgram/wsh/src/apierr"
	"github.com/deepgram/wsh/src/federation"
)

// proxyTimeout bounds one proxied request to a backend.
const proxyTimeout = 30 * time.Second

var proxyClient = &http.Client{Timeout: proxyTimeout}

// resolveServer decides where a request targeting ?server=<hostname> (or a
// body server field) should run. Returns nil when the request is local, a
// backend entry when it must be proxied, or an error.
func (s *State) resolveServer(server string) (*federation.BackendEntry, *apierr.Error) {
	if s.IsLocal(server) {
		return nil, nil
	}
	if s.Federation == nil {
		return nil, apierr.ServerNotFound(server)
	}
	entry, ok := s.Federation.Registry().GetByHostname(server)
	if !ok {
		return nil, apierr.ServerNotFound(server)
	}
	if entry.Health != federation.HealthHealthy {
		return nil, apierr.ServerUnavailable(server)
	}
	return &entry, nil
}

// ProxyMiddleware routes any request carrying ?server=<hostname> to the
// named backend when it is not this server: unknown hostnames 404,
// unhealthy backends 503, healthy ones are proxied. WebSocket upgrades are
// not proxied through this path.
func ProxyMiddleware(state *State) gin.HandlerFunc {
	base := NewBaseHandler()
	return func(c *gin.Context) {
		server := c.Query("server")
		if state.IsLocal(server) {
			c.Next()
			return
		}
		backend, apiErr := state.resolveServer(server)
		if apiErr != nil {
			base.SendError(c, apiErr)
			c.Abort()
			return
		}
		if strings.EqualFold(c.Request.Header.Get("Upgrade"), "websocket") {
			base.SendError(c, apierr.InvalidRequest("websocket connections must target the session's own server"))
			c.Abort()
			return
		}
		var body []byte
		if c.Request.Body != nil {
			body, _ = io.ReadAll(io.LimitReader(c.Request.Body, federation.MaxProxyResponseBytes))
		}
		base.proxyHTTP(c, backend, body)
		c.Abort()
	}
}

// proxyHTTP forwards the current request to a backend and relays the
// sanitized response. Session-list responses get the strict session
// sanitizer; everything else passes the generic size/shape check.
func (h *BaseHandler) proxyHTTP(c *gin.Context, backend *federation.BackendEntry, body []byte) {
	target := strings.TrimRight(backend.Address, "/") + c.Request.URL.Path
	query := c.Request.URL.Query()
	query.Del("server")
	if encoded := query.Encode(); encoded != "" {
		target += "?" + encoded
	}

	var reqBody io.Reader
	if len(body) > 0 {
		reqBody = strings.NewReader(string(body))
	}
	req, err := http.NewRequestWithContext(c.Request.Context(), c.Request.Method, target, reqBody)
	if err != nil {
		h.SendError(c, apierr.Internal("failed to build proxy request"))
		return
	}
	if ct := c.Request.Header.Get("Content-Type"); ct != "" {
		req.Header.Set("Content-Type", ct)
	}
	if backend.Token != "" {
		req.Header.Set("Authorization", "Bearer "+backend.Token)
	}

	resp, err := proxyClient.Do(req)
	if err != nil {
		logrus.Warnf("proxy to %s failed: %v", backend.Address, err)
		h.SendError(c, apierr.ServerUnavailable(backend.Hostname))
		return
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, federation.MaxProxyResponseBytes+1))
	if err != nil {
		h.SendError(c, apierr.ServerUnavailable(backend.Hostname))
		return
	}
	if len(raw) == 0 || resp.StatusCode == http.StatusNoContent {
		c.Status(resp.StatusCode)
		return
	}

	var sanitized []byte
	if c.Request.Method == http.MethodGet && c.Request.URL.Path == "/sessions" {
		sanitized, err = federation.SanitizeSessionList(raw)
	} else {
		sanitized, err = federation.SanitizeProxyResponse(raw, federation.MaxProxyResponseBytes)
	}
	if err != nil {
		logrus.Warnf("proxy response from %s rejected: %v", backend.Address, err)
		h.SendError(c, apierr.Internal("backend returned an invalid response"))
		return
	}
	c.Data(resp.StatusCode, "application/json", sanitized)
}
