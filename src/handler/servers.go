package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/deepgram/wsh/src/apierr"
	"github.com/deepgram/wsh/src/config"
	"github.com/deepgram/wsh/src/federation"
)

// ServersHandler serves federation management routes and server identity.
type ServersHandler struct {
	*BaseHandler
	state *State
}

// NewServersHandler creates the servers handler.
func NewServersHandler(state *State) *ServersHandler {
	return &ServersHandler{BaseHandler: NewBaseHandler(), state: state}
}

// ServerEntry is one row of GET /servers. The local server is always the
// first entry with address "local". Tokens never appear.
type ServerEntry struct {
	Address  string            `json:"address"`
	Hostname string            `json:"hostname,omitempty"`
	Health   federation.Health `json:"health"`
	Role     string            `json:"role"`
	ServerID string            `json:"server_id,omitempty"`
} // @name ServerEntry

// HandleHealth is the unauthenticated liveness probe.
//
//	@Summary	Health check
//	@Produce	json
//	@Success	200	{object}	map[string]string
//	@Router		/health [get]
func (h *ServersHandler) HandleHealth(c *gin.Context) {
	h.SendJSON(c, http.StatusOK, gin.H{"status": "ok"})
}

// HandleServerInfo reports this server's identity to federation peers.
//
//	@Summary	Server identity
//	@Produce	json
//	@Success	200	{object}	map[string]string
//	@Router		/server/info [get]
func (h *ServersHandler) HandleServerInfo(c *gin.Context) {
	h.SendJSON(c, http.StatusOK, gin.H{
		"hostname":  h.state.Hostname,
		"server_id": h.state.ServerID,
	})
}

// HandleListServers lists the local server plus all registered backends.
//
//	@Summary	List federation servers
//	@Produce	json
//	@Success	200	{array}	ServerEntry
//	@Router		/servers [get]
func (h *ServersHandler) HandleListServers(c *gin.Context) {
	out := []ServerEntry{{
		Address:  "local",
		Hostname: h.state.Hostname,
		Health:   federation.HealthHealthy,
		Role:     "hub",
		ServerID: h.state.ServerID,
	}}
	if h.state.Federation != nil {
		for _, b := range h.state.Federation.Registry().List() {
			out = append(out, ServerEntry{
				Address:  b.Address,
				Hostname: b.Hostname,
				Health:   b.Health,
				Role:     string(b.Role),
				ServerID: b.ServerID,
			})
		}
	}
	h.SendJSON(c, http.StatusOK, out)
}

// AddServerRequest is the body of POST /servers.
type AddServerRequest struct {
	Address string `json:"address"`
	Token   string `json:"token,omitempty"`
} // @name AddServerRequest

// HandleAddServer registers a backend. 400 on SSRF-rejected addresses,
// 409 on duplicates.
//
//	@Summary	Register a federation backend
//	@Accept		json
//	@Success	201
//	@Failure	400	{object}	apierr.Body
//	@Failure	409	{object}	apierr.Body
//	@Router		/servers [post]
func (h *ServersHandler) HandleAddServer(c *gin.Context) {
	if h.state.Federation == nil {
		h.SendError(c, apierr.InvalidRequest("federation is not enabled"))
		return
	}
	var req AddServerRequest
	if err := h.BindJSON(c, &req); err != nil {
		h.SendError(c, err)
		return
	}
	if err := h.state.Federation.AddBackend(req.Address, req.Token); err != nil {
		if strings.Contains(err.Error(), "already registered") {
			h.SendError(c, apierr.ServerAlreadyRegistered(req.Address))
			return
		}
		h.SendError(c, apierr.InvalidRequest(err.Error()))
		return
	}
	h.persistConfig()
	c.Status(http.StatusCreated)
}

// HandleGetServer returns one backend by hostname.
//
//	@Summary	Get a federation backend
//	@Produce	json
//	@Success	200	{object}	ServerEntry
//	@Failure	404	{object}	apierr.Body
//	@Router		/servers/{hostname} [get]
func (h *ServersHandler) HandleGetServer(c *gin.Context) {
	hostname := c.Param("hostname")
	if hostname == h.state.Hostname {
		h.SendJSON(c, http.StatusOK, ServerEntry{
			Address:  "local",
			Hostname: h.state.Hostname,
			Health:   federation.HealthHealthy,
			Role:     "hub",
			ServerID: h.state.ServerID,
		})
		return
	}
	if h.state.Federation == nil {
		h.SendError(c, apierr.ServerNotFound(hostname))
		return
	}
	b, ok := h.state.Federation.Registry().GetByHostname(hostname)
	if !ok {
		h.SendError(c, apierr.ServerNotFound(hostname))
		return
	}
	h.SendJSON(c, http.StatusOK, ServerEntry{
		Address:  b.Address,
		Hostname: b.Hostname,
		Health:   b.Health,
		Role:     string(b.Role),
		ServerID: b.ServerID,
	})
}

// HandleDeleteServer removes a backend by hostname.
//
//	@Summary	Remove a federation backend
//	@Success	204
//	@Failure	404	{object}	apierr.Body
//	@Router		/servers/{hostname} [delete]
func (h *ServersHandler) HandleDeleteServer(c *gin.Context) {
	hostname := c.Param("hostname")
	if h.state.Federation == nil || !h.state.Federation.RemoveBackendByHostname(hostname) {
		h.SendError(c, apierr.ServerNotFound(hostname))
		return
	}
	h.persistConfig()
	h.NoContent(c)
}

// persistConfig writes the current backend set back to the federation
// config file, when one is configured.
func (h *ServersHandler) persistConfig() {
	if h.state.ConfigPath == "" || h.state.Federation == nil {
		return
	}
	cfg, err := config.LoadFederation(h.state.ConfigPath)
	if err != nil || cfg == nil {
		cfg = &config.Federation{}
	}
	cfg.Servers = nil
	for _, b := range h.state.Federation.Registry().List() {
		cfg.Servers = append(cfg.Servers, config.BackendServer{Address: b.Address, Token: b.Token})
	}
	if err := config.SaveFederation(h.state.ConfigPath, cfg); err != nil {
		logrus.Warnf("federation config not persisted: %v", err)
	}
}
