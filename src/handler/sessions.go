package handler

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/deepgram/wsh/src/apierr"
	"github.com/deepgram/wsh/src/session"
)

// SessionsHandler serves session lifecycle routes.
type SessionsHandler struct {
	*BaseHandler
	state *State
}

// NewSessionsHandler creates the sessions handler.
func NewSessionsHandler(state *State) *SessionsHandler {
	return &SessionsHandler{BaseHandler: NewBaseHandler(), state: state}
}

// SessionResponse is the JSON shape of one session.
type SessionResponse struct {
	Name           string   `json:"name"`
	Pid            int      `json:"pid"`
	Command        string   `json:"command"`
	Rows           uint16   `json:"rows"`
	Cols           uint16   `json:"cols"`
	Clients        int      `json:"clients"`
	Tags           []string `json:"tags,omitempty"`
	Server         string   `json:"server"`
	LastActivityMs uint64   `json:"last_activity_ms"`
} // @name SessionResponse

func (h *SessionsHandler) sessionResponse(s *session.Session) SessionResponse {
	cols, rows := s.Size()
	return SessionResponse{
		Name:           s.Name,
		Pid:            s.Pid(),
		Command:        s.Command,
		Rows:           rows,
		Cols:           cols,
		Clients:        s.ClientCount(),
		Tags:           s.Tags(),
		Server:         h.state.Hostname,
		LastActivityMs: s.Activity().LastActivityMs(),
	}
}

// lookup resolves the :name path parameter into a session.
func (h *SessionsHandler) lookup(c *gin.Context) (*session.Session, bool) {
	name := c.Param("name")
	s, ok := h.state.Registry.Get(name)
	if !ok {
		h.SendError(c, apierr.SessionNotFound(name))
		return nil, false
	}
	return s, true
}

// HandleListSessions lists sessions.
//
//	@Summary	List sessions
//	@Produce	json
//	@Success	200	{array}	SessionResponse
//	@Router		/sessions [get]
func (h *SessionsHandler) HandleListSessions(c *gin.Context) {
	// ?server= routing happens in the proxy middleware; this handler only
	// ever sees local requests.
	sessions := h.state.Registry.List()
	out := make([]SessionResponse, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, h.sessionResponse(s))
	}
	h.SendJSON(c, http.StatusOK, out)
}

// CreateSessionRequest is the body of POST /sessions.
type CreateSessionRequest struct {
	Name    string            `json:"name,omitempty"`
	Command string            `json:"command,omitempty"`
	Rows    uint16            `json:"rows,omitempty"`
	Cols    uint16            `json:"cols,omitempty"`
	Cwd     string            `json:"cwd,omitempty"`
	Env     map[string]string `json:"env,omitempty"`
	Tags    []string          `json:"tags,omitempty"`
	Server  string            `json:"server,omitempty"`
} // @name CreateSessionRequest

// HandleCreateSession spawns a new session.
//
//	@Summary	Create a session
//	@Accept		json
//	@Produce	json
//	@Success	201	{object}	SessionResponse
//	@Failure	409	{object}	apierr.Body
//	@Failure	503	{object}	apierr.Body
//	@Router		/sessions [post]
func (h *SessionsHandler) HandleCreateSession(c *gin.Context) {
	raw, err := io.ReadAll(c.Request.Body)
	if err != nil {
		h.SendError(c, apierr.InvalidRequest("unreadable request body"))
		return
	}
	var req CreateSessionRequest
	if len(raw) > 0 {
		if err := sessionJSON.Unmarshal(raw, &req); err != nil {
			h.SendError(c, apierr.InvalidRequest("malformed request body"))
			return
		}
	}

	if backend, apiErr := h.state.resolveServer(req.Server); apiErr != nil {
		h.SendError(c, apiErr)
		return
	} else if backend != nil {
		h.proxyHTTP(c, backend, raw)
		return
	}

	s, err := h.state.Registry.Create(h.state.Ctx, req.Name, session.Spec{
		Command: req.Command,
		Cwd:     req.Cwd,
		Env:     req.Env,
		Cols:    req.Cols,
		Rows:    req.Rows,
		Tags:    req.Tags,
	})
	if err != nil {
		h.SendError(c, mapRegistryError(err, req.Name))
		return
	}
	h.SendJSON(c, http.StatusCreated, h.sessionResponse(s))
}

// HandleGetSession returns one session.
//
//	@Summary	Get a session
//	@Produce	json
//	@Success	200	{object}	SessionResponse
//	@Failure	404	{object}	apierr.Body
//	@Router		/sessions/{name} [get]
func (h *SessionsHandler) HandleGetSession(c *gin.Context) {
	s, ok := h.lookup(c)
	if !ok {
		return
	}
	h.SendJSON(c, http.StatusOK, h.sessionResponse(s))
}

// PatchSessionRequest is the body of PATCH /sessions/{name}.
type PatchSessionRequest struct {
	Name *string   `json:"name,omitempty"`
	Tags *[]string `json:"tags,omitempty"`
	Rows *uint16   `json:"rows,omitempty"`
	Cols *uint16   `json:"cols,omitempty"`
} // @name PatchSessionRequest

// HandlePatchSession renames, retags or resizes a session.
//
//	@Summary	Update a session
//	@Accept		json
//	@Produce	json
//	@Success	200	{object}	SessionResponse
//	@Failure	404	{object}	apierr.Body
//	@Failure	409	{object}	apierr.Body
//	@Router		/sessions/{name} [patch]
func (h *SessionsHandler) HandlePatchSession(c *gin.Context) {
	s, ok := h.lookup(c)
	if !ok {
		return
	}
	var req PatchSessionRequest
	if err := h.BindJSON(c, &req); err != nil {
		h.SendError(c, err)
		return
	}

	if req.Name != nil && *req.Name != s.Name {
		if err := h.state.Registry.Rename(s.Name, *req.Name); err != nil {
			h.SendError(c, mapRegistryError(err, *req.Name))
			return
		}
	}
	if req.Tags != nil {
		s.SetTags(*req.Tags)
	}
	if req.Rows != nil || req.Cols != nil {
		cols, rows := s.Size()
		if req.Cols != nil {
			cols = *req.Cols
		}
		if req.Rows != nil {
			rows = *req.Rows
		}
		if err := s.Resize(cols, rows); err != nil {
			h.SendError(c, apierr.Internal("resize failed"))
			return
		}
	}
	h.SendJSON(c, http.StatusOK, h.sessionResponse(s))
}

// HandleDeleteSession kills a session.
//
//	@Summary	Kill a session
//	@Success	204
//	@Failure	404	{object}	apierr.Body
//	@Router		/sessions/{name} [delete]
func (h *SessionsHandler) HandleDeleteSession(c *gin.Context) {
	name := c.Param("name")
	if !h.state.Registry.Remove(name) {
		h.SendError(c, apierr.SessionNotFound(name))
		return
	}
	h.NoContent(c)
}

func mapRegistryError(err error, name string) error {
	switch {
	case errors.Is(err, session.ErrDuplicateName):
		return apierr.SessionNameConflict(name)
	case errors.Is(err, session.ErrInvalidName):
		return apierr.InvalidRequest("invalid session name")
	case errors.Is(err, session.ErrMaxSessionsReached):
		return apierr.MaxSessionsReached()
	default:
		return apierr.SessionCreateFailed(err.Error())
	}
}
