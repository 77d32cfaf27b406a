package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/deepgram/wsh/src/apierr"
	"github.com/deepgram/wsh/src/parser"
)

// ScreenHandler serves terminal state reads: screen, scrollback, quiesce.
type ScreenHandler struct {
	*BaseHandler
	state *State
}

// NewScreenHandler creates the screen handler.
func NewScreenHandler(state *State) *ScreenHandler {
	return &ScreenHandler{BaseHandler: NewBaseHandler(), state: state}
}

func (h *ScreenHandler) format(c *gin.Context) (parser.Format, bool) {
	format, err := parser.ParseFormat(c.Query("format"))
	if err != nil {
		h.SendError(c, apierr.InvalidFormat(err.Error()))
		return "", false
	}
	return format, true
}

// HandleGetScreen returns a screen snapshot.
//
//	@Summary	Get the current screen
//	@Produce	json
//	@Param		format	query		string	false	"plain or styled"
//	@Success	200		{object}	parser.ScreenResponse
//	@Failure	404		{object}	apierr.Body
//	@Router		/sessions/{name}/screen [get]
func (h *ScreenHandler) HandleGetScreen(c *gin.Context) {
	name := c.Param("name")
	s, ok := h.state.Registry.Get(name)
	if !ok {
		h.SendError(c, apierr.SessionNotFound(name))
		return
	}
	format, ok := h.format(c)
	if !ok {
		return
	}
	screen, err := s.Parser().Screen(c.Request.Context(), format)
	if err != nil {
		h.SendError(c, apierr.ParserUnavailable())
		return
	}
	h.SendJSON(c, http.StatusOK, screen)
}

// maxScrollbackLimit caps one scrollback response.
const maxScrollbackLimit = 10000

// HandleGetScrollback returns scrollback lines.
//
//	@Summary	Get scrollback lines
//	@Produce	json
//	@Param		offset	query		int		false	"first line index"
//	@Param		limit	query		int		false	"maximum lines"
//	@Param		format	query		string	false	"plain or styled"
//	@Success	200		{object}	parser.ScrollbackResponse
//	@Failure	404		{object}	apierr.Body
//	@Router		/sessions/{name}/scrollback [get]
func (h *ScreenHandler) HandleGetScrollback(c *gin.Context) {
	name := c.Param("name")
	s, ok := h.state.Registry.Get(name)
	if !ok {
		h.SendError(c, apierr.SessionNotFound(name))
		return
	}
	format, ok := h.format(c)
	if !ok {
		return
	}
	offset, err := strconv.Atoi(h.GetQueryParam(c, "offset", "0"))
	if err != nil || offset < 0 {
		h.SendError(c, apierr.InvalidRequest("offset must be a non-negative integer"))
		return
	}
	limit, err := strconv.Atoi(h.GetQueryParam(c, "limit", "100"))
	if err != nil || limit < 0 {
		h.SendError(c, apierr.InvalidRequest("limit must be a non-negative integer"))
		return
	}
	if limit > maxScrollbackLimit {
		limit = maxScrollbackLimit
	}
	scrollback, err := s.Parser().Scrollback(c.Request.Context(), format, offset, limit)
	if err != nil {
		h.SendError(c, apierr.ParserUnavailable())
		return
	}
	h.SendJSON(c, http.StatusOK, scrollback)
}

// QuiesceResponse is the body returned when the terminal goes quiet.
type QuiesceResponse struct {
	Screen          *parser.ScreenResponse `json:"screen"`
	ScrollbackLines int                    `json:"scrollback_lines"`
	Generation      uint64                 `json:"generation"`
} // @name QuiesceResponse

// HandleQuiesce waits for the terminal to be silent for timeout_ms, then
// returns the settled screen. 408 when max_wait_ms elapses first.
//
//	@Summary	Wait for terminal quiescence
//	@Produce	json
//	@Param		timeout_ms	query		int		false	"required silence in ms"
//	@Param		max_wait_ms	query		int		false	"overall deadline in ms"
//	@Param		format		query		string	false	"plain or styled"
//	@Success	200			{object}	QuiesceResponse
//	@Failure	408			{object}	apierr.Body
//	@Router		/sessions/{name}/quiesce [get]
func (h *ScreenHandler) HandleQuiesce(c *gin.Context) {
	name := c.Param("name")
	s, ok := h.state.Registry.Get(name)
	if !ok {
		h.SendError(c, apierr.SessionNotFound(name))
		return
	}
	format, ok := h.format(c)
	if !ok {
		return
	}
	timeoutMs, err := strconv.Atoi(h.GetQueryParam(c, "timeout_ms", "2000"))
	if err != nil || timeoutMs <= 0 {
		h.SendError(c, apierr.InvalidRequest("timeout_ms must be a positive integer"))
		return
	}
	maxWaitMs, err := strconv.Atoi(h.GetQueryParam(c, "max_wait_ms", "30000"))
	if err != nil || maxWaitMs <= 0 {
		h.SendError(c, apierr.InvalidRequest("max_wait_ms must be a positive integer"))
		return
	}
	var lastSeen *uint64
	if raw := c.Query("last_seen"); raw != "" {
		v, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			h.SendError(c, apierr.InvalidRequest("last_seen must be an unsigned integer"))
			return
		}
		lastSeen = &v
	}

	deadline, cancel := context.WithTimeout(c.Request.Context(), time.Duration(maxWaitMs)*time.Millisecond)
	defer cancel()

	gen := s.Activity().WaitForFreshIdleOrSeen(deadline, time.Duration(timeoutMs)*time.Millisecond, lastSeen)
	if errors.Is(deadline.Err(), context.DeadlineExceeded) {
		h.SendError(c, apierr.QuiesceTimeout())
		return
	}

	screen, err := s.Parser().Screen(c.Request.Context(), format)
	if err != nil {
		h.SendError(c, apierr.ParserUnavailable())
		return
	}
	h.SendJSON(c, http.StatusOK, QuiesceResponse{
		Screen:          screen,
		ScrollbackLines: screen.TotalLines,
		Generation:      gen,
	})
}
