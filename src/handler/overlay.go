package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/deepgram/wsh/src/apierr"
	"github.com/deepgram/wsh/src/overlay"
	"github.com/deepgram/wsh/src/session"
)

// OverlayHandler serves overlay CRUD and screen-mode routes.
type OverlayHandler struct {
	*BaseHandler
	state *State
}

// NewOverlayHandler creates the overlay handler.
func NewOverlayHandler(state *State) *OverlayHandler {
	return &OverlayHandler{BaseHandler: NewBaseHandler(), state: state}
}

func (h *OverlayHandler) lookup(c *gin.Context) (*session.Session, bool) {
	name := c.Param("name")
	s, ok := h.state.Registry.Get(name)
	if !ok {
		h.SendError(c, apierr.SessionNotFound(name))
		return nil, false
	}
	return s, true
}

// OverlayCreateRequest is the body of POST .../overlay.
type OverlayCreateRequest struct {
	X            uint16                `json:"x"`
	Y            uint16                `json:"y"`
	Z            *int                  `json:"z,omitempty"`
	Width        uint16                `json:"width"`
	Height       uint16                `json:"height"`
	Background   *overlay.Background   `json:"background,omitempty"`
	Spans        []overlay.Span        `json:"spans,omitempty"`
	RegionWrites []overlay.RegionWrite `json:"region_writes,omitempty"`
	Focusable    bool                  `json:"focusable,omitempty"`
} // @name OverlayCreateRequest

// HandleList lists overlays visible in the current screen mode, z
// ascending.
//
//	@Summary	List overlays
//	@Produce	json
//	@Success	200	{array}	overlay.Overlay
//	@Router		/sessions/{name}/overlay [get]
func (h *OverlayHandler) HandleList(c *gin.Context) {
	s, ok := h.lookup(c)
	if !ok {
		return
	}
	h.SendJSON(c, http.StatusOK, s.Overlays().List(s.ScreenMode()))
}

// HandleCreate creates an overlay tagged with the current screen mode.
//
//	@Summary	Create an overlay
//	@Accept		json
//	@Produce	json
//	@Success	201	{object}	overlay.Overlay
//	@Failure	400	{object}	apierr.Body
//	@Router		/sessions/{name}/overlay [post]
func (h *OverlayHandler) HandleCreate(c *gin.Context) {
	s, ok := h.lookup(c)
	if !ok {
		return
	}
	var req OverlayCreateRequest
	if err := h.BindJSON(c, &req); err != nil {
		h.SendError(c, err)
		return
	}
	if req.Width == 0 || req.Height == 0 {
		h.SendError(c, apierr.InvalidOverlay("width and height must be positive"))
		return
	}
	mode := s.ScreenMode()
	id := s.Overlays().Create(overlay.CreateSpec{
		X:            req.X,
		Y:            req.Y,
		Z:            req.Z,
		Width:        req.Width,
		Height:       req.Height,
		Background:   req.Background,
		Spans:        req.Spans,
		RegionWrites: req.RegionWrites,
		Focusable:    req.Focusable,
	}, mode)
	created, _ := s.Overlays().Get(id, mode)
	h.SendJSON(c, http.StatusCreated, created)
}

// HandleGet returns one overlay.
//
//	@Summary	Get an overlay
//	@Produce	json
//	@Success	200	{object}	overlay.Overlay
//	@Failure	404	{object}	apierr.Body
//	@Router		/sessions/{name}/overlay/{id} [get]
func (h *OverlayHandler) HandleGet(c *gin.Context) {
	s, ok := h.lookup(c)
	if !ok {
		return
	}
	id := c.Param("id")
	o, ok := s.Overlays().Get(id, s.ScreenMode())
	if !ok {
		h.SendError(c, apierr.OverlayNotFound(id))
		return
	}
	h.SendJSON(c, http.StatusOK, o)
}

// OverlayUpdateRequest is the body of PUT .../overlay/{id}.
type OverlayUpdateRequest struct {
	Spans []overlay.Span `json:"spans"`
} // @name OverlayUpdateRequest

// HandleUpdate replaces an overlay's spans.
//
//	@Summary	Replace overlay spans
//	@Accept		json
//	@Success	204
//	@Failure	404	{object}	apierr.Body
//	@Router		/sessions/{name}/overlay/{id} [put]
func (h *OverlayHandler) HandleUpdate(c *gin.Context) {
	s, ok := h.lookup(c)
	if !ok {
		return
	}
	var req OverlayUpdateRequest
	if err := h.BindJSON(c, &req); err != nil {
		h.SendError(c, err)
		return
	}
	id := c.Param("id")
	if !s.Overlays().Update(id, s.ScreenMode(), req.Spans) {
		h.SendError(c, apierr.OverlayNotFound(id))
		return
	}
	h.NoContent(c)
}

// OverlayMoveRequest is the body of PATCH .../overlay/{id}.
type OverlayMoveRequest struct {
	X      *uint16 `json:"x,omitempty"`
	Y      *uint16 `json:"y,omitempty"`
	Z      *int    `json:"z,omitempty"`
	Width  *uint16 `json:"width,omitempty"`
	Height *uint16 `json:"height,omitempty"`
} // @name OverlayMoveRequest

// HandleMove updates any of an overlay's position and size fields.
//
//	@Summary	Move an overlay
//	@Accept		json
//	@Success	204
//	@Failure	404	{object}	apierr.Body
//	@Router		/sessions/{name}/overlay/{id} [patch]
func (h *OverlayHandler) HandleMove(c *gin.Context) {
	s, ok := h.lookup(c)
	if !ok {
		return
	}
	var req OverlayMoveRequest
	if err := h.BindJSON(c, &req); err != nil {
		h.SendError(c, err)
		return
	}
	id := c.Param("id")
	if !s.Overlays().Move(id, s.ScreenMode(), overlay.MoveSpec{
		X: req.X, Y: req.Y, Z: req.Z, Width: req.Width, Height: req.Height,
	}) {
		h.SendError(c, apierr.OverlayNotFound(id))
		return
	}
	h.NoContent(c)
}

// HandleDelete removes an overlay, clearing focus if it held it.
//
//	@Summary	Delete an overlay
//	@Success	204
//	@Failure	404	{object}	apierr.Body
//	@Router		/sessions/{name}/overlay/{id} [delete]
func (h *OverlayHandler) HandleDelete(c *gin.Context) {
	s, ok := h.lookup(c)
	if !ok {
		return
	}
	id := c.Param("id")
	if !s.Overlays().Delete(id, s.ScreenMode()) {
		h.SendError(c, apierr.OverlayNotFound(id))
		return
	}
	s.Focus().ClearIfFocused(id)
	h.NoContent(c)
}

// HandleGetScreenMode reports the session's screen mode.
//
//	@Summary	Get the screen mode
//	@Produce	json
//	@Success	200	{object}	map[string]string
//	@Router		/sessions/{name}/screen_mode [get]
func (h *OverlayHandler) HandleGetScreenMode(c *gin.Context) {
	s, ok := h.lookup(c)
	if !ok {
		return
	}
	h.SendJSON(c, http.StatusOK, gin.H{"screen_mode": s.ScreenMode()})
}

// HandleEnterAlt switches the session into alt screen mode.
//
//	@Summary	Enter alternate screen mode
//	@Success	204
//	@Failure	409	{object}	apierr.Body
//	@Router		/sessions/{name}/screen_mode/enter_alt [post]
func (h *OverlayHandler) HandleEnterAlt(c *gin.Context) {
	s, ok := h.lookup(c)
	if !ok {
		return
	}
	if err := s.EnterAlt(); err != nil {
		h.SendError(c, apierr.AlreadyInAltScreen())
		return
	}
	h.NoContent(c)
}

// HandleExitAlt switches back to normal mode, destroying alt elements.
//
//	@Summary	Exit alternate screen mode
//	@Success	204
//	@Failure	409	{object}	apierr.Body
//	@Router		/sessions/{name}/screen_mode/exit_alt [post]
func (h *OverlayHandler) HandleExitAlt(c *gin.Context) {
	s, ok := h.lookup(c)
	if !ok {
		return
	}
	if err := s.ExitAlt(); err != nil {
		h.SendError(c, apierr.NotInAltScreen())
		return
	}
	h.NoContent(c)
}
