package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/deepgram/wsh/src/apierr"
	"github.com/deepgram/wsh/src/overlay"
	"github.com/deepgram/wsh/src/panel"
	"github.com/deepgram/wsh/src/session"
)

// PanelHandler serves panel CRUD and layout routes.
type PanelHandler struct {
	*BaseHandler
	state *State
}

// NewPanelHandler creates the panel handler.
func NewPanelHandler(state *State) *PanelHandler {
	return &PanelHandler{BaseHandler: NewBaseHandler(), state: state}
}

func (h *PanelHandler) lookup(c *gin.Context) (*session.Session, bool) {
	name := c.Param("name")
	s, ok := h.state.Registry.Get(name)
	if !ok {
		h.SendError(c, apierr.SessionNotFound(name))
		return nil, false
	}
	return s, true
}

// PanelCreateRequest is the body of POST .../panel.
type PanelCreateRequest struct {
	Position     panel.Position        `json:"position"`
	Height       uint16                `json:"height"`
	Z            *int                  `json:"z,omitempty"`
	Background   *overlay.Background   `json:"background,omitempty"`
	Spans        []overlay.Span        `json:"spans,omitempty"`
	RegionWrites []overlay.RegionWrite `json:"region_writes,omitempty"`
	Focusable    bool                  `json:"focusable,omitempty"`
} // @name PanelCreateRequest

// HandleList lists panels visible in the current screen mode: top first,
// then bottom, each z descending.
//
//	@Summary	List panels
//	@Produce	json
//	@Success	200	{array}	panel.Panel
//	@Router		/sessions/{name}/panel [get]
func (h *PanelHandler) HandleList(c *gin.Context) {
	s, ok := h.lookup(c)
	if !ok {
		return
	}
	h.SendJSON(c, http.StatusOK, s.Panels().List(s.ScreenMode()))
}

// HandleCreate creates a panel tagged with the current screen mode.
//
//	@Summary	Create a panel
//	@Accept		json
//	@Produce	json
//	@Success	201	{object}	panel.Panel
//	@Failure	400	{object}	apierr.Body
//	@Router		/sessions/{name}/panel [post]
func (h *PanelHandler) HandleCreate(c *gin.Context) {
	s, ok := h.lookup(c)
	if !ok {
		return
	}
	var req PanelCreateRequest
	if err := h.BindJSON(c, &req); err != nil {
		h.SendError(c, err)
		return
	}
	if req.Position != panel.PositionTop && req.Position != panel.PositionBottom {
		h.SendError(c, apierr.InvalidRequest("position must be top or bottom"))
		return
	}
	if req.Height == 0 {
		h.SendError(c, apierr.InvalidRequest("height must be positive"))
		return
	}
	mode := s.ScreenMode()
	id := s.Panels().Create(panel.CreateSpec{
		Position:     req.Position,
		Height:       req.Height,
		Z:            req.Z,
		Background:   req.Background,
		Spans:        req.Spans,
		RegionWrites: req.RegionWrites,
		Focusable:    req.Focusable,
	}, mode)
	created, _ := s.Panels().Get(id, mode)
	h.SendJSON(c, http.StatusCreated, created)
}

// HandleGet returns one panel.
//
//	@Summary	Get a panel
//	@Produce	json
//	@Success	200	{object}	panel.Panel
//	@Failure	404	{object}	apierr.Body
//	@Router		/sessions/{name}/panel/{id} [get]
func (h *PanelHandler) HandleGet(c *gin.Context) {
	s, ok := h.lookup(c)
	if !ok {
		return
	}
	id := c.Param("id")
	p, ok := s.Panels().Get(id, s.ScreenMode())
	if !ok {
		h.SendError(c, apierr.PanelNotFound(id))
		return
	}
	h.SendJSON(c, http.StatusOK, p)
}

// PanelUpdateRequest is the body of PUT .../panel/{id}. Spans with ids
// update matching spans in place; UpdateAll replaces the whole list.
type PanelUpdateRequest struct {
	Spans     []overlay.Span `json:"spans"`
	UpdateAll bool           `json:"update_all,omitempty"`
} // @name PanelUpdateRequest

// HandleUpdate updates panel spans: full replacement, or targeted updates
// of spans matched by id.
//
//	@Summary	Update panel spans
//	@Accept		json
//	@Success	204
//	@Failure	404	{object}	apierr.Body
//	@Router		/sessions/{name}/panel/{id} [put]
func (h *PanelHandler) HandleUpdate(c *gin.Context) {
	s, ok := h.lookup(c)
	if !ok {
		return
	}
	var req PanelUpdateRequest
	if err := h.BindJSON(c, &req); err != nil {
		h.SendError(c, err)
		return
	}
	id := c.Param("id")
	mode := s.ScreenMode()
	updated := false
	if !req.UpdateAll && spansAllHaveIDs(req.Spans) {
		updated = s.Panels().UpdateSpans(id, mode, req.Spans)
	} else {
		updated = s.Panels().Update(id, mode, req.Spans)
	}
	if !updated {
		h.SendError(c, apierr.PanelNotFound(id))
		return
	}
	h.NoContent(c)
}

// spansAllHaveIDs reports whether every span carries a targeting id.
func spansAllHaveIDs(spans []overlay.Span) bool {
	if len(spans) == 0 {
		return false
	}
	for _, s := range spans {
		if s.ID == "" {
			return false
		}
	}
	return true
}

// PanelPatchRequest is the body of PATCH .../panel/{id}.
type PanelPatchRequest struct {
	Position *panel.Position `json:"position,omitempty"`
	Height   *uint16         `json:"height,omitempty"`
	Z        *int            `json:"z,omitempty"`
	Spans    []overlay.Span  `json:"spans,omitempty"`
	Visible  *bool           `json:"visible,omitempty"`
} // @name PanelPatchRequest

// HandlePatch updates any subset of a panel's fields.
//
//	@Summary	Patch a panel
//	@Accept		json
//	@Success	204
//	@Failure	404	{object}	apierr.Body
//	@Router		/sessions/{name}/panel/{id} [patch]
func (h *PanelHandler) HandlePatch(c *gin.Context) {
	s, ok := h.lookup(c)
	if !ok {
		return
	}
	var req PanelPatchRequest
	if err := h.BindJSON(c, &req); err != nil {
		h.SendError(c, err)
		return
	}
	if req.Position != nil && *req.Position != panel.PositionTop && *req.Position != panel.PositionBottom {
		h.SendError(c, apierr.InvalidRequest("position must be top or bottom"))
		return
	}
	id := c.Param("id")
	if !s.Panels().Patch(id, s.ScreenMode(), panel.PatchSpec{
		Position: req.Position,
		Height:   req.Height,
		Z:        req.Z,
		Spans:    req.Spans,
		Visible:  req.Visible,
	}) {
		h.SendError(c, apierr.PanelNotFound(id))
		return
	}
	h.NoContent(c)
}

// HandleDelete removes a panel, clearing focus if it held it.
//
//	@Summary	Delete a panel
//	@Success	204
//	@Failure	404	{object}	apierr.Body
//	@Router		/sessions/{name}/panel/{id} [delete]
func (h *PanelHandler) HandleDelete(c *gin.Context) {
	s, ok := h.lookup(c)
	if !ok {
		return
	}
	id := c.Param("id")
	if !s.Panels().Delete(id, s.ScreenMode()) {
		h.SendError(c, apierr.PanelNotFound(id))
		return
	}
	s.Focus().ClearIfFocused(id)
	h.NoContent(c)
}

// HandleLayout reports the computed layout for the session's panels.
//
//	@Summary	Get the computed panel layout
//	@Produce	json
//	@Success	200	{object}	panel.Layout
//	@Router		/sessions/{name}/panel_layout [get]
func (h *PanelHandler) HandleLayout(c *gin.Context) {
	s, ok := h.lookup(c)
	if !ok {
		return
	}
	cols, rows := s.Size()
	layout := panel.ComputeLayout(s.Panels().List(s.ScreenMode()), rows, cols)
	h.SendJSON(c, http.StatusOK, layout)
}
