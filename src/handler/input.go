package handler

import (
	"encoding/base64"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/deepgram/wsh/src/apierr"
	"github.com/deepgram/wsh/src/input"
	"github.com/deepgram/wsh/src/session"
)

// maxInputBody bounds one input POST.
const maxInputBody = 1 << 20

// InputHandler serves input routing routes: raw input, mode reads, and
// capture/release.
type InputHandler struct {
	*BaseHandler
	state *State
}

// NewInputHandler creates the input handler.
func NewInputHandler(state *State) *InputHandler {
	return &InputHandler{BaseHandler: NewBaseHandler(), state: state}
}

func (h *InputHandler) lookup(c *gin.Context) (*session.Session, bool) {
	name := c.Param("name")
	s, ok := h.state.Registry.Get(name)
	if !ok {
		h.SendError(c, apierr.SessionNotFound(name))
		return nil, false
	}
	return s, true
}

// HandleSendInput writes the raw request body to the session input path.
// ?encoding=base64 decodes the body first.
//
//	@Summary	Send input bytes
//	@Success	204
//	@Failure	404	{object}	apierr.Body
//	@Failure	503	{object}	apierr.Body
//	@Router		/sessions/{name}/input [post]
func (h *InputHandler) HandleSendInput(c *gin.Context) {
	s, ok := h.lookup(c)
	if !ok {
		return
	}
	data, err := io.ReadAll(io.LimitReader(c.Request.Body, maxInputBody))
	if err != nil {
		h.SendError(c, apierr.InvalidRequest("unreadable request body"))
		return
	}
	switch c.Query("encoding") {
	case "", "utf8":
	case "base64":
		decoded, err := base64.StdEncoding.DecodeString(string(data))
		if err != nil {
			h.SendError(c, apierr.InvalidRequest("body is not valid base64"))
			return
		}
		data = decoded
	default:
		h.SendError(c, apierr.InvalidRequest("encoding must be utf8 or base64"))
		return
	}

	if err := s.SendInput(data); err != nil {
		if errors.Is(err, session.ErrChannelFull) {
			h.SendError(c, apierr.ChannelFull())
		} else {
			h.SendError(c, apierr.InputSendFailed())
		}
		return
	}
	h.NoContent(c)
}

// InputModeResponse is the JSON shape of the input mode.
type InputModeResponse struct {
	Mode  input.Mode `json:"mode"`
	Owner string     `json:"owner,omitempty"`
} // @name InputModeResponse

// HandleGetInputMode reads the current input mode.
//
//	@Summary	Get the input mode
//	@Produce	json
//	@Success	200	{object}	InputModeResponse
//	@Router		/sessions/{name}/input/mode [get]
func (h *InputHandler) HandleGetInputMode(c *gin.Context) {
	s, ok := h.lookup(c)
	if !ok {
		return
	}
	h.SendJSON(c, http.StatusOK, InputModeResponse{
		Mode:  s.InputMode().Get(),
		Owner: s.InputMode().Owner(),
	})
}

// CaptureRequest is the body of capture/release calls.
type CaptureRequest struct {
	Owner string `json:"owner"`
} // @name CaptureRequest

// HandleCapture switches the session to capture mode for the given owner.
//
//	@Summary	Capture input
//	@Accept		json
//	@Produce	json
//	@Success	200	{object}	InputModeResponse
//	@Failure	400	{object}	apierr.Body
//	@Router		/sessions/{name}/input/capture [post]
func (h *InputHandler) HandleCapture(c *gin.Context) {
	s, ok := h.lookup(c)
	if !ok {
		return
	}
	var req CaptureRequest
	if err := h.BindJSON(c, &req); err != nil {
		h.SendError(c, err)
		return
	}
	if req.Owner == "" {
		h.SendError(c, apierr.InvalidInputMode("owner must not be empty"))
		return
	}
	if err := s.InputMode().Capture(req.Owner); err != nil {
		h.SendError(c, mapInputModeError(err))
		return
	}
	s.InputEvents().BroadcastMode(input.ModeCapture)
	h.SendJSON(c, http.StatusOK, InputModeResponse{Mode: input.ModeCapture, Owner: req.Owner})
}

// HandleRelease returns the session to passthrough mode.
//
//	@Summary	Release input capture
//	@Accept		json
//	@Produce	json
//	@Success	200	{object}	InputModeResponse
//	@Failure	400	{object}	apierr.Body
//	@Router		/sessions/{name}/input/release [post]
func (h *InputHandler) HandleRelease(c *gin.Context) {
	s, ok := h.lookup(c)
	if !ok {
		return
	}
	var req CaptureRequest
	if err := h.BindJSON(c, &req); err != nil {
		h.SendError(c, err)
		return
	}
	if err := s.InputMode().Release(req.Owner); err != nil {
		h.SendError(c, mapInputModeError(err))
		return
	}
	s.InputEvents().BroadcastMode(input.ModePassthrough)
	h.SendJSON(c, http.StatusOK, InputModeResponse{Mode: input.ModePassthrough})
}

func mapInputModeError(err error) error {
	var captured *input.AlreadyCapturedError
	if errors.As(err, &captured) {
		return apierr.InvalidInputMode("already captured by " + captured.Owner)
	}
	if errors.Is(err, input.ErrNotOwner) {
		return apierr.InvalidInputMode("caller is not the capture owner")
	}
	return apierr.InvalidInputMode(err.Error())
}
