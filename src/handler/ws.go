package handler

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/deepgram/wsh/src/apierr"
	"github.com/deepgram/wsh/src/input"
	"github.com/deepgram/wsh/src/parser"
	"github.com/deepgram/wsh/src/session"
)

// WSHandler serves the JSON method/event WebSocket and the raw binary
// WebSocket for one session.
type WSHandler struct {
	*BaseHandler
	state    *State
	upgrader websocket.Upgrader
}

// NewWSHandler creates the WebSocket handler. Origin enforcement happens
// in the api middleware before the upgrade reaches here.
func NewWSHandler(state *State) *WSHandler {
	return &WSHandler{
		BaseHandler: NewBaseHandler(),
		state:       state,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// wsRequest is one JSON method call from the client.
type wsRequest struct {
	ID     *int64             `json:"id,omitempty"`
	Method string             `json:"method"`
	Params jsoniterRawMessage `json:"params,omitempty"`
}

type jsoniterRawMessage []byte

func (m *jsoniterRawMessage) UnmarshalJSON(data []byte) error {
	*m = append((*m)[:0], data...)
	return nil
}

func (m jsoniterRawMessage) MarshalJSON() ([]byte, error) {
	if len(m) == 0 {
		return []byte("null"), nil
	}
	return m, nil
}

// wsResponse answers one method call.
type wsResponse struct {
	ID     *int64             `json:"id,omitempty"`
	Method string             `json:"method"`
	Result any                `json:"result,omitempty"`
	Error  *apierr.BodyDetail `json:"error,omitempty"`
}

// wsConn serializes frame writes for one connection.
type wsConn struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (w *wsConn) sendJSON(v any) error {
	data, err := sessionJSON.Marshal(v)
	if err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	_ = w.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return w.conn.WriteMessage(websocket.TextMessage, data)
}

func (w *wsConn) sendBinary(data []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	_ = w.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return w.conn.WriteMessage(websocket.BinaryMessage, data)
}

// HandleJSON serves /sessions/{name}/ws/json.
func (h *WSHandler) HandleJSON(c *gin.Context) {
	name := c.Param("name")
	s, ok := h.state.Registry.Get(name)
	if !ok {
		h.SendError(c, apierr.SessionNotFound(name))
		return
	}
	raw, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logrus.Debugf("ws upgrade failed: %v", err)
		return
	}
	conn := &wsConn{conn: raw}
	defer raw.Close()

	clientID := "ws-" + uuid.New().String()
	s.AddClient(clientID)
	defer s.RemoveClient(clientID)

	ctx, cancel := context.WithCancel(s.Context())
	defer cancel()

	sub := &subscription{handler: h, sess: s, conn: conn, ctx: ctx}
	defer sub.stop()

	detach := s.SubscribeDetach()
	defer s.UnsubscribeDetach(detach)
	go func() {
		select {
		case <-detach:
			cancel()
			raw.Close()
		case <-ctx.Done():
		}
	}()

	for {
		_, data, err := raw.ReadMessage()
		if err != nil {
			return
		}
		var req wsRequest
		if err := sessionJSON.Unmarshal(data, &req); err != nil {
			_ = conn.sendJSON(wsResponse{Method: "error", Error: errDetail(apierr.InvalidRequest("malformed frame"))})
			continue
		}
		h.dispatch(ctx, s, conn, sub, clientID, req)
	}
}

func errDetail(e *apierr.Error) *apierr.BodyDetail {
	d := e.Body().Error
	return &d
}

func (h *WSHandler) dispatch(ctx context.Context, s *session.Session, conn *wsConn, sub *subscription, clientID string, req wsRequest) {
	respond := func(result any, apiErr *apierr.Error) {
		resp := wsResponse{ID: req.ID, Method: req.Method, Result: result}
		if apiErr != nil {
			resp.Result = nil
			resp.Error = errDetail(apiErr)
		}
		if err := conn.sendJSON(resp); err != nil {
			logrus.Debugf("ws response dropped: %v", err)
		}
	}

	switch req.Method {
	case "get_screen":
		var params struct {
			Format string `json:"format,omitempty"`
		}
		_ = sessionJSON.Unmarshal(req.Params, &params)
		format, err := parser.ParseFormat(params.Format)
		if err != nil {
			respond(nil, apierr.InvalidFormat(err.Error()))
			return
		}
		screen, qerr := s.Parser().Screen(ctx, format)
		if qerr != nil {
			respond(nil, apierr.ParserUnavailable())
			return
		}
		respond(screen, nil)

	case "get_scrollback":
		var params struct {
			Format string `json:"format,omitempty"`
			Offset int    `json:"offset,omitempty"`
			Limit  *int   `json:"limit,omitempty"`
		}
		_ = sessionJSON.Unmarshal(req.Params, &params)
		format, err := parser.ParseFormat(params.Format)
		if err != nil {
			respond(nil, apierr.InvalidFormat(err.Error()))
			return
		}
		limit := 100
		if params.Limit != nil {
			limit = *params.Limit
		}
		if limit > maxScrollbackLimit {
			limit = maxScrollbackLimit
		}
		scrollback, qerr := s.Parser().Scrollback(ctx, format, params.Offset, limit)
		if qerr != nil {
			respond(nil, apierr.ParserUnavailable())
			return
		}
		respond(scrollback, nil)

	case "get_input_mode":
		respond(InputModeResponse{Mode: s.InputMode().Get(), Owner: s.InputMode().Owner()}, nil)

	case "send_input":
		var params struct {
			Data     string `json:"data"`
			Encoding string `json:"encoding,omitempty"`
		}
		if err := sessionJSON.Unmarshal(req.Params, &params); err != nil {
			respond(nil, apierr.InvalidRequest("send_input requires a data field"))
			return
		}
		data := []byte(params.Data)
		if params.Encoding == "base64" {
			decoded, err := base64.StdEncoding.DecodeString(params.Data)
			if err != nil {
				respond(nil, apierr.InvalidRequest("data is not valid base64"))
				return
			}
			data = decoded
		}
		if err := s.SendInput(data); err != nil {
			if errors.Is(err, session.ErrChannelFull) {
				respond(nil, apierr.ChannelFull())
			} else {
				respond(nil, apierr.InputSendFailed())
			}
			return
		}
		respond(gin.H{"sent": len(data)}, nil)

	case "capture_input":
		var params struct {
			Owner string `json:"owner,omitempty"`
		}
		_ = sessionJSON.Unmarshal(req.Params, &params)
		owner := params.Owner
		if owner == "" {
			owner = clientID
		}
		if err := s.InputMode().Capture(owner); err != nil {
			respond(nil, apierr.From(mapInputModeError(err)))
			return
		}
		s.InputEvents().BroadcastMode(input.ModeCapture)
		respond(InputModeResponse{Mode: input.ModeCapture, Owner: owner}, nil)

	case "release_input":
		var params struct {
			Owner string `json:"owner,omitempty"`
		}
		_ = sessionJSON.Unmarshal(req.Params, &params)
		owner := params.Owner
		if owner == "" {
			owner = clientID
		}
		if err := s.InputMode().Release(owner); err != nil {
			respond(nil, apierr.From(mapInputModeError(err)))
			return
		}
		s.InputEvents().BroadcastMode(input.ModePassthrough)
		respond(InputModeResponse{Mode: input.ModePassthrough}, nil)

	case "subscribe":
		var params subscribeParams
		if err := sessionJSON.Unmarshal(req.Params, &params); err != nil {
			respond(nil, apierr.InvalidRequest("subscribe requires an events list"))
			return
		}
		format, err := parser.ParseFormat(params.Format)
		if err != nil {
			respond(nil, apierr.InvalidFormat(err.Error()))
			return
		}
		params.format = format
		if err := sub.start(params); err != nil {
			respond(nil, apierr.InvalidRequest(err.Error()))
			return
		}
		respond(gin.H{"subscribed": params.Events}, nil)

	case "await_quiesce":
		var params struct {
			TimeoutMs int     `json:"timeout_ms,omitempty"`
			MaxWaitMs int     `json:"max_wait_ms,omitempty"`
			LastSeen  *uint64 `json:"last_seen,omitempty"`
			Format    string  `json:"format,omitempty"`
		}
		_ = sessionJSON.Unmarshal(req.Params, &params)
		if params.TimeoutMs <= 0 {
			params.TimeoutMs = 2000
		}
		if params.MaxWaitMs <= 0 {
			params.MaxWaitMs = 30000
		}
		format, err := parser.ParseFormat(params.Format)
		if err != nil {
			respond(nil, apierr.InvalidFormat(err.Error()))
			return
		}
		// Run async so the connection keeps serving other methods.
		go func() {
			deadline, cancel := context.WithTimeout(ctx, time.Duration(params.MaxWaitMs)*time.Millisecond)
			defer cancel()
			gen := s.Activity().WaitForFreshIdleOrSeen(deadline, time.Duration(params.TimeoutMs)*time.Millisecond, params.LastSeen)
			if errors.Is(deadline.Err(), context.DeadlineExceeded) {
				respond(nil, apierr.QuiesceTimeout())
				return
			}
			screen, qerr := s.Parser().Screen(ctx, format)
			if qerr != nil {
				respond(nil, apierr.ParserUnavailable())
				return
			}
			respond(QuiesceResponse{Screen: screen, ScrollbackLines: screen.TotalLines, Generation: gen}, nil)
		}()

	default:
		respond(nil, apierr.InvalidRequest("unknown method "+req.Method))
	}
}

// HandleControl serves the server-level /ws/json socket used by
// federation peers as their persistent control channel. The peer pings
// every 30 s; gorilla answers pings automatically, so the handler only has
// to keep reading until the peer goes away.
func (h *WSHandler) HandleControl(c *gin.Context) {
	raw, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logrus.Debugf("ws upgrade failed: %v", err)
		return
	}
	defer raw.Close()

	done := c.Request.Context().Done()
	go func() {
		select {
		case <-done:
		case <-h.state.Ctx.Done():
		}
		raw.Close()
	}()

	for {
		if _, _, err := raw.ReadMessage(); err != nil {
			return
		}
	}
}

// HandleRaw serves /sessions/{name}/ws/raw: binary PTY passthrough.
func (h *WSHandler) HandleRaw(c *gin.Context) {
	name := c.Param("name")
	s, ok := h.state.Registry.Get(name)
	if !ok {
		h.SendError(c, apierr.SessionNotFound(name))
		return
	}
	raw, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logrus.Debugf("ws upgrade failed: %v", err)
		return
	}
	conn := &wsConn{conn: raw}
	defer raw.Close()

	clientID := "ws-raw-" + uuid.New().String()
	s.AddClient(clientID)
	defer s.RemoveClient(clientID)

	// Replay the current screen so the client starts in sync.
	if screen, err := s.Parser().Screen(c.Request.Context(), parser.FormatStyled); err == nil {
		var replay []byte
		replay = append(replay, "\x1b[0m\x1b[2J\x1b[H"...)
		for i, line := range screen.Lines {
			if i > 0 {
				replay = append(replay, '\r', '\n')
			}
			replay = append(replay, parser.LineToANSI(line)...)
		}
		_ = conn.sendBinary(replay)
	}

	output := s.Broker().Subscribe()
	defer s.Broker().Unsubscribe(output)
	detach := s.SubscribeDetach()
	defer s.UnsubscribeDetach(detach)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case chunk, ok := <-output:
				if !ok {
					return
				}
				if err := conn.sendBinary(chunk); err != nil {
					return
				}
			case <-detach:
				raw.Close()
				return
			case <-s.Context().Done():
				raw.Close()
				return
			}
		}
	}()

	for {
		msgType, data, err := raw.ReadMessage()
		if err != nil {
			break
		}
		switch msgType {
		case websocket.BinaryMessage:
			if err := s.SendInput(data); err != nil {
				logrus.Debugf("ws raw input dropped: %v", err)
			}
		case websocket.TextMessage:
			// Text frames carry control messages, currently just resize.
			var ctrl struct {
				Type string `json:"type"`
				Cols uint16 `json:"cols"`
				Rows uint16 `json:"rows"`
			}
			if err := sessionJSON.Unmarshal(data, &ctrl); err == nil && ctrl.Type == "resize" {
				if err := s.Resize(ctrl.Cols, ctrl.Rows); err != nil {
					logrus.Debugf("ws raw resize failed: %v", err)
				}
			}
		}
	}
	raw.Close()
	<-done
}
