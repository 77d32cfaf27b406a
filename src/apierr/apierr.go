// Package apierr defines the error taxonomy shared by every transport.
//
// Each error carries a machine-readable code, an HTTP status, and a
// human-readable message. Transport layers (HTTP, WebSocket JSON, MCP,
// unix socket) map errors through this single table.
package apierr

import (
	"fmt"
	"net/http"
)

// Code is a machine-readable error code string.
type Code string

const (
	CodeAuthRequired            Code = "auth_required"
	CodeAuthInvalid             Code = "auth_invalid"
	CodeOriginNotAllowed        Code = "origin_not_allowed"
	CodeNotFound                Code = "not_found"
	CodeSessionNotFound         Code = "session_not_found"
	CodeOverlayNotFound         Code = "overlay_not_found"
	CodePanelNotFound           Code = "panel_not_found"
	CodeServerNotFound          Code = "server_not_found"
	CodeNoSessions              Code = "no_sessions"
	CodeInvalidRequest          Code = "invalid_request"
	CodeInvalidOverlay          Code = "invalid_overlay"
	CodeInvalidInputMode        Code = "invalid_input_mode"
	CodeInvalidFormat           Code = "invalid_format"
	CodeSessionNameConflict     Code = "session_name_conflict"
	CodeServerAlreadyRegistered Code = "server_already_registered"
	CodeAlreadyInAltScreen      Code = "already_in_alt_screen"
	CodeNotInAltScreen          Code = "not_in_alt_screen"
	CodeQuiesceTimeout          Code = "quiesce_timeout"
	CodeChannelFull             Code = "channel_full"
	CodeMaxSessionsReached      Code = "max_sessions_reached"
	CodeParserUnavailable       Code = "parser_unavailable"
	CodeInputSendFailed         Code = "input_send_failed"
	CodeSessionCreateFailed     Code = "session_create_failed"
	CodeServerUnavailable       Code = "server_unavailable"
	CodeInternal                Code = "internal_error"
)

// Error is a structured API error. The zero value is not valid; use the
// constructors below.
type Error struct {
	code    Code
	status  int
	message string
}

func (e *Error) Error() string { return e.message }

// Code returns the machine-readable code string.
func (e *Error) Code() Code { return e.code }

// Status returns the HTTP status code.
func (e *Error) Status() int { return e.status }

// Message returns the human-readable message.
func (e *Error) Message() string { return e.message }

// Body is the JSON error envelope: {"error":{"code":..., "message":...}}.
type Body struct {
	Error BodyDetail `json:"error"`
}

type BodyDetail struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
}

// Body returns the JSON-serializable envelope for this error.
func (e *Error) Body() Body {
	return Body{Error: BodyDetail{Code: e.code, Message: e.message}}
}

func newError(code Code, status int, message string) *Error {
	return &Error{code: code, status: status, message: message}
}

func AuthRequired() *Error {
	return newError(CodeAuthRequired, http.StatusUnauthorized,
		"Authentication required. Provide a token via Authorization header or a WebSocket ticket.")
}

func AuthInvalid() *Error {
	return newError(CodeAuthInvalid, http.StatusForbidden, "Invalid authentication token.")
}

func OriginNotAllowed(origin string) *Error {
	return newError(CodeOriginNotAllowed, http.StatusForbidden,
		fmt.Sprintf("Origin not allowed: %s.", origin))
}

func NotFound() *Error {
	return newError(CodeNotFound, http.StatusNotFound, "Not found.")
}

func SessionNotFound(name string) *Error {
	return newError(CodeSessionNotFound, http.StatusNotFound,
		fmt.Sprintf("Session not found: %s.", name))
}

func OverlayNotFound(id string) *Error {
	return newError(CodeOverlayNotFound, http.StatusNotFound,
		fmt.Sprintf("No overlay exists with id '%s'.", id))
}

func PanelNotFound(id string) *Error {
	return newError(CodePanelNotFound, http.StatusNotFound,
		fmt.Sprintf("No panel exists with id '%s'.", id))
}

func ServerNotFound(hostname string) *Error {
	return newError(CodeServerNotFound, http.StatusNotFound,
		fmt.Sprintf("No server registered with hostname '%s'.", hostname))
}

func NoSessions() *Error {
	return newError(CodeNoSessions, http.StatusNotFound, "No sessions exist.")
}

func InvalidRequest(detail string) *Error {
	return newError(CodeInvalidRequest, http.StatusBadRequest,
		fmt.Sprintf("Invalid request: %s.", detail))
}

func InvalidOverlay(detail string) *Error {
	return newError(CodeInvalidOverlay, http.StatusBadRequest,
		fmt.Sprintf("Invalid overlay: %s.", detail))
}

func InvalidInputMode(detail string) *Error {
	return newError(CodeInvalidInputMode, http.StatusBadRequest,
		fmt.Sprintf("Invalid input mode: %s.", detail))
}

func InvalidFormat(detail string) *Error {
	return newError(CodeInvalidFormat, http.StatusBadRequest,
		fmt.Sprintf("Invalid format: %s.", detail))
}

func SessionNameConflict(name string) *Error {
	return newError(CodeSessionNameConflict, http.StatusConflict,
		fmt.Sprintf("Session name already exists: %s.", name))
}

func ServerAlreadyRegistered(address string) *Error {
	return newError(CodeServerAlreadyRegistered, http.StatusConflict,
		fmt.Sprintf("Server already registered: %s.", address))
}

func AlreadyInAltScreen() *Error {
	return newError(CodeAlreadyInAltScreen, http.StatusConflict,
		"Session is already in alternate screen mode.")
}

func NotInAltScreen() *Error {
	return newError(CodeNotInAltScreen, http.StatusConflict,
		"Session is not in alternate screen mode.")
}

func QuiesceTimeout() *Error {
	return newError(CodeQuiesceTimeout, http.StatusRequestTimeout,
		"Terminal did not become quiescent within the deadline.")
}

func ChannelFull() *Error {
	return newError(CodeChannelFull, http.StatusServiceUnavailable,
		"Server is overloaded. Try again shortly.")
}

func MaxSessionsReached() *Error {
	return newError(CodeMaxSessionsReached, http.StatusServiceUnavailable,
		"Maximum number of sessions reached.")
}

func ParserUnavailable() *Error {
	return newError(CodeParserUnavailable, http.StatusServiceUnavailable,
		"Terminal parser is unavailable.")
}

func InputSendFailed() *Error {
	return newError(CodeInputSendFailed, http.StatusInternalServerError,
		"Failed to send input to terminal.")
}

func SessionCreateFailed(detail string) *Error {
	return newError(CodeSessionCreateFailed, http.StatusInternalServerError,
		fmt.Sprintf("Failed to create session: %s.", detail))
}

func ServerUnavailable(hostname string) *Error {
	return newError(CodeServerUnavailable, http.StatusServiceUnavailable,
		fmt.Sprintf("Server '%s' is not healthy.", hostname))
}

func Internal(detail string) *Error {
	return newError(CodeInternal, http.StatusInternalServerError,
		fmt.Sprintf("Internal error: %s.", detail))
}

// From coerces an arbitrary error into an *Error. Already-typed errors pass
// through; anything else becomes an internal error.
func From(err error) *Error {
	if e, ok := err.(*Error); ok {
		return e
	}
	return Internal(err.Error())
}
