// Package handler implements the HTTP and WebSocket API surface over
// sessions and federation.
package handler

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/deepgram/wsh/src/apierr"
)

// BaseHandler provides common functionality for both MCP and API handlers.
type BaseHandler struct{}

// NewBaseHandler creates a new base handler.
func NewBaseHandler() *BaseHandler {
	return &BaseHandler{}
}

// SendError renders an error through the shared taxonomy: the status comes
// from the error, the body is {"error":{"code","message"}}.
func (h *BaseHandler) SendError(c *gin.Context, err error) {
	e := apierr.From(err)
	c.JSON(e.Status(), e.Body())
}

// SendJSON sends a JSON response with the given status code.
func (h *BaseHandler) SendJSON(c *gin.Context, status int, data interface{}) {
	c.JSON(status, data)
}

// GetPathParam gets a path parameter and errors if it is missing.
func (h *BaseHandler) GetPathParam(c *gin.Context, param string) (string, error) {
	value := c.Param(param)
	if value == "" {
		return "", fmt.Errorf("missing required path parameter: %s", param)
	}
	return value, nil
}

// GetQueryParam gets a query parameter with a default value.
func (h *BaseHandler) GetQueryParam(c *gin.Context, param string, defaultValue string) string {
	value := c.Query(param)
	if value == "" {
		return defaultValue
	}
	return value
}

// BindJSON binds the request body to a struct.
func (h *BaseHandler) BindJSON(c *gin.Context, obj interface{}) error {
	if err := c.ShouldBindJSON(obj); err != nil {
		return apierr.InvalidRequest("malformed request body")
	}
	return nil
}

// NoContent responds 204.
func (h *BaseHandler) NoContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}
