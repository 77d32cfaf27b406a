// Package mcp exposes the terminal server to AI agents as MCP tools over
// the streamable HTTP transport.
package mcp

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sirupsen/logrus"

	"github.com/deepgram/wsh/src/handler"
)

// Server wraps the MCP server and the shared application state.
type Server struct {
	mcpServer *mcp.Server
	state     *handler.State
}

// NewServer creates the MCP server and mounts its HTTP endpoints on the
// gin engine, behind the given middleware (the bearer auth gate).
func NewServer(state *handler.State, engine *gin.Engine, middleware ...gin.HandlerFunc) (*Server, error) {
	mcpServer := mcp.NewServer(
		&mcp.Implementation{
			Name:    "wsh terminal server",
			Version: "0.1.0",
		},
		nil,
	)

	s := &Server{mcpServer: mcpServer, state: state}
	if err := s.registerTools(); err != nil {
		return nil, fmt.Errorf("failed to register tools: %w", err)
	}

	httpHandler := mcp.NewStreamableHTTPHandler(func(req *http.Request) *mcp.Server {
		return s.mcpServer
	}, nil)
	withPath := append(append([]gin.HandlerFunc{}, middleware...), gin.WrapH(http.StripPrefix("/mcp", httpHandler)))
	engine.Any("/mcp/*path", withPath...)
	bare := append(append([]gin.HandlerFunc{}, middleware...), gin.WrapH(httpHandler))
	engine.Any("/mcp", bare...)

	logrus.Info("MCP endpoints configured at /mcp")
	return s, nil
}

// LogToolCall wraps a tool handler with call logging.
func LogToolCall[T any, R any](toolName string, h func(ctx context.Context, req *mcp.CallToolRequest, args T) (*mcp.CallToolResult, R, error)) func(context.Context, *mcp.CallToolRequest, T) (*mcp.CallToolResult, R, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, args T) (*mcp.CallToolResult, R, error) {
		start := time.Now()
		result, output, err := h(ctx, req, args)
		duration := time.Since(start)
		if err != nil {
			logrus.Errorf("Tool call failed: %s (duration: %v, error: %v)", toolName, duration, err)
			if err.Error() == "" {
				err = fmt.Errorf("tool %s failed with unknown error", toolName)
			}
		} else {
			logrus.Infof("Tool call completed: %s (duration: %v)", toolName, duration)
		}
		return result, output, err
	}
}
