package handler

import (
	"context"

	"github.com/deepgram/wsh/src/federation"
	"github.com/deepgram/wsh/src/session"
)

// State wires sessions and federation to the transport adapters. One
// instance per server process, shared by HTTP, WebSocket, MCP and the unix
// socket.
type State struct {
	Ctx        context.Context
	Registry   *session.Registry
	Federation *federation.Manager

	// Hostname identifies this server to federation peers; ServerID is a
	// random per-process id used for self-loop detection.
	Hostname string
	ServerID string

	// ConfigPath, when set, is where backend add/remove persists the
	// federation config.
	ConfigPath string
}

// IsLocal reports whether a ?server= value targets this server. An empty
// value and the local hostname are both local.
func (s *State) IsLocal(server string) bool {
	return server == "" || server == s.Hostname
}
