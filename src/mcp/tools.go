package mcp

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/deepgram/wsh/src/input"
	"github.com/deepgram/wsh/src/parser"
	"github.com/deepgram/wsh/src/session"
)

// Tool input/output types.

type ListSessionsInput struct{}

type ListSessionsOutput struct {
	Sessions []SessionInfo `json:"sessions"`
}

type SessionInfo struct {
	Name           string   `json:"name"`
	Pid            int      `json:"pid"`
	Command        string   `json:"command"`
	Rows           uint16   `json:"rows"`
	Cols           uint16   `json:"cols"`
	Clients        int      `json:"clients"`
	Tags           []string `json:"tags,omitempty"`
	LastActivityMs uint64   `json:"lastActivityMs"`
}

type CreateSessionInput struct {
	Name    string            `json:"name,omitempty" jsonschema:"Session name; auto-assigned when omitted"`
	Command string            `json:"command,omitempty" jsonschema:"Command to run; the login shell when omitted"`
	Rows    uint16            `json:"rows,omitempty" jsonschema:"Terminal rows (default 24)"`
	Cols    uint16            `json:"cols,omitempty" jsonschema:"Terminal columns (default 80)"`
	Cwd     string            `json:"cwd,omitempty" jsonschema:"Working directory"`
	Env     map[string]string `json:"env,omitempty" jsonschema:"Environment overrides"`
	Tags    []string          `json:"tags,omitempty" jsonschema:"Session tags"`
}

type CreateSessionOutput struct {
	Name string `json:"name"`
}

type SessionNameInput struct {
	Session string `json:"session" jsonschema:"Session name"`
}

type SendInputInput struct {
	Session  string `json:"session" jsonschema:"Session name"`
	Data     string `json:"data" jsonschema:"The input data to send. For utf8 encoding this is plain text; for base64 encoding it is base64-encoded binary data"`
	Encoding string `json:"encoding,omitempty" jsonschema:"utf8 (default) or base64"`
}

type SendInputOutput struct {
	Sent int `json:"sent"`
}

type GetScreenInput struct {
	Session string `json:"session" jsonschema:"Session name"`
	Format  string `json:"format,omitempty" jsonschema:"plain or styled (default styled)"`
}

type GetScrollbackInput struct {
	Session string `json:"session" jsonschema:"Session name"`
	Format  string `json:"format,omitempty" jsonschema:"plain or styled (default styled)"`
	Offset  int    `json:"offset,omitempty" jsonschema:"First line index"`
	Limit   int    `json:"limit,omitempty" jsonschema:"Maximum number of lines (default 100)"`
}

type AwaitQuiesceInput struct {
	Session   string `json:"session" jsonschema:"Session name"`
	TimeoutMs int    `json:"timeoutMs,omitempty" jsonschema:"Required silence in milliseconds (default 2000)"`
	MaxWaitMs int    `json:"maxWaitMs,omitempty" jsonschema:"Overall deadline in milliseconds (default 30000)"`
	Format    string `json:"format,omitempty" jsonschema:"plain or styled (default plain)"`
}

type AwaitQuiesceOutput struct {
	Screen          *parser.ScreenResponse `json:"screen"`
	ScrollbackLines int                    `json:"scrollbackLines"`
	Generation      uint64                 `json:"generation"`
}

type InputModeInput struct {
	Session string `json:"session" jsonschema:"Session name"`
	Mode    string `json:"mode" jsonschema:"passthrough or capture"`
	Owner   string `json:"owner,omitempty" jsonschema:"Capture owner identity (default mcp)"`
}

type InputModeOutput struct {
	Mode  string `json:"mode"`
	Owner string `json:"owner,omitempty"`
}

func (s *Server) lookup(name string) (*session.Session, error) {
	sess, ok := s.state.Registry.Get(name)
	if !ok {
		return nil, fmt.Errorf("session not found: %s", name)
	}
	return sess, nil
}

// registerTools registers every terminal tool.
func (s *Server) registerTools() error {
	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "sessionsList",
		Description: "List all terminal sessions",
	}, LogToolCall("sessionsList", func(ctx context.Context, req *mcp.CallToolRequest, _ ListSessionsInput) (*mcp.CallToolResult, ListSessionsOutput, error) {
		sessions := s.state.Registry.List()
		out := ListSessionsOutput{Sessions: make([]SessionInfo, 0, len(sessions))}
		for _, sess := range sessions {
			cols, rows := sess.Size()
			out.Sessions = append(out.Sessions, SessionInfo{
				Name:           sess.Name,
				Pid:            sess.Pid(),
				Command:        sess.Command,
				Rows:           rows,
				Cols:           cols,
				Clients:        sess.ClientCount(),
				Tags:           sess.Tags(),
				LastActivityMs: sess.Activity().LastActivityMs(),
			})
		}
		return nil, out, nil
	}))

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "sessionCreate",
		Description: "Create a new terminal session",
	}, LogToolCall("sessionCreate", func(ctx context.Context, req *mcp.CallToolRequest, in CreateSessionInput) (*mcp.CallToolResult, CreateSessionOutput, error) {
		sess, err := s.state.Registry.Create(s.state.Ctx, in.Name, session.Spec{
			Command: in.Command,
			Cwd:     in.Cwd,
			Env:     in.Env,
			Cols:    in.Cols,
			Rows:    in.Rows,
			Tags:    in.Tags,
		})
		if err != nil {
			return nil, CreateSessionOutput{}, err
		}
		return nil, CreateSessionOutput{Name: sess.Name}, nil
	}))

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "sessionKill",
		Description: "Kill a terminal session",
	}, LogToolCall("sessionKill", func(ctx context.Context, req *mcp.CallToolRequest, in SessionNameInput) (*mcp.CallToolResult, struct{}, error) {
		if !s.state.Registry.Remove(in.Session) {
			return nil, struct{}{}, fmt.Errorf("session not found: %s", in.Session)
		}
		return nil, struct{}{}, nil
	}))

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "sendInput",
		Description: "Send input to a terminal session",
	}, LogToolCall("sendInput", func(ctx context.Context, req *mcp.CallToolRequest, in SendInputInput) (*mcp.CallToolResult, SendInputOutput, error) {
		sess, err := s.lookup(in.Session)
		if err != nil {
			return nil, SendInputOutput{}, err
		}
		data := []byte(in.Data)
		switch in.Encoding {
		case "", "utf8":
		case "base64":
			decoded, decodeErr := base64.StdEncoding.DecodeString(in.Data)
			if decodeErr != nil {
				return nil, SendInputOutput{}, errors.New("data is not valid base64")
			}
			data = decoded
		default:
			return nil, SendInputOutput{}, errors.New("encoding must be utf8 or base64")
		}
		if err := sess.SendInput(data); err != nil {
			return nil, SendInputOutput{}, err
		}
		return nil, SendInputOutput{Sent: len(data)}, nil
	}))

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "getScreen",
		Description: "Get the current screen contents of a session",
	}, LogToolCall("getScreen", func(ctx context.Context, req *mcp.CallToolRequest, in GetScreenInput) (*mcp.CallToolResult, *parser.ScreenResponse, error) {
		sess, err := s.lookup(in.Session)
		if err != nil {
			return nil, nil, err
		}
		format, err := parser.ParseFormat(in.Format)
		if err != nil {
			return nil, nil, err
		}
		screen, err := sess.Parser().Screen(ctx, format)
		if err != nil {
			return nil, nil, errors.New("terminal parser is unavailable")
		}
		return nil, screen, nil
	}))

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "getScrollback",
		Description: "Get scrollback lines of a session",
	}, LogToolCall("getScrollback", func(ctx context.Context, req *mcp.CallToolRequest, in GetScrollbackInput) (*mcp.CallToolResult, *parser.ScrollbackResponse, error) {
		sess, err := s.lookup(in.Session)
		if err != nil {
			return nil, nil, err
		}
		format, err := parser.ParseFormat(in.Format)
		if err != nil {
			return nil, nil, err
		}
		limit := in.Limit
		if limit <= 0 {
			limit = 100
		}
		offset := in.Offset
		if offset < 0 {
			offset = 0
		}
		scrollback, err := sess.Parser().Scrollback(ctx, format, offset, limit)
		if err != nil {
			return nil, nil, errors.New("terminal parser is unavailable")
		}
		return nil, scrollback, nil
	}))

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "awaitQuiesce",
		Description: "Wait until the terminal has been silent for a window, then return the settled screen",
	}, LogToolCall("awaitQuiesce", func(ctx context.Context, req *mcp.CallToolRequest, in AwaitQuiesceInput) (*mcp.CallToolResult, AwaitQuiesceOutput, error) {
		sess, err := s.lookup(in.Session)
		if err != nil {
			return nil, AwaitQuiesceOutput{}, err
		}
		if in.TimeoutMs <= 0 {
			in.TimeoutMs = 2000
		}
		if in.MaxWaitMs <= 0 {
			in.MaxWaitMs = 30000
		}
		if in.Format == "" {
			in.Format = "plain"
		}
		format, err := parser.ParseFormat(in.Format)
		if err != nil {
			return nil, AwaitQuiesceOutput{}, err
		}
		deadline, cancel := context.WithTimeout(ctx, time.Duration(in.MaxWaitMs)*time.Millisecond)
		defer cancel()
		gen := sess.Activity().WaitForFreshIdle(deadline, time.Duration(in.TimeoutMs)*time.Millisecond)
		if errors.Is(deadline.Err(), context.DeadlineExceeded) {
			return nil, AwaitQuiesceOutput{}, errors.New("terminal did not become quiescent within the deadline")
		}
		screen, err := sess.Parser().Screen(ctx, format)
		if err != nil {
			return nil, AwaitQuiesceOutput{}, errors.New("terminal parser is unavailable")
		}
		return nil, AwaitQuiesceOutput{
			Screen:          screen,
			ScrollbackLines: screen.TotalLines,
			Generation:      gen,
		}, nil
	}))

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "setInputMode",
		Description: "Switch a session between passthrough and capture input modes",
	}, LogToolCall("setInputMode", func(ctx context.Context, req *mcp.CallToolRequest, in InputModeInput) (*mcp.CallToolResult, InputModeOutput, error) {
		sess, err := s.lookup(in.Session)
		if err != nil {
			return nil, InputModeOutput{}, err
		}
		owner := in.Owner
		if owner == "" {
			owner = "mcp"
		}
		switch in.Mode {
		case string(input.ModeCapture):
			if err := sess.InputMode().Capture(owner); err != nil {
				return nil, InputModeOutput{}, err
			}
			sess.InputEvents().BroadcastMode(input.ModeCapture)
		case string(input.ModePassthrough):
			if err := sess.InputMode().Release(owner); err != nil {
				return nil, InputModeOutput{}, err
			}
			sess.InputEvents().BroadcastMode(input.ModePassthrough)
		default:
			return nil, InputModeOutput{}, errors.New("mode must be passthrough or capture")
		}
		return nil, InputModeOutput{
			Mode:  string(sess.InputMode().Get()),
			Owner: sess.InputMode().Owner(),
		}, nil
	}))

	s.registerOverlayTools()
	return nil
}
