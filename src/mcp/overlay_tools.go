package mcp

import (
	"context"
	"errors"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/deepgram/wsh/src/overlay"
	"github.com/deepgram/wsh/src/panel"
)

type OverlayCreateInput struct {
	Session   string         `json:"session" jsonschema:"Session name"`
	X         uint16         `json:"x,omitempty" jsonschema:"Column of the top-left corner"`
	Y         uint16         `json:"y,omitempty" jsonschema:"Row of the top-left corner"`
	Z         *int           `json:"z,omitempty" jsonschema:"Stacking order; auto-assigned when omitted"`
	Width     uint16         `json:"width" jsonschema:"Width in cells"`
	Height    uint16         `json:"height" jsonschema:"Height in cells"`
	Spans     []overlay.Span `json:"spans,omitempty" jsonschema:"Styled text spans"`
	Focusable bool           `json:"focusable,omitempty" jsonschema:"Whether the overlay can take focus"`
}

type IDOutput struct {
	ID string `json:"id"`
}

type OverlayListInput struct {
	Session string `json:"session" jsonschema:"Session name"`
}

type OverlayListOutput struct {
	Overlays []overlay.Overlay `json:"overlays"`
}

type OverlayDeleteInput struct {
	Session string `json:"session" jsonschema:"Session name"`
	ID      string `json:"id" jsonschema:"Overlay id"`
}

type PanelCreateInput struct {
	Session   string         `json:"session" jsonschema:"Session name"`
	Position  string         `json:"position" jsonschema:"top or bottom"`
	Height    uint16         `json:"height" jsonschema:"Height in rows"`
	Z         *int           `json:"z,omitempty" jsonschema:"Stacking order; auto-assigned when omitted"`
	Spans     []overlay.Span `json:"spans,omitempty" jsonschema:"Styled text spans"`
	Focusable bool           `json:"focusable,omitempty" jsonschema:"Whether the panel can take focus"`
}

type PanelListInput struct {
	Session string `json:"session" jsonschema:"Session name"`
}

type PanelListOutput struct {
	Panels []panel.Panel `json:"panels"`
}

type PanelDeleteInput struct {
	Session string `json:"session" jsonschema:"Session name"`
	ID      string `json:"id" jsonschema:"Panel id"`
}

// registerOverlayTools registers overlay and panel drawing tools.
func (s *Server) registerOverlayTools() {
	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "overlayCreate",
		Description: "Draw an overlay on top of a session's terminal content",
	}, LogToolCall("overlayCreate", func(ctx context.Context, req *mcp.CallToolRequest, in OverlayCreateInput) (*mcp.CallToolResult, IDOutput, error) {
		sess, err := s.lookup(in.Session)
		if err != nil {
			return nil, IDOutput{}, err
		}
		if in.Width == 0 || in.Height == 0 {
			return nil, IDOutput{}, errors.New("width and height must be positive")
		}
		id := sess.Overlays().Create(overlay.CreateSpec{
			X: in.X, Y: in.Y, Z: in.Z, Width: in.Width, Height: in.Height,
			Spans: in.Spans, Focusable: in.Focusable,
		}, sess.ScreenMode())
		return nil, IDOutput{ID: id}, nil
	}))

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "overlayList",
		Description: "List overlays visible in the session's current screen mode",
	}, LogToolCall("overlayList", func(ctx context.Context, req *mcp.CallToolRequest, in OverlayListInput) (*mcp.CallToolResult, OverlayListOutput, error) {
		sess, err := s.lookup(in.Session)
		if err != nil {
			return nil, OverlayListOutput{}, err
		}
		return nil, OverlayListOutput{Overlays: sess.Overlays().List(sess.ScreenMode())}, nil
	}))

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "overlayDelete",
		Description: "Delete an overlay",
	}, LogToolCall("overlayDelete", func(ctx context.Context, req *mcp.CallToolRequest, in OverlayDeleteInput) (*mcp.CallToolResult, struct{}, error) {
		sess, err := s.lookup(in.Session)
		if err != nil {
			return nil, struct{}{}, err
		}
		if !sess.Overlays().Delete(in.ID, sess.ScreenMode()) {
			return nil, struct{}{}, fmt.Errorf("no overlay exists with id %q", in.ID)
		}
		sess.Focus().ClearIfFocused(in.ID)
		return nil, struct{}{}, nil
	}))

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "panelCreate",
		Description: "Create a panel that reserves rows at the top or bottom of a session's terminal",
	}, LogToolCall("panelCreate", func(ctx context.Context, req *mcp.CallToolRequest, in PanelCreateInput) (*mcp.CallToolResult, IDOutput, error) {
		sess, err := s.lookup(in.Session)
		if err != nil {
			return nil, IDOutput{}, err
		}
		pos := panel.Position(in.Position)
		if pos != panel.PositionTop && pos != panel.PositionBottom {
			return nil, IDOutput{}, errors.New("position must be top or bottom")
		}
		if in.Height == 0 {
			return nil, IDOutput{}, errors.New("height must be positive")
		}
		id := sess.Panels().Create(panel.CreateSpec{
			Position: pos, Height: in.Height, Z: in.Z,
			Spans: in.Spans, Focusable: in.Focusable,
		}, sess.ScreenMode())
		return nil, IDOutput{ID: id}, nil
	}))

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "panelList",
		Description: "List panels visible in the session's current screen mode",
	}, LogToolCall("panelList", func(ctx context.Context, req *mcp.CallToolRequest, in PanelListInput) (*mcp.CallToolResult, PanelListOutput, error) {
		sess, err := s.lookup(in.Session)
		if err != nil {
			return nil, PanelListOutput{}, err
		}
		return nil, PanelListOutput{Panels: sess.Panels().List(sess.ScreenMode())}, nil
	}))

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "panelDelete",
		Description: "Delete a panel",
	}, LogToolCall("panelDelete", func(ctx context.Context, req *mcp.CallToolRequest, in PanelDeleteInput) (*mcp.CallToolResult, struct{}, error) {
		sess, err := s.lookup(in.Session)
		if err != nil {
			return nil, struct{}{}, err
		}
		if !sess.Panels().Delete(in.ID, sess.ScreenMode()) {
			return nil, struct{}{}, fmt.Errorf("no panel exists with id %q", in.ID)
		}
		sess.Focus().ClearIfFocused(in.ID)
		return nil, struct{}{}, nil
	}))
}
