package server

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"

	"github.com/ironsheep/card-canvas/internal/imaging"
	"github.com/ironsheep/card-canvas/internal/session"
	"github.com/ironsheep/card-canvas/internal/templates"
)

// Deps holds the services the MCP server exposes.
type Deps struct {
	Sessions  *session.Manager
	Templates *templates.Registry
	Loader    session.Loader
	Logger    zerolog.Logger
	Version   string
}

// Server is the MCP server.
type Server struct {
	mcp       *mcpserver.MCPServer
	sessions  *session.Manager
	templates *templates.Registry
	loader    session.Loader
	logger    zerolog.Logger
}

// New creates the server and registers every tool.
func New(deps Deps) *Server {
	version := deps.Version
	if version == "" {
		version = "dev"
	}
	s := &Server{
		sessions:  deps.Sessions,
		templates: deps.Templates,
		loader:    deps.Loader,
		logger:    deps.Logger,
	}
	s.mcp = mcpserver.NewMCPServer(
		"card-canvas",
		version,
		mcpserver.WithToolCapabilities(true),
	)
	s.mcp.AddTools(s.toolDefinitions()...)
	return s
}

// Run serves MCP on stdin/stdout until stdin closes.
func (s *Server) Run() error {
	s.logger.Info().Msg("mcp server starting on stdio")
	return mcpserver.ServeStdio(s.mcp)
}

// textResult wraps text in a tool result.
func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

// jsonResult serializes v to JSON and wraps it in a text tool result.
func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal result: %w", err)
	}
	return textResult(string(data)), nil
}

// imageResult returns img as a PNG image content preceded by a caption.
func imageResult(caption string, img image.Image) (*mcp.CallToolResult, error) {
	data, err := imaging.EncodePNG(img)
	if err != nil {
		return nil, err
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: caption},
			mcp.NewImageContent(base64.StdEncoding.EncodeToString(data), "image/png"),
		},
	}, nil
}

// errorResult reports a failed tool call to the agent.
func (s *Server) errorResult(tool string, err error) *mcp.CallToolResult {
	s.logger.Debug().Str("tool", tool).Err(err).Msg("tool failed")
	return mcp.NewToolResultError(err.Error())
}
