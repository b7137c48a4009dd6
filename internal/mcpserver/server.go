// Package mcpserver provides an MCP (Model Context Protocol) server
// that lets an LLM play codebook challenges over stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/navigator/codebook/internal/apperr"
	"github.com/navigator/codebook/internal/challenge"
	"github.com/navigator/codebook/internal/scenario"
	"github.com/navigator/codebook/internal/session"
)

const referenceURI = "codebook://command-reference"

// Server wraps the MCP server with codebook tools.
type Server struct {
	mcp      *server.MCPServer
	sessions *session.Manager
	catalog  *scenario.Catalog
}

// New creates a new MCP server with all codebook tools registered.
func New(sessions *session.Manager, catalog *scenario.Catalog, version string) *Server {
	s := &Server{sessions: sessions, catalog: catalog}

	s.mcp = server.NewMCPServer(
		"Codebook",
		version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("list_scenarios",
		mcp.WithDescription("List the available challenge scenarios with their objectives and evidence files."),
	), s.listScenarios)

	s.mcp.AddTool(mcp.NewTool("start_session",
		mcp.WithDescription("Start a terminal session for a challenge. Returns the session id and status. "+
			"Read the codebook://command-reference resource first."),
		mcp.WithString("challenge_id", mcp.Required(), mcp.Description("Challenge id from list_scenarios")),
		mcp.WithString("user_id", mcp.Description("Optional learner id to credit on completion")),
	), s.startSession)

	s.mcp.AddTool(mcp.NewTool("run_command",
		mcp.WithDescription("Run one line in a session terminal and return its output."),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Session id from start_session")),
		mcp.WithString("line", mcp.Required(), mcp.Description("Command line, e.g. grep password crew_passwords.txt")),
	), s.runCommand)

	s.mcp.AddTool(mcp.NewTool("download_evidence",
		mcp.WithDescription("Download an evidence file. This also unlocks it for cat, grep and analyze."),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Session id")),
		mcp.WithString("filename", mcp.Required(), mcp.Description("Evidence filename")),
	), s.downloadEvidence)

	s.mcp.AddTool(mcp.NewTool("request_hint",
		mcp.WithDescription("Reveal the next progressive hint of the session's challenge."),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Session id")),
	), s.requestHint)

	s.mcp.AddTool(mcp.NewTool("session_status",
		mcp.WithDescription("Objectives, evidence and hint usage of a session."),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Session id")),
	), s.sessionStatus)

	// Resource: terminal command reference.
	s.mcp.AddResource(
		mcp.NewResource(referenceURI, "Terminal Command Reference",
			mcp.WithResourceDescription("Commands, flow and output conventions of the challenge terminal."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readCommandReference,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}

func toolError(err error) *mcp.CallToolResult {
	switch {
	case errors.Is(err, apperr.ErrDegraded):
		return mcp.NewToolResultError(challenge.DegradedMessage)
	case errors.Is(err, apperr.ErrNoMoreHints):
		return mcp.NewToolResultError("No more hints available")
	}
	return mcp.NewToolResultError(err.Error())
}

func (s *Server) listScenarios(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	items, err := s.catalog.List()
	if err != nil {
		return toolError(err), nil
	}
	if len(items) == 0 {
		return mcp.NewToolResultText("no scenarios found"), nil
	}
	return jsonResult(items)
}

func (s *Server) startSession(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("challenge_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	user := req.GetString("user_id", "")
	v, err := s.sessions.Create(ctx, challenge.PageContext{ChallengeID: id}, user)
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(v)
}

func (s *Server) runCommand(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("session_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	line, err := req.RequireString("line")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	res, _, err := s.sessions.Dispatch(ctx, id, line)
	if err != nil {
		return toolError(err), nil
	}
	text := res.Text()
	if text == "" {
		text = "(no output)"
	}
	return mcp.NewToolResultText(text), nil
}

func (s *Server) downloadEvidence(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("session_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	filename, err := req.RequireString("filename")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	d, err := s.sessions.Download(id, filename)
	if err != nil {
		return toolError(err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("%s\n\n%s", strings.Join(d.Lines, "\n"), d.Content)), nil
}

func (s *Server) requestHint(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("session_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	h, err := s.sessions.Hint(id)
	if err != nil {
		return toolError(err), nil
	}
	return mcp.NewToolResultText(h.Text), nil
}

func (s *Server) sessionStatus(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("session_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	v, err := s.sessions.Get(id)
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(v)
}

func (s *Server) readCommandReference(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      referenceURI,
			MIMEType: "text/markdown",
			Text:     CommandReference,
		},
	}, nil
}
