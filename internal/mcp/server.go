package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/joescharf/issueboard/internal/board"
	"github.com/joescharf/issueboard/internal/models"
	"github.com/joescharf/issueboard/internal/store"
	"github.com/joescharf/issueboard/internal/workflow"
)

// Server exposes the board as MCP tools, acting as a single principal.
type Server struct {
	board     *board.Service
	principal models.Principal
}

// NewServer creates the MCP server wrapper. Every tool call runs as p.
func NewServer(b *board.Service, p models.Principal) *Server {
	return &Server{board: b, principal: p}
}

// MCPServer returns a configured mcp-go server with all tools registered.
func (s *Server) MCPServer() *server.MCPServer {
	srv := server.NewMCPServer("board", "1.0.0", server.WithToolCapabilities(true))

	srv.AddTool(s.listIssuesTool())
	srv.AddTool(s.checkSimilarTool())
	srv.AddTool(s.createIssueTool())
	srv.AddTool(s.confirmIssueTool())
	srv.AddTool(s.updateIssueTool())
	srv.AddTool(s.deleteIssueTool())

	return srv
}

// ServeStdio starts the stdio transport, blocking until ctx is cancelled.
func (s *Server) ServeStdio(ctx context.Context) error {
	srv := s.MCPServer()
	stdioServer := server.NewStdioServer(srv)
	return stdioServer.Listen(ctx, os.Stdin, os.Stdout)
}

// ---------------------------------------------------------------------------
// Tool definitions and handlers
// ---------------------------------------------------------------------------

// board_list_issues
func (s *Server) listIssuesTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("board_list_issues",
		mcp.WithDescription("List issues on the board, newest first. Returns a JSON object with the issues and their count."),
		mcp.WithString("status", mcp.Description("Filter by status: All, Open, In Progress, Done (default: All)")),
		mcp.WithString("priority", mcp.Description("Filter by priority: All, Low, Medium, High (default: All)")),
	)
	return tool, s.handleListIssues
}

func (s *Server) handleListIssues(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	status := request.GetString("status", "")
	priority := request.GetString("priority", "")

	issues, err := s.board.List(ctx, s.principal, status, priority)
	if err != nil {
		return toolError("failed to list issues", err), nil
	}
	if issues == nil {
		issues = []*models.Issue{}
	}
	return jsonResult(map[string]any{"issues": issues, "count": len(issues)})
}

// board_check_similar
func (s *Server) checkSimilarTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("board_check_similar",
		mcp.WithDescription("Check whether recent issues look like duplicates of a proposed title. Nothing is written."),
		mcp.WithString("title", mcp.Required(), mcp.Description("Proposed issue title")),
	)
	return tool, s.handleCheckSimilar
}

func (s *Server) handleCheckSimilar(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	title, err := request.RequireString("title")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: title"), nil
	}

	matches, err := s.board.CheckSimilar(ctx, s.principal, title)
	if err != nil {
		return toolError("failed to check similar issues", err), nil
	}
	if matches == nil {
		matches = []models.IssueRef{}
	}
	return jsonResult(map[string]any{"matches": matches})
}

// board_create_issue
func (s *Server) createIssueTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("board_create_issue",
		mcp.WithDescription("Create an issue. If similar issues already exist nothing is written; the result lists the matches and a confirm_token to pass to board_confirm_issue."),
		mcp.WithString("title", mcp.Required(), mcp.Description("Issue title")),
		mcp.WithString("description", mcp.Description("Issue description")),
		mcp.WithString("priority", mcp.Description("Issue priority: Low, Medium, High (default: Medium)")),
		mcp.WithString("status", mcp.Description("Initial status: Open, In Progress, Done (default: Open)")),
		mcp.WithString("assigned_to", mcp.Description("Assignee (default: Unassigned)")),
	)
	return tool, s.handleCreateIssue
}

func (s *Server) handleCreateIssue(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	title, err := request.RequireString("title")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: title"), nil
	}

	fields := models.IssueFields{
		Title:       title,
		Description: request.GetString("description", ""),
		AssignedTo:  request.GetString("assigned_to", ""),
	}
	if v := request.GetString("priority", ""); v != "" {
		p, err := models.ParsePriority(v)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		fields.Priority = p
	}
	if v := request.GetString("status", ""); v != "" {
		st, err := models.ParseStatus(v)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		fields.Status = st
	}

	res, err := s.board.Submit(ctx, s.principal, fields)
	if err != nil {
		return toolError("failed to create issue", err), nil
	}
	if res.State == board.PendingConfirmation {
		return jsonResult(map[string]any{
			"state":         res.State.String(),
			"matches":       res.Matches,
			"confirm_token": res.Token,
		})
	}
	return jsonResult(map[string]any{
		"state": res.State.String(),
		"issue": res.Issue,
	})
}

// board_confirm_issue
func (s *Server) confirmIssueTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("board_confirm_issue",
		mcp.WithDescription("Create an issue that board_create_issue held back because of similar issues."),
		mcp.WithString("confirm_token", mcp.Required(), mcp.Description("Token returned by board_create_issue")),
	)
	return tool, s.handleConfirmIssue
}

func (s *Server) handleConfirmIssue(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	token, err := request.RequireString("confirm_token")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: confirm_token"), nil
	}

	issue, err := s.board.Confirm(ctx, s.principal, token)
	if err != nil {
		return toolError("failed to confirm issue", err), nil
	}
	return jsonResult(issue)
}

// board_update_issue
func (s *Server) updateIssueTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("board_update_issue",
		mcp.WithDescription("Update an existing issue. Status changes follow the workflow Open -> In Progress -> Done. Returns the updated issue as JSON."),
		mcp.WithString("issue_id", mcp.Required(), mcp.Description("Issue ID")),
		mcp.WithString("title", mcp.Description("New title")),
		mcp.WithString("description", mcp.Description("New description")),
		mcp.WithString("priority", mcp.Description("New priority: Low, Medium, High")),
		mcp.WithString("status", mcp.Description("New status: Open, In Progress, Done")),
		mcp.WithString("assigned_to", mcp.Description("New assignee")),
	)
	return tool, s.handleUpdateIssue
}

func (s *Server) handleUpdateIssue(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	issueID, err := request.RequireString("issue_id")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: issue_id"), nil
	}

	args := request.GetArguments()
	var patch models.IssuePatch
	if _, ok := args["title"]; ok {
		v := request.GetString("title", "")
		patch.Title = &v
	}
	if _, ok := args["description"]; ok {
		v := request.GetString("description", "")
		patch.Description = &v
	}
	if _, ok := args["assigned_to"]; ok {
		v := request.GetString("assigned_to", "")
		patch.AssignedTo = &v
	}
	if v := request.GetString("priority", ""); v != "" {
		p, err := models.ParsePriority(v)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		patch.Priority = &p
	}
	if v := request.GetString("status", ""); v != "" {
		st, err := models.ParseStatus(v)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		patch.Status = &st
	}

	if patch.Empty() {
		return mcp.NewToolResultError("no fields provided to update; specify at least one of: title, description, priority, status, assigned_to"), nil
	}

	issue, err := s.board.Update(ctx, s.principal, issueID, patch)
	if err != nil {
		return toolError("failed to update issue", err), nil
	}
	return jsonResult(issue)
}

// board_delete_issue
func (s *Server) deleteIssueTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("board_delete_issue",
		mcp.WithDescription("Delete an issue permanently."),
		mcp.WithString("issue_id", mcp.Required(), mcp.Description("Issue ID")),
	)
	return tool, s.handleDeleteIssue
}

func (s *Server) handleDeleteIssue(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	issueID, err := request.RequireString("issue_id")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: issue_id"), nil
	}

	if err := s.board.Delete(ctx, s.principal, issueID); err != nil {
		return toolError("failed to delete issue", err), nil
	}
	return jsonResult(map[string]any{"deleted": issueID})
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// toolError turns a board failure into a tool-level error. Workflow
// rejections are passed through verbatim.
func toolError(prefix string, err error) *mcp.CallToolResult {
	var ve *workflow.ValidationError
	switch {
	case errors.As(err, &ve):
		return mcp.NewToolResultError(ve.Reason)
	case errors.Is(err, store.ErrNotFound):
		return mcp.NewToolResultError("issue not found")
	}
	return mcp.NewToolResultError(fmt.Sprintf("%s: %v", prefix, err))
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
