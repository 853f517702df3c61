package cmd

import (
	"context"
	"os/signal"

	"github.com/spf13/cobra"

	boardmcp "github.com/joescharf/issueboard/internal/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start MCP stdio server",
	Long: `Start an MCP (Model Context Protocol) server on stdio.

Tools act as the account of the saved CLI session, so run
'board login' first. Configure your MCP client with:

  {
    "mcpServers": {
      "board": { "command": "board", "args": ["mcp"] }
    }
  }

Available tools: board_list_issues, board_check_similar,
board_create_issue, board_confirm_issue, board_update_issue,
board_delete_issue`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return mcpRun()
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}

func mcpRun() error {
	ctx := context.Background()
	b, p, err := boardSession(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	ctx, stop := signal.NotifyContext(ctx, shutdownSignals()...)
	defer stop()
	return boardmcp.NewServer(b, p).ServeStdio(ctx)
}
