package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	mcpSdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"

	"github.com/koopa0/korpus/internal/mcp"
)

var mcpFlags struct {
	userID string
}

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Run the MCP server on stdio",
	Long: `Exposes the pipeline over the Model Context Protocol on stdio, so
MCP-capable clients can search the knowledge base, ingest documents, and
delete them as tools.

The server is single-user; every tool call is scoped to --user.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMCP()
	},
}

func init() {
	mcpCmd.Flags().StringVar(&mcpFlags.userID, "user", "local", "user id every tool call is scoped to")
	rootCmd.AddCommand(mcpCmd)
}

func runMCP() error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := setup(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	server, err := mcp.NewServer(mcp.Config{
		Name:    "korpus",
		Version: AppVersion,
		UserID:  mcpFlags.userID,
	}, a.service, a.pipeline, a.logger.With("component", "mcp"))
	if err != nil {
		return fmt.Errorf("creating MCP server: %w", err)
	}

	a.logger.Info("MCP server ready", "name", "korpus", "version", AppVersion, "transport", "stdio")

	if err := server.Run(ctx, &mcpSdk.StdioTransport{}); err != nil {
		return fmt.Errorf("MCP server error: %w", err)
	}
	a.logger.Info("MCP server shut down gracefully")
	return nil
}
