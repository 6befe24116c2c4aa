// Package mcpserver exposes the run history as MCP tools over stdio.
package mcpserver

import (
	"context"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/server"

	"github.com/jwulff/ragscope/internal/db"
	"github.com/jwulff/ragscope/internal/logger"
)

// History is the read side of the run-history store.
type History interface {
	RecentRuns(ctx context.Context, limit int) ([]db.Run, error)
	GetRun(ctx context.Context, id string) (*db.Run, error)
	LatestRun(ctx context.Context) (*db.Run, error)
	StageStats(ctx context.Context) ([]db.StageStat, error)
}

// New builds the MCP server with every history tool registered.
func New(h History, log *logger.Logger, version string) *server.MCPServer {
	log = logger.OrNop(log).Named("mcp")
	now := time.Now

	s := server.NewMCPServer(
		"ragscope",
		version,
		server.WithToolCapabilities(true),
	)

	s.AddTool(listRunsTool(), handleListRuns(h, log, now))
	s.AddTool(getRunTool(), handleGetRun(h, log))
	s.AddTool(latestRunTool(), handleLatestRun(h, log))
	s.AddTool(stageStatsTool(), handleStageStats(h, log))

	return s
}

// Serve blocks serving s on stdin/stdout.
func Serve(s *server.MCPServer) error {
	if err := server.ServeStdio(s); err != nil {
		return fmt.Errorf("serve mcp: %w", err)
	}
	return nil
}
