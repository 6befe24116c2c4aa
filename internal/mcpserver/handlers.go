package mcpserver

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/jwulff/ragscope/internal/db"
	"github.com/jwulff/ragscope/internal/logger"
)

func textResult(s string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.NewTextContent(s)},
	}
}

func errorResult(s string) *mcp.CallToolResult {
	r := textResult(s)
	r.IsError = true
	return r
}

func handleListRuns(h History, log *logger.Logger, now func() time.Time) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		limit := request.GetInt("limit", defaultListLimit)
		if limit <= 0 {
			limit = defaultListLimit
		}
		if limit > maxListLimit {
			limit = maxListLimit
		}
		status := request.GetString("status", "")

		// Over-fetch when filtering so the limit applies to matching runs.
		fetch := limit
		if status != "" {
			fetch = maxListLimit * 5
		}
		runs, err := h.RecentRuns(ctx, fetch)
		if err != nil {
			log.Error("list runs failed", zap.Error(err))
			return errorResult(fmt.Sprintf("History error: %v", err)), nil
		}

		if status != "" {
			filtered := runs[:0]
			for _, r := range runs {
				if r.Status == status {
					filtered = append(filtered, r)
				}
			}
			runs = filtered
		}
		if len(runs) > limit {
			runs = runs[:limit]
		}

		return textResult(formatRunList(runs, now())), nil
	}
}

func handleGetRun(h History, log *logger.Logger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := request.RequireString("run_id")
		if err != nil || id == "" {
			return errorResult("Error: run_id parameter is required"), nil
		}

		run, err := h.GetRun(ctx, id)
		if errors.Is(err, db.ErrNotFound) {
			return errorResult(fmt.Sprintf("Run not found: %s", id)), nil
		}
		if err != nil {
			log.Error("get run failed", zap.String("run_id", id), zap.Error(err))
			return errorResult(fmt.Sprintf("History error: %v", err)), nil
		}

		return textResult(formatRun(run)), nil
	}
}

func handleLatestRun(h History, log *logger.Logger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		run, err := h.LatestRun(ctx)
		if errors.Is(err, db.ErrNotFound) {
			return textResult("No runs recorded yet."), nil
		}
		if err != nil {
			log.Error("latest run failed", zap.Error(err))
			return errorResult(fmt.Sprintf("History error: %v", err)), nil
		}

		return textResult(formatRun(run)), nil
	}
}

func handleStageStats(h History, log *logger.Logger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		stats, err := h.StageStats(ctx)
		if err != nil {
			log.Error("stage stats failed", zap.Error(err))
			return errorResult(fmt.Sprintf("History error: %v", err)), nil
		}
		return textResult(formatStageStats(stats)), nil
	}
}
