package mcpserver

import "github.com/mark3labs/mcp-go/mcp"

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

func listRunsTool() mcp.Tool {
	return mcp.NewTool("list_runs",
		mcp.WithDescription("List recent RAG pipeline runs observed by ragscope, newest first"),
		mcp.WithNumber("limit",
			mcp.Description("Maximum runs to return (default: 20, max: 100)"),
		),
		mcp.WithString("status",
			mcp.Description("Filter by outcome: completed or error"),
			mcp.Enum("completed", "error"),
		),
	)
}

func getRunTool() mcp.Tool {
	return mcp.NewTool("get_run",
		mcp.WithDescription("Get one run with its per-stage timeline and answer"),
		mcp.WithString("run_id",
			mcp.Required(),
			mcp.Description("Run ID as returned by list_runs"),
		),
	)
}

func latestRunTool() mcp.Tool {
	return mcp.NewTool("latest_run",
		mcp.WithDescription("Get the most recently finished run"),
	)
}

func stageStatsTool() mcp.Tool {
	return mcp.NewTool("stage_stats",
		mcp.WithDescription("Average, min and max duration of each pipeline stage over completed runs"),
	)
}
