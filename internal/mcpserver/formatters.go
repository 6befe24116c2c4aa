package mcpserver

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/jwulff/ragscope/internal/db"
	"github.com/jwulff/ragscope/internal/timing"
)

func formatRunList(runs []db.Run, now time.Time) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("## Recent runs (%d)\n\n", len(runs)))

	if len(runs) == 0 {
		sb.WriteString("No runs recorded yet.\n")
		return sb.String()
	}

	sb.WriteString("| ID | Finished | Status | Total | Query |\n")
	sb.WriteString("|---|---|---|---|---|\n")
	for _, r := range runs {
		sb.WriteString(fmt.Sprintf("| %s | %s | %s | %s | %s |\n",
			r.ID,
			humanize.RelTime(r.FinishedAt, now, "ago", "from now"),
			r.Status,
			timing.FormatSeconds(r.TotalMs),
			tableCell(r.Query, 80),
		))
	}
	return sb.String()
}

func formatRun(r *db.Run) string {
	var sb strings.Builder

	title := r.Query
	if title == "" {
		title = "(unknown query)"
	}
	sb.WriteString(fmt.Sprintf("# %s\n\n", title))
	sb.WriteString(fmt.Sprintf("**ID:** %s\n", r.ID))
	sb.WriteString(fmt.Sprintf("**Pipeline:** %s\n", r.PipelineType))
	sb.WriteString(fmt.Sprintf("**Status:** %s\n", r.Status))
	if r.ReceivedAt != nil {
		sb.WriteString(fmt.Sprintf("**Received:** %s\n", r.ReceivedAt.Format(time.RFC3339)))
	}
	sb.WriteString(fmt.Sprintf("**Finished:** %s\n", r.FinishedAt.Format(time.RFC3339)))
	sb.WriteString(fmt.Sprintf("**Total:** %s\n\n", timing.FormatSeconds(r.TotalMs)))

	if r.Error != "" {
		sb.WriteString(fmt.Sprintf("**Error:** %s\n\n", r.Error))
	}

	tl := r.Timeline()
	sb.WriteString("## Timeline\n\n")
	sb.WriteString("| Stage | Start | End | Duration | Share |\n")
	sb.WriteString("|---|---|---|---|---|\n")
	for _, seg := range tl.Segments {
		sb.WriteString(fmt.Sprintf("| %s | %s | %s | %s | %s |\n",
			seg.Stage.Label(),
			timing.FormatMs(seg.StartMs),
			timing.FormatMs(seg.EndMs),
			timing.FormatMs(seg.DurationMs),
			timing.FormatPercent(seg.Percent),
		))
	}
	if tl.Empty() {
		sb.WriteString("| (no stage timings) | | | | |\n")
	}
	sb.WriteString("\n")

	if r.Answer != "" {
		sb.WriteString("## Answer\n\n")
		sb.WriteString(r.Answer)
		sb.WriteString("\n")
	}
	return sb.String()
}

func formatStageStats(stats []db.StageStat) string {
	var sb strings.Builder
	sb.WriteString("## Stage durations (completed runs)\n\n")
	sb.WriteString("| Stage | Runs | Avg | Min | Max |\n")
	sb.WriteString("|---|---|---|---|---|\n")
	for _, s := range stats {
		if s.Runs == 0 {
			sb.WriteString(fmt.Sprintf("| %s | 0 | - | - | - |\n", s.Stage.Label()))
			continue
		}
		sb.WriteString(fmt.Sprintf("| %s | %d | %s | %s | %s |\n",
			s.Stage.Label(),
			s.Runs,
			timing.FormatMs(s.AvgMs),
			timing.FormatMs(s.MinMs),
			timing.FormatMs(s.MaxMs),
		))
	}
	return sb.String()
}

// tableCell flattens s for a markdown table and caps it at n runes.
func tableCell(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	s = strings.ReplaceAll(s, "|", `\|`)
	r := []rune(s)
	if len(r) > n {
		return string(r[:n]) + "..."
	}
	return s
}
