package app

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/jwulff/ragscope/internal/db"
	"github.com/jwulff/ragscope/internal/markdown"
	"github.com/jwulff/ragscope/internal/pipeline"
	"github.com/jwulff/ragscope/internal/stream"
	"github.com/jwulff/ragscope/internal/timing"
	"github.com/jwulff/ragscope/internal/ui"
)

// View renders the full TUI.
func (m Model) View() string {
	if m.width == 0 {
		return "Initializing..."
	}

	var sections []string

	sections = append(sections, m.renderHeader())
	sections = append(sections, m.renderStatusBar())
	sections = append(sections, ui.DividerStyle.Render(strings.Repeat("─", m.width)))

	// Main content: history | pipeline
	sections = append(sections, m.renderMainContent())

	sections = append(sections, ui.DividerStyle.Render(strings.Repeat("─", m.width)))

	if m.errorMessage != "" {
		sections = append(sections, m.renderErrorBar())
	}

	sections = append(sections, m.renderFooter())

	return strings.Join(sections, "\n")
}

func (m Model) renderHeader() string {
	title := ui.TitleStyle.Render("RAGSCOPE")
	if m.opts.URL == "" {
		return title
	}
	return title + ui.HeaderStyle.Render(" - "+m.opts.URL)
}

func (m Model) renderStatusBar() string {
	var dot string
	switch m.board.conn {
	case stream.StateConnected:
		dot = ui.ConnectedDotStyle.Render("● CONNECTED")
	case stream.StateConnecting:
		dot = ui.PendingDotStyle.Render("◌ CONNECTING")
	case stream.StateReconnecting:
		dot = ui.PendingDotStyle.Render(fmt.Sprintf("◌ RECONNECTING (%d)", m.attempts))
	case stream.StateFailed:
		dot = ui.FailedDotStyle.Render("✗ FAILED")
	default:
		dot = ui.IdleDotStyle.Render("○ DISCONNECTED")
	}

	var run string
	switch m.board.status {
	case pipeline.RunProcessing:
		run = "  " + ui.SpinnerStyle.Render("⟳ processing")
	case pipeline.RunCompleted:
		run = "  " + ui.StageDoneStyle.Render("✓ completed")
	case pipeline.RunError:
		run = "  " + ui.StageErrorStyle.Render("✗ error")
	}

	var runs string
	if len(m.history) > 0 {
		runs = "  " + ui.StatusStyle.Render(fmt.Sprintf("%d runs", len(m.history)))
	}
	return dot + run + runs
}

func (m Model) renderMainContent() string {
	historyW := m.historyPanelWidth()
	pipelineW := m.pipelinePanelWidth()
	contentH := m.contentHeight()

	historyLines := strings.Split(m.renderHistoryPanel(historyW, contentH), "\n")
	pipelineLines := strings.Split(m.renderPipelinePanel(pipelineW, contentH), "\n")

	divider := ui.DividerStyle.Render("│")

	var rows []string
	for i := 0; i < contentH; i++ {
		left := strings.Repeat(" ", historyW)
		if i < len(historyLines) {
			left = historyLines[i]
		}
		right := ""
		if i < len(pipelineLines) {
			right = pipelineLines[i]
		}
		rows = append(rows, left+divider+" "+right)
	}
	return strings.Join(rows, "\n")
}

func (m Model) renderHistoryPanel(width, height int) string {
	title := fmt.Sprintf("HISTORY (%d)", len(m.history))
	var header string
	if m.focusedPanel == FocusHistory {
		header = ui.PanelTitleActiveStyle.Render(title)
	} else {
		header = ui.PanelTitleStyle.Render(title)
	}

	lines := []string{header}
	if len(m.history) == 0 {
		lines = append(lines, ui.DimStyle.Render("  No runs yet..."))
		lines = append(lines, ui.DimStyle.Render("  Finished queries appear here"))
	}

	now := time.Now()
	for i, r := range m.history {
		icon := statusIcon(pipeline.ParseRunStatus(r.Status))
		text := r.Query
		if text == "" {
			text = "(no query)"
		}

		var line string
		if i == m.selectedRun && m.focusedPanel == FocusHistory {
			line = ui.SelectedStyle.Render("> ") + icon + " " + ui.SelectedStyle.Render(truncateToWidth(text, width-4))
		} else {
			line = "  " + icon + " " + truncateToWidth(text, width-4)
		}
		lines = append(lines, line)
		lines = append(lines, ui.DimStyle.Render(truncateToWidth("    "+historyMeta(r, now), width)))
	}

	if len(lines) > height {
		lines = lines[:height]
	}
	for i, l := range lines {
		lines[i] = padRight(l, width)
	}
	return strings.Join(lines, "\n")
}

func historyMeta(r db.Run, now time.Time) string {
	return timing.FormatSeconds(r.TotalMs) + " · " + humanize.RelTime(r.FinishedAt, now, "ago", "from now")
}

func (m Model) renderPipelinePanel(width, height int) string {
	b := m.displayed()

	var badge string
	title := "PIPELINE"
	if m.viewingRun {
		title = "RUN"
		badge = ui.DimStyle.Render("  esc to return")
	} else if b.status == pipeline.RunProcessing {
		badge = ui.LiveBadgeStyle.Render(" LIVE")
	}
	var header string
	if m.focusedPanel == FocusPipeline {
		header = ui.PanelTitleActiveStyle.Render(title)
	} else {
		header = ui.PanelTitleStyle.Render(title)
	}

	lines := []string{header + badge, renderQueryLine(b.query, width), ""}

	for _, s := range pipeline.Stages() {
		lines = append(lines, renderStageRow(b.stages[s], width))
	}
	lines = append(lines, "", renderMetricRow(b.metrics))

	lines = append(lines, "", ui.PanelTitleStyle.Render("TIMELINE")+ui.DimStyle.Render("  total "+b.timeline.TotalDisplay()))
	lines = append(lines, renderTimelineBar(b.timeline, width-2))
	lines = append(lines, renderBreakdown(b.timeline))

	lines = append(lines, "", ui.PanelTitleStyle.Render("ANSWER"))
	if b.status == pipeline.RunError {
		lines = append(lines, ui.ErrorStyle.Render("Error: ")+ui.ErrorTextStyle.Render(truncateToWidth(b.message, width-8)))
	}
	answer := m.answerLines(b)
	if len(answer) == 0 && b.status != pipeline.RunError {
		lines = append(lines, ui.DimStyle.Render("No answer yet"))
	}
	room := height - len(lines)
	if room > 0 && len(answer) > 0 {
		start := min(m.answerScroll, len(answer)-1)
		end := min(len(answer), start+room)
		lines = append(lines, answer[start:end]...)
	}

	if len(lines) > height {
		lines = lines[:height]
	}
	return strings.Join(lines, "\n")
}

func (m Model) answerLines(b *board) []string {
	if strings.TrimSpace(b.answer) == "" {
		return nil
	}
	return markdown.Render(b.answer, m.pipelinePanelWidth()-2, markdown.DefaultStyles())
}

func renderQueryLine(q pipeline.QueryContext, width int) string {
	if !q.Known() {
		return ui.DimStyle.Render("Waiting for query...")
	}
	suffix := "  " + ui.PipelineTypeStyle.Render("["+q.PipelineType+"]")
	if !q.ReceivedAt.IsZero() {
		suffix += " " + ui.TimestampStyle.Render(q.ReceivedAt.Format("15:04:05"))
	}
	text := truncateToWidth(`"`+q.Text+`"`, max(10, width-lipgloss.Width(suffix)))
	return text + suffix
}

func stageIcon(s pipeline.StageState) string {
	switch s {
	case pipeline.StageActive:
		return ui.StageActiveStyle.Render("●")
	case pipeline.StageCompleted:
		return ui.StageDoneStyle.Render("✓")
	case pipeline.StageError:
		return ui.StageErrorStyle.Render("✗")
	}
	return ui.StageIdleStyle.Render("○")
}

func statusIcon(s pipeline.RunStatus) string {
	switch s {
	case pipeline.RunCompleted:
		return ui.StageDoneStyle.Render("✓")
	case pipeline.RunError:
		return ui.StageErrorStyle.Render("✗")
	case pipeline.RunProcessing:
		return ui.StageActiveStyle.Render("●")
	}
	return ui.StageIdleStyle.Render("○")
}

func renderStageRow(rec pipeline.StageRecord, width int) string {
	label := padRight(rec.Stage.Label(), 11)
	switch rec.State {
	case pipeline.StageActive:
		label = ui.StageActiveStyle.Render(label)
	case pipeline.StageCompleted:
		label = ui.StageDoneStyle.Render(label)
	case pipeline.StageError:
		label = ui.StageErrorStyle.Render(label)
	default:
		label = ui.StageIdleStyle.Render(label)
	}

	detail := truncateToWidth(rec.Detail, max(10, width-16))
	if rec.State == pipeline.StageError {
		detail = ui.ErrorTextStyle.Render(detail)
	} else {
		detail = ui.DimStyle.Render(detail)
	}
	return stageIcon(rec.State) + " " + label + " " + detail
}

func renderMetricRow(metrics [4]pipeline.MetricRecord) string {
	var cells []string
	for _, rec := range metrics {
		var value string
		switch rec.Status {
		case pipeline.MetricProcessing:
			value = ui.StageActiveStyle.Render("...")
		case pipeline.MetricCompleted:
			value = ui.StageDoneStyle.Render(formatElapsed(rec.ElapsedMs))
		case pipeline.MetricError:
			value = ui.StageErrorStyle.Render("error")
		default:
			value = ui.StageIdleStyle.Render("-")
		}
		cells = append(cells, ui.SegmentStyle(int(rec.Metric)).Render(rec.Metric.Label())+" "+value)
	}
	return strings.Join(cells, "   ")
}

func formatElapsed(ms *float64) string {
	if ms == nil {
		return "-"
	}
	return timing.FormatMs(*ms)
}

// timelineCells scales each segment onto a bar of the given width against the
// timeline's axis maximum. Every drawn segment gets at least one cell.
func timelineCells(tl timing.Timeline, width int) []int {
	cells := make([]int, len(tl.Segments))
	if width <= 0 || tl.AxisMaxMs <= 0 {
		return cells
	}
	used := 0
	for i, seg := range tl.Segments {
		n := int(math.Round(seg.DurationMs / tl.AxisMaxMs * float64(width)))
		n = max(1, n)
		if used+n > width {
			n = width - used
		}
		cells[i] = n
		used += n
	}
	return cells
}

func renderTimelineBar(tl timing.Timeline, width int) string {
	if width <= 0 {
		return ""
	}
	if tl.Empty() {
		return ui.DimStyle.Render(strings.Repeat("░", width))
	}

	var sb strings.Builder
	used := 0
	for i, n := range timelineCells(tl, width) {
		if n <= 0 {
			continue
		}
		sb.WriteString(ui.SegmentStyle(int(tl.Segments[i].Stage)).Render(strings.Repeat("█", n)))
		used += n
	}
	if used < width {
		sb.WriteString(ui.DimStyle.Render(strings.Repeat("░", width-used)))
	}
	return sb.String()
}

func renderBreakdown(tl timing.Timeline) string {
	var parts []string
	for _, sh := range tl.Breakdown {
		parts = append(parts, ui.SegmentStyle(int(sh.Stage)).Render("■")+" "+
			ui.DimStyle.Render(fmt.Sprintf("%s %s (%s)", sh.Stage.Label(), timing.FormatMs(sh.DurationMs), timing.FormatPercent(sh.Percent))))
	}
	return strings.Join(parts, "  ")
}

func (m Model) renderErrorBar() string {
	return ui.ErrorStyle.Render("Error: ") + ui.ErrorTextStyle.Render(m.errorMessage)
}

func (m Model) renderFooter() string {
	var parts []string

	if m.board.conn == stream.StateFailed || m.board.conn == stream.StateDisconnected {
		parts = append(parts, ui.FooterKeyStyle.Render("r")+ui.FooterDescStyle.Render(" Retry"))
	}
	parts = append(parts, ui.FooterKeyStyle.Render("Tab")+ui.FooterDescStyle.Render(" Focus"))
	parts = append(parts, ui.FooterKeyStyle.Render("j/k")+ui.FooterDescStyle.Render(" Nav"))
	parts = append(parts, ui.FooterKeyStyle.Render("Enter")+ui.FooterDescStyle.Render(" Open run"))
	parts = append(parts, ui.FooterKeyStyle.Render("^L")+ui.FooterDescStyle.Render(" Redraw"))
	parts = append(parts, ui.FooterKeyStyle.Render("q")+ui.FooterDescStyle.Render(" Quit"))

	return strings.Join(parts, "  ")
}

// Helpers

func padRight(s string, width int) string {
	visible := lipgloss.Width(s)
	if visible >= width {
		return s
	}
	return s + strings.Repeat(" ", width-visible)
}

// truncateToWidth shortens an unstyled string to width columns.
func truncateToWidth(s string, width int) string {
	if width <= 0 {
		return ""
	}
	if lipgloss.Width(s) <= width {
		return s
	}
	runes := []rune(s)
	if len(runes) > width-1 {
		return string(runes[:width-1]) + "…"
	}
	return s
}
