package app

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/jwulff/ragscope/internal/db"
	"github.com/jwulff/ragscope/internal/pipeline"
	"github.com/jwulff/ragscope/internal/protocol"
	"github.com/jwulff/ragscope/internal/stream"
	"github.com/jwulff/ragscope/internal/timing"
)

type fakeController struct {
	starts int
	closes int
}

func (c *fakeController) Start(context.Context) { c.starts++ }
func (c *fakeController) Close()                { c.closes++ }

type fakeStore struct {
	runs    []db.Run
	saveErr error
}

func (s *fakeStore) SaveRun(_ context.Context, r db.Run) (string, error) {
	if s.saveErr != nil {
		return "", s.saveErr
	}
	r.ID = "run-" + string(rune('a'+len(s.runs)))
	s.runs = append([]db.Run{r}, s.runs...)
	return r.ID, nil
}

func (s *fakeStore) RecentRuns(_ context.Context, limit int) ([]db.Run, error) {
	if len(s.runs) > limit {
		return s.runs[:limit], nil
	}
	return s.runs, nil
}

func applyUpdate(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	updated, cmd := m.Update(msg)
	model, ok := updated.(Model)
	if !ok {
		t.Fatalf("Update returned %T, want Model", updated)
	}
	return model, cmd
}

func sized(t *testing.T, opts Options) Model {
	t.Helper()
	m, _ := applyUpdate(t, New(opts), tea.WindowSizeMsg{Width: 120, Height: 40})
	return m
}

func event(kind protocol.Kind, p protocol.Payload) StreamEventMsg {
	return StreamEventMsg{Event: protocol.Event{Kind: kind, Payload: p}}
}

func runes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func completePayload() protocol.Payload {
	return protocol.Payload{
		TotalTimeMs:     protocol.FloatPtr(1000),
		EmbeddingTimeMs: protocol.FloatPtr(45),
		SearchTimeMs:    protocol.FloatPtr(200),
		ContextTimeMs:   protocol.FloatPtr(55),
		LLMTimeMs:       protocol.FloatPtr(600),
		Answer:          "X is **important**.",
	}
}

func TestNewModel(t *testing.T) {
	m := New(Options{})
	if m.focusedPanel != FocusPipeline {
		t.Error("new model should focus the pipeline panel")
	}
	if m.opts.ResizeDebounce != defaultResizeDebounce {
		t.Errorf("resize debounce = %v, want %v", m.opts.ResizeDebounce, defaultResizeDebounce)
	}
	if m.board.conn != stream.StateConnecting {
		t.Errorf("connection = %v, want connecting", m.board.conn)
	}
	if m.board.query.Known() {
		t.Error("new model should have no query")
	}
}

func TestInitStartsStream(t *testing.T) {
	c := &fakeController{}
	m := New(Options{Client: c})
	cmd := m.Init()
	if cmd == nil {
		t.Fatal("Init should return a command")
	}
	if msg, ok := cmd().(tea.BatchMsg); ok {
		for _, sub := range msg {
			if sub != nil {
				sub()
			}
		}
	}
	if c.starts != 1 {
		t.Errorf("starts = %d, want 1", c.starts)
	}
}

func TestFirstResizeAppliesImmediately(t *testing.T) {
	m, cmd := applyUpdate(t, New(Options{}), tea.WindowSizeMsg{Width: 100, Height: 30})
	if cmd != nil {
		t.Error("first size should not be debounced")
	}
	if m.width != 100 || m.height != 30 {
		t.Errorf("size = %dx%d, want 100x30", m.width, m.height)
	}
}

func TestResizeDebounceKeepsLatest(t *testing.T) {
	m := sized(t, Options{})

	m, cmd := applyUpdate(t, m, tea.WindowSizeMsg{Width: 90, Height: 20})
	if cmd == nil {
		t.Fatal("resize should schedule a settle tick")
	}
	m, _ = applyUpdate(t, m, tea.WindowSizeMsg{Width: 150, Height: 50})
	if m.width != 120 {
		t.Errorf("width = %d before settle, want 120", m.width)
	}

	m, _ = applyUpdate(t, m, ResizeSettledMsg{Gen: 1})
	if m.width != 120 {
		t.Errorf("stale settle applied: width = %d, want 120", m.width)
	}

	m, _ = applyUpdate(t, m, ResizeSettledMsg{Gen: 2})
	if m.width != 150 || m.height != 50 {
		t.Errorf("size = %dx%d, want 150x50", m.width, m.height)
	}
}

func TestStreamEventsDriveBoard(t *testing.T) {
	m := sized(t, Options{})

	m, _ = applyUpdate(t, m, event(protocol.KindNewQuery, protocol.Payload{Query: "What is X?", PipelineType: "rag"}))
	if got := m.board.query.Text; got != "What is X?" {
		t.Errorf("query = %q, want %q", got, "What is X?")
	}
	if got := m.board.stages[pipeline.StageQuery]; got.State != pipeline.StageActive || got.Detail != `Processing: "What is X?"` {
		t.Errorf("query stage = %+v", got)
	}

	m, _ = applyUpdate(t, m, event(protocol.KindEmbeddingComplete, protocol.Payload{VectorSize: protocol.IntPtr(768), TimeMs: protocol.FloatPtr(45)}))
	rec := m.board.metrics[pipeline.MetricEmbedding]
	if rec.Status != pipeline.MetricCompleted || rec.ElapsedMs == nil || *rec.ElapsedMs != 45 {
		t.Errorf("embedding metric = %+v", rec)
	}
	if !strings.Contains(m.board.stages[pipeline.StageEmbedding].Detail, "768") {
		t.Errorf("embedding detail = %q, want mention of 768", m.board.stages[pipeline.StageEmbedding].Detail)
	}
}

func TestCompleteSavesRunAndReloadsHistory(t *testing.T) {
	store := &fakeStore{}
	m := sized(t, Options{Store: store})

	m, _ = applyUpdate(t, m, event(protocol.KindNewQuery, protocol.Payload{Query: "q1", PipelineType: "rag"}))
	m, cmd := applyUpdate(t, m, event(protocol.KindComplete, completePayload()))
	if cmd == nil {
		t.Fatal("complete should return a save command")
	}
	if got := m.board.timeline.TotalDisplay(); got != "1.00s" {
		t.Errorf("total = %q, want 1.00s", got)
	}

	saved, ok := cmd().(RunSavedMsg)
	if !ok || saved.Err != nil {
		t.Fatalf("save msg = %+v", saved)
	}
	if len(store.runs) != 1 || store.runs[0].Query != "q1" || store.runs[0].Status != "completed" {
		t.Fatalf("stored runs = %+v", store.runs)
	}

	m, cmd = applyUpdate(t, m, saved)
	if cmd == nil {
		t.Fatal("saved run should reload history")
	}
	m, _ = applyUpdate(t, m, cmd())
	if len(m.history) != 1 {
		t.Errorf("history = %d runs, want 1", len(m.history))
	}
}

func TestDuplicateCompleteNotSavedTwice(t *testing.T) {
	store := &fakeStore{}
	m := sized(t, Options{Store: store})

	m, _ = applyUpdate(t, m, event(protocol.KindNewQuery, protocol.Payload{Query: "q1"}))
	m, cmd := applyUpdate(t, m, event(protocol.KindComplete, completePayload()))
	if cmd == nil {
		t.Fatal("complete should return a save command")
	}
	m, cmd = applyUpdate(t, m, event(protocol.KindComplete, completePayload()))
	if cmd != nil {
		t.Error("duplicate complete should not save again")
	}
	if m.board.status != pipeline.RunCompleted {
		t.Errorf("status = %v, want completed", m.board.status)
	}
}

func TestErrorRunIsSaved(t *testing.T) {
	store := &fakeStore{}
	m := sized(t, Options{Store: store})

	m, _ = applyUpdate(t, m, event(protocol.KindNewQuery, protocol.Payload{Query: "q"}))
	m, _ = applyUpdate(t, m, event(protocol.KindEmbeddingStart, protocol.Payload{}))
	m, cmd := applyUpdate(t, m, event(protocol.KindErrorOccurred, protocol.Payload{Error: "boom"}))
	if cmd == nil {
		t.Fatal("error_occurred should return a save command")
	}
	cmd()
	if len(store.runs) != 1 || store.runs[0].Status != "error" || store.runs[0].Error != "boom" {
		t.Errorf("stored runs = %+v", store.runs)
	}
	if m.board.stages[pipeline.StageEmbedding].State != pipeline.StageError {
		t.Error("embedding stage should be in error")
	}
}

func TestSaveFailureShowsTransientError(t *testing.T) {
	m := sized(t, Options{Store: &fakeStore{}})

	m, cmd := applyUpdate(t, m, RunSavedMsg{Err: errors.New("disk full")})
	if cmd == nil {
		t.Error("save failure should schedule the error clear")
	}
	if !m.errorTransient || !strings.Contains(m.errorMessage, "disk full") {
		t.Errorf("error = %q transient=%v", m.errorMessage, m.errorTransient)
	}

	m, _ = applyUpdate(t, m, ClearTransientErrorMsg{})
	if m.errorMessage != "" {
		t.Errorf("error = %q after clear, want empty", m.errorMessage)
	}
}

func TestConnectionFailedAndRetry(t *testing.T) {
	c := &fakeController{}
	m := sized(t, Options{Client: c})

	m, cmd := applyUpdate(t, m, runes("r"))
	if cmd != nil {
		t.Error("retry should be ignored while connecting")
	}

	m, _ = applyUpdate(t, m, ConnectionStateMsg{State: stream.StateFailed, Attempts: 5})
	if m.board.conn != stream.StateFailed {
		t.Errorf("connection = %v, want failed", m.board.conn)
	}
	if !strings.Contains(m.errorMessage, "5 attempts") {
		t.Errorf("error = %q, want attempt count", m.errorMessage)
	}

	m, cmd = applyUpdate(t, m, runes("r"))
	if cmd == nil {
		t.Fatal("retry should restart the stream")
	}
	cmd()
	if c.starts != 1 {
		t.Errorf("starts = %d, want 1", c.starts)
	}
	if m.board.conn != stream.StateConnecting || m.errorMessage != "" {
		t.Errorf("after retry: conn=%v error=%q", m.board.conn, m.errorMessage)
	}

	m, _ = applyUpdate(t, m, ConnectionStateMsg{State: stream.StateConnected})
	if m.board.conn != stream.StateConnected {
		t.Errorf("connection = %v, want connected", m.board.conn)
	}
}

func TestOpenedRestoresQuery(t *testing.T) {
	m := sized(t, Options{})
	m, _ = applyUpdate(t, m, event(protocol.KindNewQuery, protocol.Payload{Query: "keep me", PipelineType: "rag"}))
	m, _ = applyUpdate(t, m, event(protocol.KindEmbeddingStart, protocol.Payload{}))

	m.board.query = pipeline.QueryContext{}
	m, _ = applyUpdate(t, m, ConnectionStateMsg{State: stream.StateReconnecting, Attempts: 1})
	m, _ = applyUpdate(t, m, StreamOpenedMsg{})

	if m.board.query.Text != "keep me" || m.board.query.PipelineType != "rag" {
		t.Errorf("query = %+v, want restored", m.board.query)
	}
	if m.board.stages[pipeline.StageEmbedding].State != pipeline.StageActive {
		t.Error("reconnect should not reset stage progress")
	}
}

func TestRedrawReplaysState(t *testing.T) {
	m := sized(t, Options{})
	m, _ = applyUpdate(t, m, ConnectionStateMsg{State: stream.StateConnected})
	m, _ = applyUpdate(t, m, event(protocol.KindNewQuery, protocol.Payload{Query: "q", PipelineType: "rag"}))
	m, _ = applyUpdate(t, m, event(protocol.KindComplete, completePayload()))

	old := m.board
	m, _ = applyUpdate(t, m, tea.KeyMsg{Type: tea.KeyCtrlL})
	if m.board == old {
		t.Fatal("redraw should replace the board")
	}
	if m.board.query.Text != "q" {
		t.Errorf("query = %q, want q", m.board.query.Text)
	}
	if m.board.status != pipeline.RunCompleted {
		t.Errorf("status = %v, want completed", m.board.status)
	}
	if len(m.board.timeline.Segments) != 4 {
		t.Errorf("segments = %d, want 4", len(m.board.timeline.Segments))
	}
	if m.board.conn != stream.StateConnected {
		t.Errorf("connection = %v, want connected", m.board.conn)
	}

	// The machine now renders into the new board.
	m, _ = applyUpdate(t, m, event(protocol.KindNewQuery, protocol.Payload{Query: "next"}))
	if m.board.query.Text != "next" {
		t.Errorf("query = %q, want next", m.board.query.Text)
	}
	if old.query.Text != "q" {
		t.Error("old board should no longer receive updates")
	}
}

func TestTabTogglesFocus(t *testing.T) {
	m := New(Options{})

	m, _ = applyUpdate(t, m, tea.KeyMsg{Type: tea.KeyTab})
	if m.focusedPanel != FocusHistory {
		t.Error("tab should focus history")
	}
	m, _ = applyUpdate(t, m, tea.KeyMsg{Type: tea.KeyTab})
	if m.focusedPanel != FocusPipeline {
		t.Error("second tab should focus pipeline")
	}
}

func TestHistoryNavigation(t *testing.T) {
	m := sized(t, Options{})
	now := time.Now()
	m, _ = applyUpdate(t, m, HistoryLoadedMsg{Runs: []db.Run{
		{ID: "a", Query: "first", Status: "completed", TotalMs: 1000, StageMs: [4]float64{45, 200, 55, 600}, Answer: "A", FinishedAt: now},
		{ID: "b", Query: "second", Status: "error", Error: "boom", FinishedAt: now},
	}})
	m.focusedPanel = FocusHistory

	m, _ = applyUpdate(t, m, runes("j"))
	if m.selectedRun != 1 {
		t.Errorf("selected = %d, want 1", m.selectedRun)
	}
	m, _ = applyUpdate(t, m, runes("j"))
	if m.selectedRun != 1 {
		t.Errorf("selected = %d, want 1 at end of list", m.selectedRun)
	}
	m, _ = applyUpdate(t, m, runes("k"))
	if m.selectedRun != 0 {
		t.Errorf("selected = %d, want 0", m.selectedRun)
	}

	m, _ = applyUpdate(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	if !m.viewingRun {
		t.Fatal("enter should open the selected run")
	}
	b := m.displayed()
	if b.query.Text != "first" || b.status != pipeline.RunCompleted || b.answer != "A" {
		t.Errorf("displayed = %+v", b)
	}
	if got := b.timeline.TotalDisplay(); got != "1.00s" {
		t.Errorf("total = %q, want 1.00s", got)
	}

	m, _ = applyUpdate(t, m, tea.KeyMsg{Type: tea.KeyEsc})
	if m.viewingRun {
		t.Error("esc should return to the live board")
	}
}

func TestNewQueryLeavesHistoryView(t *testing.T) {
	m := sized(t, Options{})
	m, _ = applyUpdate(t, m, HistoryLoadedMsg{Runs: []db.Run{{ID: "a", Query: "old", Status: "completed"}}})
	m.viewingRun = true

	m, _ = applyUpdate(t, m, event(protocol.KindNewQuery, protocol.Payload{Query: "new"}))
	if m.viewingRun {
		t.Error("a new query should switch back to the live board")
	}
}

func TestQuitKey(t *testing.T) {
	m := New(Options{})
	_, cmd := applyUpdate(t, m, runes("q"))
	if cmd == nil {
		t.Fatal("q should quit")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("q should return tea.Quit")
	}
}

func TestTimelineCells(t *testing.T) {
	tl := timing.Build(timing.Durations{TotalMs: 1000, StageMs: [4]float64{45, 200, 55, 600}})
	cells := timelineCells(tl, 210)

	// Axis max is 1050ms, so one cell is 5ms.
	want := []int{9, 40, 11, 120}
	for i := range want {
		if cells[i] != want[i] {
			t.Errorf("cells[%d] = %d, want %d", i, cells[i], want[i])
		}
	}
}

func TestTimelineCellsNeverOverflow(t *testing.T) {
	tl := timing.Build(timing.Durations{TotalMs: 0, StageMs: [4]float64{500, 500, 500, 500}})
	total := 0
	for _, n := range timelineCells(tl, 20) {
		total += n
	}
	if total > 20 {
		t.Errorf("cells sum = %d, want <= 20", total)
	}
}

func TestViewRendersWithSize(t *testing.T) {
	m := sized(t, Options{URL: "http://localhost:8000/api/v1/pipeline/monitor"})

	view := m.View()
	if !strings.Contains(view, "Waiting for query...") {
		t.Error("view should show the waiting placeholder")
	}
	if !strings.Contains(view, "HISTORY (0)") {
		t.Error("view should show the history panel")
	}

	m, _ = applyUpdate(t, m, event(protocol.KindNewQuery, protocol.Payload{Query: "What is X?", PipelineType: "rag"}))
	m, _ = applyUpdate(t, m, event(protocol.KindComplete, completePayload()))
	view = m.View()
	for _, want := range []string{"What is X?", "[rag]", "1.00s", "important"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q", want)
		}
	}
}

func TestHeaderShowsURL(t *testing.T) {
	m := New(Options{URL: "http://monitor.test/stream"})
	if got := m.renderHeader(); !strings.Contains(got, "RAGSCOPE") || !strings.Contains(got, "http://monitor.test/stream") {
		t.Errorf("header = %q", got)
	}
	if got := New(Options{}).renderHeader(); strings.Contains(got, " - ") {
		t.Errorf("header without url = %q", got)
	}
}

func TestViewWithoutSize(t *testing.T) {
	m := New(Options{})
	if view := m.View(); view != "Initializing..." {
		t.Errorf("view without size = %q, want 'Initializing...'", view)
	}
}
