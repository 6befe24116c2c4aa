// Package app is the bubbletea terminal UI: a live pipeline board driven by
// the monitor stream, plus a panel of recent runs from the history store.
package app

import (
	"context"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"github.com/jwulff/ragscope/internal/db"
	"github.com/jwulff/ragscope/internal/logger"
	"github.com/jwulff/ragscope/internal/pipeline"
	"github.com/jwulff/ragscope/internal/protocol"
	"github.com/jwulff/ragscope/internal/stream"
)

// PanelFocus tracks which panel has keyboard focus.
type PanelFocus int

const (
	FocusHistory PanelFocus = iota
	FocusPipeline
)

const (
	defaultResizeDebounce = 100 * time.Millisecond
	defaultHistoryLimit   = 20
	transientErrorTimeout = 5 * time.Second
)

// Controller starts and stops the stream subscription. *stream.Client
// satisfies it.
type Controller interface {
	Start(ctx context.Context)
	Close()
}

// HistoryStore is the part of the run store the UI needs.
type HistoryStore interface {
	SaveRun(ctx context.Context, r db.Run) (string, error)
	RecentRuns(ctx context.Context, limit int) ([]db.Run, error)
}

// Options configures a Model. Client and Store may be nil.
type Options struct {
	URL            string
	Client         Controller
	Store          HistoryStore
	Logger         *logger.Logger
	ResizeDebounce time.Duration
	HistoryLimit   int
	PreviewLength  int
}

// Model is the root bubbletea model for the ragscope TUI.
type Model struct {
	opts Options
	log  *logger.Logger

	// Pipeline state; board is the sink the machine renders into.
	machine *pipeline.Machine
	board   *board

	// Connection
	attempts int

	// History
	history     []db.Run
	selectedRun int
	viewingRun  bool

	// UI state
	focusedPanel  PanelFocus
	width         int
	height        int
	pendingWidth  int
	pendingHeight int
	resizeGen     int
	answerScroll  int

	// Errors
	errorMessage   string
	errorTransient bool
}

// New creates a Model with an idle board.
func New(opts Options) Model {
	if opts.ResizeDebounce <= 0 {
		opts.ResizeDebounce = defaultResizeDebounce
	}
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = defaultHistoryLimit
	}
	log := logger.OrNop(opts.Logger).Named("app")

	b := newBoard()
	return Model{
		opts:         opts,
		log:          log,
		board:        b,
		machine:      pipeline.New(b, pipeline.WithLogger(log), pipeline.WithPreviewLength(opts.PreviewLength)),
		focusedPanel: FocusPipeline,
	}
}

// Machine exposes the state machine, e.g. for ForceQuery.
func (m Model) Machine() *pipeline.Machine { return m.machine }

// Init starts the subscription and loads history.
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		startStreamCmd(m.opts.Client),
		loadHistoryCmd(m.opts.Store, m.opts.HistoryLimit),
	)
}

// startStreamCmd (re)starts the subscription off the update loop. The client
// delivers its callbacks through Program.Send, so it must never be started or
// closed from inside Update.
func startStreamCmd(c Controller) tea.Cmd {
	if c == nil {
		return nil
	}
	return func() tea.Msg {
		c.Start(context.Background())
		return nil
	}
}

// saveRunCmd persists a terminal run.
func saveRunCmd(store HistoryStore, run pipeline.Run) tea.Cmd {
	if store == nil {
		return nil
	}
	return func() tea.Msg {
		id, err := store.SaveRun(context.Background(), db.FromPipeline(run))
		return RunSavedMsg{ID: id, Err: err}
	}
}

// loadHistoryCmd reads recent runs from the store.
func loadHistoryCmd(store HistoryStore, limit int) tea.Cmd {
	if store == nil {
		return nil
	}
	return func() tea.Msg {
		runs, err := store.RecentRuns(context.Background(), limit)
		return HistoryLoadedMsg{Runs: runs, Err: err}
	}
}

func clearTransientErrorCmd() tea.Cmd {
	return tea.Tick(transientErrorTimeout, func(time.Time) tea.Msg {
		return ClearTransientErrorMsg{}
	})
}

// resizeCmd fires once the resize burst of generation gen has settled.
func resizeCmd(d time.Duration, gen int) tea.Cmd {
	return tea.Tick(d, func(time.Time) tea.Msg {
		return ResizeSettledMsg{Gen: gen}
	})
}

// Update processes messages and returns the updated model and any commands.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		if m.width == 0 {
			m.width = msg.Width
			m.height = msg.Height
			return m, nil
		}
		m.pendingWidth = msg.Width
		m.pendingHeight = msg.Height
		m.resizeGen++
		return m, resizeCmd(m.opts.ResizeDebounce, m.resizeGen)

	case ResizeSettledMsg:
		if msg.Gen != m.resizeGen {
			return m, nil
		}
		m.width = m.pendingWidth
		m.height = m.pendingHeight
		m.clampAnswerScroll()
		return m, nil

	case ConnectionStateMsg:
		m.board.RenderConnectionState(msg.State)
		m.attempts = msg.Attempts
		switch msg.State {
		case stream.StateFailed:
			m.errorMessage = fmt.Sprintf("Connection failed after %d attempts. Press r to retry.", m.attempts)
			m.errorTransient = false
		case stream.StateConnected:
			if !m.errorTransient {
				m.errorMessage = ""
			}
		}
		return m, nil

	case StreamOpenedMsg:
		m.machine.Restore()
		return m, nil

	case StreamEventMsg:
		return m, m.handleEvent(msg.Event)

	case RunSavedMsg:
		if msg.Err != nil {
			m.log.Error("save run", zap.Error(msg.Err))
			m.errorMessage = "History: " + msg.Err.Error()
			m.errorTransient = true
			return m, clearTransientErrorCmd()
		}
		m.log.Debug("run saved", zap.String("id", msg.ID))
		return m, loadHistoryCmd(m.opts.Store, m.opts.HistoryLimit)

	case HistoryLoadedMsg:
		if msg.Err != nil {
			m.log.Warn("load history", zap.Error(msg.Err))
			return m, nil
		}
		m.history = msg.Runs
		if m.selectedRun >= len(m.history) {
			m.selectedRun = max(0, len(m.history)-1)
		}
		if len(m.history) == 0 {
			m.viewingRun = false
		}
		return m, nil

	case ClearTransientErrorMsg:
		if m.errorTransient {
			m.errorMessage = ""
			m.errorTransient = false
		}
		return m, nil
	}

	return m, nil
}

// handleEvent feeds one stream event to the machine and persists the run
// when the event finished it.
func (m *Model) handleEvent(ev protocol.Event) tea.Cmd {
	run := m.machine.Apply(ev)
	if ev.Kind == protocol.KindNewQuery {
		m.answerScroll = 0
		m.viewingRun = false
	}
	if run == nil {
		return nil
	}
	return saveRunCmd(m.opts.Store, *run)
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {

	case KeyQuit, KeyQuitUpper, KeyCtrlC:
		return m, tea.Quit

	case KeyTab:
		if m.focusedPanel == FocusHistory {
			m.focusedPanel = FocusPipeline
		} else {
			m.focusedPanel = FocusHistory
		}
		return m, nil

	case KeyJ, KeyDown:
		if m.focusedPanel == FocusHistory {
			if m.selectedRun < len(m.history)-1 {
				m.selectedRun++
			}
		} else {
			m.answerScroll++
			m.clampAnswerScroll()
		}
		return m, nil

	case KeyK, KeyUp:
		if m.focusedPanel == FocusHistory {
			if m.selectedRun > 0 {
				m.selectedRun--
			}
		} else if m.answerScroll > 0 {
			m.answerScroll--
		}
		return m, nil

	case KeyEnter:
		if m.focusedPanel == FocusHistory && len(m.history) > 0 {
			m.viewingRun = !m.viewingRun
			m.answerScroll = 0
		}
		return m, nil

	case KeyEsc:
		m.viewingRun = false
		m.answerScroll = 0
		return m, nil

	case KeyRetry:
		switch m.board.conn {
		case stream.StateFailed, stream.StateDisconnected:
		default:
			return m, nil
		}
		m.log.Info("restarting stream on request")
		m.board.RenderConnectionState(stream.StateConnecting)
		m.errorMessage = ""
		m.errorTransient = false
		return m, startStreamCmd(m.opts.Client)

	case KeyRedraw:
		m.redraw()
		return m, tea.ClearScreen
	}

	return m, nil
}

// redraw replaces the board with a fresh one and replays the machine's
// view-state into it.
func (m *Model) redraw() {
	conn := m.board.conn
	m.board = newBoard()
	m.board.RenderConnectionState(conn)
	m.machine.SetSink(m.board)
	m.machine.Replay()
}

// displayed returns the board the pipeline panel draws: the live one, or the
// selected history run.
func (m Model) displayed() *board {
	if m.viewingRun && m.selectedRun < len(m.history) {
		return boardFromRun(m.history[m.selectedRun])
	}
	return m.board
}

func (m *Model) clampAnswerScroll() {
	limit := max(0, len(m.answerLines(m.displayed()))-1)
	if m.answerScroll > limit {
		m.answerScroll = limit
	}
}

// Layout helpers

func (m Model) contentHeight() int {
	if m.height == 0 {
		return 20
	}
	// header + status + two dividers + error + footer
	return max(5, m.height-6)
}

func (m Model) historyPanelWidth() int {
	if m.width == 0 {
		return 30
	}
	return max(20, m.width*30/100)
}

func (m Model) pipelinePanelWidth() int {
	if m.width == 0 {
		return 60
	}
	return max(30, m.width-m.historyPanelWidth()-3)
}
