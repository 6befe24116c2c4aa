package app

import (
	"github.com/jwulff/ragscope/internal/db"
	"github.com/jwulff/ragscope/internal/protocol"
	"github.com/jwulff/ragscope/internal/stream"
)

// StreamEventMsg wraps a decoded event from the monitor stream.
type StreamEventMsg struct {
	Event protocol.Event
}

// ConnectionStateMsg reports a stream connection state change.
type ConnectionStateMsg struct {
	State    stream.State
	Attempts int
}

// StreamOpenedMsg is sent after every successful (re)connection.
type StreamOpenedMsg struct{}

// ResizeSettledMsg fires once the terminal has stopped resizing. Only the
// message carrying the latest generation applies.
type ResizeSettledMsg struct {
	Gen int
}

// RunSavedMsg reports the outcome of persisting a finished run.
type RunSavedMsg struct {
	ID  string
	Err error
}

// HistoryLoadedMsg carries recent runs loaded from SQLite.
type HistoryLoadedMsg struct {
	Runs []db.Run
	Err  error
}

// ClearTransientErrorMsg clears a transient error after a timeout.
type ClearTransientErrorMsg struct{}
