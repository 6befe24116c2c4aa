package app

import (
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/jwulff/ragscope/internal/protocol"
	"github.com/jwulff/ragscope/internal/stream"
)

// Sender delivers messages into a running program. *tea.Program satisfies it.
type Sender interface {
	Send(msg tea.Msg)
}

// Forwarder adapts stream callbacks into tea messages. The sender is bound
// after the program is created; anything sent before that is dropped.
type Forwarder struct {
	mu       sync.Mutex
	sender   Sender
	attempts func() int
}

var _ stream.Handler = (*Forwarder)(nil)

// Bind sets the program messages go to, and an optional source for the
// current reconnect attempt count.
func (f *Forwarder) Bind(s Sender, attempts func() int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sender = s
	f.attempts = attempts
}

func (f *Forwarder) send(msg tea.Msg) {
	f.mu.Lock()
	s := f.sender
	f.mu.Unlock()
	if s != nil {
		s.Send(msg)
	}
}

func (f *Forwarder) ConnectionChanged(s stream.State) {
	f.mu.Lock()
	attempts := f.attempts
	f.mu.Unlock()

	msg := ConnectionStateMsg{State: s}
	if attempts != nil {
		msg.Attempts = attempts()
	}
	f.send(msg)
}

func (f *Forwarder) Opened() { f.send(StreamOpenedMsg{}) }

func (f *Forwarder) Event(ev protocol.Event) { f.send(StreamEventMsg{Event: ev}) }
