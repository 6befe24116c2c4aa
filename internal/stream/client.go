// Package stream keeps a single long-lived subscription to the pipeline
// monitor's event stream, reconnecting with a bounded fixed-delay policy.
package stream

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/jwulff/ragscope/internal/logger"
	"github.com/jwulff/ragscope/internal/metrics"
	"github.com/jwulff/ragscope/internal/protocol"
)

const (
	DefaultMaxAttempts = 5
	DefaultDelay       = 3 * time.Second
)

// ErrRetriesExhausted is returned by Run when every reconnection attempt failed.
var ErrRetriesExhausted = errors.New("reconnection attempts exhausted")

// State is the connection state of a Client.
type State int

const (
	StateConnecting State = iota
	StateConnected
	StateDisconnected
	StateReconnecting
	StateFailed
)

var stateNames = []string{"connecting", "connected", "disconnected", "reconnecting", "failed"}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("state(%d)", int(s))
	}
	return stateNames[s]
}

// Handler receives everything the client observes. All calls are made from
// the client's own goroutine.
type Handler interface {
	ConnectionChanged(s State)
	// Opened is called after every successful (re)connection.
	Opened()
	Event(ev protocol.Event)
}

// Config holds client settings. Zero values take the defaults.
type Config struct {
	URL         string
	MaxAttempts int
	Delay       time.Duration
	HTTPClient  *http.Client
	Logger      *logger.Logger
}

// Client owns the stream connection. At most one Run is active at a time.
type Client struct {
	url         string
	maxAttempts int
	delay       time.Duration
	hc          *http.Client
	log         *logger.Logger
	handler     Handler

	mu       sync.Mutex
	state    State
	attempts int
	cancel   context.CancelFunc
	done     chan struct{}
	err      error
}

// New creates a client. Nothing is dialled until Start or Run.
func New(cfg Config, h Handler) *Client {
	c := &Client{
		url:         cfg.URL,
		maxAttempts: cfg.MaxAttempts,
		delay:       cfg.Delay,
		hc:          cfg.HTTPClient,
		log:         logger.OrNop(cfg.Logger).Named("stream"),
		handler:     h,
		state:       StateDisconnected,
	}
	if c.maxAttempts <= 0 {
		c.maxAttempts = DefaultMaxAttempts
	}
	if c.delay <= 0 {
		c.delay = DefaultDelay
	}
	if c.hc == nil {
		c.hc = &http.Client{}
	}
	return c
}

// Start runs the client in the background. Any previous run is stopped first
// so there is never more than one subscription.
func (c *Client) Start(ctx context.Context) {
	c.Close()

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	c.mu.Lock()
	c.cancel = cancel
	c.done = done
	c.err = nil
	c.mu.Unlock()

	go func() {
		defer close(done)
		err := c.Run(ctx)
		c.mu.Lock()
		c.err = err
		c.mu.Unlock()
	}()
}

// Close stops a background run and waits for it to exit. Safe to call more
// than once.
func (c *Client) Close() {
	c.mu.Lock()
	cancel, done := c.cancel, c.done
	c.cancel, c.done = nil, nil
	c.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Wait blocks until the background run exits and returns its result.
func (c *Client) Wait() error {
	c.mu.Lock()
	done := c.done
	c.mu.Unlock()
	if done != nil {
		<-done
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// State returns the current connection state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Attempts returns the current reconnection attempt count.
func (c *Client) Attempts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attempts
}

// Run connects and consumes the stream until ctx is cancelled (returns nil)
// or the reconnection budget is spent (returns ErrRetriesExhausted).
func (c *Client) Run(ctx context.Context) error {
	c.setAttempts(0)
	c.setState(StateConnecting)

	for {
		err := c.session(ctx)
		if ctx.Err() != nil {
			c.setState(StateDisconnected)
			return nil
		}

		c.setState(StateDisconnected)
		attempt := c.Attempts()
		if attempt >= c.maxAttempts {
			c.log.Error("giving up on stream", zap.Int("attempts", attempt), zap.Error(err))
			c.setState(StateFailed)
			return ErrRetriesExhausted
		}

		attempt++
		c.setAttempts(attempt)
		metrics.RecordReconnect()
		c.log.Warn("stream lost, reconnecting",
			zap.Error(err),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", c.maxAttempts),
			zap.Duration("delay", c.delay))
		c.setState(StateReconnecting)

		timer := time.NewTimer(c.delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			c.setState(StateDisconnected)
			return nil
		case <-timer.C:
		}
		c.setState(StateConnecting)
	}
}

// session dials once and pumps frames until the connection ends.
func (c *Client) session(ctx context.Context) error {
	conn, err := Dial(ctx, c.hc, c.url)
	if err != nil {
		return err
	}
	defer conn.Close()

	c.setAttempts(0)
	c.setState(StateConnected)
	c.log.Info("stream connected", zap.String("url", c.url))
	c.handler.Opened()

	for {
		f, err := conn.ReadFrame()
		if err != nil {
			return err
		}

		ev, err := protocol.Decode(f.Event, []byte(f.Data))
		if errors.Is(err, protocol.ErrUnknownEvent) {
			c.log.Debug("ignoring unknown event", zap.String("event", f.Event))
			continue
		}
		if err != nil {
			metrics.RecordDecodeError(f.Event)
			c.log.Warn("dropping malformed event", zap.String("event", f.Event), zap.Error(err))
			continue
		}
		ev.ID = f.ID
		metrics.RecordEvent(f.Event)
		if ev.Kind == protocol.KindPing {
			c.log.Debug("keep-alive")
		}
		c.handler.Event(ev)
	}
}

func (c *Client) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()

	metrics.SetConnectionState(s.String(), stateNames)
	c.handler.ConnectionChanged(s)
}

func (c *Client) setAttempts(n int) {
	c.mu.Lock()
	c.attempts = n
	c.mu.Unlock()
}
