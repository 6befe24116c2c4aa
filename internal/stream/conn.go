package stream

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// DefaultEventName is the name of a frame that carries no event field.
const DefaultEventName = "message"

// ErrConnectionClosed is returned by ReadFrame when the server ends the stream.
var ErrConnectionClosed = errors.New("connection closed")

// Frame is one dispatched server-sent event.
type Frame struct {
	Event string
	Data  string
	ID    string
}

// Conn is one open event-stream response.
type Conn struct {
	body    io.ReadCloser
	scanner *bufio.Scanner
}

// Dial opens the event stream at url. The connection lives until ctx is
// cancelled or Close is called. A non-2xx response is an error.
func Dial(ctx context.Context, hc *http.Client, url string) (*Conn, error) {
	if hc == nil {
		hc = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("connect to monitor: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		resp.Body.Close()
		return nil, fmt.Errorf("connect to monitor: unexpected status %s", resp.Status)
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024) // 1MB max line

	return &Conn{body: resp.Body, scanner: scanner}, nil
}

// Close shuts down the connection.
func (c *Conn) Close() error {
	if c.body != nil {
		return c.body.Close()
	}
	return nil
}

// ReadFrame reads lines until a blank line dispatches a frame. Blocks until
// data arrives. Comment lines and blocks with no data are skipped.
func (c *Conn) ReadFrame() (Frame, error) {
	var (
		f       Frame
		data    []string
		hasData bool
	)
	for c.scanner.Scan() {
		line := strings.TrimSuffix(c.scanner.Text(), "\r")
		if line == "" {
			if !hasData {
				f = Frame{}
				continue
			}
			f.Data = strings.Join(data, "\n")
			if f.Event == "" {
				f.Event = DefaultEventName
			}
			return f, nil
		}
		if strings.HasPrefix(line, ":") {
			continue
		}

		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")
		switch field {
		case "event":
			f.Event = value
		case "data":
			data = append(data, value)
			hasData = true
		case "id":
			f.ID = value
		}
	}
	if err := c.scanner.Err(); err != nil {
		return Frame{}, fmt.Errorf("read event: %w", err)
	}
	return Frame{}, ErrConnectionClosed
}
