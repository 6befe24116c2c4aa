// Package protocol defines the pipeline monitor event vocabulary and the JSON
// payloads the server attaches to each named event.
package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// Kind identifies one named event of the monitor stream.
type Kind int

const (
	KindNewQuery Kind = iota
	KindEmbeddingStart
	KindEmbeddingComplete
	KindSearchStart
	KindSearchComplete
	KindContextStart
	KindContextComplete
	KindLLMStart
	KindLLMComplete
	KindComplete
	KindErrorOccurred
	KindPing

	kindCount
)

var kindNames = [kindCount]string{
	KindNewQuery:          "new_query",
	KindEmbeddingStart:    "embedding_start",
	KindEmbeddingComplete: "embedding_complete",
	KindSearchStart:       "search_start",
	KindSearchComplete:    "search_complete",
	KindContextStart:      "context_start",
	KindContextComplete:   "context_complete",
	KindLLMStart:          "llm_start",
	KindLLMComplete:       "llm_complete",
	KindComplete:          "complete",
	KindErrorOccurred:     "error_occurred",
	KindPing:              "ping",
}

// String returns the wire name of the event.
func (k Kind) String() string {
	if k < 0 || k >= kindCount {
		return fmt.Sprintf("kind(%d)", int(k))
	}
	return kindNames[k]
}

// ParseKind maps a wire event name to its Kind.
func ParseKind(name string) (Kind, bool) {
	for i, n := range kindNames {
		if n == name {
			return Kind(i), true
		}
	}
	return 0, false
}

// Kinds returns every event kind in protocol order.
func Kinds() []Kind {
	out := make([]Kind, 0, kindCount)
	for k := Kind(0); k < kindCount; k++ {
		out = append(out, k)
	}
	return out
}

// PayloadOptional reports whether the kind carries nothing the client reads.
// Stage starts and keep-alives still apply when their payload is unreadable.
func (k Kind) PayloadOptional() bool {
	switch k {
	case KindEmbeddingStart, KindSearchStart, KindContextStart, KindLLMStart, KindPing:
		return true
	}
	return false
}

// Payload is the union of all fields the server sends. Optional numeric
// fields are pointers so an absent value can be told apart from zero.
type Payload struct {
	Query        string   `json:"query,omitempty"`
	PipelineType string   `json:"pipeline_type,omitempty"`
	UserID       string   `json:"user_id,omitempty"`
	Timestamp    *float64 `json:"timestamp,omitempty"`

	VectorSize     *int     `json:"vector_size,omitempty"`
	ResultsCount   *int     `json:"results_count,omitempty"`
	TokenCount     *int     `json:"token_count,omitempty"`
	CharacterCount *int     `json:"character_count,omitempty"`
	TimeMs         *float64 `json:"time_ms,omitempty"`

	TotalTimeMs     *float64 `json:"total_time_ms,omitempty"`
	EmbeddingTimeMs *float64 `json:"embedding_time_ms,omitempty"`
	SearchTimeMs    *float64 `json:"search_time_ms,omitempty"`
	ContextTimeMs   *float64 `json:"context_time_ms,omitempty"`
	LLMTimeMs       *float64 `json:"llm_time_ms,omitempty"`
	Answer          string   `json:"answer,omitempty"`

	Error string `json:"error,omitempty"`
}

// Event is one decoded stream event.
type Event struct {
	Kind    Kind
	ID      string // SSE id field, if the server sent one
	Payload Payload
}

// ErrUnknownEvent is returned by Decode for event names outside the vocabulary.
var ErrUnknownEvent = errors.New("unknown event")

// DecodeError reports a payload that could not be decoded.
type DecodeError struct {
	Event string
	Err   error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s payload: %v", e.Event, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Decode parses a named event and its JSON data. An empty data field decodes
// to the zero Payload, as does malformed data on a kind whose payload is
// optional.
func Decode(name string, data []byte) (Event, error) {
	kind, ok := ParseKind(name)
	if !ok {
		return Event{}, fmt.Errorf("%w: %q", ErrUnknownEvent, name)
	}

	ev := Event{Kind: kind}
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return ev, nil
	}
	if err := json.Unmarshal(data, &ev.Payload); err != nil {
		if kind.PayloadOptional() {
			return Event{Kind: kind}, nil
		}
		return Event{}, &DecodeError{Event: name, Err: err}
	}
	return ev, nil
}

// Float returns *v, or 0 when v is nil.
func Float(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}

// Int returns *v, or 0 when v is nil.
func Int(v *int) int {
	if v == nil {
		return 0
	}
	return *v
}

// FloatPtr returns a pointer to f. Convenience for building payloads.
func FloatPtr(f float64) *float64 { return &f }

// IntPtr returns a pointer to i. Convenience for building payloads.
func IntPtr(i int) *int { return &i }
