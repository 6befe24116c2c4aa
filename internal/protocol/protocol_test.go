package protocol

import (
	"errors"
	"testing"
)

func TestParseKindRoundTrip(t *testing.T) {
	for _, k := range Kinds() {
		got, ok := ParseKind(k.String())
		if !ok {
			t.Errorf("ParseKind(%q) not found", k.String())
			continue
		}
		if got != k {
			t.Errorf("ParseKind(%q) = %v, want %v", k.String(), got, k)
		}
	}
	if len(Kinds()) != 12 {
		t.Errorf("Kinds() = %d entries, want 12", len(Kinds()))
	}
}

func TestParseKindUnknown(t *testing.T) {
	if _, ok := ParseKind("message"); ok {
		t.Error("message should not be a known kind")
	}
	if got := Kind(99).String(); got != "kind(99)" {
		t.Errorf("Kind(99).String() = %q", got)
	}
}

func TestDecodeNewQuery(t *testing.T) {
	ev, err := Decode("new_query", []byte(`{"query":"What is X?","pipeline_type":"rag","user_id":"anonymous","timestamp":1700000000.5}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if ev.Kind != KindNewQuery {
		t.Errorf("kind = %v, want new_query", ev.Kind)
	}
	if ev.Payload.Query != "What is X?" {
		t.Errorf("query = %q", ev.Payload.Query)
	}
	if ev.Payload.PipelineType != "rag" {
		t.Errorf("pipeline_type = %q", ev.Payload.PipelineType)
	}
}

func TestDecodeStageComplete(t *testing.T) {
	ev, err := Decode("embedding_complete", []byte(`{"vector_size":768,"time_ms":45.2}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if Int(ev.Payload.VectorSize) != 768 {
		t.Errorf("vector_size = %v", ev.Payload.VectorSize)
	}
	if Float(ev.Payload.TimeMs) != 45.2 {
		t.Errorf("time_ms = %v", ev.Payload.TimeMs)
	}
	if ev.Payload.ResultsCount != nil {
		t.Error("results_count should be absent")
	}
}

func TestDecodeCompleteMissingStages(t *testing.T) {
	ev, err := Decode("complete", []byte(`{"total_time_ms":1000,"llm_time_ms":600,"answer":"X is..."}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if Float(ev.Payload.TotalTimeMs) != 1000 {
		t.Errorf("total = %v", Float(ev.Payload.TotalTimeMs))
	}
	if ev.Payload.EmbeddingTimeMs != nil {
		t.Error("embedding_time_ms should be nil when absent")
	}
	if Float(ev.Payload.EmbeddingTimeMs) != 0 {
		t.Error("absent duration should read as 0")
	}
}

func TestDecodeEmptyData(t *testing.T) {
	for _, data := range []string{"", "   ", "\n"} {
		ev, err := Decode("ping", []byte(data))
		if err != nil {
			t.Errorf("Decode(ping, %q): %v", data, err)
		}
		if ev.Kind != KindPing {
			t.Errorf("kind = %v, want ping", ev.Kind)
		}
	}
}

func TestDecodeUnknownEvent(t *testing.T) {
	_, err := Decode("bogus", []byte(`{}`))
	if !errors.Is(err, ErrUnknownEvent) {
		t.Errorf("err = %v, want ErrUnknownEvent", err)
	}
}

func TestDecodeMalformed(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"search_complete", `{"results_count":`},
		{"context_complete", `{"token_count":"many"}`},
		{"complete", `not json`},
	}
	for _, tt := range tests {
		_, err := Decode(tt.name, []byte(tt.data))
		var de *DecodeError
		if !errors.As(err, &de) {
			t.Errorf("Decode(%s, %q) err = %v, want DecodeError", tt.name, tt.data, err)
			continue
		}
		if de.Event != tt.name {
			t.Errorf("DecodeError.Event = %q, want %q", de.Event, tt.name)
		}
		if de.Unwrap() == nil {
			t.Error("DecodeError should wrap the json error")
		}
	}
}

func TestDecodeStartIgnoresMalformedPayload(t *testing.T) {
	for _, name := range []string{"embedding_start", "search_start", "context_start", "llm_start", "ping"} {
		ev, err := Decode(name, []byte(`{"user_id":`))
		if err != nil {
			t.Errorf("Decode(%s) err = %v, want nil", name, err)
			continue
		}
		if want, _ := ParseKind(name); ev.Kind != want {
			t.Errorf("Decode(%s) kind = %v, want %v", name, ev.Kind, want)
		}
		if ev.Payload != (Payload{}) {
			t.Errorf("Decode(%s) payload = %+v, want zero", name, ev.Payload)
		}
	}
}

func TestPayloadOptional(t *testing.T) {
	for _, k := range Kinds() {
		want := false
		switch k {
		case KindEmbeddingStart, KindSearchStart, KindContextStart, KindLLMStart, KindPing:
			want = true
		}
		if got := k.PayloadOptional(); got != want {
			t.Errorf("%s.PayloadOptional() = %v, want %v", k, got, want)
		}
	}
}
