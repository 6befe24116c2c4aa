// Package pipeline is the state machine that tracks one in-flight RAG query
// from the monitor's event stream.
package pipeline

import (
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/jwulff/ragscope/internal/logger"
	"github.com/jwulff/ragscope/internal/metrics"
	"github.com/jwulff/ragscope/internal/protocol"
	"github.com/jwulff/ragscope/internal/timing"
)

// DefaultPreviewLength is the query preview length used in the query stage detail.
const DefaultPreviewLength = 50

// Machine is the authoritative model of the tracked query. It is not safe for
// concurrent use; callers feed it events from a single goroutine.
type Machine struct {
	sink       Sink
	log        *logger.Logger
	now        func() time.Time
	previewLen int

	query    *QueryContext
	stages   [stageCount]StageRecord
	metrics  [4]MetricRecord
	status   RunStatus
	message  string
	active   bool
	finished bool // a terminal event has been recorded for the current query
	answer   string
	timeline timing.Timeline
}

// Option configures a Machine.
type Option func(*Machine)

// WithLogger sets the logger.
func WithLogger(l *logger.Logger) Option {
	return func(m *Machine) { m.log = logger.OrNop(l) }
}

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(m *Machine) { m.now = now }
}

// WithPreviewLength sets how many characters of the query appear in the query stage detail.
func WithPreviewLength(n int) Option {
	return func(m *Machine) {
		if n > 0 {
			m.previewLen = n
		}
	}
}

// New creates a Machine rendering to sink. A nil sink discards.
func New(sink Sink, opts ...Option) *Machine {
	m := &Machine{
		log:        logger.Nop(),
		now:        time.Now,
		previewLen: DefaultPreviewLength,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.SetSink(sink)
	m.clear()
	m.timeline = timing.Build(timing.Durations{})
	return m
}

// SetSink swaps the render sink. The new sink gets nothing until the next
// event or an explicit Replay.
func (m *Machine) SetSink(sink Sink) {
	if sink == nil {
		sink = Discard{}
	}
	m.sink = sink
}

type transition func(m *Machine, p protocol.Payload) *Run

// transitions covers every protocol.Kind; machine_test enforces it.
var transitions = map[protocol.Kind]transition{
	protocol.KindNewQuery: (*Machine).onNewQuery,
	protocol.KindEmbeddingStart: func(m *Machine, _ protocol.Payload) *Run {
		m.startStage(StageQuery, StageEmbedding, "Converting query to vector representation...")
		return nil
	},
	protocol.KindEmbeddingComplete: func(m *Machine, p protocol.Payload) *Run {
		m.completeStage(StageEmbedding, fmt.Sprintf("Generated %d dimension embedding", protocol.Int(p.VectorSize)), p.TimeMs)
		return nil
	},
	protocol.KindSearchStart: func(m *Machine, _ protocol.Payload) *Run {
		m.startStage(StageEmbedding, StageRetrieval, "Searching vector database...")
		return nil
	},
	protocol.KindSearchComplete: func(m *Machine, p protocol.Payload) *Run {
		m.completeStage(StageRetrieval, fmt.Sprintf("Found %d relevant documents", protocol.Int(p.ResultsCount)), p.TimeMs)
		return nil
	},
	protocol.KindContextStart: func(m *Machine, _ protocol.Payload) *Run {
		m.startStage(StageRetrieval, StageContext, "Building context from retrieved documents...")
		return nil
	},
	protocol.KindContextComplete: func(m *Machine, p protocol.Payload) *Run {
		m.completeStage(StageContext, fmt.Sprintf("Prepared context with %d tokens", protocol.Int(p.TokenCount)), p.TimeMs)
		return nil
	},
	protocol.KindLLMStart: func(m *Machine, _ protocol.Payload) *Run {
		m.startStage(StageContext, StageGeneration, "Generating response...")
		return nil
	},
	protocol.KindLLMComplete: func(m *Machine, p protocol.Payload) *Run {
		m.completeStage(StageGeneration, fmt.Sprintf("Generated response with %d tokens", protocol.Int(p.TokenCount)), p.TimeMs)
		return nil
	},
	protocol.KindComplete:      (*Machine).onComplete,
	protocol.KindErrorOccurred: (*Machine).onError,
	protocol.KindPing: func(*Machine, protocol.Payload) *Run {
		return nil
	},
}

// Apply runs the transition for ev and pushes the resulting view-state to the
// sink. It returns the terminal snapshot when ev finished a run (complete or
// error_occurred), nil otherwise. Only the first terminal event of a query
// yields a snapshot.
//
// Once the pipeline has reported an error, everything but new_query and ping
// is ignored until the next query.
func (m *Machine) Apply(ev protocol.Event) *Run {
	t, ok := transitions[ev.Kind]
	if !ok {
		m.log.Warn("no transition for event", zap.Stringer("event", ev.Kind))
		return nil
	}

	if m.status == RunError && ev.Kind != protocol.KindNewQuery && ev.Kind != protocol.KindPing {
		m.log.Debug("ignoring event after pipeline error", zap.Stringer("event", ev.Kind))
		return nil
	}

	switch ev.Kind {
	case protocol.KindNewQuery, protocol.KindComplete, protocol.KindPing:
	default:
		if m.query == nil {
			m.sink.RenderQuery(QueryContext{})
		}
	}
	return t(m, ev.Payload)
}

func (m *Machine) onNewQuery(p protocol.Payload) *Run {
	m.clear()
	m.publishProgress()

	m.setQuery(p.Query, p.PipelineType)
	m.setStage(StageQuery, StageActive, `Processing: "`+truncate(p.Query, m.previewLen)+`"`)
	m.setStatus(RunProcessing, "")
	m.active = true
	return nil
}

func (m *Machine) onComplete(p protocol.Payload) *Run {
	if p.Query != "" {
		m.setQuery(p.Query, p.PipelineType)
	} else if m.query == nil {
		m.sink.RenderQuery(QueryContext{})
	}

	d := timing.Durations{TotalMs: protocol.Float(p.TotalTimeMs)}
	d.StageMs[timing.Embedding] = protocol.Float(p.EmbeddingTimeMs)
	d.StageMs[timing.Search] = protocol.Float(p.SearchTimeMs)
	d.StageMs[timing.Context] = protocol.Float(p.ContextTimeMs)
	d.StageMs[timing.LLM] = protocol.Float(p.LLMTimeMs)

	var sum float64
	for _, v := range d.StageMs {
		sum += v
	}
	if math.Abs(sum-d.TotalMs) > 0.5 {
		m.log.Debug("stage durations do not sum to total",
			zap.Float64("total_ms", d.TotalMs), zap.Float64("stage_sum_ms", sum))
	}

	m.timeline = timing.Build(d)
	m.sink.RenderTimeline(m.timeline)

	m.answer = p.Answer
	m.sink.RenderAnswer(m.answer)

	m.setStatus(RunCompleted, "")
	m.active = false
	if m.finished {
		m.log.Debug("duplicate terminal event", zap.Stringer("event", protocol.KindComplete))
		return nil
	}
	m.finished = true
	metrics.RecordRun(RunCompleted.String())

	return &Run{
		Query:      m.currentQuery(),
		Status:     RunCompleted,
		Answer:     p.Answer,
		Durations:  d,
		Timeline:   m.timeline,
		FinishedAt: m.now(),
	}
}

func (m *Machine) onError(p protocol.Payload) *Run {
	msg := p.Error
	if msg == "" {
		msg = "unknown error"
	}

	for _, s := range Stages() {
		if m.stages[s].State != StageActive {
			continue
		}
		m.setStage(s, StageError, "Error: "+msg)
		if mt, ok := s.Metric(); ok && m.metrics[mt].Status == MetricProcessing {
			m.setMetric(mt, MetricError, nil)
		}
	}

	m.setStatus(RunError, msg)
	m.active = false
	m.log.Warn("pipeline reported error", zap.String("error", msg))
	if m.finished {
		return nil
	}
	m.finished = true
	metrics.RecordRun(RunError.String())

	var d timing.Durations
	for _, mt := range Metrics() {
		d.StageMs[mt] = protocol.Float(m.metrics[mt].ElapsedMs)
	}
	return &Run{
		Query:      m.currentQuery(),
		Status:     RunError,
		Error:      msg,
		Durations:  d,
		Timeline:   timing.Build(d),
		FinishedAt: m.now(),
	}
}

// startStage completes prev and activates next along with its metric.
func (m *Machine) startStage(prev, next Stage, detail string) {
	m.setStage(prev, StageCompleted, "")
	m.setStage(next, StageActive, detail)
	if mt, ok := next.Metric(); ok {
		m.setMetric(mt, MetricProcessing, nil)
	}
}

func (m *Machine) completeStage(s Stage, detail string, timeMs *float64) {
	m.setStage(s, StageCompleted, detail)
	mt, ok := s.Metric()
	if !ok {
		return
	}
	m.setMetric(mt, MetricCompleted, timeMs)
	if timeMs != nil {
		metrics.RecordStage(mt.Key(), *timeMs)
	}
}

// setStage updates a stage. An empty detail keeps the previous one.
func (m *Machine) setStage(s Stage, state StageState, detail string) {
	rec := &m.stages[s]
	rec.State = state
	if detail != "" {
		rec.Detail = detail
	}
	m.sink.RenderStage(s, rec.State, rec.Detail)
}

func (m *Machine) setMetric(mt Metric, status MetricStatus, elapsedMs *float64) {
	rec := &m.metrics[mt]
	rec.Status = status
	if elapsedMs != nil {
		v := *elapsedMs
		rec.ElapsedMs = &v
	} else if status != MetricError {
		rec.ElapsedMs = nil
	}
	m.sink.RenderMetric(mt, rec.Status, rec.ElapsedMs)
}

func (m *Machine) setStatus(s RunStatus, msg string) {
	m.status = s
	m.message = msg
	m.sink.RenderRunStatus(s, msg)
}

func (m *Machine) setQuery(text, pipelineType string) {
	if pipelineType == "" {
		pipelineType = DefaultPipelineType
	}
	m.query = &QueryContext{Text: text, PipelineType: pipelineType, ReceivedAt: m.now()}
	m.sink.RenderQuery(*m.query)
}

// clear resets stages, metrics, timeline and answer. The query context is kept.
func (m *Machine) clear() {
	for _, s := range Stages() {
		m.stages[s] = StageRecord{Stage: s, State: StageIdle}
	}
	for _, mt := range Metrics() {
		m.metrics[mt] = MetricRecord{Metric: mt, Status: MetricWaiting}
	}
	m.status = RunIdle
	m.message = ""
	m.active = false
	m.finished = false
	m.answer = ""
	m.timeline = timing.Build(timing.Durations{})
}

func (m *Machine) currentQuery() QueryContext {
	if m.query == nil {
		return QueryContext{}
	}
	return *m.query
}

// Query returns the tracked query context, if any.
func (m *Machine) Query() (QueryContext, bool) {
	if m.query == nil {
		return QueryContext{}, false
	}
	return *m.query, true
}

// Stage returns the record of s.
func (m *Machine) Stage(s Stage) StageRecord { return m.stages[s] }

// Metric returns the record of mt.
func (m *Machine) Metric(mt Metric) MetricRecord { return m.metrics[mt] }

// Status returns the overall run status and its message.
func (m *Machine) Status() (RunStatus, string) { return m.status, m.message }

// Active reports whether a run is in flight.
func (m *Machine) Active() bool { return m.active }

// Answer returns the answer of the last completed run.
func (m *Machine) Answer() string { return m.answer }

// Timeline returns the timeline of the last completed run.
func (m *Machine) Timeline() timing.Timeline { return m.timeline }

// ActiveStages returns the stages currently marked active. Well-formed input
// keeps this at most one.
func (m *Machine) ActiveStages() []Stage {
	var out []Stage
	for _, s := range Stages() {
		if m.stages[s].State == StageActive {
			out = append(out, s)
		}
	}
	return out
}

func truncate(s string, n int) string {
	r := []rune(s)
	if n <= 0 || len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
