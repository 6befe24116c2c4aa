package app

import (
	"github.com/jwulff/ragscope/internal/db"
	"github.com/jwulff/ragscope/internal/pipeline"
	"github.com/jwulff/ragscope/internal/stream"
	"github.com/jwulff/ragscope/internal/timing"
)

// board is the terminal render sink. It holds plain view-state that View
// draws; the Machine stays the source of truth.
type board struct {
	query    pipeline.QueryContext
	stages   [5]pipeline.StageRecord
	metrics  [4]pipeline.MetricRecord
	timeline timing.Timeline
	answer   string
	status   pipeline.RunStatus
	message  string
	conn     stream.State
}

var _ pipeline.Sink = (*board)(nil)

func newBoard() *board {
	b := &board{
		timeline: timing.Build(timing.Durations{}),
		conn:     stream.StateConnecting,
	}
	for _, s := range pipeline.Stages() {
		b.stages[s] = pipeline.StageRecord{Stage: s}
	}
	for _, mt := range pipeline.Metrics() {
		b.metrics[mt] = pipeline.MetricRecord{Metric: mt}
	}
	return b
}

func (b *board) RenderQuery(q pipeline.QueryContext) { b.query = q }

func (b *board) RenderStage(s pipeline.Stage, state pipeline.StageState, detail string) {
	b.stages[s] = pipeline.StageRecord{Stage: s, State: state, Detail: detail}
}

func (b *board) RenderMetric(mt pipeline.Metric, status pipeline.MetricStatus, elapsedMs *float64) {
	rec := pipeline.MetricRecord{Metric: mt, Status: status}
	if elapsedMs != nil {
		v := *elapsedMs
		rec.ElapsedMs = &v
	}
	b.metrics[mt] = rec
}

func (b *board) RenderTimeline(tl timing.Timeline) { b.timeline = tl }

func (b *board) RenderAnswer(text string) { b.answer = text }

func (b *board) RenderRunStatus(s pipeline.RunStatus, message string) {
	b.status = s
	b.message = message
}

func (b *board) RenderConnectionState(s stream.State) { b.conn = s }

// boardFromRun rebuilds a finished board from a stored run so the pipeline
// panel can show it.
func boardFromRun(r db.Run) *board {
	b := newBoard()
	b.query = pipeline.QueryContext{Text: r.Query, PipelineType: r.PipelineType}
	if r.ReceivedAt != nil {
		b.query.ReceivedAt = *r.ReceivedAt
	}
	b.status = pipeline.ParseRunStatus(r.Status)
	b.message = r.Error
	b.answer = r.Answer
	b.timeline = r.Timeline()

	b.stages[pipeline.StageQuery] = pipeline.StageRecord{Stage: pipeline.StageQuery, State: pipeline.StageCompleted}
	for _, s := range pipeline.Stages() {
		mt, ok := s.Metric()
		if !ok {
			continue
		}
		ms := r.StageMs[mt]
		if ms <= 0 {
			continue
		}
		b.stages[s] = pipeline.StageRecord{Stage: s, State: pipeline.StageCompleted, Detail: timing.FormatMs(ms)}
		b.metrics[mt] = pipeline.MetricRecord{Metric: mt, Status: pipeline.MetricCompleted, ElapsedMs: &ms}
	}
	return b
}
