// Package console is the headless render sink: every visible change of the
// pipeline view becomes one structured log line.
package console

import (
	"go.uber.org/zap"

	"github.com/jwulff/ragscope/internal/logger"
	"github.com/jwulff/ragscope/internal/pipeline"
	"github.com/jwulff/ragscope/internal/stream"
	"github.com/jwulff/ragscope/internal/timing"
)

// Sink logs view-state changes. Re-rendering an unchanged value logs nothing.
type Sink struct {
	log *logger.Logger

	query   pipeline.QueryContext
	stages  map[pipeline.Stage]pipeline.StageRecord
	metrics map[pipeline.Metric]pipeline.MetricRecord
	status  pipeline.RunStatus
	message string
	answer  string
	total   float64
}

var _ pipeline.Sink = (*Sink)(nil)

// New creates a console sink writing through l.
func New(l *logger.Logger) *Sink {
	return &Sink{
		log:     logger.OrNop(l).Named("watch"),
		stages:  make(map[pipeline.Stage]pipeline.StageRecord),
		metrics: make(map[pipeline.Metric]pipeline.MetricRecord),
	}
}

func (s *Sink) RenderQuery(q pipeline.QueryContext) {
	if q.Text == s.query.Text && q.PipelineType == s.query.PipelineType {
		return
	}
	s.query = q
	if !q.Known() {
		s.log.Info("waiting for query")
		return
	}
	s.log.Info("query", zap.String("text", q.Text), zap.String("pipeline_type", q.PipelineType))
}

func (s *Sink) RenderStage(st pipeline.Stage, state pipeline.StageState, detail string) {
	rec := pipeline.StageRecord{Stage: st, State: state, Detail: detail}
	if prev, ok := s.stages[st]; ok && prev == rec {
		return
	}
	s.stages[st] = rec
	if state == pipeline.StageIdle {
		return
	}

	fields := []zap.Field{zap.Stringer("stage", st), zap.Stringer("state", state)}
	if detail != "" {
		fields = append(fields, zap.String("detail", detail))
	}
	if state == pipeline.StageError {
		s.log.Warn("stage", fields...)
		return
	}
	s.log.Info("stage", fields...)
}

func (s *Sink) RenderMetric(mt pipeline.Metric, status pipeline.MetricStatus, elapsedMs *float64) {
	prev, seen := s.metrics[mt]
	if seen && prev.Status == status && sameFloat(prev.ElapsedMs, elapsedMs) {
		return
	}
	s.metrics[mt] = pipeline.MetricRecord{Metric: mt, Status: status, ElapsedMs: elapsedMs}
	if status != pipeline.MetricCompleted || elapsedMs == nil {
		return
	}
	s.log.Info("metric", zap.String("metric", mt.Key()), zap.String("elapsed", timing.FormatMs(*elapsedMs)))
}

func (s *Sink) RenderTimeline(tl timing.Timeline) {
	if tl.Empty() && tl.TotalMs == 0 {
		s.total = 0
		return
	}
	if tl.TotalMs == s.total {
		return
	}
	s.total = tl.TotalMs

	fields := []zap.Field{zap.String("total", tl.TotalDisplay())}
	for _, sh := range tl.Breakdown {
		fields = append(fields, zap.String(sh.Stage.Key(),
			timing.FormatMs(sh.DurationMs)+" ("+timing.FormatPercent(sh.Percent)+")"))
	}
	s.log.Info("timeline", fields...)
}

func (s *Sink) RenderAnswer(text string) {
	if text == s.answer {
		return
	}
	s.answer = text
	if text == "" {
		return
	}
	s.log.Info("answer", zap.String("text", text))
}

func (s *Sink) RenderRunStatus(status pipeline.RunStatus, message string) {
	if status == s.status && message == s.message {
		return
	}
	s.status, s.message = status, message
	switch status {
	case pipeline.RunError:
		s.log.Error("run failed", zap.String("error", message))
	case pipeline.RunCompleted:
		s.log.Info("run completed")
	}
}

// RenderConnectionState logs stream connection changes.
func (s *Sink) RenderConnectionState(st stream.State) {
	switch st {
	case stream.StateFailed:
		s.log.Error("connection failed, giving up")
	case stream.StateReconnecting, stream.StateDisconnected:
		s.log.Warn("connection", zap.Stringer("state", st))
	default:
		s.log.Info("connection", zap.Stringer("state", st))
	}
}

func sameFloat(a, b *float64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
