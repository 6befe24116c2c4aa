package pipeline

import "github.com/jwulff/ragscope/internal/timing"

// Sink receives derived view-state from the Machine. Implementations do the
// side-effecting rendering; every argument is plain data.
type Sink interface {
	RenderQuery(q QueryContext)
	RenderStage(stage Stage, state StageState, detail string)
	RenderMetric(metric Metric, status MetricStatus, elapsedMs *float64)
	RenderTimeline(tl timing.Timeline)
	RenderAnswer(text string)
	RenderRunStatus(status RunStatus, message string)
}

// Discard is a Sink that renders nothing.
type Discard struct{}

func (Discard) RenderQuery(QueryContext) {}
func (Discard) RenderStage(Stage, StageState, string) {}
func (Discard) RenderMetric(Metric, MetricStatus, *float64) {}
func (Discard) RenderTimeline(timing.Timeline) {}
func (Discard) RenderAnswer(string) {}
func (Discard) RenderRunStatus(RunStatus, string) {}
