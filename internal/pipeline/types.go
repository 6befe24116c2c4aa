package pipeline

import (
	"fmt"
	"time"

	"github.com/jwulff/ragscope/internal/timing"
)

// Stage is one of the five displayed pipeline phases.
type Stage int

const (
	StageQuery Stage = iota
	StageEmbedding
	StageRetrieval
	StageContext
	StageGeneration

	stageCount
)

var stageNames = [stageCount]string{"query", "embedding", "retrieval", "context", "generation"}

var stageLabels = [stageCount]string{
	"Query",
	"Embedding",
	"Retrieval",
	"Context",
	"Generation",
}

// Stages returns all stages in pipeline order.
func Stages() []Stage {
	return []Stage{StageQuery, StageEmbedding, StageRetrieval, StageContext, StageGeneration}
}

func (s Stage) String() string {
	if s < 0 || s >= stageCount {
		return fmt.Sprintf("stage(%d)", int(s))
	}
	return stageNames[s]
}

// Label is the display name of the stage.
func (s Stage) Label() string {
	if s < 0 || s >= stageCount {
		return s.String()
	}
	return stageLabels[s]
}

// Metric returns the timed metric bucket that reports this stage's duration.
// The query stage has none.
func (s Stage) Metric() (Metric, bool) {
	switch s {
	case StageEmbedding:
		return MetricEmbedding, true
	case StageRetrieval:
		return MetricSearch, true
	case StageContext:
		return MetricContext, true
	case StageGeneration:
		return MetricLLM, true
	}
	return 0, false
}

// StageState is the display state of a stage.
type StageState int

const (
	StageIdle StageState = iota
	StageActive
	StageCompleted
	StageError
)

func (s StageState) String() string {
	switch s {
	case StageIdle:
		return "idle"
	case StageActive:
		return "active"
	case StageCompleted:
		return "completed"
	case StageError:
		return "error"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Metric is a timed measurement bucket. Metric keys are the timing model's
// stage keys: embedding, search, context, llm.
type Metric = timing.Stage

const (
	MetricEmbedding = timing.Embedding
	MetricSearch    = timing.Search
	MetricContext   = timing.Context
	MetricLLM       = timing.LLM
)

// Metrics returns all metric buckets in layout order.
func Metrics() []Metric { return timing.Stages() }

// MetricStatus is the display status of a metric bucket.
type MetricStatus int

const (
	MetricWaiting MetricStatus = iota
	MetricProcessing
	MetricCompleted
	MetricError
)

func (s MetricStatus) String() string {
	switch s {
	case MetricWaiting:
		return "waiting"
	case MetricProcessing:
		return "processing"
	case MetricCompleted:
		return "completed"
	case MetricError:
		return "error"
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// RunStatus is the overall status of the tracked run.
type RunStatus int

const (
	RunIdle RunStatus = iota
	RunProcessing
	RunCompleted
	RunError
)

func (s RunStatus) String() string {
	switch s {
	case RunIdle:
		return "idle"
	case RunProcessing:
		return "processing"
	case RunCompleted:
		return "completed"
	case RunError:
		return "error"
	}
	return fmt.Sprintf("run(%d)", int(s))
}

// ParseRunStatus maps a stored status string back to a RunStatus.
func ParseRunStatus(s string) RunStatus {
	switch s {
	case "processing":
		return RunProcessing
	case "completed":
		return RunCompleted
	case "error":
		return RunError
	}
	return RunIdle
}

// DefaultPipelineType is used when the server omits pipeline_type.
const DefaultPipelineType = "unknown"

// QueryContext is the currently tracked query. A zero Text means no query is
// known and the sink should show its waiting placeholder.
type QueryContext struct {
	Text         string
	PipelineType string
	ReceivedAt   time.Time
}

// Known reports whether the context carries a displayable query.
func (q QueryContext) Known() bool { return q.Text != "" }

// StageRecord is the display record of one stage.
type StageRecord struct {
	Stage  Stage
	State  StageState
	Detail string
}

// MetricRecord is the display record of one metric bucket. ElapsedMs is nil
// until the stage reports a duration.
type MetricRecord struct {
	Metric    Metric
	Status    MetricStatus
	ElapsedMs *float64
}

// Run is the terminal snapshot of a pipeline run, produced when the run
// completes or fails.
type Run struct {
	Query      QueryContext
	Status     RunStatus
	Error      string
	Answer     string
	Durations  timing.Durations
	Timeline   timing.Timeline
	FinishedAt time.Time
}
