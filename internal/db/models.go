// Package db persists finished pipeline runs to SQLite.
package db

import (
	"time"

	"github.com/jwulff/ragscope/internal/pipeline"
	"github.com/jwulff/ragscope/internal/timing"
)

// Run is one stored terminal run.
type Run struct {
	ID           string
	Query        string
	PipelineType string
	Status       string
	Error        string
	Answer       string
	TotalMs      float64
	StageMs      [4]float64 // indexed by timing.Stage
	ReceivedAt   *time.Time
	FinishedAt   time.Time
}

// StageStat aggregates one stage over the stored runs that recorded it.
type StageStat struct {
	Stage timing.Stage
	Runs  int
	AvgMs float64
	MinMs float64
	MaxMs float64
}

// FromPipeline converts a terminal snapshot from the state machine.
func FromPipeline(r pipeline.Run) Run {
	out := Run{
		Query:        r.Query.Text,
		PipelineType: r.Query.PipelineType,
		Status:       r.Status.String(),
		Error:        r.Error,
		Answer:       r.Answer,
		TotalMs:      r.Durations.TotalMs,
		StageMs:      r.Durations.StageMs,
		FinishedAt:   r.FinishedAt,
	}
	if out.PipelineType == "" {
		out.PipelineType = pipeline.DefaultPipelineType
	}
	if !r.Query.ReceivedAt.IsZero() {
		t := r.Query.ReceivedAt
		out.ReceivedAt = &t
	}
	if out.FinishedAt.IsZero() {
		out.FinishedAt = time.Now()
	}
	return out
}

// Durations returns the stored timings in the form the timing model takes.
func (r Run) Durations() timing.Durations {
	return timing.Durations{TotalMs: r.TotalMs, StageMs: r.StageMs}
}

// Timeline rebuilds the run's timeline.
func (r Run) Timeline() timing.Timeline {
	return timing.Build(r.Durations())
}
