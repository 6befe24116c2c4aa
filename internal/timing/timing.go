// Package timing lays out per-stage durations of a finished pipeline run as a
// contiguous left-to-right timeline.
package timing

import (
	"fmt"
	"math"
)

// Stage is one of the four timed pipeline stages.
type Stage int

const (
	Embedding Stage = iota
	Search
	Context
	LLM

	stageCount
)

var stageKeys = [stageCount]string{"embedding", "search", "context", "llm"}

var stageLabels = [stageCount]string{
	"Query Embedding",
	"Vector Search",
	"Context Building",
	"LLM Generation",
}

// Stages returns the timed stages in layout order.
func Stages() []Stage {
	return []Stage{Embedding, Search, Context, LLM}
}

// Key is the metric key of the stage ("embedding", "search", "context", "llm").
func (s Stage) Key() string {
	if s < 0 || s >= stageCount {
		return fmt.Sprintf("stage(%d)", int(s))
	}
	return stageKeys[s]
}

// Label is the display name of the stage.
func (s Stage) Label() string {
	if s < 0 || s >= stageCount {
		return s.Key()
	}
	return stageLabels[s]
}

func (s Stage) String() string { return s.Key() }

// Durations is the raw timing of one run in milliseconds. Stage durations are
// not required to sum to TotalMs.
type Durations struct {
	TotalMs float64
	StageMs [stageCount]float64
}

// Segment is one stage's slot on the timeline. End = Start + Duration.
type Segment struct {
	Stage      Stage
	StartMs    float64
	EndMs      float64
	DurationMs float64
	Percent    float64
}

// Share is a stage's duration and percentage of the total, reported for every
// stage including the ones with no recorded time.
type Share struct {
	Stage      Stage
	DurationMs float64
	Percent    float64
}

// Timeline is the derived layout of a run.
type Timeline struct {
	Segments  []Segment
	Breakdown []Share
	TotalMs   float64
	AxisMaxMs float64
}

// Build lays out d. Stages with a zero or negative duration get no segment;
// the rest are packed in fixed order starting at offset 0.
func Build(d Durations) Timeline {
	tl := Timeline{
		TotalMs:   d.TotalMs,
		AxisMaxMs: AxisMax(d.TotalMs),
		Breakdown: make([]Share, 0, stageCount),
	}

	var offset float64
	for _, s := range Stages() {
		dur := d.StageMs[s]
		pct := Percent(dur, d.TotalMs)
		tl.Breakdown = append(tl.Breakdown, Share{Stage: s, DurationMs: dur, Percent: pct})

		if dur <= 0 || math.IsNaN(dur) {
			continue
		}
		tl.Segments = append(tl.Segments, Segment{
			Stage:      s,
			StartMs:    offset,
			EndMs:      offset + dur,
			DurationMs: dur,
			Percent:    pct,
		})
		offset += dur
	}
	return tl
}

// Percent returns part/total*100, or 0 when total is not positive.
func Percent(part, total float64) float64 {
	if total <= 0 {
		return 0
	}
	return part / total * 100
}

// AxisMax is the scale maximum for a timeline of the given total: 5% headroom
// with a floor of 100ms.
func AxisMax(totalMs float64) float64 {
	return math.Max(totalMs*1.05, 100)
}

// StackedMs is the end offset of the last segment.
func (t Timeline) StackedMs() float64 {
	if len(t.Segments) == 0 {
		return 0
	}
	return t.Segments[len(t.Segments)-1].EndMs
}

// Empty reports whether the timeline has nothing to draw.
func (t Timeline) Empty() bool {
	return len(t.Segments) == 0
}

// TotalDisplay formats the total in seconds with two decimals.
func (t Timeline) TotalDisplay() string {
	return FormatSeconds(t.TotalMs)
}

// FormatSeconds renders milliseconds as seconds with two decimals, e.g. "1.00s".
func FormatSeconds(ms float64) string {
	return fmt.Sprintf("%.2fs", ms/1000)
}

// FormatMs renders a rounded millisecond value, e.g. "45 ms".
func FormatMs(ms float64) string {
	return fmt.Sprintf("%d ms", int64(math.Round(ms)))
}

// FormatPercent renders a percentage with one decimal, e.g. "4.5%".
func FormatPercent(p float64) string {
	return fmt.Sprintf("%.1f%%", p)
}
