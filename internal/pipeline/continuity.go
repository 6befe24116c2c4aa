package pipeline

import "go.uber.org/zap"

// Restore re-publishes the last known query after the stream reconnects. The
// stream has no backfill, so stage and metric progress made while
// disconnected stays as it was; only the query display is refreshed.
func (m *Machine) Restore() {
	if m.query == nil {
		return
	}
	m.log.Debug("restoring query after reconnect", zap.String("pipeline_type", m.query.PipelineType))
	m.sink.RenderQuery(*m.query)
}

// Replay pushes the complete current view-state to the sink. Used after the
// sink has been re-initialised.
func (m *Machine) Replay() {
	m.sink.RenderQuery(m.currentQuery())
	m.publishProgress()
}

// ForceQuery overwrites the tracked query by hand. Empty text is rejected.
func (m *Machine) ForceQuery(text, pipelineType string) bool {
	if text == "" {
		return false
	}
	m.setQuery(text, pipelineType)
	return true
}

func (m *Machine) publishProgress() {
	for _, s := range Stages() {
		rec := m.stages[s]
		m.sink.RenderStage(s, rec.State, rec.Detail)
	}
	for _, mt := range Metrics() {
		rec := m.metrics[mt]
		m.sink.RenderMetric(mt, rec.Status, rec.ElapsedMs)
	}
	m.sink.RenderTimeline(m.timeline)
	m.sink.RenderAnswer(m.answer)
	m.sink.RenderRunStatus(m.status, m.message)
}
