package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestSetConnectionState(t *testing.T) {
	all := []string{"connecting", "connected", "failed"}

	SetConnectionState("connected", all)
	if got := testutil.ToFloat64(ConnectionState.WithLabelValues("connected")); got != 1 {
		t.Errorf("connected = %v, want 1", got)
	}
	if got := testutil.ToFloat64(ConnectionState.WithLabelValues("failed")); got != 0 {
		t.Errorf("failed = %v, want 0", got)
	}

	SetConnectionState("failed", all)
	if got := testutil.ToFloat64(ConnectionState.WithLabelValues("connected")); got != 0 {
		t.Errorf("connected after failure = %v, want 0", got)
	}
}

func TestRecordCounters(t *testing.T) {
	before := testutil.ToFloat64(DecodeErrorsTotal.WithLabelValues("complete"))
	RecordDecodeError("complete")
	if got := testutil.ToFloat64(DecodeErrorsTotal.WithLabelValues("complete")); got != before+1 {
		t.Errorf("decode errors = %v, want %v", got, before+1)
	}

	before = testutil.ToFloat64(RunsTotal.WithLabelValues("completed"))
	RecordRun("completed")
	if got := testutil.ToFloat64(RunsTotal.WithLabelValues("completed")); got != before+1 {
		t.Errorf("runs = %v, want %v", got, before+1)
	}
}

func TestRecordStageIgnoresNegative(t *testing.T) {
	before := testutil.CollectAndCount(StageDuration)
	RecordStage("bogus-negative", -1)
	if got := testutil.CollectAndCount(StageDuration); got != before {
		t.Errorf("series = %d, want %d", got, before)
	}
}
