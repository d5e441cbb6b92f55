package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestNewMetrics_Singleton(t *testing.T) {
	assert.Same(t, NewMetrics(), NewMetrics())
}

func TestRecordLLMRequest(t *testing.T) {
	m := NewMetrics()
	before := testutil.ToFloat64(m.LLMRequests.WithLabelValues("openai", "test-model", "true"))

	m.RecordLLMRequest("openai", "test-model", true, 300*time.Millisecond)

	after := testutil.ToFloat64(m.LLMRequests.WithLabelValues("openai", "test-model", "true"))
	assert.Equal(t, before+1, after)
}

func TestRecordCheckpoint(t *testing.T) {
	m := NewMetrics()
	okBefore := testutil.ToFloat64(m.CheckpointWrites.WithLabelValues("ok"))
	errBefore := testutil.ToFloat64(m.CheckpointWrites.WithLabelValues("error"))

	m.RecordCheckpoint(nil)
	m.RecordCheckpoint(errors.New("disk full"))

	assert.Equal(t, okBefore+1, testutil.ToFloat64(m.CheckpointWrites.WithLabelValues("ok")))
	assert.Equal(t, errBefore+1, testutil.ToFloat64(m.CheckpointWrites.WithLabelValues("error")))
}

func TestRecordDispatch(t *testing.T) {
	m := NewMetrics()
	m.RecordDispatch("apply_X_tool", false, time.Second)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ToolDispatches.WithLabelValues("apply_X_tool", "false")))
}

func TestRecordLogEntry(t *testing.T) {
	m := NewMetrics()
	before := testutil.ToFloat64(m.LogEntries.WithLabelValues("warn", "seeds"))

	m.RecordLogEntry("warn", "seeds")

	assert.Equal(t, before+1, testutil.ToFloat64(m.LogEntries.WithLabelValues("warn", "seeds")))
}
