package metrics

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordShellCommand(t *testing.T) {
	before := testutil.ToFloat64(shellCommandsTotal.WithLabelValues("unknown", "127"))
	RecordShellCommand("unknown", 127)
	RecordShellCommand("unknown", 127)
	assert.Equal(t, before+2, testutil.ToFloat64(shellCommandsTotal.WithLabelValues("unknown", "127")))
}

func TestRecordSchedulerRun(t *testing.T) {
	ok := schedulerRunsTotal.WithLabelValues("flow", "success")
	failed := schedulerRunsTotal.WithLabelValues("flow", "error")
	okBefore, failedBefore := testutil.ToFloat64(ok), testutil.ToFloat64(failed)

	RecordSchedulerRun("flow", 10*time.Millisecond, true)
	RecordSchedulerRun("flow", 10*time.Millisecond, false)

	assert.Equal(t, okBefore+1, testutil.ToFloat64(ok))
	assert.Equal(t, failedBefore+1, testutil.ToFloat64(failed))
}

func TestObjectiveTokens(t *testing.T) {
	in := testutil.ToFloat64(objectiveTokensTotal.WithLabelValues("input"))
	out := testutil.ToFloat64(objectiveTokensTotal.WithLabelValues("output"))
	RecordObjectiveTokens(100, 40)
	assert.Equal(t, in+100, testutil.ToFloat64(objectiveTokensTotal.WithLabelValues("input")))
	assert.Equal(t, out+40, testutil.ToFloat64(objectiveTokensTotal.WithLabelValues("output")))
}

func TestTreeSizeGauge(t *testing.T) {
	SetVFSTreeSize(42)
	assert.Equal(t, 42.0, testutil.ToFloat64(vfsTreeSize))
}

func TestHandlerExposesMetrics(t *testing.T) {
	RecordControlRequest("status", true)

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "vos_control_requests_total")
	assert.Contains(t, string(body), "vos_vfs_tree_nodes")
}
