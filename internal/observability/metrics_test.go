package observability

import (
	"testing"
	"time"

	"github.com/danmuck/panelctl/internal/testutil/testlog"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRegisterMetricsAndRecordersAreSafe(t *testing.T) {
	testlog.Start(t)
	RegisterMetrics()
	RegisterMetrics()

	RecordHTTPRequest("admin", "GET", "/health", 200, 12*time.Millisecond)
	RecordMessage("poll")
	RecordPageChange()
	ConnectionOpened("tcp")
	ConnectionClosed()
	RecordBytesSent(26)
	SetBudgetInUse(0)
}

func TestRejectCounterIncrements(t *testing.T) {
	testlog.Start(t)
	before := testutil.ToFloat64(rejectsTotal.WithLabelValues("wrong_type"))
	RecordReject("wrong_type")
	RecordReject("wrong_type")
	after := testutil.ToFloat64(rejectsTotal.WithLabelValues("wrong_type"))
	if after-before != 2 {
		t.Fatalf("expected 2 new rejects, got %v", after-before)
	}
	RecordDeferred("token_memory")
	if got := testutil.ToFloat64(deferredTotal.WithLabelValues("token_memory")); got < 1 {
		t.Fatalf("expected deferred counter, got %v", got)
	}
	if n, err := testutil.GatherAndCount(prometheus.DefaultGatherer, "panelctl_protocol_rejects_total"); err != nil || n == 0 {
		t.Fatalf("expected rejects series registered, n=%d err=%v", n, err)
	}
}
