package observability

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func findMetric(t *testing.T, name string, labels map[string]string) *dto.Metric {
	t.Helper()
	families, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, family := range families {
		if family.GetName() != name {
			continue
		}
		for _, metric := range family.GetMetric() {
			if matchLabels(metric.GetLabel(), labels) {
				return metric
			}
		}
	}
	t.Fatalf("metric %s%v not found", name, labels)
	return nil
}

func matchLabels(pairs []*dto.LabelPair, want map[string]string) bool {
	matched := 0
	for _, pair := range pairs {
		if v, ok := want[pair.GetName()]; ok {
			if v != pair.GetValue() {
				return false
			}
			matched++
		}
	}
	return matched == len(want)
}

func TestModuleMetricsObserve(t *testing.T) {
	m := ModuleMetrics()
	m.Observe("lending", "POST /v1/lending/borrow", 422, 5*time.Millisecond)
	m.Observe("lending", "POST /v1/lending/borrow", 200, 5*time.Millisecond)
	m.RecordThrottle("lending", "")

	errs := findMetric(t, "sbtlend_api_errors_total", map[string]string{"module": "lending", "status": "422"})
	if errs.GetCounter().GetValue() < 1 {
		t.Fatalf("expected error counter to increment")
	}
	throttles := findMetric(t, "sbtlend_api_throttles_total", map[string]string{"module": "lending", "reason": "unspecified"})
	if throttles.GetCounter().GetValue() < 1 {
		t.Fatalf("expected throttle counter to increment")
	}
}

func TestLedgerMetricsGauges(t *testing.T) {
	m := Ledger()
	m.RecordPool(300, 100, 7)
	m.RecordMinted(4)
	m.Observe("lending", "borrow", "insufficient_collateral", time.Millisecond)

	if got := findMetric(t, "sbtlend_pool_total", map[string]string{"kind": "reserves"}).GetGauge().GetValue(); got != 7 {
		t.Fatalf("unexpected reserves gauge %v", got)
	}
	if got := findMetric(t, "sbtlend_reputation_minted_total", nil).GetGauge().GetValue(); got != 4 {
		t.Fatalf("unexpected minted gauge %v", got)
	}
	ops := findMetric(t, "sbtlend_ledger_operations_total", map[string]string{"operation": "borrow", "outcome": "insufficient_collateral"})
	if ops.GetCounter().GetValue() < 1 {
		t.Fatalf("expected rejected borrow to be counted")
	}
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *LedgerMetrics
	m.Observe("lending", "borrow", "", time.Millisecond)
	m.RecordPool(1, 2, 3)
	m.RecordSinkFailure("journal", "publish", 1)
	m.RecordSinkBacklog("journal", 1)
	var mm *moduleMetrics
	mm.Observe("", "", 500, 0)
}

func TestLedgerMetricsSinkFailures(t *testing.T) {
	m := Ledger()
	m.RecordSinkFailure("*journal.Journal", "publish", 2)
	m.RecordSinkFailure("*journal.Journal", "dropped", 0)
	m.RecordSinkBacklog("*journal.Journal", 5)

	failures := findMetric(t, "sbtlend_events_sink_failures_total", map[string]string{"sink": "*journal.Journal", "reason": "publish"})
	if failures.GetCounter().GetValue() < 2 {
		t.Fatalf("expected sink failures to be counted")
	}
	backlog := findMetric(t, "sbtlend_events_sink_backlog", map[string]string{"sink": "*journal.Journal"})
	if backlog.GetGauge().GetValue() != 5 {
		t.Fatalf("unexpected backlog %v", backlog.GetGauge().GetValue())
	}
}
