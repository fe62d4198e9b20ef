package metrics

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordStoreRequest(t *testing.T) {
	m := NewMetrics()

	m.RecordStoreRequest("create_object", "success", 10*time.Millisecond)
	m.RecordStoreRequest("create_object", "success", 20*time.Millisecond)
	m.RecordStoreRequest("create_object", "error", time.Millisecond)

	if got := testutil.ToFloat64(m.StoreRequestsTotal.WithLabelValues("create_object", "success")); got != 2 {
		t.Fatalf("expected 2 successful requests, got %v", got)
	}
	if got := testutil.ToFloat64(m.StoreRequestsTotal.WithLabelValues("create_object", "error")); got != 1 {
		t.Fatalf("expected 1 failed request, got %v", got)
	}
}

func TestIndependentRegistries(t *testing.T) {
	a := NewMetrics()
	b := NewMetrics()

	a.RecordsInsertedTotal.Inc()

	if got := testutil.ToFloat64(b.RecordsInsertedTotal); got != 0 {
		t.Fatalf("registries should not share state, got %v", got)
	}
}

func TestWriteTextfile(t *testing.T) {
	m := NewMetrics()
	m.RecordsDeletedTotal.Add(3)
	m.RecordFailure("clear-all")

	path := filepath.Join(t.TempDir(), "memsetup.prom")
	if err := m.WriteTextfile(path); err != nil {
		t.Fatalf("write: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	text := string(data)
	if !strings.Contains(text, "memsetup_records_deleted_total 3") {
		t.Fatalf("missing deleted counter:\n%s", text)
	}
	if !strings.Contains(text, `memsetup_action_failures_total{action="clear-all"} 1`) {
		t.Fatalf("missing failure counter:\n%s", text)
	}
}
