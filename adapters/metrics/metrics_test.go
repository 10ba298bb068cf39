package metrics_test

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/artpar/costboard/adapters/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewWithRegistry(t *testing.T) {
	// Use a new registry to avoid conflicts with other tests
	reg := prometheus.NewRegistry()
	m := metrics.NewWithRegistry(reg)

	if m.RequestsTotal == nil {
		t.Error("RequestsTotal is nil")
	}
	if m.RequestDuration == nil {
		t.Error("RequestDuration is nil")
	}
	if m.BillingQueries == nil {
		t.Error("BillingQueries is nil")
	}
	if m.UsageFetchDuration == nil {
		t.Error("UsageFetchDuration is nil")
	}
	if m.SnapshotsTaken == nil {
		t.Error("SnapshotsTaken is nil")
	}
	if m.ConfigReloads == nil {
		t.Error("ConfigReloads is nil")
	}
}

func TestObserveQuery(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewWithRegistry(reg)

	m.ObserveQuery("summary", "ok")
	m.ObserveQuery("summary", "ok")
	m.ObserveQuery("user_detail", "not_found")

	if got := testutil.ToFloat64(m.BillingQueries.WithLabelValues("summary", "ok")); got != 2 {
		t.Errorf("summary/ok = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.BillingQueries.WithLabelValues("user_detail", "not_found")); got != 1 {
		t.Errorf("user_detail/not_found = %v, want 1", got)
	}
}

func TestObserveFetch(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewWithRegistry(reg)

	m.ObserveFetch(120*time.Millisecond, nil)
	m.ObserveFetch(time.Second, errors.New("boom"))

	if got := testutil.ToFloat64(m.UsageFetchErrors); got != 1 {
		t.Errorf("UsageFetchErrors = %v, want 1", got)
	}
	if n := testutil.CollectAndCount(m.UsageFetchDuration); n != 1 {
		t.Errorf("histogram series = %d, want 1", n)
	}
}

func TestSnapshotMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewWithRegistry(reg)

	at := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	m.SnapshotStored(at, 12)
	m.SnapshotFailed()

	if got := testutil.ToFloat64(m.SnapshotsTaken.WithLabelValues("ok")); got != 1 {
		t.Errorf("snapshots ok = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.SnapshotsTaken.WithLabelValues("error")); got != 1 {
		t.Errorf("snapshots error = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.SnapshotLastTaken); got != float64(at.Unix()) {
		t.Errorf("SnapshotLastTaken = %v, want %v", got, at.Unix())
	}
	if got := testutil.ToFloat64(m.SnapshotPayloadUsers); got != 12 {
		t.Errorf("SnapshotPayloadUsers = %v, want 12", got)
	}
}

func TestConfigReloaded(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewWithRegistry(reg)

	m.ConfigReloaded(time.Unix(1700000000, 0), nil)
	m.ConfigReloaded(time.Unix(1700000100, 0), errors.New("bad yaml"))

	if got := testutil.ToFloat64(m.ConfigReloads); got != 1 {
		t.Errorf("ConfigReloads = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.ConfigReloadErrors); got != 1 {
		t.Errorf("ConfigReloadErrors = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.ConfigLastReload); got != 1700000000 {
		t.Errorf("ConfigLastReload = %v", got)
	}
}

func TestNilCollector(t *testing.T) {
	var m *metrics.Collector

	// None of these may panic.
	m.ObserveQuery("periods", "ok")
	m.ObserveFetch(time.Second, nil)
	m.SnapshotStored(time.Now(), 1)
	m.SnapshotFailed()
	m.ConfigReloaded(time.Now(), nil)
	m.RequestLimited()
}

func TestRequestLimited(t *testing.T) {
	m := metrics.NewWithRegistry(prometheus.NewRegistry())

	m.RequestLimited()
	m.RequestLimited()

	if got := testutil.ToFloat64(m.RateLimited); got != 2 {
		t.Errorf("RateLimited = %v, want 2", got)
	}
}

func TestHandler(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewWithRegistry(reg)
	m.ObserveQuery("periods", "ok")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), "costboard_billing_queries_total") {
		t.Errorf("metrics output missing billing counter:\n%s", body)
	}
}
