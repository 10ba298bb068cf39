package http_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/artpar/costboard/adapters/clock"
	"github.com/artpar/costboard/adapters/hasher"
	apihttp "github.com/artpar/costboard/adapters/http"
	"github.com/artpar/costboard/adapters/identity"
	"github.com/artpar/costboard/adapters/memory"
	"github.com/artpar/costboard/adapters/metrics"
	"github.com/artpar/costboard/app"
	"github.com/artpar/costboard/domain/ratelimit"
	"github.com/artpar/costboard/domain/usage"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
)

func TestRateLimit(t *testing.T) {
	clk := clock.NewFake(baseTime.Add(5 * time.Second))
	store := memory.NewSnapshotStore(clk)
	source := memory.NewUsageSource([]usage.Record{rec("a", 1)}...)
	m := metrics.NewWithRegistry(prometheus.NewRegistry())

	limiter := memory.NewLimiter(ratelimit.Policy{Limit: 2, Window: time.Minute}, memory.LimiterConfig{})
	defer limiter.Close()

	logger := zerolog.Nop()
	resolver := identity.NewKeyResolver([]identity.Key{{UserID: "a", KeyHash: "key-a"}}, hasher.Plain{})
	router := apihttp.NewRouter(apihttp.NewHealthHandler(nil), logger, apihttp.RouterConfig{
		Metrics:        m,
		BillingHandler: apihttp.NewBillingHandler(app.NewBillingService(store, source, clk, logger, m), resolver, logger),
		RateLimiter:    limiter,
		Clock:          clk,
	})

	do := func(path string, headers map[string]string) *httptest.ResponseRecorder {
		req := httptest.NewRequest("GET", path, nil)
		for k, v := range headers {
			req.Header.Set(k, v)
		}
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec
	}

	for i := 0; i < 2; i++ {
		if rec := do("/api/periods", nil); rec.Code != http.StatusOK {
			t.Fatalf("request %d = %d", i+1, rec.Code)
		}
	}

	rec := do("/api/periods", nil)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("third request = %d, want 429", rec.Code)
	}
	if got := rec.Header().Get("Retry-After"); got != "55" {
		t.Errorf("Retry-After = %q, want 55", got)
	}
	if !strings.Contains(rec.Body.String(), "rate_limited") {
		t.Errorf("body = %s", rec.Body.String())
	}
	if got := testutil.ToFloat64(m.RateLimited); got != 1 {
		t.Errorf("RateLimited = %v, want 1", got)
	}

	// A presented key gets its own budget.
	rec = do("/api/periods", map[string]string{"X-API-Key": "key-a"})
	if rec.Code != http.StatusOK {
		t.Errorf("keyed request = %d, want 200", rec.Code)
	}
	if got := rec.Header().Get("X-RateLimit-Remaining"); got != "1" {
		t.Errorf("X-RateLimit-Remaining = %q, want 1", got)
	}

	// Health checks are not limited.
	if rec := do("/health", nil); rec.Code != http.StatusOK {
		t.Errorf("/health = %d", rec.Code)
	}

	clk.Advance(time.Minute)
	if rec := do("/api/periods", nil); rec.Code != http.StatusOK {
		t.Errorf("after window = %d, want 200", rec.Code)
	}
}
