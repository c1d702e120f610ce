package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"mercator-hq/railguard/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func testConfig() config.MetricsConfig {
	return config.MetricsConfig{
		Enabled:                config.Bool(true),
		Namespace:              "test",
		RequestDurationBuckets: []float64{0.1, 0.5, 1.0, 5.0},
	}
}

func TestCollector_NewCollector(t *testing.T) {
	registry := prometheus.NewRegistry()
	collector := NewCollector(testConfig(), registry)

	if collector == nil {
		t.Fatal("Expected non-nil collector")
	}
	if collector.Registry() != registry {
		t.Error("Collector registry not set correctly")
	}
}

func TestCollector_Defaults(t *testing.T) {
	collector := NewCollector(config.MetricsConfig{}, nil)
	if collector.Registry() == nil {
		t.Fatal("expected a registry to be created")
	}

	collector.RecordRequest("allowed", 200*time.Millisecond)

	expected := `
# HELP railguard_requests_total Total number of conversation turns processed
# TYPE railguard_requests_total counter
railguard_requests_total{outcome="allowed"} 1
`
	if err := testutil.GatherAndCompare(collector.Registry(), strings.NewReader(expected), "railguard_requests_total"); err != nil {
		t.Errorf("unexpected metric output: %v", err)
	}
}

func TestCollector_RecordRequest(t *testing.T) {
	collector := NewCollector(testConfig(), prometheus.NewRegistry())

	tests := []struct {
		outcome  string
		duration time.Duration
	}{
		{outcome: "allowed", duration: 1200 * time.Millisecond},
		{outcome: "blocked", duration: 2 * time.Millisecond},
		{outcome: "rewritten", duration: 800 * time.Millisecond},
		{outcome: "error", duration: 30 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.outcome, func(t *testing.T) {
			collector.RecordRequest(tt.outcome, tt.duration)

			count := testutil.ToFloat64(collector.requestMetrics.requestsTotal.WithLabelValues(tt.outcome))
			if count != 1 {
				t.Errorf("Expected request count 1, got %f", count)
			}
		})
	}
}

func TestCollector_StageMetrics(t *testing.T) {
	collector := NewCollector(testConfig(), prometheus.NewRegistry())

	collector.RecordVerdict("jailbreak_detection", "block", 50*time.Microsecond)
	collector.RecordVerdict("jailbreak_detection", "block", 40*time.Microsecond)
	collector.RecordVerdict("topical", "allow", 10*time.Microsecond)

	if got := testutil.ToFloat64(collector.stageMetrics.verdictsTotal.WithLabelValues("jailbreak_detection", "block")); got != 2 {
		t.Errorf("Expected 2 jailbreak blocks, got %f", got)
	}
	if got := testutil.ToFloat64(collector.stageMetrics.verdictsTotal.WithLabelValues("topical", "allow")); got != 1 {
		t.Errorf("Expected 1 topical allow, got %f", got)
	}
	if got := testutil.CollectAndCount(collector.stageMetrics.duration); got != 2 {
		t.Errorf("Expected 2 stage duration series, got %d", got)
	}
}

func TestCollector_GatewayMetrics(t *testing.T) {
	collector := NewCollector(testConfig(), prometheus.NewRegistry())

	t.Run("record request", func(t *testing.T) {
		collector.RecordGatewayRequest("hosted", "success", 900*time.Millisecond)
		collector.RecordGatewayRequest("hosted", "timeout", 30*time.Second)

		if got := testutil.ToFloat64(collector.gatewayMetrics.requests.WithLabelValues("hosted", "success")); got != 1 {
			t.Errorf("Expected 1 success, got %f", got)
		}
		if got := testutil.ToFloat64(collector.gatewayMetrics.requests.WithLabelValues("hosted", "timeout")); got != 1 {
			t.Errorf("Expected 1 timeout, got %f", got)
		}
	})

	t.Run("update health", func(t *testing.T) {
		collector.UpdateGatewayHealth("self_hosted", true)
		if got := testutil.ToFloat64(collector.gatewayMetrics.health.WithLabelValues("self_hosted")); got != 1.0 {
			t.Errorf("Expected health=1.0, got %f", got)
		}

		collector.UpdateGatewayHealth("self_hosted", false)
		if got := testutil.ToFloat64(collector.gatewayMetrics.health.WithLabelValues("self_hosted")); got != 0.0 {
			t.Errorf("Expected health=0.0, got %f", got)
		}
	})
}

func TestCollector_ActionMetrics(t *testing.T) {
	collector := NewCollector(testConfig(), prometheus.NewRegistry())

	collector.RecordActionInvocation("get_current_time", "success", time.Millisecond)
	collector.RecordActionInvocation("get_weather", "timeout", 10*time.Second)
	collector.RecordActionRounds(1)
	collector.RecordActionRounds(0)

	if got := testutil.ToFloat64(collector.actionMetrics.invocations.WithLabelValues("get_current_time", "success")); got != 1 {
		t.Errorf("Expected 1 success, got %f", got)
	}
	if got := testutil.ToFloat64(collector.actionMetrics.invocations.WithLabelValues("get_weather", "timeout")); got != 1 {
		t.Errorf("Expected 1 timeout, got %f", got)
	}

	expected := `
# HELP test_action_rounds Number of action resolution rounds per request
# TYPE test_action_rounds histogram
test_action_rounds_bucket{le="0"} 1
test_action_rounds_bucket{le="1"} 2
test_action_rounds_bucket{le="2"} 2
test_action_rounds_bucket{le="3"} 2
test_action_rounds_bucket{le="5"} 2
test_action_rounds_bucket{le="8"} 2
test_action_rounds_bucket{le="+Inf"} 2
test_action_rounds_sum 1
test_action_rounds_count 2
`
	if err := testutil.CollectAndCompare(collector.actionMetrics.rounds, strings.NewReader(expected)); err != nil {
		t.Errorf("unexpected rounds histogram: %v", err)
	}
}

func TestCollector_Reloads(t *testing.T) {
	collector := NewCollector(testConfig(), prometheus.NewRegistry())

	collector.RecordReload("success")
	collector.RecordReload("error")
	collector.RecordReload("success")

	if got := testutil.ToFloat64(collector.requestMetrics.reloadsTotal.WithLabelValues("success")); got != 2 {
		t.Errorf("Expected 2 successful reloads, got %f", got)
	}
}

func TestCollector_Disabled(t *testing.T) {
	cfg := testConfig()
	cfg.Enabled = config.Bool(false)
	collector := NewCollector(cfg, prometheus.NewRegistry())

	collector.RecordRequest("allowed", time.Second)
	collector.RecordVerdict("topical", "allow", time.Microsecond)

	if got := testutil.ToFloat64(collector.requestMetrics.requestsTotal.WithLabelValues("allowed")); got != 0 {
		t.Errorf("Disabled collector recorded %f requests", got)
	}
}

func TestCollector_Nil(t *testing.T) {
	var collector *Collector

	// None of these may panic.
	collector.RecordRequest("allowed", time.Second)
	collector.RecordReload("success")
	collector.RecordVerdict("topical", "allow", time.Microsecond)
	collector.RecordGatewayRequest("hosted", "success", time.Second)
	collector.UpdateGatewayHealth("hosted", true)
	collector.RecordActionInvocation("get_current_time", "success", time.Millisecond)
	collector.RecordActionRounds(1)

	if collector.Registry() != nil {
		t.Error("nil collector should have no registry")
	}

	rec := httptest.NewRecorder()
	collector.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("Expected 404 from nil collector handler, got %d", rec.Code)
	}
}

func TestHandler(t *testing.T) {
	collector := NewCollector(testConfig(), prometheus.NewRegistry())
	collector.RecordGatewayRequest("self_hosted", "success", 100*time.Millisecond)

	rec := httptest.NewRecorder()
	collector.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `test_gateway_requests_total{kind="self_hosted",status="success"} 1`) {
		t.Errorf("metrics output missing gateway counter:\n%s", rec.Body.String())
	}
}
