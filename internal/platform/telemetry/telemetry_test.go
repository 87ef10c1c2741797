package telemetry

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
)

func newProvider() *TelemetryProvider {
	return NewTelemetryProvider(TelemetryConfig{ServiceName: "pulse-test"})
}

func TestConfig_Defaults(t *testing.T) {
	cfg := TelemetryConfig{}
	cfg.applyDefaults()
	if cfg.ServiceName != "pulse-api" {
		t.Errorf("ServiceName = %q", cfg.ServiceName)
	}
	if cfg.SampleRate != 1.0 {
		t.Errorf("SampleRate = %v", cfg.SampleRate)
	}
	if !cfg.metricsOn() || !cfg.tracingOn() {
		t.Error("metrics and tracing should default on")
	}
}

func TestConfig_DisableFlags(t *testing.T) {
	cfg := TelemetryConfig{MetricsEnabled: BoolPtr(false), TracingEnabled: BoolPtr(false)}
	if cfg.metricsOn() || cfg.tracingOn() {
		t.Error("expected both disabled")
	}
}

func TestHistogram_ObserveAndBuckets(t *testing.T) {
	h := newHistogram([]float64{1, 5, 10})
	h.Observe(0.5)
	h.Observe(3)
	h.Observe(7)
	h.Observe(100) // beyond all boundaries

	if h.Count() != 4 {
		t.Errorf("Count = %d", h.Count())
	}
	if h.Sum() != 110.5 {
		t.Errorf("Sum = %v", h.Sum())
	}
	cum := h.cumulativeBuckets()
	want := []int64{1, 2, 3}
	for i := range want {
		if cum[i] != want[i] {
			t.Errorf("cum[%d] = %d, want %d", i, cum[i], want[i])
		}
	}
}

func TestCounterStore_Concurrent(t *testing.T) {
	s := newCounterStore()
	done := make(chan struct{})
	for i := 0; i < 8; i++ {
		go func() {
			for j := 0; j < 100; j++ {
				s.inc("k")
			}
			done <- struct{}{}
		}()
	}
	for i := 0; i < 8; i++ {
		<-done
	}
	if got := s.get("k"); got != 800 {
		t.Errorf("counter = %d, want 800", got)
	}
}

func TestGaugeStore_SetAdd(t *testing.T) {
	s := newGaugeStore()
	s.set("g", 5)
	s.add("g", -2)
	if got := s.get("g"); got != 3 {
		t.Errorf("gauge = %d, want 3", got)
	}
	if got := s.get("missing"); got != 0 {
		t.Errorf("missing gauge = %d, want 0", got)
	}
}

func TestAssistantCall_CounterAndHistogram(t *testing.T) {
	tp := newProvider()
	tp.AssistantCall("ok", 2*time.Second)
	tp.AssistantCall("ok", 4*time.Second)
	tp.AssistantCall("error", time.Second)

	if got := tp.GetCounter("assistant.calls", "ok"); got != 2 {
		t.Errorf("ok calls = %d", got)
	}
	if got := tp.GetCounter("assistant.calls", "error"); got != 1 {
		t.Errorf("error calls = %d", got)
	}
	h := tp.GetHistogram("assistant.call.duration")
	if h == nil || h.Count() != 3 {
		t.Fatalf("assistant duration histogram = %+v", h)
	}
}

func TestEscalationCreated_BySeverity(t *testing.T) {
	tp := newProvider()
	tp.EscalationCreated("urgent")
	tp.EscalationCreated("urgent")
	tp.EscalationCreated("medium")

	if got := tp.GetCounter("escalations.created", "urgent"); got != 2 {
		t.Errorf("urgent = %d", got)
	}
	if got := tp.GetCounter("escalations.created", "medium"); got != 1 {
		t.Errorf("medium = %d", got)
	}
}

func TestHealthMetrics_Gauges(t *testing.T) {
	tp := newProvider()
	rec := tp.HealthMetrics()
	rec.SetDBPoolActive(4)
	rec.SetOpenEscalations(7)
	rec.SetActiveChats(12)

	if tp.GetGauge("db.pool.active_connections") != 4 {
		t.Error("db pool gauge not set")
	}
	if tp.GetGauge("escalations.open") != 7 {
		t.Error("open escalations gauge not set")
	}
	if tp.GetGauge("chats.active") != 12 {
		t.Error("active chats gauge not set")
	}
}

func TestTracingMiddleware_RecordsSpan(t *testing.T) {
	tp := newProvider()
	e := echo.New()
	e.Use(tp.TracingMiddleware())
	e.GET("/chats/:id", func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/chats/abc", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	spans := tp.GetRecordedSpans()
	if len(spans) != 1 {
		t.Fatalf("got %d spans", len(spans))
	}
	s := spans[0]
	if s.Name != "HTTP GET /chats/:id" {
		t.Errorf("span name = %q", s.Name)
	}
	if s.StatusCode != SpanStatusOK {
		t.Errorf("status = %v", s.StatusCode)
	}
	if s.Attributes["pulse.resource"] != "chats" {
		t.Errorf("resource = %q", s.Attributes["pulse.resource"])
	}
	if s.TraceID == "" || len(s.TraceID) != 32 {
		t.Errorf("trace id = %q", s.TraceID)
	}
}

func TestTracingMiddleware_ErrorStatus(t *testing.T) {
	tp := newProvider()
	e := echo.New()
	e.Use(tp.TracingMiddleware())
	e.GET("/boom", func(c echo.Context) error {
		return echo.NewHTTPError(http.StatusInternalServerError, "boom")
	})

	req := httptest.NewRequest(http.MethodGet, "/boom", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	spans := tp.GetRecordedSpans()
	if len(spans) != 1 || spans[0].StatusCode != SpanStatusError {
		t.Errorf("spans = %+v", spans)
	}
}

func TestTracingMiddleware_Disabled(t *testing.T) {
	tp := NewTelemetryProvider(TelemetryConfig{TracingEnabled: BoolPtr(false)})
	e := echo.New()
	e.Use(tp.TracingMiddleware())
	e.GET("/", func(c echo.Context) error { return c.NoContent(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if len(tp.GetRecordedSpans()) != 0 {
		t.Error("expected no spans when tracing disabled")
	}
}

func TestMetricsMiddleware_RecordsDuration(t *testing.T) {
	tp := newProvider()
	e := echo.New()
	e.Use(tp.MetricsMiddleware())
	e.GET("/chats", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})

	req := httptest.NewRequest(http.MethodGet, "/chats", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	h := tp.GetHistogram("http.server.request.duration")
	if h == nil || h.Count() != 1 {
		t.Fatalf("duration histogram = %+v", h)
	}
	labeled := tp.GetLabeledHistogram("http.server.request.duration", LabelsKey("GET", "/chats", "200"))
	if labeled == nil || labeled.Count() != 1 {
		t.Errorf("labeled histogram missing")
	}
	if tp.GetGauge("http.server.active_requests") != 0 {
		t.Error("active requests should return to zero")
	}
}

func TestPrometheusHandler_Exposition(t *testing.T) {
	tp := newProvider()
	tp.AssistantCall("ok", time.Second)
	tp.EscalationCreated("urgent")
	tp.ChatReconciled()
	tp.DocumentUploaded()
	tp.HealthMetrics().SetOpenEscalations(3)

	e := echo.New()
	e.GET("/metrics", tp.PrometheusHandler())

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{
		`assistant_calls_total{outcome="ok"} 1`,
		`escalations_created_total{severity="urgent"} 1`,
		`chats_reconciled_total{kind="total"} 1`,
		`documents_uploaded_total{kind="total"} 1`,
		"escalations_open 3",
		"# TYPE assistant_call_duration_seconds histogram",
		"# TYPE http_server_request_duration_seconds histogram",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("exposition missing %q", want)
		}
	}
}

func TestExtractResource(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/chats/abc/messages", "chats"},
		{"/escalations", "escalations"},
		{"/", ""},
		{"", ""},
		{"/health", "health"},
	}
	for _, tt := range tests {
		if got := extractResource(tt.path); got != tt.want {
			t.Errorf("extractResource(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}

func TestShutdown_Idempotent(t *testing.T) {
	tp := newProvider()
	if err := tp.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if err := tp.Shutdown(context.Background()); err != nil {
		t.Fatalf("second Shutdown: %v", err)
	}
}

func TestResource_Attributes(t *testing.T) {
	tp := NewTelemetryProvider(TelemetryConfig{ServiceName: "pulse-api", ServiceVersion: "1.2.3", Environment: "production"})
	res := tp.Resource()
	if res["service.name"] != "pulse-api" || res["service.version"] != "1.2.3" || res["deployment.environment"] != "production" {
		t.Errorf("resource = %v", res)
	}
}
