package observability

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"

	dto "github.com/prometheus/client_model/go"
)

func TestNewLoggerLevels(t *testing.T) {
	tests := []struct {
		level      string
		debugShown bool
	}{
		{"debug", true},
		{"info", false},
		{"", false},
		{"bogus", false},
	}
	for _, tt := range tests {
		t.Run("level "+tt.level, func(t *testing.T) {
			var buf bytes.Buffer
			logger := NewLogger(&buf, tt.level)
			logger.Debug("probe")
			if got := strings.Contains(buf.String(), "probe"); got != tt.debugShown {
				t.Errorf("debug line shown = %v, want %v", got, tt.debugShown)
			}
		})
	}
}

func TestNodeMetricsObserve(t *testing.T) {
	reg := NewRegistry()
	m := NewNodeMetrics(reg)

	m.ObserveRequest("authn", "ok", 0.05)
	m.ObserveRequest("authn", "ok", 0.10)
	m.ObserveRequest("credentials_stored", "connection", 1.2)

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}

	var total *dto.MetricFamily
	for _, mf := range families {
		if mf.GetName() == "pocket_node_requests_total" {
			total = mf
		}
	}
	if total == nil {
		t.Fatal("pocket_node_requests_total not registered")
	}

	got := map[string]float64{}
	for _, metric := range total.GetMetric() {
		var endpoint, outcome string
		for _, lp := range metric.GetLabel() {
			switch lp.GetName() {
			case "endpoint":
				endpoint = lp.GetValue()
			case "outcome":
				outcome = lp.GetValue()
			}
		}
		got[endpoint+"/"+outcome] = metric.GetCounter().GetValue()
	}
	if got["authn/ok"] != 2 {
		t.Errorf("authn/ok = %v, want 2", got["authn/ok"])
	}
	if got["credentials_stored/connection"] != 1 {
		t.Errorf("credentials_stored/connection = %v, want 1", got["credentials_stored/connection"])
	}
}

func TestInitTelemetryDisabled(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	tel, err := InitTelemetry(false, io.Discard, io.Discard, logger)
	if err != nil {
		t.Fatalf("InitTelemetry(disabled) error = %v", err)
	}
	if err := tel.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown() error = %v", err)
	}
}

func TestInitTelemetryEnabledShutdownFlushes(t *testing.T) {
	var traces, metrics bytes.Buffer
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	tel, err := InitTelemetry(true, &traces, &metrics, logger)
	if err != nil {
		t.Fatalf("InitTelemetry(enabled) error = %v", err)
	}
	if err := tel.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown() error = %v", err)
	}
}
