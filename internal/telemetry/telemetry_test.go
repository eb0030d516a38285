package telemetry

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"DEBUG", slog.LevelDebug},
		{"debug", slog.LevelDebug},
		{" warn ", slog.LevelWarn},
		{"ERROR", slog.LevelError},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}

	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestNewLogger_Format(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, slog.LevelInfo, "json")
	WithNodeID(logger, "n1", "rename").Info("node executed")

	out := buf.String()
	if !strings.Contains(out, `"node_id":"n1"`) || !strings.Contains(out, `"kind":"rename"`) {
		t.Errorf("unexpected json output: %s", out)
	}

	buf.Reset()
	logger = NewLogger(&buf, slog.LevelWarn, "text")
	logger.Info("hidden")
	WithRunID(logger, "r1").Warn("shown")

	out = buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("info record should be filtered: %s", out)
	}
	if !strings.Contains(out, "run_id=r1") {
		t.Errorf("unexpected text output: %s", out)
	}
}

func TestContextLogger(t *testing.T) {
	logger := Discard()
	ctx := WithLogger(context.Background(), logger)
	if FromContext(ctx) != logger {
		t.Error("expected logger from context")
	}
	if FromContext(context.Background()) == nil {
		t.Error("expected default logger")
	}
}

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.ObserveNode("rename", "SUCCEEDED", 10*time.Millisecond)
	m.ObserveNode("rename", "SUCCEEDED", 5*time.Millisecond)
	m.ObserveNode("join", "FAILED", time.Millisecond)
	m.ObserveCache(true)
	m.ObserveCache(false)
	m.ObserveCache(true)
	m.SetCachedOutputs(4)
	m.ObserveRun("SUCCEEDED", time.Second)

	if got := testutil.ToFloat64(m.NodeExecutions.WithLabelValues("rename", "SUCCEEDED")); got != 2 {
		t.Errorf("expected 2 rename executions, got %v", got)
	}
	if got := testutil.ToFloat64(m.CacheLookups.WithLabelValues("hit")); got != 2 {
		t.Errorf("expected 2 cache hits, got %v", got)
	}
	if got := testutil.ToFloat64(m.CachedOutputs); got != 4 {
		t.Errorf("expected 4 cached outputs, got %v", got)
	}
	if got := testutil.ToFloat64(m.FlowRuns.WithLabelValues("SUCCEEDED")); got != 1 {
		t.Errorf("expected 1 flow run, got %v", got)
	}
	if n := testutil.CollectAndCount(m.NodeDuration); n != 2 {
		t.Errorf("expected 2 duration series, got %d", n)
	}
}

func TestMetrics_Nil(t *testing.T) {
	var m *Metrics
	// Не должно паниковать
	m.ObserveNode("rename", "SUCCEEDED", time.Millisecond)
	m.ObserveCache(true)
	m.SetCachedOutputs(1)
	m.ObserveRun("FAILED", time.Second)
}
