package log

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"cashflow/internal/core"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{" WARN ", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"info", slog.LevelInfo},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}

	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func newBufferLogger(component string) (*Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	return New(Config{
		Component: component,
		Handler:   slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}),
	}), &buf
}

func TestLogger_StampsComponent(t *testing.T) {
	logger, buf := newBufferLogger(ComponentAccrual)

	logger.With(FieldDebtID, "debt-1").InfoContext(context.Background(), "hello")
	out := buf.String()
	if !strings.Contains(out, "component=accrual") || !strings.Contains(out, "debt_id=debt-1") {
		t.Errorf("unexpected output: %s", out)
	}

	buf.Reset()
	logger.WithComponent(ComponentHTTP).WarnContext(context.Background(), "moved")
	if !strings.Contains(buf.String(), "component=http") {
		t.Errorf("unexpected output: %s", buf.String())
	}
}

func TestLogger_NonContextMethodsStampComponent(t *testing.T) {
	logger, buf := newBufferLogger(ComponentWorker)

	logger.Info("starting")
	logger.Warn("slow")
	logger.Error("failed", FieldError, "boom")
	logger.Debug("detail")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 4 {
		t.Fatalf("lines = %d, want 4: %s", len(lines), buf.String())
	}
	for _, line := range lines {
		if !strings.Contains(line, "component=worker") {
			t.Errorf("missing component in %q", line)
		}
	}
}

func TestFromContext(t *testing.T) {
	logger, _ := newBufferLogger(ComponentHTTP)
	ctx := context.WithValue(context.Background(), LoggerContextKey, logger)

	if got := FromContext(ctx); got != logger {
		t.Error("expected logger stored in context")
	}
	if got := FromContext(context.Background()); got.Component() != "unknown" {
		t.Errorf("fallback component = %q", got.Component())
	}
}

func TestStructuredLogger(t *testing.T) {
	logger, buf := newBufferLogger(ComponentAccrual)
	sl := NewStructuredLogger(logger)
	ctx := context.Background()

	sl.LogAccrualApplied(ctx, core.DebtMonthlySnapshot{
		ID:              "snap-1",
		DebtID:          "debt-1",
		YearMonth:       core.Period{Year: 2025, Month: time.March},
		BalanceBefore:   core.NewMoney(1000, 0),
		InterestApplied: core.NewMoney(10, 0),
		BalanceAfter:    core.NewMoney(1010, 0),
	})
	for _, want := range []string{"snapshot_id=snap-1", "period=2025-03", "interest=10.00", "new_balance=1010.00", "operation=accrue"} {
		if !strings.Contains(buf.String(), want) {
			t.Errorf("missing %q in %s", want, buf.String())
		}
	}

	buf.Reset()
	sl.LogError(ctx, "boom", errors.New("disk full"), OpExport, nil)
	if !strings.Contains(buf.String(), `error="disk full"`) || !strings.Contains(buf.String(), "level=ERROR") {
		t.Errorf("unexpected output: %s", buf.String())
	}

	tests := []struct {
		status int
		level  string
	}{
		{200, "level=INFO"},
		{404, "level=WARN"},
		{503, "level=ERROR"},
	}
	for _, tt := range tests {
		buf.Reset()
		r := httptest.NewRequest("GET", "/healthz", nil)
		sl.LogHTTPEnd(ctx, r, tt.status, 3, "10.0.0.1")
		if !strings.Contains(buf.String(), tt.level) {
			t.Errorf("status %d: want %s in %s", tt.status, tt.level, buf.String())
		}
	}
}
