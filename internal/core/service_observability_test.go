package core

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/holiman/uint256"

	"supplyledger/internal/auth"
)

type stubClock struct{ now time.Time }

func (c stubClock) Now() time.Time { return c.now }

type captureLogger struct {
	mu      sync.Mutex
	entries []capturedLog
}

type capturedLog struct {
	level   string
	msg     string
	keyvals []any
}

func (l *captureLogger) log(level, msg string, keyvals ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, capturedLog{level: level, msg: msg, keyvals: keyvals})
}

func (l *captureLogger) Debug(msg string, keyvals ...any) { l.log("debug", msg, keyvals...) }
func (l *captureLogger) Info(msg string, keyvals ...any)  { l.log("info", msg, keyvals...) }
func (l *captureLogger) Warn(msg string, keyvals ...any)  { l.log("warn", msg, keyvals...) }
func (l *captureLogger) Error(msg string, keyvals ...any) { l.log("error", msg, keyvals...) }

func (l *captureLogger) find(level, msg string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, e := range l.entries {
		if e.level == level && e.msg == msg {
			return true
		}
	}
	return false
}

type captureMetrics struct {
	mu           sync.Mutex
	observations []capturedObservation
}

type capturedObservation struct {
	operation string
	success   bool
	duration  time.Duration
}

func (m *captureMetrics) Observe(_ context.Context, operation string, success bool, duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.observations = append(m.observations, capturedObservation{operation, success, duration})
}

func TestServiceEmitsObservability(t *testing.T) {
	ctx := context.Background()
	logger := &captureLogger{}
	metrics := &captureMetrics{}
	tracer := NewJSONTracer(nil)

	svc := NewInMemoryService(nil, auth.NewApproverSet(adminAddr),
		WithLogger(logger),
		WithMetricsRecorder(metrics),
		WithTracer(tracer),
	)
	if _, err := svc.Initialize(ctx, adminAddr, 7, "T", "T"); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if _, err := svc.Mint(ctx, "holder", uint256.NewInt(5)); err != nil {
		t.Fatalf("Mint: %v", err)
	}
	if _, err := svc.Mint(ctx, "holder", uint256.NewInt(5)); err != nil {
		t.Fatalf("second Mint: %v", err)
	}
	// A rejected operation produces an error-status span and log entry.
	failing := NewService(svc.Store(), auth.NewApproverSet(),
		WithLogger(logger), WithMetricsRecorder(metrics), WithTracer(tracer))
	if _, err := failing.Mint(ctx, "holder", uint256.NewInt(1)); err == nil {
		t.Fatalf("expected unauthorized mint to fail")
	}

	if !logger.find("debug", "mint completed") {
		t.Fatalf("missing success log, entries: %+v", logger.entries)
	}
	if !logger.find("error", "mint failed") {
		t.Fatalf("missing failure log, entries: %+v", logger.entries)
	}

	metrics.mu.Lock()
	var successes, failures int
	for _, obs := range metrics.observations {
		if obs.operation != "mint" {
			continue
		}
		if obs.success {
			successes++
		} else {
			failures++
		}
	}
	metrics.mu.Unlock()
	if successes != 2 || failures != 1 {
		t.Fatalf("mint observations: %d success, %d failure", successes, failures)
	}

	entries := tracer.Entries()
	var errorSpans int
	for _, e := range entries {
		if e.Operation == "mint" && e.Status == "error" {
			errorSpans++
			if e.Error == "" {
				t.Fatalf("error span missing message: %+v", e)
			}
		}
	}
	if errorSpans != 1 {
		t.Fatalf("expected one error span, got %d (entries %+v)", errorSpans, entries)
	}
}

func TestWithClockDrivesLedgerTimestamps(t *testing.T) {
	ctx := context.Background()
	fixed := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	svc := NewInMemoryService(nil, nil, WithClock(stubClock{now: fixed}))
	if _, err := svc.Initialize(ctx, adminAddr, 7, "T", "T"); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if _, err := svc.GrantRole(ctx, makerAddr, RoleManufacturer); err != nil {
		t.Fatalf("GrantRole: %v", err)
	}
	product, _, err := svc.CreateProduct(ctx, "prod-1", "SN", makerAddr, "plant")
	if err != nil {
		t.Fatalf("CreateProduct: %v", err)
	}
	if product.CreatedAt != uint64(fixed.Unix()) {
		t.Fatalf("CreatedAt = %d, want %d", product.CreatedAt, fixed.Unix())
	}
	history, err := svc.GetProductHistory(ctx, "prod-1")
	if err != nil || len(history) != 1 {
		t.Fatalf("history: %v len=%d", err, len(history))
	}
	if history[0].Timestamp != uint64(fixed.Unix()) {
		t.Fatalf("step timestamp = %d, want %d", history[0].Timestamp, fixed.Unix())
	}
}

func TestExpvarMetricsRecorder(t *testing.T) {
	rec := NewExpvarMetricsRecorder("")
	if !strings.HasPrefix(rec.Name(), "ledger_service_metrics_") {
		t.Fatalf("unexpected generated name %q", rec.Name())
	}
	ctx := context.Background()
	rec.Observe(ctx, "mint", true, 10*time.Millisecond)
	rec.Observe(ctx, "mint", false, 5*time.Millisecond)
	rec.Observe(ctx, "", true, time.Millisecond) // ignored

	snap := rec.Snapshot()
	if snap.Results["mint"]["success"] != 1 || snap.Results["mint"]["error"] != 1 {
		t.Fatalf("unexpected results %+v", snap.Results)
	}
	if snap.DurationsMS["mint"] < 14.9 || snap.DurationsMS["mint"] > 15.1 {
		t.Fatalf("unexpected duration total %v", snap.DurationsMS["mint"])
	}
}

func TestJSONTracerWritesEntries(t *testing.T) {
	var buf bytes.Buffer
	tracer := NewJSONTracer(&buf)
	_, span := tracer.Start(context.Background(), "transfer")
	span.End(nil)

	if entries := tracer.Entries(); len(entries) != 1 || entries[0].Operation != "transfer" || entries[0].Status != "success" {
		t.Fatalf("unexpected entries %+v", tracer.Entries())
	}
	if !strings.Contains(buf.String(), `"operation":"transfer"`) {
		t.Fatalf("span not written: %s", buf.String())
	}
}
