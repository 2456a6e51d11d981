package middleware

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	fbq "github.com/fbqueue/fbq-go-sdk"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func newTestContext(id int64) fbq.JobContext {
	ctx := fbq.NewJobContextForTest(id, "/tmp/fbq-job-test.zip")
	ctx.Owner = "builder-7"
	return ctx
}

// parseLogLines parses JSON log output into one map per line.
func parseLogLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var lines []map[string]any
	for _, raw := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if raw == "" {
			continue
		}
		var entry map[string]any
		if err := json.Unmarshal([]byte(raw), &entry); err != nil {
			t.Fatalf("parse log line %q: %v", raw, err)
		}
		lines = append(lines, entry)
	}
	return lines
}

func TestLoggingSuccess(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	mw := Logging(logger)
	err := mw(newTestContext(42), func(ctx fbq.JobContext) error { return nil })
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	lines := parseLogLines(t, &buf)
	if len(lines) != 2 {
		t.Fatalf("expected 2 log lines, got %d", len(lines))
	}
	if lines[0]["msg"] != "job started" {
		t.Errorf("first msg = %v", lines[0]["msg"])
	}
	if lines[1]["msg"] != "job completed" {
		t.Errorf("second msg = %v", lines[1]["msg"])
	}
	if lines[1]["level"] != "INFO" {
		t.Errorf("completion level = %v", lines[1]["level"])
	}
	if lines[0]["job.id"] != float64(42) {
		t.Errorf("job.id = %v", lines[0]["job.id"])
	}
	if lines[0]["job.owner"] != "builder-7" {
		t.Errorf("job.owner = %v", lines[0]["job.owner"])
	}
	if _, ok := lines[1]["duration_ms"]; !ok {
		t.Error("completion line is missing duration_ms")
	}
}

func TestLoggingError(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	mw := Logging(logger)
	wantErr := errors.New("boom")
	err := mw(newTestContext(7), func(ctx fbq.JobContext) error { return wantErr })
	if !errors.Is(err, wantErr) {
		t.Fatalf("error = %v, want %v", err, wantErr)
	}

	lines := parseLogLines(t, &buf)
	if len(lines) != 2 {
		t.Fatalf("expected 2 log lines, got %d", len(lines))
	}
	if lines[1]["msg"] != "job failed" {
		t.Errorf("second msg = %v", lines[1]["msg"])
	}
	if lines[1]["level"] != "ERROR" {
		t.Errorf("failure level = %v", lines[1]["level"])
	}
	if lines[1]["error"] != "boom" {
		t.Errorf("error attr = %v", lines[1]["error"])
	}
}

func TestRecoveryConvertsPanic(t *testing.T) {
	mw := Recovery(nil)
	err := mw(newTestContext(9), func(ctx fbq.JobContext) error {
		panic("exploded")
	})
	if err == nil {
		t.Fatal("expected error from recovered panic")
	}
	if !strings.Contains(err.Error(), "panic in job 9") {
		t.Errorf("error = %q", err.Error())
	}
	if !strings.Contains(err.Error(), "exploded") {
		t.Errorf("error = %q", err.Error())
	}
}

func TestRecoveryLogsPanic(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	mw := Recovery(logger)
	_ = mw(newTestContext(9), func(ctx fbq.JobContext) error {
		panic("exploded")
	})

	lines := parseLogLines(t, &buf)
	if len(lines) != 1 {
		t.Fatalf("expected 1 log line, got %d", len(lines))
	}
	if lines[0]["msg"] != "job panicked" {
		t.Errorf("msg = %v", lines[0]["msg"])
	}
	if _, ok := lines[0]["stack"]; !ok {
		t.Error("log line is missing the stack trace")
	}
}

func TestRecoveryPassthrough(t *testing.T) {
	mw := Recovery(nil)
	wantErr := errors.New("ordinary failure")
	err := mw(newTestContext(1), func(ctx fbq.JobContext) error { return wantErr })
	if !errors.Is(err, wantErr) {
		t.Fatalf("error = %v, want %v", err, wantErr)
	}
}

// recordingRecorder captures MetricsRecorder calls for assertions.
type recordingRecorder struct {
	started   []string
	completed []string
	failed    []string
}

func (r *recordingRecorder) JobStarted(owner string) { r.started = append(r.started, owner) }
func (r *recordingRecorder) JobCompleted(owner string, d time.Duration) {
	r.completed = append(r.completed, owner)
}
func (r *recordingRecorder) JobFailed(owner string, d time.Duration) {
	r.failed = append(r.failed, owner)
}

func TestMetricsSuccess(t *testing.T) {
	rec := &recordingRecorder{}
	mw := Metrics(rec)

	err := mw(newTestContext(1), func(ctx fbq.JobContext) error { return nil })
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rec.started) != 1 || rec.started[0] != "builder-7" {
		t.Errorf("started = %v", rec.started)
	}
	if len(rec.completed) != 1 {
		t.Errorf("completed = %v", rec.completed)
	}
	if len(rec.failed) != 0 {
		t.Errorf("failed = %v", rec.failed)
	}
}

func TestMetricsFailure(t *testing.T) {
	rec := &recordingRecorder{}
	mw := Metrics(rec)

	_ = mw(newTestContext(1), func(ctx fbq.JobContext) error {
		return errors.New("boom")
	})
	if len(rec.failed) != 1 || rec.failed[0] != "builder-7" {
		t.Errorf("failed = %v", rec.failed)
	}
	if len(rec.completed) != 0 {
		t.Errorf("completed = %v", rec.completed)
	}
}

func TestPromRecorder(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec := NewPromRecorder("fbq", reg)
	mw := Metrics(rec)

	_ = mw(newTestContext(1), func(ctx fbq.JobContext) error { return nil })
	_ = mw(newTestContext(2), func(ctx fbq.JobContext) error { return errors.New("boom") })

	started := testutil.ToFloat64(rec.started.WithLabelValues("builder-7"))
	if started != 2 {
		t.Errorf("jobs_started_total = %v, want 2", started)
	}
	completed := testutil.ToFloat64(rec.completed.WithLabelValues("builder-7"))
	if completed != 1 {
		t.Errorf("jobs_completed_total = %v, want 1", completed)
	}
	failed := testutil.ToFloat64(rec.failed.WithLabelValues("builder-7"))
	if failed != 1 {
		t.Errorf("jobs_failed_total = %v, want 1", failed)
	}

	count, err := testutil.GatherAndCount(reg,
		"fbq_jobs_started_total", "fbq_jobs_completed_total", "fbq_jobs_failed_total", "fbq_job_duration_seconds")
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	if count == 0 {
		t.Error("no metrics were registered")
	}
}
