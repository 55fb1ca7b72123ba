package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewLogger_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, slog.LevelInfo, "json")
	logger.Debug("hidden")
	logger.Info("visible", "k", "v")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected 1 line, got %d: %q", len(lines), buf.String())
	}
	var rec map[string]interface{}
	if err := json.Unmarshal([]byte(lines[0]), &rec); err != nil {
		t.Fatalf("not JSON: %v", err)
	}
	if rec["msg"] != "visible" || rec["k"] != "v" {
		t.Errorf("record: %v", rec)
	}
}

func TestNewLogger_Text(t *testing.T) {
	var buf bytes.Buffer
	NewLogger(&buf, slog.LevelDebug, "text").Debug("hello")
	if !strings.Contains(buf.String(), "msg=hello") {
		t.Errorf("got %q", buf.String())
	}
}

func TestParseFormat(t *testing.T) {
	for in, want := range map[string]string{"": "text", "TEXT": "text", "json": "json"} {
		got, err := ParseFormat(in)
		if err != nil || got != want {
			t.Errorf("ParseFormat(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParseFormat("xml"); err == nil {
		t.Error("expected error for xml")
	}
}

func TestRunID(t *testing.T) {
	a, b := NewRunID(), NewRunID()
	if len(a) != 26 || a == b {
		t.Errorf("run ids: %q %q", a, b)
	}

	ctx := WithRunID(context.Background(), "")
	if RunID(ctx) == "" {
		t.Fatal("expected generated run id")
	}
	if RunID(context.Background()) != "" {
		t.Error("expected empty run id")
	}

	var buf bytes.Buffer
	logger := RunLogger(NewLogger(&buf, slog.LevelInfo, "text"), WithRunID(context.Background(), "run-1"))
	logger.Info("x")
	if !strings.Contains(buf.String(), "run_id=run-1") {
		t.Errorf("missing run_id: %q", buf.String())
	}
}

func TestMetrics(t *testing.T) {
	m := NewMetrics()
	m.RecordDocument("applied")
	m.RecordDocument("applied")
	m.RecordDirective("file", "applied")
	m.RecordCommand([]string{"true"}, nil)
	m.RecordCommand([]string{"false"}, errors.New("exit 1"))
	m.RecordBatch(2*time.Second, true)

	if got := testutil.ToFloat64(m.documents.WithLabelValues("applied")); got != 2 {
		t.Errorf("documents applied: got %v", got)
	}
	if got := testutil.ToFloat64(m.commands.WithLabelValues("failure")); got != 1 {
		t.Errorf("command failures: got %v", got)
	}
	if got := testutil.ToFloat64(m.lastBatchSuccess); got != 1 {
		t.Errorf("last batch success: got %v", got)
	}

	m.RecordBatch(time.Second, false)
	if got := testutil.ToFloat64(m.lastBatchSuccess); got != 0 {
		t.Errorf("last batch success after failure: got %v", got)
	}
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	m.RecordDocument("failed")
	m.RecordDirective("file", "failed")
	m.RecordCommand(nil, nil)
	m.RecordBatch(time.Second, false)
	if err := m.WriteTextfile("/nonexistent/x.prom"); err != nil {
		t.Errorf("nil metrics should not write: %v", err)
	}
}

func TestMetrics_TextfileAndHandler(t *testing.T) {
	m := NewMetrics()
	m.RecordDocument("unchanged")

	path := filepath.Join(t.TempDir(), "config_manager.prom")
	if err := m.WriteTextfile(path); err != nil {
		t.Fatalf("WriteTextfile: %v", err)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(raw), `config_manager_documents_total{result="unchanged"} 1`) {
		t.Errorf("textfile missing counter:\n%s", raw)
	}

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if !strings.Contains(rec.Body.String(), "config_manager_documents_total") {
		t.Errorf("handler output missing counter")
	}
}
