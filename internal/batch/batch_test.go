package batch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"sync"
	"testing"

	"github.com/szaher/config-manager/internal/apply"
	"github.com/szaher/config-manager/internal/document"
	"github.com/szaher/config-manager/internal/events"
	"github.com/szaher/config-manager/internal/expr"
	"github.com/szaher/config-manager/internal/fingerprint"
	"github.com/szaher/config-manager/internal/host"
	"github.com/szaher/config-manager/internal/state"
)

type memBackend struct {
	mu        sync.Mutex
	loaded    state.Fingerprints
	committed []state.Fingerprints
	err       error
}

func (m *memBackend) Load() state.Fingerprints {
	if m.loaded == nil {
		return state.Fingerprints{}
	}
	return m.loaded.Clone()
}

func (m *memBackend) Commit(f state.Fingerprints) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.committed = append(m.committed, f.Clone())
	return nil
}

type fakeApplier struct {
	fail  map[string]bool
	calls []string
	onRun func()
}

func (f *fakeApplier) Apply(_ context.Context, path, key string, _ state.Fingerprints) apply.Result {
	f.calls = append(f.calls, key)
	if f.onRun != nil {
		f.onRun()
	}
	if f.fail[key] {
		return apply.Result{Path: path, Key: key, State: apply.StateFailed, Err: errors.New("boom"), Message: "boom"}
	}
	return apply.Result{Path: path, Key: key, State: apply.StateApplied, Succeeded: true, Fingerprint: "fp-" + key}
}

func refs(keys ...string) []document.Ref {
	out := make([]document.Ref, len(keys))
	for i, k := range keys {
		out[i] = document.Ref{Path: "/docs/" + k, Key: k}
	}
	return out
}

func TestRunRefs_CommitsWhenAllSucceed(t *testing.T) {
	backend := &memBackend{loaded: state.Fingerprints{"old.cfg": "x"}}
	collector := &events.CollectorEmitter{}
	o := New(Config{Engine: &fakeApplier{}, Backend: backend, Emitter: collector})

	report := o.RunRefs(context.Background(), refs("a.cfg", "b.cfg"))
	if !report.Committed || !report.OK() {
		t.Fatalf("expected committed report, got %+v", report)
	}
	if report.RunID == "" {
		t.Error("expected a run id")
	}
	want := state.Fingerprints{"old.cfg": "x", "a.cfg": "fp-a.cfg", "b.cfg": "fp-b.cfg"}
	if len(backend.committed) != 1 || !reflect.DeepEqual(backend.committed[0], want) {
		t.Errorf("committed %v, want %v", backend.committed, want)
	}
	if !reflect.DeepEqual(o.Store(), want) {
		t.Errorf("in-memory store not updated: %v", o.Store())
	}
	types := collector.Types()
	if types[0] != events.BatchStarted || types[len(types)-1] != events.BatchCommitted {
		t.Errorf("events: %v", types)
	}
}

func TestRunRefs_AllOrNothing(t *testing.T) {
	backend := &memBackend{}
	applier := &fakeApplier{fail: map[string]bool{"b.cfg": true}}
	o := New(Config{Engine: applier, Backend: backend})

	report := o.RunRefs(context.Background(), refs("a.cfg", "b.cfg", "c.cfg"))
	if report.Committed {
		t.Fatal("batch with a failure must not commit")
	}
	if len(backend.committed) != 0 {
		t.Errorf("store written: %v", backend.committed)
	}
	if !reflect.DeepEqual(applier.calls, []string{"a.cfg", "b.cfg", "c.cfg"}) {
		t.Errorf("every document must be attempted, got %v", applier.calls)
	}
	if report.Succeeded() != 2 || report.Failed() != 1 {
		t.Errorf("counts: %d ok, %d failed", report.Succeeded(), report.Failed())
	}
	if len(o.Store()) != 0 {
		t.Errorf("in-memory store must stay untouched: %v", o.Store())
	}
}

func TestRunRefs_CommitFailureDowngradesAll(t *testing.T) {
	commitErr := &state.CommitError{Path: "/var/lib/config-manager/state.json", Err: errors.New("read-only file system")}
	backend := &memBackend{err: commitErr}
	o := New(Config{Engine: &fakeApplier{}, Backend: backend})

	report := o.RunRefs(context.Background(), refs("a.cfg", "b.cfg"))
	if report.Committed {
		t.Fatal("expected not committed")
	}
	if !errors.Is(report.CommitErr, commitErr) {
		t.Errorf("commit err: %v", report.CommitErr)
	}
	for _, r := range report.Results {
		if r.Succeeded || r.State != apply.StateFailed {
			t.Errorf("%s should be downgraded: %+v", r.Key, r)
		}
		var ce *state.CommitError
		if !errors.As(r.Err, &ce) {
			t.Errorf("%s: expected *state.CommitError, got %T", r.Key, r.Err)
		}
	}
	if len(o.Store()) != 0 {
		t.Errorf("in-memory store must not take uncommitted entries: %v", o.Store())
	}
}

func TestRunRefs_CancelledBetweenDocuments(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	applier := &fakeApplier{onRun: cancel}
	backend := &memBackend{}
	o := New(Config{Engine: applier, Backend: backend})

	report := o.RunRefs(ctx, refs("a.cfg", "b.cfg"))
	if len(applier.calls) != 1 {
		t.Errorf("only the first document should run, got %v", applier.calls)
	}
	if report.Committed || len(backend.committed) != 0 {
		t.Error("interrupted batch must not commit")
	}
	if !errors.Is(report.Results[1].Err, context.Canceled) {
		t.Errorf("second result: %+v", report.Results[1])
	}
}

type noopExec struct{ calls int }

func (n *noopExec) Run(context.Context, []string) error {
	n.calls++
	return nil
}

type notInstalled struct{}

func (notInstalled) PackageInstalled(context.Context, string) bool { return false }
func (notInstalled) FileMatches(document.FileState) bool           { return false }

func TestRun_EmptyDocumentExample(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "docs")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	aBody := "install:\n  install:\n    - package: curl\n"
	if err := os.WriteFile(filepath.Join(dir, "a.cfg"), []byte(aBody), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "b.cfg"), nil, 0o644); err != nil {
		t.Fatal(err)
	}

	statePath := filepath.Join(t.TempDir(), "state.json")
	backend := state.NewLocalBackend(statePath, nil)
	exec := &noopExec{}
	engine := apply.New(apply.Config{
		Executor: exec,
		Checker:  notInstalled{},
		Packages: host.Apt{},
		Services: host.Systemd{},
		Facts:    expr.Facts{Env: map[string]string{}},
	})
	o := New(Config{Engine: engine, Backend: backend, Extensions: []string{".cfg"}})

	report, err := o.Run(context.Background(), dir)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	got := make([][2]interface{}, len(report.Results))
	for i, r := range report.Results {
		got[i] = [2]interface{}{filepath.Base(r.Path), r.Succeeded}
	}
	want := [][2]interface{}{{"a.cfg", true}, {"b.cfg", false}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("results: got %v, want %v", got, want)
	}
	if exec.calls != 1 {
		t.Errorf("a.cfg should have been applied, got %d commands", exec.calls)
	}

	persisted := state.NewLocalBackend(statePath, nil).Load()
	if _, ok := persisted["docs/a.cfg"]; ok {
		t.Errorf("a.cfg fingerprint must not be committed: %v", persisted)
	}

	// Fix b.cfg; the next run re-applies a.cfg too and commits both.
	if err := os.WriteFile(filepath.Join(dir, "b.cfg"), []byte("remove:\n  packages:\n    - name: telnet\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	report, err = o.Run(context.Background(), dir)
	if err != nil {
		t.Fatal(err)
	}
	if !report.OK() {
		t.Fatalf("second run should commit: %+v", report.Results)
	}
	if exec.calls != 2 {
		t.Errorf("a.cfg must be re-applied after the failed batch, got %d commands", exec.calls)
	}
	persisted = state.NewLocalBackend(statePath, nil).Load()
	if persisted["docs/a.cfg"] != fingerprint.Sum([]byte(aBody)) {
		t.Errorf("a.cfg fingerprint: got %q", persisted["docs/a.cfg"])
	}
}

func TestRun_NoDocuments(t *testing.T) {
	o := New(Config{Engine: &fakeApplier{}, Backend: &memBackend{}})
	if _, err := o.Run(context.Background(), t.TempDir()); !errors.Is(err, ErrNoDocuments) {
		t.Fatalf("expected ErrNoDocuments, got %v", err)
	}
}

func TestRunShared(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "a.yaml"), []byte("x: 1\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	o := New(Config{Engine: &fakeApplier{}, Backend: &memBackend{}})
	report, _, err := o.RunShared(context.Background(), dir)
	if err != nil {
		t.Fatal(err)
	}
	if !report.OK() {
		t.Errorf("report: %+v", report)
	}
}
