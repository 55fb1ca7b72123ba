package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/szaher/config-manager/internal/apply"
	"github.com/szaher/config-manager/internal/batch"
)

// setup writes a config file and the given documents, returning the
// base arguments that point the CLI at them.
func setup(t *testing.T, docs map[string]string) (string, []string) {
	t.Helper()
	root := t.TempDir()
	dir := filepath.Join(root, "cookbooks")
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}
	for name, content := range docs {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}
	cfgPath := filepath.Join(root, "config.yaml")
	if err := os.WriteFile(cfgPath, []byte("log:\n  level: warn\n"), 0644); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		configFile, docsDir, stateFile, logFormat, debug = "", "", "", "", false
	})
	return root, []string{"--config", cfgPath, "-c", dir, "--state-file", filepath.Join(root, "state.json")}
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

const serviceDoc = "configure:\n  services:\n    - name: nginx\n      state: started\n"

func TestValidateCmd(t *testing.T) {
	tests := []struct {
		name    string
		docs    map[string]string
		wantErr bool
		want    string
	}{
		{
			name: "valid",
			docs: map[string]string{"web.yaml": serviceDoc},
			want: "1 document(s) valid",
		},
		{
			name:    "bad run state",
			docs:    map[string]string{"web.yaml": "configure:\n  services:\n    - name: nginx\n      state: running\n"},
			wantErr: true,
			want:    "configure.services[0].state",
		},
		{
			name:    "empty document",
			docs:    map[string]string{"web.yaml": serviceDoc, "empty.yml": ""},
			wantErr: true,
			want:    "empty.yml",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, args := setup(t, tc.docs)
			out, err := execute(t, append([]string{"validate"}, args...)...)
			if tc.wantErr && err == nil {
				t.Fatal("expected error")
			}
			if !tc.wantErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !strings.Contains(out, tc.want) {
				t.Errorf("output missing %q:\n%s", tc.want, out)
			}
		})
	}
}

func TestPlanCmd_DoesNotCreateState(t *testing.T) {
	root, args := setup(t, map[string]string{"web.yaml": serviceDoc})
	out, err := execute(t, append([]string{"plan"}, args...)...)
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	if !strings.Contains(out, "cookbooks/web.yaml") || !strings.Contains(out, "1 to apply") {
		t.Errorf("unexpected plan output:\n%s", out)
	}
	if _, err := os.Stat(filepath.Join(root, "state.json")); !os.IsNotExist(err) {
		t.Error("plan must not create the state file")
	}
}

func TestApplyDryRun(t *testing.T) {
	_, args := setup(t, map[string]string{"web.yaml": serviceDoc})
	out, err := execute(t, append([]string{"apply", "--dry-run"}, args...)...)
	if err != nil {
		t.Fatalf("apply --dry-run: %v", err)
	}
	if !strings.Contains(out, "service nginx") {
		t.Errorf("dry run should list the service step:\n%s", out)
	}
}

func TestStatusCmd(t *testing.T) {
	root, args := setup(t, map[string]string{"web.yaml": serviceDoc})
	state := `{"cookbooks/gone.yaml": "abc"}`
	if err := os.WriteFile(filepath.Join(root, "state.json"), []byte(state), 0644); err != nil {
		t.Fatal(err)
	}

	out, err := execute(t, append([]string{"status", "-o", "json"}, args...)...)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	for _, want := range []string{`"new"`, `"orphaned"`, "cookbooks/gone.yaml"} {
		if !strings.Contains(out, want) {
			t.Errorf("status output missing %s:\n%s", want, out)
		}
	}
}

func TestApply_NoDocuments(t *testing.T) {
	_, args := setup(t, nil)
	_, err := execute(t, args...)
	if !errors.Is(err, batch.ErrNoDocuments) {
		t.Fatalf("expected ErrNoDocuments, got %v", err)
	}
}

func TestVersionCmd(t *testing.T) {
	out, err := execute(t, "version")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(out, "config-manager version ") {
		t.Errorf("got %q", out)
	}
}

func TestPrintReport(t *testing.T) {
	report := &batch.Report{
		Committed: false,
		Results: []apply.Result{
			{Key: "cookbooks/a.yaml", Succeeded: true, Message: "unchanged"},
			{Key: "cookbooks/b.yaml", Succeeded: false, Message: `install package nginx: command "apt-get install -y nginx" failed (exit 100)`},
		},
	}
	var buf bytes.Buffer
	printReport(&buf, report)
	want := "Processed 2 documents: 1 succeeded, 1 failed\n" +
		"[OK] cookbooks/a.yaml: unchanged\n" +
		"[FAILED] cookbooks/b.yaml: install package nginx: command \"apt-get install -y nginx\" failed (exit 100)\n"
	if buf.String() != want {
		t.Errorf("got:\n%s\nwant:\n%s", buf.String(), want)
	}
}
