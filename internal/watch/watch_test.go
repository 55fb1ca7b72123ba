package watch

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
)

func TestRelevant(t *testing.T) {
	exts := []string{".yaml"}
	tests := []struct {
		name  string
		event fsnotify.Event
		want  bool
	}{
		{name: "write yaml", event: fsnotify.Event{Name: "/d/web.yaml", Op: fsnotify.Write}, want: true},
		{name: "remove yaml", event: fsnotify.Event{Name: "/d/web.yaml", Op: fsnotify.Remove}, want: true},
		{name: "chmod only", event: fsnotify.Event{Name: "/d/web.yaml", Op: fsnotify.Chmod}},
		{name: "other extension", event: fsnotify.Event{Name: "/d/notes.txt", Op: fsnotify.Write}},
		{name: "hidden temp file", event: fsnotify.Event{Name: "/d/.web.yaml.123.tmp", Op: fsnotify.Create}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := relevant(tc.event, exts); got != tc.want {
				t.Errorf("got %v, want %v", got, tc.want)
			}
		})
	}
}

func TestWatcher_DebouncedTrigger(t *testing.T) {
	dir := t.TempDir()
	var triggers atomic.Int32
	fired := make(chan struct{}, 10)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w := &Watcher{
		Dir:      dir,
		Debounce: 200 * time.Millisecond,
		Trigger: func(context.Context) {
			triggers.Add(1)
			fired <- struct{}{}
		},
	}
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	// Give the watcher time to register the directory.
	time.Sleep(100 * time.Millisecond)
	for i := 0; i < 3; i++ {
		if err := os.WriteFile(filepath.Join(dir, "web.yaml"), []byte{byte('a' + i)}, 0o644); err != nil {
			t.Fatal(err)
		}
	}

	select {
	case <-fired:
	case <-time.After(5 * time.Second):
		t.Fatal("trigger did not fire")
	}
	time.Sleep(400 * time.Millisecond)
	if got := triggers.Load(); got != 1 {
		t.Errorf("burst should collapse into one trigger, got %d", got)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not stop")
	}
}

func TestWatcher_MissingDir(t *testing.T) {
	w := &Watcher{Dir: filepath.Join(t.TempDir(), "missing"), Trigger: func(context.Context) {}}
	if err := w.Run(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}
