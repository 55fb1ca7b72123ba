package events

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

// ExportLog writes collected events to a JSON file.
func ExportLog(events []*Event, path string) error {
	data, err := json.MarshalIndent(events, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	return os.WriteFile(path, data, 0644)
}

// FileEmitter appends each event as one JSON line to a file.
type FileEmitter struct {
	mu     sync.Mutex
	f      *os.File
	logger *slog.Logger
}

// OpenFile opens path for appending, creating it and its parent
// directory if needed.
func OpenFile(path string, logger *slog.Logger) (*FileEmitter, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create event log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("open event log: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &FileEmitter{f: f, logger: logger}, nil
}

// Emit writes the event. Write failures are logged and dropped.
func (e *FileEmitter) Emit(event *Event) {
	data, err := event.JSON()
	if err != nil {
		e.logger.Warn("encode event", "type", event.Type, "error", err)
		return
	}
	data = append(data, '\n')

	e.mu.Lock()
	defer e.mu.Unlock()
	if _, err := e.f.Write(data); err != nil {
		e.logger.Warn("write event", "type", event.Type, "error", err)
	}
}

// Close closes the underlying file.
func (e *FileEmitter) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.f.Close()
}
