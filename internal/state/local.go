package state

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
)

// LocalBackend implements Backend using a local JSON file holding a flat
// object of key to digest.
type LocalBackend struct {
	Path   string
	logger *slog.Logger
}

// NewLocalBackend creates a new local JSON state backend.
func NewLocalBackend(path string, logger *slog.Logger) *LocalBackend {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &LocalBackend{Path: path, logger: logger}
}

func (b *LocalBackend) backupPath() string { return b.Path + ".bak" }

// Load reads the state file, creating an empty one when none exists.
// A corrupt primary falls back to the backup copy; if neither can be
// read the error is logged and an empty mapping is returned.
func (b *LocalBackend) Load() Fingerprints {
	f, err := readFile(b.Path)
	if err == nil {
		return f
	}

	if errors.Is(err, os.ErrNotExist) {
		if _, bakErr := os.Stat(b.backupPath()); bakErr != nil {
			if err := b.write(Fingerprints{}, false); err != nil {
				b.logger.Warn("failed to initialize state file", "path", b.Path, "error", err)
			}
			return Fingerprints{}
		}
	}

	b.logger.Warn("failed to load state file, trying backup", "path", b.Path, "error", err)
	f, bakErr := readFile(b.backupPath())
	if bakErr != nil {
		b.logger.Warn("failed to load state backup", "path", b.backupPath(), "error", bakErr)
		return Fingerprints{}
	}
	if err := b.write(f, false); err != nil {
		b.logger.Warn("failed to restore state file from backup", "path", b.Path, "error", err)
	}
	return f
}

// Snapshot reads the persisted mapping without creating or repairing
// any file. A missing store reads as empty; a corrupt primary falls
// back to the backup.
func (b *LocalBackend) Snapshot() (Fingerprints, error) {
	f, err := readFile(b.Path)
	if err == nil {
		return f, nil
	}
	if f, bakErr := readFile(b.backupPath()); bakErr == nil {
		return f, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return Fingerprints{}, nil
	}
	return nil, err
}

// Commit atomically replaces the state file with f. The previous file
// is kept as a .bak copy.
func (b *LocalBackend) Commit(f Fingerprints) error {
	if err := b.write(f, true); err != nil {
		return &CommitError{Path: b.Path, Err: err}
	}
	return nil
}

func (b *LocalBackend) write(f Fingerprints, backup bool) error {
	if f == nil {
		f = Fingerprints{}
	}
	// encoding/json sorts map keys.
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')

	dir := filepath.Dir(b.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(b.Path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return err
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return err
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		cleanup()
		return err
	}

	if backup {
		if prev, err := os.ReadFile(b.Path); err == nil && json.Valid(prev) {
			if err := os.WriteFile(b.backupPath(), prev, 0o644); err != nil {
				cleanup()
				return err
			}
		}
	}

	if err := os.Rename(tmpName, b.Path); err != nil {
		cleanup()
		return err
	}
	return nil
}

func readFile(path string) (Fingerprints, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var f Fingerprints
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, err
	}
	if f == nil {
		f = Fingerprints{}
	}
	return f, nil
}
