// Package fingerprint detects whether a document changed since it was
// last applied.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"log/slog"
	"os"

	"github.com/szaher/config-manager/internal/state"
)

// Sum returns the hex encoded SHA-256 digest of raw document bytes.
func Sum(raw []byte) string {
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

// File computes the fingerprint of the file at path.
func File(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Detector classifies documents as changed or unchanged against a
// fingerprint mapping.
type Detector struct {
	Logger *slog.Logger
}

// HasChanged compares the current fingerprint of the document at path
// with store[key]. A document that cannot be read is reported as
// changed with an empty fingerprint so it is attempted, not skipped.
func (d Detector) HasChanged(path, key string, store state.Fingerprints) (bool, string) {
	logger := d.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	current, err := File(path)
	if err != nil {
		logger.Warn("failed to fingerprint document, treating as changed", "document", key, "error", err)
		return true, ""
	}
	if last, ok := store[key]; ok && last == current {
		logger.Info("document unchanged since last run, skipping", "document", key)
		return false, current
	}
	logger.Info("document changed, will apply updates", "document", key)
	return true, current
}
