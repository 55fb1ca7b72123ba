// Package state persists the fingerprint ledger that records which
// document content was last applied successfully.
package state

import (
	"fmt"
	"maps"
	"sort"
)

// Fingerprints maps a document key to the hex digest of the content
// that was last applied in full.
type Fingerprints map[string]string

// Clone returns an independent copy.
func (f Fingerprints) Clone() Fingerprints {
	out := make(Fingerprints, len(f))
	maps.Copy(out, f)
	return out
}

// Merge returns a copy of f with every entry of updates applied on top.
func (f Fingerprints) Merge(updates Fingerprints) Fingerprints {
	out := f.Clone()
	maps.Copy(out, updates)
	return out
}

// Keys returns the keys in sorted order.
func (f Fingerprints) Keys() []string {
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Backend is the interface for fingerprint persistence. A single
// writer per host is assumed; concurrent commits may lose updates.
type Backend interface {
	// Load returns the persisted mapping. It never fails: unreadable
	// state yields an empty mapping.
	Load() Fingerprints

	// Commit replaces the whole persisted mapping.
	Commit(f Fingerprints) error
}

// CommitError reports a failure to persist the mapping.
type CommitError struct {
	Path string
	Err  error
}

func (e *CommitError) Error() string {
	return fmt.Sprintf("commit state %s: %v", e.Path, e.Err)
}

func (e *CommitError) Unwrap() error { return e.Err }
