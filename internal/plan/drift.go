package plan

import (
	"sort"

	"github.com/szaher/config-manager/internal/document"
	"github.com/szaher/config-manager/internal/fingerprint"
	"github.com/szaher/config-manager/internal/state"
)

// Status classifies a document against its store record.
type Status string

const (
	StatusUnchanged  Status = "unchanged"
	StatusChanged    Status = "changed"
	StatusNew        Status = "new"
	StatusOrphaned   Status = "orphaned"
	StatusUnreadable Status = "unreadable"
)

// StatusEntry describes one document or store record.
type StatusEntry struct {
	Document string `json:"document"`
	Status   Status `json:"status"`
	Recorded string `json:"recorded,omitempty"`
	Current  string `json:"current,omitempty"`
	Error    string `json:"error,omitempty"`
}

// StatusReport compares the document directory with the store.
type StatusReport struct {
	InSync    bool          `json:"in_sync"`
	Documents []StatusEntry `json:"documents"`
}

// DetectDrift reports every discovered document as unchanged, changed,
// new or unreadable, followed by store records whose document is gone.
func DetectDrift(refs []document.Ref, store state.Fingerprints) *StatusReport {
	r := &StatusReport{InSync: true}
	seen := make(map[string]bool, len(refs))

	for _, ref := range refs {
		seen[ref.Key] = true
		entry := StatusEntry{Document: ref.Key}
		recorded, known := store[ref.Key]
		entry.Recorded = recorded

		current, err := fingerprint.File(ref.Path)
		switch {
		case err != nil:
			entry.Status = StatusUnreadable
			entry.Error = err.Error()
		case !known:
			entry.Status = StatusNew
		case current != recorded:
			entry.Status = StatusChanged
		default:
			entry.Status = StatusUnchanged
		}
		entry.Current = current
		if entry.Status != StatusUnchanged {
			r.InSync = false
		}
		r.Documents = append(r.Documents, entry)
	}

	var orphans []string
	for key := range store {
		if !seen[key] {
			orphans = append(orphans, key)
		}
	}
	sort.Strings(orphans)
	for _, key := range orphans {
		r.Documents = append(r.Documents, StatusEntry{
			Document: key,
			Status:   StatusOrphaned,
			Recorded: store[key],
		})
	}
	return r
}
