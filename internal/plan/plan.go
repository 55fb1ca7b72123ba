// Package plan previews what a batch would do without running any
// command, and reports how the document directory relates to the
// fingerprint store.
package plan

import (
	"github.com/szaher/config-manager/internal/apply"
	"github.com/szaher/config-manager/internal/document"
	"github.com/szaher/config-manager/internal/expr"
	"github.com/szaher/config-manager/internal/fingerprint"
	"github.com/szaher/config-manager/internal/state"
)

// ActionType is what a batch would do with a document.
type ActionType string

const (
	ActionApply   ActionType = "apply"
	ActionNoop    ActionType = "noop"
	ActionSkip    ActionType = "skip"
	ActionInvalid ActionType = "invalid"
)

// Step is one directive a document would converge, in phase order.
// Guarded steps are switched off by a false when guard.
type Step struct {
	Phase       document.Phase
	Kind        document.Kind
	Description string
	Guarded     bool
}

// DocumentPlan is the planned action for one document.
type DocumentPlan struct {
	Key    string
	Path   string
	Action ActionType
	Reason string
	Steps  []Step
	Err    error
}

// Plan represents the computed actions for a document directory.
type Plan struct {
	Documents  []DocumentPlan
	HasChanges bool
	Invalid    int
}

// ComputePlan classifies every document against store and lists the
// directives of those that would be applied. It reads documents but
// never queries or mutates the host.
func ComputePlan(refs []document.Ref, store state.Fingerprints, facts expr.Facts) *Plan {
	p := &Plan{}
	for _, ref := range refs {
		dp := planDocument(ref, store, facts)
		switch dp.Action {
		case ActionApply, ActionSkip:
			p.HasChanges = true
		case ActionInvalid:
			p.HasChanges = true
			p.Invalid++
		}
		p.Documents = append(p.Documents, dp)
	}
	return p
}

func planDocument(ref document.Ref, store state.Fingerprints, facts expr.Facts) DocumentPlan {
	dp := DocumentPlan{Key: ref.Key, Path: ref.Path}

	recorded, known := store[ref.Key]
	if fp, err := fingerprint.File(ref.Path); err == nil && known && fp == recorded {
		dp.Action = ActionNoop
		dp.Reason = "no changes"
		return dp
	}

	doc, _, err := apply.Load(ref.Path)
	if err != nil {
		dp.Action = ActionInvalid
		dp.Reason = "document cannot be applied"
		dp.Err = err
		return dp
	}

	ok, err := expr.Eval(doc.When, facts)
	if err != nil {
		dp.Action = ActionInvalid
		dp.Reason = "when guard failed to evaluate"
		dp.Err = err
		return dp
	}
	if !ok {
		dp.Action = ActionSkip
		dp.Reason = "when guard is false"
		return dp
	}

	dp.Action = ActionApply
	dp.Reason = "document changed"
	if !known {
		dp.Reason = "new document"
	}
	for _, d := range doc.Directives() {
		step := Step{Phase: d.Phase(), Kind: d.Kind(), Description: d.Describe()}
		switch d := d.(type) {
		case document.FileState:
			step.Guarded = guardedOff(d.When, facts)
		case document.ServiceState:
			step.Guarded = guardedOff(d.When, facts)
		}
		dp.Steps = append(dp.Steps, step)
	}
	return dp
}

func guardedOff(when string, facts expr.Facts) bool {
	ok, err := expr.Eval(when, facts)
	return err == nil && !ok
}
