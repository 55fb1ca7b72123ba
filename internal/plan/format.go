package plan

import (
	"encoding/json"
	"fmt"
	"strings"

	"sigs.k8s.io/yaml"
)

// FormatText produces a human-readable plan.
func FormatText(p *Plan) string {
	if !p.HasChanges {
		return "No changes. All documents are up-to-date.\n"
	}

	var apply, skip, noop int
	for _, d := range p.Documents {
		switch d.Action {
		case ActionApply:
			apply++
		case ActionSkip:
			skip++
		case ActionNoop:
			noop++
		}
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Plan: %d to apply, %d skipped, %d unchanged, %d invalid\n\n",
		apply, skip, noop, p.Invalid)

	for _, d := range p.Documents {
		switch d.Action {
		case ActionApply:
			fmt.Fprintf(&sb, "  ~ %s (%s)\n", d.Key, d.Reason)
			for _, s := range d.Steps {
				suffix := ""
				if s.Guarded {
					suffix = " [when: false]"
				}
				fmt.Fprintf(&sb, "      %-12s %s%s\n", s.Phase, s.Description, suffix)
			}
		case ActionSkip:
			fmt.Fprintf(&sb, "  - %s (%s)\n", d.Key, d.Reason)
		case ActionInvalid:
			fmt.Fprintf(&sb, "  ! %s: %v\n", d.Key, d.Err)
		}
	}
	return sb.String()
}

// FormatJSON produces a JSON plan.
func FormatJSON(p *Plan) (string, error) {
	type jsonStep struct {
		Phase       string `json:"phase"`
		Kind        string `json:"kind"`
		Description string `json:"description"`
		Guarded     bool   `json:"guarded,omitempty"`
	}
	type jsonDocument struct {
		Document string     `json:"document"`
		Action   string     `json:"action"`
		Reason   string     `json:"reason,omitempty"`
		Error    string     `json:"error,omitempty"`
		Steps    []jsonStep `json:"steps,omitempty"`
	}
	type jsonPlan struct {
		HasChanges bool           `json:"has_changes"`
		Documents  []jsonDocument `json:"documents"`
	}

	jp := jsonPlan{HasChanges: p.HasChanges, Documents: []jsonDocument{}}
	for _, d := range p.Documents {
		jd := jsonDocument{Document: d.Key, Action: string(d.Action), Reason: d.Reason}
		if d.Err != nil {
			jd.Error = d.Err.Error()
		}
		for _, s := range d.Steps {
			jd.Steps = append(jd.Steps, jsonStep{
				Phase:       s.Phase.String(),
				Kind:        string(s.Kind),
				Description: s.Description,
				Guarded:     s.Guarded,
			})
		}
		jp.Documents = append(jp.Documents, jd)
	}

	data, err := json.MarshalIndent(jp, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data) + "\n", nil
}

// FormatStatus renders a status report as text, json or yaml.
func FormatStatus(r *StatusReport, format string) (string, error) {
	switch format {
	case "", "text":
		return formatStatusText(r), nil
	case "json":
		data, err := json.MarshalIndent(r, "", "  ")
		if err != nil {
			return "", err
		}
		return string(data) + "\n", nil
	case "yaml":
		data, err := yaml.Marshal(r)
		if err != nil {
			return "", err
		}
		return string(data), nil
	default:
		return "", fmt.Errorf("unknown output format %q (want text, json or yaml)", format)
	}
}

func formatStatusText(r *StatusReport) string {
	var sb strings.Builder
	for _, e := range r.Documents {
		fmt.Fprintf(&sb, "%-10s %s", e.Status, e.Document)
		if e.Error != "" {
			fmt.Fprintf(&sb, ": %s", e.Error)
		}
		sb.WriteString("\n")
	}
	if r.InSync {
		sb.WriteString("\nAll documents are in sync with the fingerprint store.\n")
	} else {
		sb.WriteString("\nDrift detected: the next run will apply changes.\n")
	}
	return sb.String()
}
