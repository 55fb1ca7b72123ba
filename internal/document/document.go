// Package document defines the declarative configuration document
// format and the closed set of directives it lowers to.
package document

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrEmptyDocument is returned for documents with no content or an
// empty top-level mapping.
var ErrEmptyDocument = errors.New("empty or invalid document")

// ParseError reports a document that could not be turned into directives.
type ParseError struct {
	Path string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s: %v", e.Path, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Document is one parsed configuration document. Unknown root keys are
// ignored and missing sections decode as empty.
type Document struct {
	Path string `yaml:"-"`
	Key  string `yaml:"-"`

	When      string    `yaml:"when,omitempty"`
	Remove    Remove    `yaml:"remove"`
	Install   Install   `yaml:"install"`
	Configure Configure `yaml:"configure"`
}

// Remove lists packages that must not be installed.
type Remove struct {
	Packages []PackageRef `yaml:"packages"`
}

// PackageRef names a package in the remove section.
type PackageRef struct {
	Name string `yaml:"name"`
}

// Install holds the install section with its hooks.
type Install struct {
	PreInstall  []HookSpec    `yaml:"pre_install"`
	Install     []InstallSpec `yaml:"install"`
	PostInstall []HookSpec    `yaml:"post_install"`
}

// HookSpec is an opaque command run before or after package installs.
type HookSpec struct {
	Command string `yaml:"command"`
}

// InstallSpec names a package that must be installed.
type InstallSpec struct {
	Package string `yaml:"package"`
}

// Configure holds file and service directives.
type Configure struct {
	Files    []FileSpec    `yaml:"files"`
	Services []ServiceSpec `yaml:"services"`
}

// FileSpec describes the desired content and metadata of one file.
type FileSpec struct {
	Path    string   `yaml:"path"`
	Content string   `yaml:"content"`
	Mode    FileMode `yaml:"mode,omitempty"`
	Owner   string   `yaml:"owner,omitempty"`
	Group   string   `yaml:"group,omitempty"`
	When    string   `yaml:"when,omitempty"`
}

// RunState is the desired run state of a service.
type RunState string

const (
	RunStateStarted   RunState = "started"
	RunStateStopped   RunState = "stopped"
	RunStateRestarted RunState = "restarted"
)

// Valid reports whether s is one of the known run states.
func (s RunState) Valid() bool {
	switch s {
	case RunStateStarted, RunStateStopped, RunStateRestarted:
		return true
	}
	return false
}

// ServiceSpec describes the desired run state and enablement of a service.
type ServiceSpec struct {
	Name    string   `yaml:"name"`
	State   RunState `yaml:"state,omitempty"`
	Enabled *bool    `yaml:"enabled,omitempty"`
	When    string   `yaml:"when,omitempty"`
}

// FileMode keeps a permission string exactly as written ("644", "0644",
// "0o644") so YAML never reinterprets it as a decimal number.
type FileMode string

// UnmarshalYAML takes the raw scalar text of the node.
func (m *FileMode) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: mode must be a scalar", node.Line)
	}
	*m = FileMode(strings.TrimSpace(node.Value))
	return nil
}

// IsSet reports whether a mode was given.
func (m FileMode) IsSet() bool { return m != "" }

// Perm parses the mode as octal permission bits, including the
// setuid, setgid and sticky bits.
func (m FileMode) Perm() (uint32, error) {
	s := strings.TrimPrefix(strings.TrimPrefix(string(m), "0o"), "0O")
	v, err := strconv.ParseUint(s, 8, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid mode %q: %w", string(m), err)
	}
	if v > 0o7777 {
		return 0, fmt.Errorf("invalid mode %q: out of range", string(m))
	}
	return uint32(v), nil
}

// String returns the mode in the form accepted by chmod.
func (m FileMode) String() string {
	return strings.TrimPrefix(strings.TrimPrefix(string(m), "0o"), "0O")
}

// Parse decodes raw document bytes. path is used for error reporting
// only. Empty input, a null body and an empty mapping are rejected with
// ErrEmptyDocument.
func Parse(path string, raw []byte) (*Document, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, &ParseError{Path: path, Err: ErrEmptyDocument}
	}

	var root yaml.Node
	if err := yaml.Unmarshal(raw, &root); err != nil {
		return nil, &ParseError{Path: path, Err: err}
	}
	if root.Kind != yaml.DocumentNode || len(root.Content) == 0 {
		return nil, &ParseError{Path: path, Err: ErrEmptyDocument}
	}
	body := root.Content[0]
	if body.Kind == yaml.ScalarNode && body.Tag == "!!null" {
		return nil, &ParseError{Path: path, Err: ErrEmptyDocument}
	}
	if body.Kind != yaml.MappingNode {
		return nil, &ParseError{Path: path, Err: fmt.Errorf("line %d: document root must be a mapping", body.Line)}
	}
	if len(body.Content) == 0 {
		return nil, &ParseError{Path: path, Err: ErrEmptyDocument}
	}

	doc := &Document{}
	if err := body.Decode(doc); err != nil {
		return nil, &ParseError{Path: path, Err: err}
	}
	doc.Path = path
	return doc, nil
}
