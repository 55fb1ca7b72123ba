package document

import (
	"fmt"
	"strings"
)

// Kind identifies a directive variant.
type Kind string

const (
	KindRemovePackage   Kind = "remove_package"
	KindPreInstallHook  Kind = "pre_install_hook"
	KindInstallPackage  Kind = "install_package"
	KindPostInstallHook Kind = "post_install_hook"
	KindFile            Kind = "file"
	KindService         Kind = "service"
)

// Phase is the fixed application order of directive kinds. Every
// directive of a lower phase runs before any directive of a higher one.
type Phase int

const (
	PhaseRemove Phase = iota + 1
	PhasePreInstall
	PhaseInstall
	PhasePostInstall
	PhaseFiles
	PhaseServices
)

var phaseNames = map[Phase]string{
	PhaseRemove:      "remove",
	PhasePreInstall:  "pre-install",
	PhaseInstall:     "install",
	PhasePostInstall: "post-install",
	PhaseFiles:       "files",
	PhaseServices:    "services",
}

func (p Phase) String() string {
	if name, ok := phaseNames[p]; ok {
		return name
	}
	return fmt.Sprintf("phase(%d)", int(p))
}

// Directive is one declarative instruction of a document. The set of
// implementations is closed to this package.
type Directive interface {
	Kind() Kind
	Phase() Phase
	Describe() string
	directive()
}

// RemovePackage removes a package if it is installed.
type RemovePackage struct {
	Name string
}

func (RemovePackage) Kind() Kind         { return KindRemovePackage }
func (RemovePackage) Phase() Phase       { return PhaseRemove }
func (d RemovePackage) Describe() string { return "remove package " + d.Name }
func (RemovePackage) directive()         {}

// OpaqueCommand is a raw command line taken verbatim from the document.
// It is split on whitespace into argv and never passed through a shell.
type OpaqueCommand string

// Argv splits the command into arguments.
func (c OpaqueCommand) Argv() []string {
	return strings.Fields(string(c))
}

// PreInstallHook runs an opaque command before package installs.
type PreInstallHook struct {
	Command OpaqueCommand
}

func (PreInstallHook) Kind() Kind         { return KindPreInstallHook }
func (PreInstallHook) Phase() Phase       { return PhasePreInstall }
func (d PreInstallHook) Describe() string { return "pre-install: " + string(d.Command) }
func (PreInstallHook) directive()         {}

// InstallPackage installs a package if it is missing.
type InstallPackage struct {
	Name string
}

func (InstallPackage) Kind() Kind         { return KindInstallPackage }
func (InstallPackage) Phase() Phase       { return PhaseInstall }
func (d InstallPackage) Describe() string { return "install package " + d.Name }
func (InstallPackage) directive()         {}

// PostInstallHook runs an opaque command after package installs.
type PostInstallHook struct {
	Command OpaqueCommand
}

func (PostInstallHook) Kind() Kind         { return KindPostInstallHook }
func (PostInstallHook) Phase() Phase       { return PhasePostInstall }
func (d PostInstallHook) Describe() string { return "post-install: " + string(d.Command) }
func (PostInstallHook) directive()         {}

// FileState materializes a file with the given content and metadata.
type FileState struct {
	Path    string
	Content string
	Mode    FileMode
	Owner   string
	Group   string
	When    string
}

func (FileState) Kind() Kind   { return KindFile }
func (FileState) Phase() Phase { return PhaseFiles }
func (d FileState) Describe() string {
	var extra []string
	if d.Mode.IsSet() {
		extra = append(extra, "mode="+d.Mode.String())
	}
	if d.Owner != "" || d.Group != "" {
		extra = append(extra, "owner="+d.Owner+":"+d.Group)
	}
	if len(extra) == 0 {
		return "file " + d.Path
	}
	return "file " + d.Path + " (" + strings.Join(extra, ", ") + ")"
}
func (FileState) directive() {}

// ServiceState converges the run state and enablement of a service.
type ServiceState struct {
	Name    string
	State   RunState
	Enabled *bool
	When    string
}

func (ServiceState) Kind() Kind   { return KindService }
func (ServiceState) Phase() Phase { return PhaseServices }
func (d ServiceState) Describe() string {
	var parts []string
	if d.State != "" {
		parts = append(parts, "state="+string(d.State))
	}
	if d.Enabled != nil {
		parts = append(parts, fmt.Sprintf("enabled=%t", *d.Enabled))
	}
	if len(parts) == 0 {
		return "service " + d.Name
	}
	return "service " + d.Name + " (" + strings.Join(parts, ", ") + ")"
}
func (ServiceState) directive() {}

// Directives lowers the document into directives in phase order,
// preserving declaration order within each phase.
func (d *Document) Directives() []Directive {
	var out []Directive
	for _, p := range d.Remove.Packages {
		out = append(out, RemovePackage{Name: strings.TrimSpace(p.Name)})
	}
	for _, h := range d.Install.PreInstall {
		out = append(out, PreInstallHook{Command: OpaqueCommand(strings.TrimSpace(h.Command))})
	}
	for _, p := range d.Install.Install {
		out = append(out, InstallPackage{Name: strings.TrimSpace(p.Package)})
	}
	for _, h := range d.Install.PostInstall {
		out = append(out, PostInstallHook{Command: OpaqueCommand(strings.TrimSpace(h.Command))})
	}
	for _, f := range d.Configure.Files {
		out = append(out, FileState{
			Path:    strings.TrimSpace(f.Path),
			Content: f.Content,
			Mode:    f.Mode,
			Owner:   strings.TrimSpace(f.Owner),
			Group:   strings.TrimSpace(f.Group),
			When:    f.When,
		})
	}
	for _, s := range d.Configure.Services {
		out = append(out, ServiceState{
			Name:    strings.TrimSpace(s.Name),
			State:   s.State,
			Enabled: s.Enabled,
			When:    s.When,
		})
	}
	return out
}
