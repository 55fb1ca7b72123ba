// Package host maps declarative intents to the concrete argv of the
// host's package manager, service manager and file utilities.
// Backends register themselves by name.
package host

import (
	"errors"
	"fmt"
	"os/exec"
	"sort"
	"sync"

	"github.com/szaher/config-manager/internal/document"
)

// ErrUnknownBackend is returned when a backend name is not registered.
var ErrUnknownBackend = errors.New("unknown backend")

// PackageManager builds the argv for package queries and mutations.
type PackageManager interface {
	Name() string
	// QueryArgv returns a read-only command reporting whether pkg is installed.
	QueryArgv(pkg string) []string
	// Installed interprets the stdout of a successful query.
	Installed(stdout []byte) bool
	InstallArgv(pkg string) []string
	RemoveArgv(pkg string) []string
}

// ServiceManager builds the argv for service state changes.
type ServiceManager interface {
	Name() string
	ActionArgv(name string, state document.RunState) ([]string, error)
	EnableArgv(name string, enabled bool) []string
}

// PackageManagerFactory creates a package manager.
type PackageManagerFactory func() PackageManager

// ServiceManagerFactory creates a service manager.
type ServiceManagerFactory func() ServiceManager

var (
	registryMu sync.RWMutex
	packages   = make(map[string]PackageManagerFactory)
	services   = make(map[string]ServiceManagerFactory)
)

// RegisterPackageManager adds a package manager factory to the registry.
func RegisterPackageManager(name string, f PackageManagerFactory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	packages[name] = f
}

// RegisterServiceManager adds a service manager factory to the registry.
func RegisterServiceManager(name string, f ServiceManagerFactory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	services[name] = f
}

// Packages returns the named package manager. "auto" or "" probes the
// host for a known query tool.
func Packages(name string) (PackageManager, error) {
	if name == "" || name == "auto" {
		name = DetectPackageManager()
	}
	registryMu.RLock()
	defer registryMu.RUnlock()
	f, ok := packages[name]
	if !ok {
		return nil, fmt.Errorf("package manager %q: %w", name, ErrUnknownBackend)
	}
	return f(), nil
}

// Services returns the named service manager. "" selects systemd.
func Services(name string) (ServiceManager, error) {
	if name == "" || name == "auto" {
		name = "systemd"
	}
	registryMu.RLock()
	defer registryMu.RUnlock()
	f, ok := services[name]
	if !ok {
		return nil, fmt.Errorf("service manager %q: %w", name, ErrUnknownBackend)
	}
	return f(), nil
}

// PackageManagerNames returns the registered package manager names, sorted.
func PackageManagerNames() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(packages))
	for name := range packages {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

var lookPath = exec.LookPath

// DetectPackageManager picks apt when dpkg-query is available, dnf when
// rpm is, and falls back to apt.
func DetectPackageManager() string {
	if _, err := lookPath("dpkg-query"); err == nil {
		return "apt"
	}
	if _, err := lookPath("rpm"); err == nil {
		return "dnf"
	}
	return "apt"
}
