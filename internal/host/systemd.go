package host

import (
	"fmt"

	"github.com/szaher/config-manager/internal/document"
)

func init() {
	RegisterServiceManager("systemd", func() ServiceManager { return Systemd{} })
}

// Systemd drives systemctl.
type Systemd struct{}

func (Systemd) Name() string { return "systemd" }

// ActionArgv maps a run state to its systemctl verb. Each call issues
// the verb unconditionally; systemctl treats start and stop as no-ops
// when the unit is already in that state.
func (Systemd) ActionArgv(name string, state document.RunState) ([]string, error) {
	var verb string
	switch state {
	case document.RunStateStarted:
		verb = "start"
	case document.RunStateStopped:
		verb = "stop"
	case document.RunStateRestarted:
		verb = "restart"
	default:
		return nil, fmt.Errorf("unsupported service state %q", state)
	}
	return []string{"systemctl", verb, name}, nil
}

func (Systemd) EnableArgv(name string, enabled bool) []string {
	if enabled {
		return []string{"systemctl", "enable", name}
	}
	return []string{"systemctl", "disable", name}
}
