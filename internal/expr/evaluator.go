package expr

import (
	"fmt"
	"os"
	"runtime"
	"strings"

	"github.com/expr-lang/expr"
)

// Host describes the machine a guard is evaluated on.
type Host struct {
	OS       string `expr:"os"`
	Arch     string `expr:"arch"`
	Hostname string `expr:"hostname"`
}

// Facts holds the variables available to guard expressions.
type Facts struct {
	Host Host
	Env  map[string]string
}

// CurrentFacts collects facts about the running host.
func CurrentFacts() Facts {
	hostname, _ := os.Hostname()
	env := make(map[string]string)
	for _, kv := range os.Environ() {
		k, v, ok := strings.Cut(kv, "=")
		if ok {
			env[k] = v
		}
	}
	return Facts{
		Host: Host{
			OS:       runtime.GOOS,
			Arch:     runtime.GOARCH,
			Hostname: hostname,
		},
		Env: env,
	}
}

func (f Facts) env() map[string]interface{} {
	env := f.Env
	if env == nil {
		env = map[string]string{}
	}
	return map[string]interface{}{
		"host": f.Host,
		"env":  env,
	}
}

// EvalBool evaluates a compiled guard against facts.
func EvalBool(compiled *CompiledExpr, facts Facts) (bool, error) {
	if compiled == nil || compiled.program == nil {
		return false, fmt.Errorf("nil compiled expression")
	}

	result, err := expr.Run(compiled.program, facts.env())
	if err != nil {
		return false, fmt.Errorf("expression eval error for %q: %w", compiled.Source, err)
	}

	b, ok := result.(bool)
	if !ok {
		return false, fmt.Errorf("expression %q returned %T, expected bool", compiled.Source, result)
	}
	return b, nil
}

// Eval compiles and evaluates a guard in one step. An empty guard is
// always true.
func Eval(source string, facts Facts) (bool, error) {
	if strings.TrimSpace(source) == "" {
		return true, nil
	}
	compiled, err := Compile(source)
	if err != nil {
		return false, err
	}
	return EvalBool(compiled, facts)
}
