// Package expr compiles and evaluates the `when` guard expressions that
// gate documents and directives on host facts.
package expr

import (
	"fmt"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// CompiledExpr represents a compiled guard ready for evaluation.
type CompiledExpr struct {
	Source  string
	program *vm.Program
}

// Compile type-checks a guard against the facts environment. Guards
// must produce a boolean.
func Compile(source string) (*CompiledExpr, error) {
	if source == "" {
		return nil, fmt.Errorf("empty expression")
	}

	program, err := expr.Compile(source, expr.Env(Facts{}.env()), expr.AsBool())
	if err != nil {
		return nil, fmt.Errorf("compile guard %q: %w", source, err)
	}

	return &CompiledExpr{
		Source:  source,
		program: program,
	}, nil
}

// ValidateSyntax checks that a guard compiles against the facts
// environment without keeping the program.
func ValidateSyntax(source string) error {
	_, err := Compile(source)
	return err
}
