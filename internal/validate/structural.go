// Package validate implements structural validation for parsed
// configuration documents.
package validate

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/szaher/config-manager/internal/document"
	"github.com/szaher/config-manager/internal/expr"
)

// ValidationError represents one problem found in a document.
type ValidationError struct {
	File    string
	Field   string
	Message string
	Hint    string
}

func (e *ValidationError) Error() string {
	s := fmt.Sprintf("%s: %s: %s", e.File, e.Field, e.Message)
	if e.Hint != "" {
		s += "\n  hint: " + e.Hint
	}
	return s
}

// ValidateStructural checks required fields, enum values, modes and
// guard expressions. It never touches the host.
func ValidateStructural(doc *document.Document) []*ValidationError {
	var errs []*ValidationError
	add := func(field, msg, hint string) {
		errs = append(errs, &ValidationError{File: doc.Path, Field: field, Message: msg, Hint: hint})
	}

	if doc.When != "" {
		if err := expr.ValidateSyntax(doc.When); err != nil {
			add("when", err.Error(), `guards see host.os, host.arch, host.hostname and env["NAME"]`)
		}
	}

	for i, p := range doc.Remove.Packages {
		if blank(p.Name) {
			add(fmt.Sprintf("remove.packages[%d].name", i), "package name is required", "")
		}
	}
	for i, h := range doc.Install.PreInstall {
		if blank(h.Command) {
			add(fmt.Sprintf("install.pre_install[%d].command", i), "command is required", "")
		}
	}
	for i, p := range doc.Install.Install {
		if blank(p.Package) {
			add(fmt.Sprintf("install.install[%d].package", i), "package name is required", "")
		}
	}
	for i, h := range doc.Install.PostInstall {
		if blank(h.Command) {
			add(fmt.Sprintf("install.post_install[%d].command", i), "command is required", "")
		}
	}

	for i, f := range doc.Configure.Files {
		field := fmt.Sprintf("configure.files[%d]", i)
		errs = append(errs, validateFile(doc.Path, field, f)...)
	}
	for i, s := range doc.Configure.Services {
		field := fmt.Sprintf("configure.services[%d]", i)
		errs = append(errs, validateService(doc.Path, field, s)...)
	}
	return errs
}

func validateFile(path, field string, f document.FileSpec) []*ValidationError {
	var errs []*ValidationError
	if blank(f.Path) {
		errs = append(errs, &ValidationError{File: path, Field: field + ".path", Message: "path is required"})
	} else if !filepath.IsAbs(strings.TrimSpace(f.Path)) {
		errs = append(errs, &ValidationError{
			File: path, Field: field + ".path",
			Message: fmt.Sprintf("path %q must be absolute", f.Path),
		})
	}
	if f.Mode.IsSet() {
		if _, err := f.Mode.Perm(); err != nil {
			errs = append(errs, &ValidationError{
				File: path, Field: field + ".mode",
				Message: err.Error(),
				Hint:    `quote octal modes, e.g. mode: "0644"`,
			})
		}
	}
	if f.When != "" {
		if err := expr.ValidateSyntax(f.When); err != nil {
			errs = append(errs, &ValidationError{File: path, Field: field + ".when", Message: err.Error()})
		}
	}
	return errs
}

func validateService(path, field string, s document.ServiceSpec) []*ValidationError {
	var errs []*ValidationError
	if blank(s.Name) {
		errs = append(errs, &ValidationError{File: path, Field: field + ".name", Message: "service name is required"})
	}
	if s.State != "" && !s.State.Valid() {
		errs = append(errs, &ValidationError{
			File: path, Field: field + ".state",
			Message: fmt.Sprintf("unknown state %q", s.State),
			Hint:    "use one of started, stopped, restarted",
		})
	}
	if s.When != "" {
		if err := expr.ValidateSyntax(s.When); err != nil {
			errs = append(errs, &ValidationError{File: path, Field: field + ".when", Message: err.Error()})
		}
	}
	return errs
}

// blank reports values that are empty once lowered, since directive
// names and commands are trimmed.
func blank(s string) bool { return strings.TrimSpace(s) == "" }
