package apply

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/szaher/config-manager/internal/document"
	"github.com/szaher/config-manager/internal/expr"
	"github.com/szaher/config-manager/internal/host"
)

// applyDirective converges one directive. It reports false when the
// directive was already satisfied or guarded off.
func (e *Engine) applyDirective(ctx context.Context, logger *slog.Logger, d document.Directive) (bool, error) {
	switch d := d.(type) {
	case document.RemovePackage:
		if !e.checker.PackageInstalled(ctx, d.Name) {
			logger.Debug("package not installed, nothing to remove", "package", d.Name)
			return false, nil
		}
		logger.Info("removing package", "package", d.Name)
		return true, e.exec.Run(ctx, e.packages.RemoveArgv(d.Name))

	case document.PreInstallHook:
		return true, e.runHook(ctx, logger, "pre-install", d.Command)

	case document.InstallPackage:
		if e.checker.PackageInstalled(ctx, d.Name) {
			logger.Debug("package already installed", "package", d.Name)
			return false, nil
		}
		logger.Info("installing package", "package", d.Name)
		return true, e.exec.Run(ctx, e.packages.InstallArgv(d.Name))

	case document.PostInstallHook:
		return true, e.runHook(ctx, logger, "post-install", d.Command)

	case document.FileState:
		return e.applyFile(ctx, logger, d)

	case document.ServiceState:
		return e.applyService(ctx, logger, d)
	}
	return false, fmt.Errorf("unsupported directive %T", d)
}

func (e *Engine) runHook(ctx context.Context, logger *slog.Logger, stage string, cmd document.OpaqueCommand) error {
	argv := cmd.Argv()
	if len(argv) == 0 {
		return errors.New("empty hook command")
	}
	logger.Info("running hook", "stage", stage, "command", string(cmd))
	return e.exec.Run(ctx, argv)
}

func (e *Engine) guard(when string) (bool, error) {
	ok, err := expr.Eval(when, e.facts)
	if err != nil {
		return false, fmt.Errorf("when: %w", err)
	}
	return ok, nil
}

func (e *Engine) applyFile(ctx context.Context, logger *slog.Logger, f document.FileState) (bool, error) {
	if ok, err := e.guard(f.When); err != nil || !ok {
		return false, err
	}
	if e.checker.FileMatches(f) {
		logger.Debug("file already in desired state", "path", f.Path)
		return false, nil
	}

	logger.Info("configuring file", "path", f.Path)
	dir := filepath.Dir(f.Path)
	if _, err := os.Stat(dir); err != nil {
		if err := e.exec.Run(ctx, host.MkdirArgv(dir)); err != nil {
			return false, err
		}
	}

	tmp, err := e.writeTemp(f)
	if err != nil {
		return false, err
	}
	if err := e.exec.Run(ctx, host.MoveArgv(tmp, f.Path)); err != nil {
		if rmErr := os.Remove(tmp); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
			logger.Warn("failed to remove temp file", "path", tmp, "error", rmErr)
		}
		return false, err
	}

	if argv := host.ChownArgv(f.Path, f.Owner, f.Group); argv != nil {
		if err := e.exec.Run(ctx, argv); err != nil {
			return false, err
		}
	}
	if f.Mode.IsSet() {
		if err := e.exec.Run(ctx, host.ChmodArgv(f.Path, f.Mode.String())); err != nil {
			return false, err
		}
	}
	return true, nil
}

// writeTemp writes the desired content to a unique file in the scratch
// directory and returns its path. The file carries the desired
// permission bits from the start, or 0644 when no mode is given.
func (e *Engine) writeTemp(f document.FileState) (string, error) {
	tmp, err := os.CreateTemp(e.scratchDir, filepath.Base(f.Path)+".*.tmp")
	if err != nil {
		return "", &IOError{Op: "create temp", Path: e.scratchDir, Err: err}
	}
	name := tmp.Name()
	if _, err := tmp.WriteString(f.Content); err != nil {
		tmp.Close()
		os.Remove(name)
		return "", &IOError{Op: "write temp", Path: name, Err: err}
	}
	if err := tmp.Close(); err != nil {
		os.Remove(name)
		return "", &IOError{Op: "close temp", Path: name, Err: err}
	}
	if err := os.Chmod(name, tempPerm(f.Mode)); err != nil {
		os.Remove(name)
		return "", &IOError{Op: "chmod temp", Path: name, Err: err}
	}
	return name, nil
}

func tempPerm(m document.FileMode) os.FileMode {
	if !m.IsSet() {
		return 0o644
	}
	perm, err := m.Perm()
	if err != nil {
		return 0o600
	}
	return os.FileMode(perm) & os.ModePerm
}

func (e *Engine) applyService(ctx context.Context, logger *slog.Logger, s document.ServiceState) (bool, error) {
	if ok, err := e.guard(s.When); err != nil || !ok {
		return false, err
	}
	acted := false
	if s.State != "" {
		argv, err := e.services.ActionArgv(s.Name, s.State)
		if err != nil {
			return false, err
		}
		logger.Info("setting service state", "service", s.Name, "state", s.State)
		if err := e.exec.Run(ctx, argv); err != nil {
			return false, err
		}
		acted = true
	}
	if s.Enabled != nil {
		logger.Info("setting service enablement", "service", s.Name, "enabled", *s.Enabled)
		if err := e.exec.Run(ctx, e.services.EnableArgv(s.Name, *s.Enabled)); err != nil {
			return false, err
		}
		acted = true
	}
	return acted, nil
}
