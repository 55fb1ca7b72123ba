// Package check holds read-only predicates comparing desired and actual
// host state. Every error is reported as "not satisfied".
package check

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"os/user"
	"strconv"
	"syscall"

	"github.com/szaher/config-manager/internal/document"
	"github.com/szaher/config-manager/internal/executor"
	"github.com/szaher/config-manager/internal/host"
)

// Checker answers whether a package or file is already converged.
type Checker struct {
	runner   executor.Runner
	packages host.PackageManager
	logger   *slog.Logger
}

// New creates a Checker. Queries run through runner without elevation.
func New(runner executor.Runner, packages host.PackageManager, logger *slog.Logger) *Checker {
	if runner == nil {
		runner = executor.ExecRunner{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Checker{runner: runner, packages: packages, logger: logger}
}

// PackageInstalled queries the package database. A failed query means
// not installed.
func (c *Checker) PackageInstalled(ctx context.Context, name string) bool {
	argv := c.packages.QueryArgv(name)
	out, err := c.runner.Run(ctx, argv[0], argv[1:]...)
	if err != nil {
		c.logger.Debug("package query failed", "package", name, "exit", out.ExitCode, "error", err)
		return false
	}
	return c.packages.Installed(out.Stdout)
}

// FileMatches reports whether path exists with exactly the desired
// content and, where given, mode, owner and group.
func (c *Checker) FileMatches(f document.FileState) bool {
	ok, err := fileMatches(f)
	if err != nil {
		c.logger.Debug("file check failed", "path", f.Path, "error", err)
		return false
	}
	return ok
}

func fileMatches(f document.FileState) (bool, error) {
	info, err := os.Stat(f.Path)
	if err != nil {
		return false, err
	}
	if !info.Mode().IsRegular() {
		return false, nil
	}
	data, err := os.ReadFile(f.Path)
	if err != nil {
		return false, err
	}
	if !bytes.Equal(data, []byte(f.Content)) {
		return false, nil
	}

	st, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return false, nil
	}
	if f.Mode.IsSet() {
		want, err := f.Mode.Perm()
		if err != nil {
			return false, err
		}
		if uint32(st.Mode)&0o7777 != want {
			return false, nil
		}
	}
	if f.Owner != "" {
		uid, err := lookupUID(f.Owner)
		if err != nil {
			return false, err
		}
		if uid != st.Uid {
			return false, nil
		}
	}
	if f.Group != "" {
		gid, err := lookupGID(f.Group)
		if err != nil {
			return false, err
		}
		if gid != st.Gid {
			return false, nil
		}
	}
	return true, nil
}

func lookupUID(name string) (uint32, error) {
	if id, err := strconv.ParseUint(name, 10, 32); err == nil {
		return uint32(id), nil
	}
	u, err := user.Lookup(name)
	if err != nil {
		return 0, err
	}
	id, err := strconv.ParseUint(u.Uid, 10, 32)
	return uint32(id), err
}

func lookupGID(name string) (uint32, error) {
	if id, err := strconv.ParseUint(name, 10, 32); err == nil {
		return uint32(id), nil
	}
	g, err := user.LookupGroup(name)
	if err != nil {
		return 0, err
	}
	id, err := strconv.ParseUint(g.Gid, 10, 32)
	return uint32(id), err
}
