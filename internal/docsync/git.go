package docsync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/szaher/config-manager/internal/executor"
	"github.com/szaher/config-manager/internal/telemetry"
)

// GitSource tracks one branch of a remote repository in a local clone.
// git runs unprivileged.
type GitSource struct {
	RepoURL   string
	LocalPath string
	Branch    string

	runner      executor.Runner
	logger      *slog.Logger
	initialized bool
}

// NewGitSource creates a git source. A nil runner uses ExecRunner.
func NewGitSource(repoURL, localPath, branch string, runner executor.Runner, logger *slog.Logger) *GitSource {
	if runner == nil {
		runner = executor.ExecRunner{}
	}
	if logger == nil {
		logger = telemetry.DiscardLogger()
	}
	if abs, err := filepath.Abs(localPath); err == nil {
		localPath = abs
	}
	return &GitSource{
		RepoURL:   repoURL,
		LocalPath: localPath,
		Branch:    branch,
		runner:    runner,
		logger:    logger,
	}
}

func (g *GitSource) Name() string { return "git" }

// Init clones the repository when the local path has no .git directory
// and checks out the tracked branch.
func (g *GitSource) Init(ctx context.Context) error {
	if _, err := os.Stat(filepath.Join(g.LocalPath, ".git")); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return err
		}
		g.logger.Info("cloning repository", "repo", g.RepoURL, "path", g.LocalPath)
		if err := os.MkdirAll(filepath.Dir(g.LocalPath), 0o755); err != nil {
			return fmt.Errorf("create parent of %s: %w", g.LocalPath, err)
		}
		if _, err := g.run(ctx, "clone", g.RepoURL, g.LocalPath); err != nil {
			return fmt.Errorf("failed to initialize repository: %w", err)
		}
	} else {
		g.logger.Info("using existing repository", "path", g.LocalPath)
	}

	if _, err := g.git(ctx, "checkout", g.Branch); err != nil {
		return fmt.Errorf("failed to initialize repository: %w", err)
	}
	g.initialized = true
	return nil
}

// Sync fetches origin and pulls the branch when the remote head moved.
func (g *GitSource) Sync(ctx context.Context) (bool, error) {
	if !g.initialized {
		if err := g.Init(ctx); err != nil {
			return false, err
		}
	}

	g.logger.Info("checking for repository updates")
	if _, err := g.git(ctx, "fetch", "origin"); err != nil {
		return false, err
	}
	local, err := g.git(ctx, "rev-parse", "refs/heads/"+g.Branch)
	if err != nil {
		return false, err
	}
	remote, err := g.git(ctx, "rev-parse", "refs/remotes/origin/"+g.Branch)
	if err != nil {
		return false, err
	}
	if local == remote {
		g.logger.Info("repository is up to date", "commit", local)
		return false, nil
	}

	g.logger.Info("changes detected in remote repository", "local", local, "remote", remote)
	if _, err := g.git(ctx, "pull", "origin", g.Branch); err != nil {
		return false, err
	}
	g.logger.Info("successfully pulled changes")
	return true, nil
}

func (g *GitSource) git(ctx context.Context, args ...string) (string, error) {
	return g.run(ctx, append([]string{"-C", g.LocalPath}, args...)...)
}

func (g *GitSource) run(ctx context.Context, args ...string) (string, error) {
	out, err := g.runner.Run(ctx, "git", args...)
	if err != nil {
		return "", fmt.Errorf(
			"git %s failed root=%q exit=%d stdout=%q stderr=%q: %w",
			gitVerb(args),
			g.LocalPath,
			out.ExitCode,
			strings.TrimSpace(string(out.Stdout)),
			strings.TrimSpace(string(out.Stderr)),
			err,
		)
	}
	return strings.TrimSpace(string(out.Stdout)), nil
}

func gitVerb(args []string) string {
	if len(args) > 2 && args[0] == "-C" {
		return args[2]
	}
	if len(args) > 0 {
		return args[0]
	}
	return ""
}
