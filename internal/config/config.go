// Package config loads the tool configuration: a YAML file with
// ${ENV} expansion, then environment overrides, then defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/szaher/config-manager/internal/executor"
	"github.com/szaher/config-manager/internal/host"
	"github.com/szaher/config-manager/internal/telemetry"
)

const (
	DefaultPath      = "/etc/config-manager/config.yaml"
	DefaultLocalPath = "/var/lib/config-manager/default_repo"
	DefaultRepoURL   = "https://github.com/susantomahato/config-manager.git"
	DefaultStateFile = "/var/lib/config-manager/state.json"
	DefaultBranch    = "main"
	DefaultInterval  = 5

	// DocumentsSubdir is the directory of a synced clone that holds the
	// documents when documents.dir is not set.
	DocumentsSubdir = "cookbooks"
)

// Environment variables that override file values.
const (
	EnvDir       = "CONFIG_MANAGER_DIR"
	EnvStateFile = "CONFIG_MANAGER_STATE_FILE"
	EnvLogFormat = "CONFIG_MANAGER_LOG_FORMAT"
	EnvElevate   = "CONFIG_MANAGER_ELEVATE"
)

// Config is the full tool configuration.
type Config struct {
	Documents Documents `yaml:"documents"`
	State     State     `yaml:"state"`
	Executor  Executor  `yaml:"executor"`
	Packages  Backend   `yaml:"packages"`
	Services  Backend   `yaml:"services"`
	Log       Log       `yaml:"log"`
	Metrics   Metrics   `yaml:"metrics"`
	Events    Events    `yaml:"events"`
	Sync      Sync      `yaml:"sync"`
	Watch     Watch     `yaml:"watch"`
}

type Documents struct {
	Dir        string   `yaml:"dir"`
	Extensions []string `yaml:"extensions"`
}

type State struct {
	File string `yaml:"file"`
}

type Executor struct {
	Elevate    string   `yaml:"elevate"`
	Wrapper    []string `yaml:"wrapper"`
	ScratchDir string   `yaml:"scratch_dir"`
}

type Backend struct {
	Backend string `yaml:"backend"`
}

type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type Metrics struct {
	Textfile string `yaml:"textfile"`
	Listen   string `yaml:"listen"`
}

type Events struct {
	File string `yaml:"file"`
}

// Sync configures the document source poller.
type Sync struct {
	Source          string `yaml:"source"`
	RepoURL         string `yaml:"repo_url"`
	LocalPath       string `yaml:"local_path"`
	Branch          string `yaml:"branch"`
	IntervalMinutes int    `yaml:"interval_minutes"`
	Schedule        string `yaml:"schedule"`
	S3              S3     `yaml:"s3"`
}

// S3 configures the S3 document source. Empty credentials fall back to
// the default AWS credential chain.
type S3 struct {
	Bucket          string `yaml:"bucket"`
	Prefix          string `yaml:"prefix"`
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	UsePathStyle    bool   `yaml:"use_path_style"`
}

type Watch struct {
	Debounce time.Duration `yaml:"debounce"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Documents: Documents{
			Dir:        filepath.Join(DefaultLocalPath, DocumentsSubdir),
			Extensions: []string{".yaml", ".yml"},
		},
		State:    State{File: DefaultStateFile},
		Executor: Executor{Elevate: string(executor.ElevateAuto), Wrapper: []string{"sudo"}},
		Packages: Backend{Backend: "apt"},
		Services: Backend{Backend: "systemd"},
		Log:      Log{Level: "info", Format: "text"},
		Sync: Sync{
			Source:          "git",
			RepoURL:         DefaultRepoURL,
			LocalPath:       DefaultLocalPath,
			Branch:          DefaultBranch,
			IntervalMinutes: DefaultInterval,
		},
		Watch: Watch{Debounce: 2 * time.Second},
	}
}

// Load reads path over the defaults, applies environment overrides and
// validates the result. A missing file is only an error when required.
func Load(path string, required bool) (*Config, error) {
	cfg := Default()
	cfg.Documents.Dir = ""
	if path == "" {
		path = DefaultPath
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		expanded := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist) && !required:
	default:
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg.applyEnv(os.LookupEnv)
	if cfg.Documents.Dir == "" {
		cfg.Documents.Dir = filepath.Join(cfg.Sync.LocalPath, DocumentsSubdir)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// SetLocalPath moves the sync clone. A documents dir still derived from
// the previous clone follows it; an explicit one is kept.
func (c *Config) SetLocalPath(path string) {
	if c.Documents.Dir == filepath.Join(c.Sync.LocalPath, DocumentsSubdir) {
		c.Documents.Dir = filepath.Join(path, DocumentsSubdir)
	}
	c.Sync.LocalPath = path
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) {
	if v, ok := lookup(EnvDir); ok && v != "" {
		c.Documents.Dir = v
	}
	if v, ok := lookup(EnvStateFile); ok && v != "" {
		c.State.File = v
	}
	if v, ok := lookup(EnvLogFormat); ok && v != "" {
		c.Log.Format = v
	}
	if v, ok := lookup(EnvElevate); ok && v != "" {
		c.Executor.Elevate = v
	}
}

// Validate checks enum values and required fields.
func (c *Config) Validate() error {
	var errs []error
	if c.Documents.Dir == "" {
		errs = append(errs, errors.New("documents.dir is required"))
	}
	for _, ext := range c.Documents.Extensions {
		if !strings.HasPrefix(ext, ".") {
			errs = append(errs, fmt.Errorf("documents.extensions: %q must start with a dot", ext))
		}
	}
	if c.State.File == "" {
		errs = append(errs, errors.New("state.file is required"))
	}
	if _, err := executor.ParseElevation(c.Executor.Elevate); err != nil {
		errs = append(errs, fmt.Errorf("executor.elevate: %w", err))
	}
	if _, err := telemetry.ParseFormat(c.Log.Format); err != nil {
		errs = append(errs, fmt.Errorf("log.format: %w", err))
	}
	if _, err := ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}
	if b := c.Packages.Backend; b != "" && b != "auto" && !slices.Contains(host.PackageManagerNames(), b) {
		errs = append(errs, fmt.Errorf("packages.backend: unknown backend %q", b))
	}
	switch c.Sync.Source {
	case "", "git":
	case "s3":
		if c.Sync.S3.Bucket == "" {
			errs = append(errs, errors.New("sync.s3.bucket is required for the s3 source"))
		}
	default:
		errs = append(errs, fmt.Errorf("sync.source: unknown source %q (want git or s3)", c.Sync.Source))
	}
	if c.Sync.IntervalMinutes <= 0 && c.Sync.Schedule == "" {
		errs = append(errs, errors.New("sync.interval_minutes must be positive"))
	}
	if c.Watch.Debounce < 0 {
		errs = append(errs, errors.New("watch.debounce must not be negative"))
	}
	return errors.Join(errs...)
}
