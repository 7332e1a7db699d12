// Package config loads and validates the soar configuration: profiles,
// repositories and UI knobs. Inspect the effective values using `soar env`.
package config

import (
	"math"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/xerrors"
	"gopkg.in/yaml.v3"

	soar "github.com/pkgforge/soar"
	"github.com/pkgforge/soar/internal/fsutil"
)

// NestPrefix is prepended to the stored name of user-added repositories.
const NestPrefix = "nest-"

// SyncAlways and SyncNever are the sentinel sync intervals.
const (
	SyncAlways int64 = 0
	SyncNever  int64 = math.MaxInt64
)

// Repository describes one remote metadata source.
type Repository struct {
	Name         string `yaml:"name"`
	URL          string `yaml:"url"`
	PubKey       string `yaml:"pubkey,omitempty"`
	Enabled      *bool  `yaml:"enabled,omitempty"`
	VerifySig    *bool  `yaml:"signature_verification,omitempty"`
	SyncInterval string `yaml:"sync_interval,omitempty"`
}

// IsEnabled defaults to true when unset.
func (r *Repository) IsEnabled() bool { return r.Enabled == nil || *r.Enabled }

// VerifySignature defaults from the presence of a public key.
func (r *Repository) VerifySignature() bool {
	if r.VerifySig != nil {
		return *r.VerifySig
	}
	return r.PubKey != ""
}

// SyncIntervalMillis resolves the configured interval to milliseconds.
// "always" syncs on every trigger, "never" disables syncing, "auto" and
// empty mean 3h. Anything else is a `1d1h1m1s` duration string.
func (r *Repository) SyncIntervalMillis() (int64, error) {
	switch strings.ToLower(r.SyncInterval) {
	case "always":
		return SyncAlways, nil
	case "never":
		return SyncNever, nil
	case "", "auto":
		return 3 * 60 * 60 * 1000, nil
	}
	ms, err := fsutil.ParseDuration(r.SyncInterval)
	if err != nil {
		return 0, &soar.ConfigError{Msg: "repository " + r.Name + ": invalid sync_interval " + r.SyncInterval}
	}
	return ms, nil
}

// Profile is a named root directory holding an independent package tree.
type Profile struct {
	Root string `yaml:"root"`
}

// Config is the full configuration file.
type Config struct {
	DefaultProfile        string             `yaml:"default_profile"`
	Profiles              map[string]Profile `yaml:"profiles"`
	Repositories          []Repository       `yaml:"repositories"`
	ParallelLimit         int                `yaml:"parallel_limit,omitempty"`
	SearchLimit           int                `yaml:"search_limit,omitempty"`
	ProgressStyle         string             `yaml:"progress_style,omitempty"` // classic, modern, minimal
	Icons                 bool               `yaml:"icons,omitempty"`
	Spinners              bool               `yaml:"spinners,omitempty"`
	SignatureVerification bool               `yaml:"signature_verification,omitempty"`
	Hooks                 map[string]Hooks   `yaml:"hooks,omitempty"` // keyed by pkg_name
}

// Hooks are per-package shell snippets run during install/remove.
type Hooks struct {
	PreInstall  string         `yaml:"pre_install,omitempty"`
	PostExtract string         `yaml:"post_extract,omitempty"`
	PostInstall string         `yaml:"post_install,omitempty"`
	PreRemove   string         `yaml:"pre_remove,omitempty"`
	Sandbox     *SandboxConfig `yaml:"sandbox,omitempty"`
}

// SandboxConfig restricts hook execution via Landlock.
type SandboxConfig struct {
	Require bool     `yaml:"require,omitempty"`
	FsRead  []string `yaml:"fs_read,omitempty"`
	FsWrite []string `yaml:"fs_write,omitempty"`
	Network string   `yaml:"network,omitempty"` // allow_all or none
}

// Default returns the configuration soar runs with when no config file
// exists.
func Default() *Config {
	return &Config{
		DefaultProfile: "default",
		Profiles: map[string]Profile{
			"default": {Root: defaultRoot()},
		},
		Repositories: []Repository{
			{
				Name:   "bincache",
				URL:    "https://meta.pkgforge.dev/bincache/x86_64-linux.sdb.zstd",
				PubKey: "https://meta.pkgforge.dev/bincache/minisign.pub",
			},
			{
				Name:   "pkgcache",
				URL:    "https://meta.pkgforge.dev/pkgcache/x86_64-linux.sdb.zstd",
				PubKey: "https://meta.pkgforge.dev/pkgcache/minisign.pub",
			},
		},
		ParallelLimit: 4,
		SearchLimit:   20,
		ProgressStyle: "modern",
		Icons:         true,
		Spinners:      true,
	}
}

func defaultRoot() string {
	if root := os.Getenv("SOAR_ROOT"); root != "" {
		return root
	}
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".local", "share", "soar")
}

// DefaultPath returns the default config file location.
func DefaultPath() string {
	if cfg := os.Getenv("XDG_CONFIG_HOME"); cfg != "" {
		return filepath.Join(cfg, "soar", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".config", "soar", "config.yaml")
}

// Load reads the config at path, falling back to defaults when the file
// does not exist.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath()
	}
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, xerrors.Errorf("reading config: %w", err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(b, cfg); err != nil {
		return nil, &soar.ConfigError{Msg: "malformed config: " + err.Error()}
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the config as YAML, creating parent directories.
func (c *Config) Save(path string) error {
	b, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, b, 0644)
}

func (c *Config) validate() error {
	seen := make(map[string]bool)
	for i := range c.Repositories {
		r := &c.Repositories[i]
		switch {
		case r.Name == "local":
			return &soar.ConfigError{Msg: `repository name "local" is reserved`}
		case strings.HasPrefix(r.Name, NestPrefix):
			return &soar.ConfigError{Msg: "repository names beginning with " + NestPrefix + " are reserved for nests"}
		case seen[r.Name]:
			return &soar.ConfigError{Msg: "duplicate repository " + r.Name}
		}
		seen[r.Name] = true
		if _, err := r.SyncIntervalMillis(); err != nil {
			return err
		}
	}
	if _, ok := c.Profiles[c.DefaultProfile]; !ok {
		return &soar.ConfigError{Msg: "default profile " + c.DefaultProfile + " is not defined"}
	}
	return nil
}

// ProfileRoot resolves the root directory for the named profile (empty
// means the default profile). SOAR_ROOT overrides the configured value.
func (c *Config) ProfileRoot(name string) (string, error) {
	if name == "" {
		name = c.DefaultProfile
	}
	p, ok := c.Profiles[name]
	if !ok {
		return "", &soar.ConfigError{Msg: "profile " + name + " is not defined"}
	}
	if root := os.Getenv("SOAR_ROOT"); root != "" {
		return root, nil
	}
	return p.Root, nil
}
