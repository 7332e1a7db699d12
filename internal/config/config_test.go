package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/pkgforge/soar/internal/config"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadMissingUsesDefaults(t *testing.T) {
	cfg, err := config.Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.DefaultProfile != "default" {
		t.Errorf("default profile = %q", cfg.DefaultProfile)
	}
	if len(cfg.Repositories) == 0 {
		t.Error("default config has no repositories")
	}
}

func TestReservedRepoNames(t *testing.T) {
	for _, name := range []string{"local", "nest-mine"} {
		path := writeConfig(t, `
default_profile: default
profiles:
  default:
    root: /tmp/soar
repositories:
  - name: `+name+`
    url: https://example.com/meta.sdb
`)
		if _, err := config.Load(path); err == nil {
			t.Errorf("repository name %q: expected error", name)
		}
	}
}

func TestDuplicateRepo(t *testing.T) {
	path := writeConfig(t, `
default_profile: default
profiles:
  default:
    root: /tmp/soar
repositories:
  - name: repo
    url: https://a
  - name: repo
    url: https://b
`)
	if _, err := config.Load(path); err == nil {
		t.Error("duplicate repository: expected error")
	}
}

func TestMissingDefaultProfile(t *testing.T) {
	path := writeConfig(t, `
default_profile: work
profiles:
  default:
    root: /tmp/soar
`)
	if _, err := config.Load(path); err == nil {
		t.Error("missing default profile: expected error")
	}
}

func TestSyncInterval(t *testing.T) {
	r := &config.Repository{Name: "r"}
	for _, tt := range []struct {
		in   string
		want int64
	}{
		{"always", config.SyncAlways},
		{"never", config.SyncNever},
		{"", 3 * 60 * 60 * 1000},
		{"auto", 3 * 60 * 60 * 1000},
		{"30m", 30 * 60 * 1000},
		{"1d", 24 * 60 * 60 * 1000},
	} {
		r.SyncInterval = tt.in
		got, err := r.SyncIntervalMillis()
		if err != nil {
			t.Fatalf("SyncIntervalMillis(%q): %v", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("SyncIntervalMillis(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
	r.SyncInterval = "bogus"
	if _, err := r.SyncIntervalMillis(); err == nil {
		t.Error("bogus interval: expected error")
	}
}

func TestVerifySignatureDefaults(t *testing.T) {
	r := &config.Repository{Name: "r"}
	if r.VerifySignature() {
		t.Error("no pubkey: verification should default off")
	}
	r.PubKey = "https://example.com/minisign.pub"
	if !r.VerifySignature() {
		t.Error("pubkey present: verification should default on")
	}
	off := false
	r.VerifySig = &off
	if r.VerifySignature() {
		t.Error("explicit false must win")
	}
}

func TestProfileRootEnvOverride(t *testing.T) {
	cfg, err := config.Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	t.Setenv("SOAR_ROOT", "/custom/root")
	root, err := cfg.ProfileRoot("")
	if err != nil {
		t.Fatal(err)
	}
	if root != "/custom/root" {
		t.Errorf("root = %q, want SOAR_ROOT override", root)
	}
}
