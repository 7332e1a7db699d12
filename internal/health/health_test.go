package health_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/pkgforge/soar/internal/config"
	"github.com/pkgforge/soar/internal/db"
	"github.com/pkgforge/soar/internal/fsutil"
	"github.com/pkgforge/soar/internal/health"
	"github.com/pkgforge/soar/internal/remove"
)

func newCtx(t *testing.T, root string) (*health.Ctx, *db.Core) {
	t.Helper()
	core, err := db.OpenCore(filepath.Join(root, "core.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { core.Close() })
	paths := config.Paths{Root: root}
	rc := &remove.Ctx{Config: config.Default(), Paths: paths, Core: core}
	return &health.Ctx{Paths: paths, Core: core, Remove: rc}, core
}

// Scenario: an install directory vanishes out from under soar. health
// reports one broken package; clean --broken purges it and its stale
// symlinks; the listing no longer returns it.
func TestBrokenPackageLifecycle(t *testing.T) {
	root := t.TempDir()
	t.Setenv("XDG_DATA_HOME", filepath.Join(root, "share"))
	t.Setenv("XDG_RUNTIME_DIR", filepath.Join(root, "run"))
	hc, core := newCtx(t, root)

	dir := filepath.Join(root, "packages", "repox", "bin", "tool")
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "tool"), []byte("x"), 0755); err != nil {
		t.Fatal(err)
	}
	rec := &db.InstalledPackage{
		RepoName: "repox", PkgID: "bin", PkgName: "tool", Version: "1",
		InstalledPath: dir, Profile: "default",
	}
	if _, err := core.Insert(rec); err != nil {
		t.Fatal(err)
	}
	if err := core.Commit(rec.ID, "x", 1); err != nil {
		t.Fatal(err)
	}
	if err := fsutil.AtomicSymlink(filepath.Join(dir, "tool"), filepath.Join(root, "bin", "tool")); err != nil {
		t.Fatal(err)
	}

	// Healthy so far.
	report, err := hc.Check()
	if err != nil {
		t.Fatal(err)
	}
	if pkgs, _ := report.Counts(); pkgs != 0 {
		t.Fatalf("healthy tree reports %d broken packages", pkgs)
	}

	// Vanish the install directory.
	if err := os.RemoveAll(dir); err != nil {
		t.Fatal(err)
	}
	report, err = hc.Check()
	if err != nil {
		t.Fatal(err)
	}
	pkgs, links := report.Counts()
	if pkgs != 1 {
		t.Fatalf("broken packages = %d, want 1", pkgs)
	}
	if links != 1 {
		t.Fatalf("broken symlinks = %d, want 1", links)
	}

	n, err := hc.CleanBroken(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("reaped %d, want 1", n)
	}
	left, err := core.FindFiltered(db.Filter{Name: "tool"})
	if err != nil {
		t.Fatal(err)
	}
	if len(left) != 0 {
		t.Errorf("record survives clean --broken: %+v", left)
	}

	if _, err := hc.CleanBrokenSymlinks(); err != nil {
		t.Fatal(err)
	}
	if fsutil.IsBrokenSymlink(filepath.Join(root, "bin", "tool")) {
		t.Error("dangling bin symlink survives clean --broken-symlinks")
	}
}

// A record whose installed_path exists but never committed is broken too
// (the open-question policy: salvage is not attempted).
func TestUncommittedIsBroken(t *testing.T) {
	root := t.TempDir()
	t.Setenv("XDG_RUNTIME_DIR", filepath.Join(root, "run"))
	hc, core := newCtx(t, root)
	dir := filepath.Join(root, "packages", "repox", "bin", "half")
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}
	rec := &db.InstalledPackage{
		RepoName: "repox", PkgID: "bin", PkgName: "half", Version: "1",
		InstalledPath: dir, Profile: "default",
	}
	if _, err := core.Insert(rec); err != nil {
		t.Fatal(err)
	}
	report, err := hc.Check()
	if err != nil {
		t.Fatal(err)
	}
	if pkgs, _ := report.Counts(); pkgs != 1 {
		t.Errorf("broken packages = %d, want 1", pkgs)
	}
}
