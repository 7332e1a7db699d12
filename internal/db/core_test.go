package db_test

import (
	"os"
	"path/filepath"
	"testing"

	soar "github.com/pkgforge/soar"
	"github.com/pkgforge/soar/internal/db"
)

func openCore(t *testing.T) *db.Core {
	t.Helper()
	core, err := db.OpenCore(filepath.Join(t.TempDir(), "core.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { core.Close() })
	return core
}

func insert(t *testing.T, core *db.Core, p db.InstalledPackage) *db.InstalledPackage {
	t.Helper()
	if _, err := core.Insert(&p); err != nil {
		t.Fatal(err)
	}
	return &p
}

func TestInsertCommitFind(t *testing.T) {
	core := openCore(t)
	dir := t.TempDir()
	p := insert(t, core, db.InstalledPackage{
		RepoName:      "repox",
		PkgID:         "bin",
		PkgName:       "curl",
		Version:       "8.0.0",
		InstalledPath: dir,
		Profile:       "default",
		Provides:      []soar.Provide{{Name: "curl-config", SymlinkToBin: true}},
	})

	found, err := core.FindFiltered(db.Filter{Name: "curl", PkgID: "bin"})
	if err != nil {
		t.Fatal(err)
	}
	if len(found) != 1 {
		t.Fatalf("got %d rows, want 1", len(found))
	}
	if found[0].IsInstalled {
		t.Error("record is_installed before commit")
	}
	if len(found[0].Provides) != 1 || found[0].Provides[0].Name != "curl-config" {
		t.Errorf("provides not round-tripped: %+v", found[0].Provides)
	}

	if err := core.Commit(p.ID, "deadbeef", 123); err != nil {
		t.Fatal(err)
	}
	found, err = core.FindFiltered(db.Filter{Name: "curl"})
	if err != nil {
		t.Fatal(err)
	}
	if !found[0].IsInstalled || found[0].Checksum != "deadbeef" || found[0].Size != 123 {
		t.Errorf("commit not visible: %+v", found[0])
	}
}

// At most one record of a (pkg_name, pkg_id set) may have unlinked =
// false; SwitchActive maintains that in one transaction.
func TestSwitchActive(t *testing.T) {
	core := openCore(t)
	dir := t.TempDir()
	a := insert(t, core, db.InstalledPackage{
		RepoName: "repox", PkgID: "bin", PkgName: "fd", Version: "1.0",
		InstalledPath: filepath.Join(dir, "bin"), Profile: "default",
	})
	b := insert(t, core, db.InstalledPackage{
		RepoName: "repox", PkgID: "cargo", PkgName: "fd", Version: "1.0",
		InstalledPath: filepath.Join(dir, "cargo"), Profile: "default", Unlinked: true,
	})
	if err := core.Commit(a.ID, "aaaa", 1); err != nil {
		t.Fatal(err)
	}
	if err := core.Commit(b.ID, "bbbb", 1); err != nil {
		t.Fatal(err)
	}

	if err := core.SwitchActive("fd", "cargo", "bbbb"); err != nil {
		t.Fatal(err)
	}
	all, err := core.FindFiltered(db.Filter{Name: "fd"})
	if err != nil {
		t.Fatal(err)
	}
	active := 0
	for _, p := range all {
		if !p.Unlinked {
			active++
			if p.PkgID != "cargo" {
				t.Errorf("active variant is %s, want cargo", p.PkgID)
			}
		}
	}
	if active != 1 {
		t.Errorf("%d active variants, want exactly 1", active)
	}
}

func TestListBroken(t *testing.T) {
	core := openCore(t)
	gone := filepath.Join(t.TempDir(), "gone")
	present := t.TempDir()

	uncommitted := insert(t, core, db.InstalledPackage{
		RepoName: "repox", PkgID: "bin", PkgName: "a", Version: "1",
		InstalledPath: present, Profile: "default",
	})
	vanished := insert(t, core, db.InstalledPackage{
		RepoName: "repox", PkgID: "bin", PkgName: "b", Version: "1",
		InstalledPath: gone, Profile: "default",
	})
	healthy := insert(t, core, db.InstalledPackage{
		RepoName: "repox", PkgID: "bin", PkgName: "c", Version: "1",
		InstalledPath: present, Profile: "default",
	})
	if err := core.Commit(vanished.ID, "x", 1); err != nil {
		t.Fatal(err)
	}
	if err := core.Commit(healthy.ID, "x", 1); err != nil {
		t.Fatal(err)
	}

	broken, err := core.ListBroken()
	if err != nil {
		t.Fatal(err)
	}
	names := make(map[string]bool)
	for _, p := range broken {
		names[p.PkgName] = true
	}
	if !names["a"] || !names["b"] || names["c"] {
		t.Errorf("broken set = %v, want {a, b}", names)
	}
	_ = uncommitted
}

func TestDeletePackageCascades(t *testing.T) {
	core := openCore(t)
	p := insert(t, core, db.InstalledPackage{
		RepoName: "repox", PkgID: "bin", PkgName: "tool", Version: "1",
		InstalledPath: t.TempDir(), Profile: "default",
	})
	if err := core.UpsertPortable(&db.PortablePackage{PackageID: p.ID, PortableHome: "/tmp/h"}); err != nil {
		t.Fatal(err)
	}
	if err := core.DeletePackage(p.ID); err != nil {
		t.Fatal(err)
	}
	found, err := core.FindFiltered(db.Filter{Name: "tool"})
	if err != nil {
		t.Fatal(err)
	}
	if len(found) != 0 {
		t.Errorf("package still present after delete")
	}
	pp, err := core.Portable(p.ID)
	if err != nil {
		t.Fatal(err)
	}
	if pp != nil {
		t.Errorf("portable row still present after delete")
	}
}

func TestDeleteOldPackages(t *testing.T) {
	core := openCore(t)
	oldRec := insert(t, core, db.InstalledPackage{
		RepoName: "repox", PkgID: "bin", PkgName: "tool", Version: "1",
		InstalledPath: t.TempDir(), Profile: "default",
	})
	newRec := insert(t, core, db.InstalledPackage{
		RepoName: "repox", PkgID: "bin", PkgName: "tool", Version: "2",
		InstalledPath: t.TempDir(), Profile: "default",
	})
	deleted, err := core.DeleteOldPackages(newRec.ID, "bin", "tool", "repox")
	if err != nil {
		t.Fatal(err)
	}
	if len(deleted) != 1 || deleted[0].ID != oldRec.ID {
		t.Fatalf("deleted = %+v, want the old record", deleted)
	}
	left, err := core.FindFiltered(db.Filter{Name: "tool"})
	if err != nil {
		t.Fatal(err)
	}
	if len(left) != 1 || left[0].Version != "2" {
		t.Errorf("remaining = %+v, want only version 2", left)
	}
}

func TestMigrationsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "core.db")
	core, err := db.OpenCore(path)
	if err != nil {
		t.Fatal(err)
	}
	core.Close()
	// Reopen: migrations must not fail on the existing schema.
	core, err = db.OpenCore(path)
	if err != nil {
		t.Fatal(err)
	}
	core.Close()
	if _, err := os.Stat(path); err != nil {
		t.Fatal(err)
	}
}
