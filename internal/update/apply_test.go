package update_test

import (
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"

	"github.com/pkgforge/soar/internal/db"
	"github.com/pkgforge/soar/internal/update"
)

const catalogSchema = `
CREATE TABLE packages (
	id INTEGER PRIMARY KEY,
	pkg TEXT, pkg_id TEXT NOT NULL, pkg_name TEXT NOT NULL, pkg_type TEXT,
	app_id TEXT, description TEXT, version TEXT NOT NULL,
	download_url TEXT NOT NULL, size INTEGER, checksum TEXT,
	ghcr_pkg TEXT, ghcr_size INTEGER, ghcr_blob TEXT, ghcr_url TEXT,
	icon TEXT, desktop TEXT, appstream TEXT,
	homepages TEXT, notes TEXT, source_urls TEXT, tags TEXT, categories TEXT,
	licenses TEXT, provides TEXT, snapshots TEXT, replaces TEXT,
	build_id TEXT, build_date TEXT, build_action TEXT, build_script TEXT, build_log TEXT,
	soar_syms INTEGER NOT NULL DEFAULT 0, deprecated INTEGER NOT NULL DEFAULT 0,
	desktop_integration INTEGER, portable INTEGER, recurse_provides INTEGER
);
CREATE TABLE repository (name TEXT NOT NULL, etag TEXT NOT NULL);
`

func fixture(t *testing.T) *update.Ctx {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "repox.db")
	raw, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := raw.Exec(catalogSchema); err != nil {
		t.Fatal(err)
	}
	for _, row := range [][2]string{{"curl", "8.0.0"}, {"jq", "1.7"}} {
		if _, err := raw.Exec(`INSERT INTO packages (pkg_id, pkg_name, version, download_url)
			VALUES ('bin', ?, ?, 'https://example.com/pkg')`, row[0], row[1]); err != nil {
			t.Fatal(err)
		}
	}
	raw.Close()

	meta, err := db.NewManager([]db.RepoRef{{Name: "repox", Path: path}})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { meta.Close() })
	core, err := db.OpenCore(filepath.Join(dir, "core.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { core.Close() })
	return &update.Ctx{Core: core, Meta: meta}
}

func TestPlanApply(t *testing.T) {
	uc := fixture(t)

	// curl installed at an older version; stray is installed but not
	// declared.
	for _, r := range []db.InstalledPackage{
		{RepoName: "repox", PkgID: "bin", PkgName: "curl", Version: "7.9.0", InstalledPath: t.TempDir(), Profile: "default"},
		{RepoName: "repox", PkgID: "bin", PkgName: "stray", Version: "1", InstalledPath: t.TempDir(), Profile: "default"},
	} {
		r := r
		if _, err := uc.Core.Insert(&r); err != nil {
			t.Fatal(err)
		}
		if err := uc.Core.Commit(r.ID, "x", 1); err != nil {
			t.Fatal(err)
		}
	}

	m := &update.Manifest{Packages: []update.ManifestEntry{
		{Name: "curl"},
		{Name: "jq"},
		{Name: "ghost"},
	}}
	plan, err := uc.PlanApply(m, true)
	if err != nil {
		t.Fatal(err)
	}
	if len(plan.ToUpdate) != 1 || plan.ToUpdate[0].Name != "curl" {
		t.Errorf("ToUpdate = %+v, want curl", plan.ToUpdate)
	}
	if len(plan.ToInstall) != 1 || plan.ToInstall[0].Name != "jq" {
		t.Errorf("ToInstall = %+v, want jq", plan.ToInstall)
	}
	if len(plan.NotFound) != 1 || plan.NotFound[0].Name != "ghost" {
		t.Errorf("NotFound = %+v, want ghost", plan.NotFound)
	}
	if len(plan.ToRemove) != 1 || plan.ToRemove[0].PkgName != "stray" {
		t.Errorf("ToRemove = %+v, want stray", plan.ToRemove)
	}
}

func TestLoadManifest(t *testing.T) {
	path := filepath.Join(t.TempDir(), "soar.yaml")
	if err := os.WriteFile(path, []byte(`
packages:
  - name: curl
    pkg_id: bin
    version: 8.0.0
  - name: jq
`), 0644); err != nil {
		t.Fatal(err)
	}
	m, err := update.LoadManifest(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(m.Packages) != 2 || m.Packages[0].Version != "8.0.0" {
		t.Errorf("manifest = %+v", m)
	}
}
