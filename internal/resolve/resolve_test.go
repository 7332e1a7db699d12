package resolve_test

import (
	"database/sql"
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"

	soar "github.com/pkgforge/soar"
	"github.com/pkgforge/soar/internal/db"
	"github.com/pkgforge/soar/internal/resolve"
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

func catalog(t *testing.T, dir, repo string, pkgs ...[3]string) db.RepoRef {
	t.Helper()
	path := filepath.Join(dir, repo+".db")
	raw, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatal(err)
	}
	defer raw.Close()
	if _, err := raw.Exec(catalogSchema); err != nil {
		t.Fatal(err)
	}
	for _, p := range pkgs {
		if _, err := raw.Exec(`INSERT INTO packages (pkg_id, pkg_name, version, download_url)
			VALUES (?, ?, ?, 'https://example.com/pkg')`, p[0], p[1], p[2]); err != nil {
			t.Fatal(err)
		}
	}
	return db.RepoRef{Name: repo, Path: path}
}

func newResolver(t *testing.T, refs ...db.RepoRef) (*resolve.Resolver, *db.Core) {
	t.Helper()
	meta, err := db.NewManager(refs)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { meta.Close() })
	core, err := db.OpenCore(filepath.Join(t.TempDir(), "core.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { core.Close() })
	return &resolve.Resolver{Meta: meta, Core: core}, core
}

func TestResolveOne(t *testing.T) {
	dir := t.TempDir()
	r, _ := newResolver(t, catalog(t, dir, "repox", [3]string{"bin", "curl", "8.0.0"}))
	q, err := soar.ParseQuery("curl")
	if err != nil {
		t.Fatal(err)
	}
	cand, err := r.One(q, false)
	if err != nil {
		t.Fatal(err)
	}
	if cand.Remote.PkgName != "curl" || cand.Installed != nil {
		t.Errorf("candidate = %+v", cand)
	}
}

func TestResolveNotFound(t *testing.T) {
	dir := t.TempDir()
	r, _ := newResolver(t, catalog(t, dir, "repox"))
	q, _ := soar.ParseQuery("missing")
	if _, err := r.One(q, false); err == nil {
		t.Fatal("expected ErrPackageNotFound")
	} else if _, ok := err.(*soar.ErrPackageNotFound); !ok {
		t.Fatalf("got %T, want *ErrPackageNotFound", err)
	}
}

// Two repos advertising the same name: without pick-first an Ambiguous
// error carries every candidate; with it the first repo in registration
// order wins.
func TestResolveAmbiguity(t *testing.T) {
	dir := t.TempDir()
	r, _ := newResolver(t,
		catalog(t, dir, "alpha", [3]string{"bin", "firefox", "1"}),
		catalog(t, dir, "beta", [3]string{"bin", "firefox", "2"}),
	)
	q, _ := soar.ParseQuery("firefox")

	_, err := r.One(q, false)
	amb, ok := err.(*soar.AmbiguousError)
	if !ok {
		t.Fatalf("got %v (%T), want *AmbiguousError", err, err)
	}
	if len(amb.Candidates) != 2 {
		t.Fatalf("%d candidates, want 2", len(amb.Candidates))
	}

	cand, err := r.One(q, true)
	if err != nil {
		t.Fatal(err)
	}
	if cand.Remote.RepoName != "alpha" {
		t.Errorf("pick-first chose %s, want alpha", cand.Remote.RepoName)
	}
}

func TestResolveRepoScoped(t *testing.T) {
	dir := t.TempDir()
	r, _ := newResolver(t,
		catalog(t, dir, "alpha", [3]string{"bin", "firefox", "1"}),
		catalog(t, dir, "beta", [3]string{"bin", "firefox", "2"}),
	)
	q, _ := soar.ParseQuery("firefox:beta")
	cand, err := r.One(q, false)
	if err != nil {
		t.Fatal(err)
	}
	if cand.Remote.RepoName != "beta" || cand.Remote.Version != "2" {
		t.Errorf("candidate = %+v", cand.Remote)
	}
}

func TestResolveInstalledAnnotation(t *testing.T) {
	dir := t.TempDir()
	r, core := newResolver(t, catalog(t, dir, "repox", [3]string{"bin", "curl", "8.0.0"}))
	rec := &db.InstalledPackage{
		RepoName: "repox", PkgID: "bin", PkgName: "curl", Version: "7.9.0",
		InstalledPath: t.TempDir(), Profile: "default",
	}
	if _, err := core.Insert(rec); err != nil {
		t.Fatal(err)
	}
	if err := core.Commit(rec.ID, "x", 1); err != nil {
		t.Fatal(err)
	}
	q, _ := soar.ParseQuery("curl")
	cand, err := r.One(q, false)
	if err != nil {
		t.Fatal(err)
	}
	if cand.Installed == nil || cand.Installed.Version != "7.9.0" {
		t.Errorf("installed annotation missing: %+v", cand.Installed)
	}
}

func TestResolveInstalledAllVariants(t *testing.T) {
	dir := t.TempDir()
	r, core := newResolver(t, catalog(t, dir, "repox"))
	for _, id := range []string{"bin", "cargo"} {
		rec := &db.InstalledPackage{
			RepoName: "repox", PkgID: id, PkgName: "fd", Version: "1",
			InstalledPath: t.TempDir(), Profile: "default",
		}
		if _, err := core.Insert(rec); err != nil {
			t.Fatal(err)
		}
	}
	q, _ := soar.ParseQuery("fd#all")
	pkgs, err := r.Installed(q)
	if err != nil {
		t.Fatal(err)
	}
	if len(pkgs) != 2 {
		t.Errorf("got %d variants, want 2", len(pkgs))
	}
}
