package db

import (
	"database/sql"
	"fmt"
	"os"
	"strings"
	"time"
)

var coreMigrations = []string{
	`CREATE TABLE packages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		repo_name TEXT NOT NULL,
		pkg_id TEXT NOT NULL,
		pkg_name TEXT NOT NULL,
		pkg_type TEXT,
		version TEXT NOT NULL,
		size INTEGER NOT NULL DEFAULT 0,
		checksum TEXT,
		installed_path TEXT NOT NULL,
		installed_date TEXT NOT NULL DEFAULT '',
		profile TEXT NOT NULL,
		pinned INTEGER NOT NULL DEFAULT 0,
		is_installed INTEGER NOT NULL DEFAULT 0,
		with_pkg_id INTEGER NOT NULL DEFAULT 0,
		detached INTEGER NOT NULL DEFAULT 0,
		unlinked INTEGER NOT NULL DEFAULT 0,
		provides TEXT,
		install_patterns TEXT
	);
	CREATE TABLE portable_package (
		package_id INTEGER NOT NULL UNIQUE REFERENCES packages(id) ON DELETE CASCADE,
		portable_path TEXT,
		portable_home TEXT,
		portable_config TEXT,
		portable_share TEXT,
		portable_cache TEXT
	);
	CREATE INDEX idx_packages_name ON packages(pkg_name);
	CREATE INDEX idx_packages_identity ON packages(repo_name, pkg_id, pkg_name);`,
}

// Core is the typed repository over the core plane.
type Core struct {
	conn *Conn
}

// OpenCore opens the core database at path.
func OpenCore(path string) (*Core, error) {
	conn, err := Open(path, coreMigrations)
	if err != nil {
		return nil, err
	}
	return &Core{conn: conn}, nil
}

func (c *Core) Close() error { return c.conn.Close() }

const installedCols = `id, repo_name, pkg_id, pkg_name, COALESCE(pkg_type, ''), version, size,
	COALESCE(checksum, ''), installed_path, installed_date, profile, pinned, is_installed,
	with_pkg_id, detached, unlinked, COALESCE(provides, ''), COALESCE(install_patterns, '')`

func scanInstalled(rows *sql.Rows) (*InstalledPackage, error) {
	var p InstalledPackage
	var provides, patterns []byte
	if err := rows.Scan(&p.ID, &p.RepoName, &p.PkgID, &p.PkgName, &p.PkgType, &p.Version,
		&p.Size, &p.Checksum, &p.InstalledPath, &p.InstalledDate, &p.Profile, &p.Pinned,
		&p.IsInstalled, &p.WithPkgID, &p.Detached, &p.Unlinked, &provides, &patterns); err != nil {
		return nil, err
	}
	p.Provides = unmarshalProvides(provides)
	p.InstallPatterns = unmarshalStrings(patterns)
	return &p, nil
}

// Filter narrows core-plane queries. Zero values are ignored.
type Filter struct {
	Name     string
	PkgID    string
	Version  string
	RepoName string
	Limit    int
	Sort     string // column name, optionally suffixed " desc"
}

func (f Filter) where() (string, []interface{}) {
	var conds []string
	var args []interface{}
	if f.Name != "" {
		conds = append(conds, "pkg_name = ?")
		args = append(args, f.Name)
	}
	if f.PkgID != "" && f.PkgID != "all" {
		conds = append(conds, "pkg_id = ?")
		args = append(args, f.PkgID)
	}
	if f.Version != "" {
		conds = append(conds, "version = ?")
		args = append(args, f.Version)
	}
	if f.RepoName != "" {
		conds = append(conds, "repo_name = ?")
		args = append(args, f.RepoName)
	}
	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

var sortCols = map[string]bool{
	"pkg_name": true, "pkg_id": true, "version": true,
	"repo_name": true, "installed_date": true, "size": true,
}

func (f Filter) tail() string {
	var sb strings.Builder
	if f.Sort != "" {
		col, dir, _ := strings.Cut(f.Sort, " ")
		if sortCols[col] {
			sb.WriteString(" ORDER BY " + col)
			if strings.EqualFold(dir, "desc") {
				sb.WriteString(" DESC")
			}
		}
	}
	if f.Limit > 0 {
		fmt.Fprintf(&sb, " LIMIT %d", f.Limit)
	}
	return sb.String()
}

// FindFiltered returns installed rows matching the filter.
func (c *Core) FindFiltered(f Filter) ([]*InstalledPackage, error) {
	where, args := f.where()
	var out []*InstalledPackage
	err := c.conn.withLock(func(db *sql.DB) error {
		rows, err := db.Query("SELECT "+installedCols+" FROM packages"+where+f.tail(), args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			p, err := scanInstalled(rows)
			if err != nil {
				return err
			}
			out = append(out, p)
		}
		return rows.Err()
	})
	return out, err
}

// ListAll returns every installed row.
func (c *Core) ListAll() ([]*InstalledPackage, error) {
	return c.FindFiltered(Filter{Sort: "pkg_name"})
}

// ListBroken returns rows with is_installed = false or whose
// installed_path no longer exists.
func (c *Core) ListBroken() ([]*InstalledPackage, error) {
	all, err := c.ListAll()
	if err != nil {
		return nil, err
	}
	var out []*InstalledPackage
	for _, p := range all {
		if !p.IsInstalled {
			out = append(out, p)
			continue
		}
		if _, err := os.Stat(p.InstalledPath); err != nil {
			out = append(out, p)
		}
	}
	return out, nil
}

// Insert records a planned install (is_installed = false) and returns the
// row id.
func (c *Core) Insert(p *InstalledPackage) (int64, error) {
	var id int64
	err := c.conn.withTx(func(tx *sql.Tx) error {
		res, err := tx.Exec(`INSERT INTO packages
			(repo_name, pkg_id, pkg_name, pkg_type, version, size, checksum, installed_path,
			 installed_date, profile, pinned, is_installed, with_pkg_id, detached, unlinked,
			 provides, install_patterns)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			p.RepoName, p.PkgID, p.PkgName, nullable(p.PkgType), p.Version, p.Size,
			nullable(p.Checksum), p.InstalledPath, p.InstalledDate, p.Profile,
			p.Pinned, p.IsInstalled, p.WithPkgID, p.Detached, p.Unlinked,
			marshalJSON(p.Provides), marshalJSON(p.InstallPatterns))
		if err != nil {
			return err
		}
		id, err = res.LastInsertId()
		return err
	})
	if err == nil {
		p.ID = id
	}
	return id, err
}

// Commit flips the record to installed in one transaction: checksum, size,
// installed_date and is_installed are written together.
func (c *Core) Commit(id int64, checksum string, size int64) error {
	return c.conn.withTx(func(tx *sql.Tx) error {
		_, err := tx.Exec(`UPDATE packages SET checksum = ?, size = ?, is_installed = 1,
			installed_date = ? WHERE id = ?`,
			checksum, size, time.Now().Format(time.RFC3339), id)
		return err
	})
}

// UpsertPortable writes the 1:1 portable-directory sibling row.
func (c *Core) UpsertPortable(pp *PortablePackage) error {
	return c.conn.withTx(func(tx *sql.Tx) error {
		_, err := tx.Exec(`INSERT INTO portable_package
			(package_id, portable_path, portable_home, portable_config, portable_share, portable_cache)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(package_id) DO UPDATE SET
				portable_path = excluded.portable_path,
				portable_home = excluded.portable_home,
				portable_config = excluded.portable_config,
				portable_share = excluded.portable_share,
				portable_cache = excluded.portable_cache`,
			pp.PackageID, nullable(pp.PortablePath), nullable(pp.PortableHome),
			nullable(pp.PortableConfig), nullable(pp.PortableShare), nullable(pp.PortableCache))
		return err
	})
}

// Portable returns the sibling row for a package, or nil.
func (c *Core) Portable(packageID int64) (*PortablePackage, error) {
	var pp PortablePackage
	err := c.conn.withLock(func(db *sql.DB) error {
		row := db.QueryRow(`SELECT package_id, COALESCE(portable_path, ''), COALESCE(portable_home, ''),
			COALESCE(portable_config, ''), COALESCE(portable_share, ''), COALESCE(portable_cache, '')
			FROM portable_package WHERE package_id = ?`, packageID)
		return row.Scan(&pp.PackageID, &pp.PortablePath, &pp.PortableHome,
			&pp.PortableConfig, &pp.PortableShare, &pp.PortableCache)
	})
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &pp, nil
}

// SwitchActive atomically makes the variant with the given checksum the
// only linked record of (pkg_name): unlink every other variant, link the
// target.
func (c *Core) SwitchActive(pkgName, pkgID, checksum string) error {
	return c.conn.withTx(func(tx *sql.Tx) error {
		if _, err := tx.Exec(`UPDATE packages SET unlinked = 1
			WHERE pkg_name = ? AND NOT (pkg_id = ? AND checksum = ?)`,
			pkgName, pkgID, checksum); err != nil {
			return err
		}
		_, err := tx.Exec(`UPDATE packages SET unlinked = 0
			WHERE pkg_name = ? AND pkg_id = ? AND checksum = ?`,
			pkgName, pkgID, checksum)
		return err
	})
}

// DeletePackage purges a record and its portable sibling in one
// transaction.
func (c *Core) DeletePackage(id int64) error {
	return c.conn.withTx(func(tx *sql.Tx) error {
		if _, err := tx.Exec(`DELETE FROM portable_package WHERE package_id = ?`, id); err != nil {
			return err
		}
		_, err := tx.Exec(`DELETE FROM packages WHERE id = ?`, id)
		return err
	})
}

// DeleteOldPackages purges every record of the identity except the one
// with the given id.
func (c *Core) DeleteOldPackages(keepID int64, pkgID, pkgName, repoName string) ([]*InstalledPackage, error) {
	old, err := c.FindFiltered(Filter{Name: pkgName, PkgID: pkgID, RepoName: repoName})
	if err != nil {
		return nil, err
	}
	var deleted []*InstalledPackage
	for _, p := range old {
		if p.ID == keepID {
			continue
		}
		if err := c.DeletePackage(p.ID); err != nil {
			return deleted, err
		}
		deleted = append(deleted, p)
	}
	return deleted, nil
}

// SetPinned toggles the pin flag.
func (c *Core) SetPinned(id int64, pinned bool) error {
	return c.conn.withTx(func(tx *sql.Tx) error {
		_, err := tx.Exec(`UPDATE packages SET pinned = ? WHERE id = ?`, pinned, id)
		return err
	})
}

func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
