package db

import (
	"database/sql"
	"strings"
)

// jsonbCols are the metadata columns that may arrive as JSON text and are
// converted to binary JSONB on first open.
var jsonbCols = []string{
	"licenses", "homepages", "notes", "source_urls", "tags", "categories",
	"provides", "snapshots", "replaces",
}

// Metadata is the typed repository over one repository's catalog.
type Metadata struct {
	repoName string
	conn     *Conn
}

// OpenMetadata opens a synced catalog. The schema is externally authored;
// only the JSON-to-JSONB conversion runs here.
func OpenMetadata(repoName, path string) (*Metadata, error) {
	conn, err := OpenExisting(path)
	if err != nil {
		return nil, err
	}
	m := &Metadata{repoName: repoName, conn: conn}
	if err := m.migrateJSONB(); err != nil {
		conn.Close()
		return nil, err
	}
	return m, nil
}

func (m *Metadata) Close() error    { return m.conn.Close() }
func (m *Metadata) RepoName() string { return m.repoName }

// migrateJSONB rewrites text JSON columns as JSONB. Columns missing from
// an older catalog are skipped.
func (m *Metadata) migrateJSONB() error {
	return m.conn.withLock(func(db *sql.DB) error {
		for _, col := range jsonbCols {
			_, err := db.Exec(`UPDATE packages SET ` + col + ` = jsonb(` + col + `)
				WHERE ` + col + ` IS NOT NULL AND json_valid(` + col + `)`)
			if err != nil {
				if strings.Contains(err.Error(), "no such column") {
					continue
				}
				return err
			}
		}
		return nil
	})
}

const remoteCols = `pkg_id, pkg_name, COALESCE(pkg, ''), COALESCE(pkg_type, ''), COALESCE(app_id, ''),
	COALESCE(description, ''), version, download_url, COALESCE(size, 0), COALESCE(checksum, ''),
	COALESCE(ghcr_pkg, ''), COALESCE(ghcr_size, 0), COALESCE(ghcr_blob, ''), COALESCE(ghcr_url, ''),
	COALESCE(icon, ''), COALESCE(desktop, ''), COALESCE(appstream, ''),
	COALESCE(json(homepages), ''), COALESCE(json(notes), ''), COALESCE(json(source_urls), ''),
	COALESCE(json(tags), ''), COALESCE(json(categories), ''), COALESCE(json(licenses), ''),
	COALESCE(json(provides), ''), COALESCE(json(snapshots), ''), COALESCE(json(replaces), ''),
	COALESCE(build_id, ''), COALESCE(build_date, ''), COALESCE(build_action, ''),
	COALESCE(build_script, ''), COALESCE(build_log, ''),
	COALESCE(soar_syms, 0), COALESCE(deprecated, 0), COALESCE(desktop_integration, 0),
	COALESCE(portable, 0), COALESCE(recurse_provides, 0)`

func (m *Metadata) scanRemote(rows *sql.Rows) (*RemotePackage, error) {
	p := RemotePackage{RepoName: m.repoName}
	var homepages, notes, sourceURLs, tags, categories, licenses, provides, snapshots, replaces []byte
	if err := rows.Scan(&p.PkgID, &p.PkgName, &p.Pkg, &p.PkgType, &p.AppID,
		&p.Description, &p.Version, &p.DownloadURL, &p.Size, &p.Bsum,
		&p.GhcrPkg, &p.GhcrSize, &p.GhcrBlob, &p.GhcrURL,
		&p.Icon, &p.Desktop, &p.Appstream,
		&homepages, &notes, &sourceURLs, &tags, &categories, &licenses,
		&provides, &snapshots, &replaces,
		&p.BuildID, &p.BuildDate, &p.BuildAction, &p.BuildScript, &p.BuildLog,
		&p.SoarSyms, &p.Deprecated, &p.DesktopIntegration, &p.Portable, &p.RecurseProvides); err != nil {
		return nil, err
	}
	p.Homepages = unmarshalStrings(homepages)
	p.Notes = unmarshalStrings(notes)
	p.SourceURLs = unmarshalStrings(sourceURLs)
	p.Tags = unmarshalStrings(tags)
	p.Categories = unmarshalStrings(categories)
	p.Licenses = unmarshalStrings(licenses)
	p.Provides = unmarshalProvides(provides)
	p.Snapshots = unmarshalStrings(snapshots)
	p.Replaces = unmarshalStrings(replaces)
	return &p, nil
}

// RemoteFilter narrows metadata queries. Zero values are ignored. Search
// matches pkg_name and description with LIKE.
type RemoteFilter struct {
	Name    string
	PkgID   string
	Version string
	Search  string
	Limit   int
}

// FindFiltered returns catalog rows matching the filter.
func (m *Metadata) FindFiltered(f RemoteFilter) ([]*RemotePackage, error) {
	var conds []string
	var args []interface{}
	if f.Name != "" {
		conds = append(conds, "pkg_name = ?")
		args = append(args, f.Name)
	}
	if f.PkgID != "" {
		conds = append(conds, "pkg_id = ?")
		args = append(args, f.PkgID)
	}
	if f.Version != "" {
		conds = append(conds, "version = ?")
		args = append(args, f.Version)
	}
	if f.Search != "" {
		conds = append(conds, "(pkg_name LIKE ? OR description LIKE ?)")
		pat := "%" + f.Search + "%"
		args = append(args, pat, pat)
	}
	q := "SELECT " + remoteCols + " FROM packages"
	if len(conds) > 0 {
		q += " WHERE " + strings.Join(conds, " AND ")
	}
	q += " ORDER BY pkg_name, pkg_id"
	if f.Limit > 0 {
		q += " LIMIT ?"
		args = append(args, f.Limit)
	}
	var out []*RemotePackage
	err := m.conn.withLock(func(db *sql.DB) error {
		rows, err := db.Query(q, args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			p, err := m.scanRemote(rows)
			if err != nil {
				return err
			}
			out = append(out, p)
		}
		return rows.Err()
	})
	return out, err
}

// PackageCount returns the number of catalog rows.
func (m *Metadata) PackageCount() (int, error) {
	var n int
	err := m.conn.withLock(func(db *sql.DB) error {
		return db.QueryRow(`SELECT COUNT(*) FROM packages`).Scan(&n)
	})
	return n, err
}

// ETag returns the catalog's stored validator, "" when none.
func (m *Metadata) ETag() (string, error) {
	var etag string
	err := m.conn.withLock(func(db *sql.DB) error {
		row := db.QueryRow(`SELECT etag FROM repository LIMIT 1`)
		err := row.Scan(&etag)
		if err == sql.ErrNoRows {
			return nil
		}
		if err != nil && strings.Contains(err.Error(), "no such table") {
			return nil
		}
		return err
	})
	return etag, err
}

// SetETag records the validator of the bytes that produced this catalog.
// The repository table holds at most one row.
func (m *Metadata) SetETag(etag string) error {
	return m.conn.withTx(func(tx *sql.Tx) error {
		if _, err := tx.Exec(`CREATE TABLE IF NOT EXISTS repository (name TEXT NOT NULL, etag TEXT NOT NULL)`); err != nil {
			return err
		}
		if _, err := tx.Exec(`DELETE FROM repository`); err != nil {
			return err
		}
		_, err := tx.Exec(`INSERT INTO repository (name, etag) VALUES (?, ?)`, m.repoName, etag)
		return err
	})
}

// Maintainers returns the maintainer contacts for a package, joined
// through package_maintainers when the catalog carries those tables.
func (m *Metadata) Maintainers(pkgID, pkgName string) ([]string, error) {
	var out []string
	err := m.conn.withLock(func(db *sql.DB) error {
		rows, err := db.Query(`SELECT m.name || ' (' || m.contact || ')'
			FROM maintainers m
			JOIN package_maintainers pm ON pm.maintainer_id = m.id
			JOIN packages p ON p.id = pm.package_id
			WHERE p.pkg_id = ? AND p.pkg_name = ?`, pkgID, pkgName)
		if err != nil {
			if strings.Contains(err.Error(), "no such table") {
				return nil
			}
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var s string
			if err := rows.Scan(&s); err != nil {
				return err
			}
			out = append(out, s)
		}
		return rows.Err()
	})
	return out, err
}
