package db

import (
	"database/sql"
	"strings"

	"golang.org/x/xerrors"
)

var nestMigrations = []string{
	`CREATE TABLE nests (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL UNIQUE,
		url TEXT NOT NULL
	);`,
}

// NestPrefix mirrors config.NestPrefix; stored names always carry it.
const NestPrefix = "nest-"

// Nests is the typed repository over the nests plane.
type Nests struct {
	conn *Conn
}

// OpenNests opens the nests database at path.
func OpenNests(path string) (*Nests, error) {
	conn, err := Open(path, nestMigrations)
	if err != nil {
		return nil, err
	}
	return &Nests{conn: conn}, nil
}

func (n *Nests) Close() error { return n.conn.Close() }

// Add records a nest. The surfaced name must not carry the prefix.
func (n *Nests) Add(name, url string) error {
	if strings.HasPrefix(name, NestPrefix) {
		return xerrors.Errorf("nest name %q must not carry the %s prefix", name, NestPrefix)
	}
	return n.conn.withTx(func(tx *sql.Tx) error {
		_, err := tx.Exec(`INSERT INTO nests (name, url) VALUES (?, ?)`, NestPrefix+name, url)
		return err
	})
}

// Remove deletes a nest by surfaced name.
func (n *Nests) Remove(name string) error {
	return n.conn.withTx(func(tx *sql.Tx) error {
		res, err := tx.Exec(`DELETE FROM nests WHERE name = ?`, NestPrefix+name)
		if err != nil {
			return err
		}
		if affected, _ := res.RowsAffected(); affected == 0 {
			return xerrors.Errorf("nest %q is not configured", name)
		}
		return nil
	})
}

// List returns every nest with the prefix stripped from Name.
func (n *Nests) List() ([]Nest, error) {
	var out []Nest
	err := n.conn.withLock(func(db *sql.DB) error {
		rows, err := db.Query(`SELECT id, name, url FROM nests ORDER BY name`)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var nest Nest
			if err := rows.Scan(&nest.ID, &nest.Name, &nest.URL); err != nil {
				return err
			}
			nest.Name = strings.TrimPrefix(nest.Name, NestPrefix)
			out = append(out, nest)
		}
		return rows.Err()
	})
	return out, err
}
