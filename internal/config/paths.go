package config

import (
	"os"
	"path/filepath"
)

// Paths is the on-disk layout of one profile.
type Paths struct {
	Root string
}

func (p Paths) Bin() string          { return filepath.Join(p.Root, "bin") }
func (p Paths) DB() string           { return filepath.Join(p.Root, "db") }
func (p Paths) CoreDB() string       { return filepath.Join(p.Root, "db", "core.db") }
func (p Paths) NestsDB() string      { return filepath.Join(p.Root, "db", "nests.db") }
func (p Paths) Repos() string        { return filepath.Join(p.Root, "repos") }
func (p Paths) RepoDir(name string) string {
	return filepath.Join(p.Root, "repos", name)
}
func (p Paths) RepoDB(name string) string {
	return filepath.Join(p.Root, "repos", name, "metadata.db")
}
func (p Paths) Packages() string     { return filepath.Join(p.Root, "packages") }
func (p Paths) InstallDir(repo, pkgID, pkgName string) string {
	return filepath.Join(p.Root, "packages", repo, pkgID, pkgName)
}
func (p Paths) Cache() string        { return filepath.Join(p.Root, "cache") }
func (p Paths) RunCache() string     { return filepath.Join(p.Root, "cache", "bin") }
func (p Paths) PortableDirs() string { return filepath.Join(p.Root, "portable-dirs") }

// DataHome resolves $XDG_DATA_HOME with the standard fallback.
func DataHome() string {
	if d := os.Getenv("XDG_DATA_HOME"); d != "" {
		return d
	}
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".local", "share")
}

// DesktopDir is where integrated .desktop files are linked.
func DesktopDir() string { return filepath.Join(DataHome(), "applications") }

// IconsDir is the hicolor theme root for integrated icons.
func IconsDir() string { return filepath.Join(DataHome(), "icons", "hicolor") }

// RuntimeDir resolves $XDG_RUNTIME_DIR with a /tmp fallback; used for
// advisory locks.
func RuntimeDir() string {
	if d := os.Getenv("XDG_RUNTIME_DIR"); d != "" {
		return d
	}
	return "/tmp"
}
