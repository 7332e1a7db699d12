// Package health enumerates broken installs and orphaned symlinks and
// drives their cleanup.
package health

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkgforge/soar/internal/config"
	"github.com/pkgforge/soar/internal/db"
	"github.com/pkgforge/soar/internal/fsutil"
	"github.com/pkgforge/soar/internal/remove"
)

// Ctx is the health context.
type Ctx struct {
	Paths  config.Paths
	Core   *db.Core
	Remove *remove.Ctx
}

// Report is the health summary.
type Report struct {
	Broken         []*db.InstalledPackage
	BrokenSymlinks []string
}

// Counts returns the two totals.
func (r *Report) Counts() (brokenPackages, brokenSymlinks int) {
	return len(r.Broken), len(r.BrokenSymlinks)
}

// Check produces the full report: broken packages are records with
// is_installed = false or a missing installed_path; broken symlinks are
// dangling links under bin/ plus dangling -soar links under the desktop
// and icon directories.
func (c *Ctx) Check() (*Report, error) {
	broken, err := c.Core.ListBroken()
	if err != nil {
		return nil, err
	}
	r := &Report{Broken: broken}

	fsutil.WalkDir(c.Paths.Bin(), func(path string, d fs.DirEntry) error {
		if fsutil.IsBrokenSymlink(path) {
			r.BrokenSymlinks = append(r.BrokenSymlinks, path)
		}
		return nil
	})
	for _, dir := range []string{config.DesktopDir(), config.IconsDir()} {
		fsutil.WalkDir(dir, func(path string, d fs.DirEntry) error {
			if d.IsDir() {
				return nil
			}
			stem := strings.TrimSuffix(d.Name(), filepath.Ext(d.Name()))
			if strings.HasSuffix(stem, "-soar") && fsutil.IsBrokenSymlink(path) {
				r.BrokenSymlinks = append(r.BrokenSymlinks, path)
			}
			return nil
		})
	}
	return r, nil
}

// CleanBroken drives the remove engine for each broken package and
// returns how many were reaped.
func (c *Ctx) CleanBroken(ctx context.Context) (int, error) {
	report, err := c.Check()
	if err != nil {
		return 0, err
	}
	n := 0
	for _, p := range report.Broken {
		if _, err := c.Remove.Remove(ctx, p); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

// CleanBrokenSymlinks unlinks the dangling files directly.
func (c *Ctx) CleanBrokenSymlinks() (int, error) {
	report, err := c.Check()
	if err != nil {
		return 0, err
	}
	n := 0
	for _, link := range report.BrokenSymlinks {
		if err := os.Remove(link); err != nil && !os.IsNotExist(err) {
			return n, err
		}
		n++
	}
	return n, nil
}

// CleanCache empties the profile's cache directory.
func (c *Ctx) CleanCache() error {
	if err := fsutil.SafeRemove(c.Paths.Cache()); err != nil {
		return err
	}
	return os.MkdirAll(c.Paths.Cache(), 0755)
}
