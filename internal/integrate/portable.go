package integrate

import (
	"os"
	"path/filepath"

	"github.com/pkgforge/soar/internal/db"
	"github.com/pkgforge/soar/internal/format"
)

// setupPortable creates the sidecar directories that isolate a package's
// runtime state. An empty override means "co-locate next to the install
// directory"; a non-empty value means "create there and symlink".
func (in *Integrator) setupPortable(t *Target) error {
	pp := t.Portable
	if pp == nil {
		pp = &db.PortablePackage{}
	}

	if t.Format == format.Wrappe {
		// Wrappe keeps its data in a single hidden sidecar.
		real := filepath.Join(t.InstallDir, "."+t.PkgName+".wrappe")
		return portableDir(real, pp.PortablePath, t.PkgName, "wrappe")
	}

	home, cfg, share, cache := pp.PortableHome, pp.PortableConfig, pp.PortableShare, pp.PortableCache
	if pp.PortablePath != "" {
		home, cfg, share, cache = pp.PortablePath, pp.PortablePath, pp.PortablePath, pp.PortablePath
	}
	for _, d := range []struct {
		ext    string
		target string
	}{
		{"home", home},
		{"config", cfg},
		{"share", share},
		{"cache", cache},
	} {
		sidecar := filepath.Join(t.InstallDir, t.PkgName+"."+d.ext)
		if err := portableDir(sidecar, d.target, t.PkgName, d.ext); err != nil {
			return err
		}
	}
	return nil
}

// portableDir materializes one sidecar: in place when target is empty,
// else at target with a symlink back.
func portableDir(sidecar, target, pkgName, ext string) error {
	if target == "" {
		if err := os.MkdirAll(sidecar, 0755); err != nil {
			return err
		}
		return nil
	}
	real := filepath.Join(target, pkgName+"."+ext)
	if err := os.MkdirAll(real, 0755); err != nil {
		return err
	}
	return atomicLink(real, sidecar)
}
