// Package swap flips the active variant among installed packages sharing
// one name.
package swap

import (
	"context"

	"golang.org/x/xerrors"

	"github.com/pkgforge/soar/internal/config"
	"github.com/pkgforge/soar/internal/db"
	"github.com/pkgforge/soar/internal/events"
	"github.com/pkgforge/soar/internal/format"
	"github.com/pkgforge/soar/internal/integrate"
	"github.com/pkgforge/soar/internal/lock"
)

// Ctx is the variant-switch context.
type Ctx struct {
	Config *config.Config
	Paths  config.Paths
	Core   *db.Core
	Bus    *events.Bus
}

// Variants lists the installed variants of a name, active first.
func (c *Ctx) Variants(pkgName string) ([]*db.InstalledPackage, error) {
	pkgs, err := c.Core.FindFiltered(db.Filter{Name: pkgName, Sort: "pkg_id"})
	if err != nil {
		return nil, err
	}
	var out []*db.InstalledPackage
	for _, p := range pkgs {
		if p.IsInstalled {
			out = append(out, p)
		}
	}
	for i, p := range out {
		if !p.Unlinked && i != 0 {
			out[0], out[i] = out[i], out[0]
			break
		}
	}
	return out, nil
}

// Use makes target the active variant of its name: one transaction flips
// the unlinked flags (exactly one active record survives any crash), then
// the bin symlinks and desktop integration are rebuilt outside it.
func (c *Ctx) Use(ctx context.Context, target *db.InstalledPackage) error {
	if !target.IsInstalled {
		return xerrors.Errorf("%s#%s is not fully installed", target.PkgName, target.PkgID)
	}
	opID := events.NextOperationID()
	lk, err := lock.Acquire(target.PkgName)
	if err != nil {
		return err
	}
	defer lk.Unlock()

	if err := c.Core.SwitchActive(target.PkgName, target.PkgID, target.Checksum); err != nil {
		return err
	}

	ft, err := format.DetectFile(target.InstalledPath + "/" + target.PkgName)
	if err != nil {
		ft = format.Unknown
	}
	portable, err := c.Core.Portable(target.ID)
	if err != nil {
		return err
	}
	in := &integrate.Integrator{Paths: c.Paths, Bus: c.Bus, Icons: c.Config.Icons}
	t := &integrate.Target{
		OpID:       opID,
		PkgName:    target.PkgName,
		PkgID:      target.PkgID,
		InstallDir: target.InstalledPath,
		BinaryPath: target.InstalledPath + "/" + target.PkgName,
		Format:     ft,
		Portable:   portable,
	}
	if err := in.IntegrateResources(ctx, t); err != nil {
		return err
	}
	if err := in.LinkBinaries(target.PkgName, target.InstalledPath, target.Provides); err != nil {
		return err
	}
	c.Bus.Emit(events.Event{Kind: events.OperationComplete, OpID: opID, PkgName: target.PkgName, PkgID: target.PkgID})
	return nil
}
