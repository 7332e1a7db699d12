// Package remove unwires installed packages: hooks, symlinks, install
// tree, database rows.
package remove

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkgforge/soar/internal/config"
	"github.com/pkgforge/soar/internal/db"
	"github.com/pkgforge/soar/internal/events"
	"github.com/pkgforge/soar/internal/fsutil"
	"github.com/pkgforge/soar/internal/install"
	"github.com/pkgforge/soar/internal/lock"
)

// Ctx is the remove context.
type Ctx struct {
	Config *config.Config
	Paths  config.Paths
	Core   *db.Core
	Bus    *events.Bus
}

// Remove unwires one installed record. Symlinks are only touched when the
// record committed (is_installed = true), so a partial install can never
// unlink another variant's files. The install tree and the rows go
// regardless.
func (c *Ctx) Remove(ctx context.Context, p *db.InstalledPackage) (int64, error) {
	opID := events.NextOperationID()
	lk, err := lock.Acquire(p.RepoName + "-" + p.PkgID + "-" + p.PkgName)
	if err != nil {
		return 0, err
	}
	defer lk.Unlock()

	if hooks, ok := c.Config.Hooks[p.PkgName]; ok && hooks.PreRemove != "" {
		c.Bus.Emit(events.Event{Kind: events.Removing, OpID: opID, PkgName: p.PkgName, PkgID: p.PkgID, Stage: "pre_remove"})
		if err := install.RunHook(ctx, "pre_remove", hooks.PreRemove, hooks.Sandbox, install.HookEnv{
			InstallDir: p.InstalledPath,
			BinDir:     c.Paths.Bin(),
			PkgName:    p.PkgName,
			PkgID:      p.PkgID,
			PkgVersion: p.Version,
		}); err != nil {
			return 0, err
		}
	}

	if p.IsInstalled {
		c.Bus.Emit(events.Event{Kind: events.Removing, OpID: opID, PkgName: p.PkgName, PkgID: p.PkgID, Stage: events.StageUnlinkingBinaries})
		c.unlinkBinaries(p)
		c.Bus.Emit(events.Event{Kind: events.Removing, OpID: opID, PkgName: p.PkgName, PkgID: p.PkgID, Stage: events.StageUnlinkingDesktop})
		unlinkResolvingInto(config.DesktopDir(), p.InstalledPath)
		c.Bus.Emit(events.Event{Kind: events.Removing, OpID: opID, PkgName: p.PkgName, PkgID: p.PkgID, Stage: events.StageUnlinkingIcons})
		unlinkResolvingInto(config.IconsDir(), p.InstalledPath)
	}

	sizeFreed := fsutil.DirSize(p.InstalledPath)
	c.Bus.Emit(events.Event{Kind: events.Removing, OpID: opID, PkgName: p.PkgName, PkgID: p.PkgID, Stage: events.StageRemovingDirectory})
	if err := fsutil.SafeRemove(p.InstalledPath); err != nil {
		return 0, err
	}

	c.Bus.Emit(events.Event{Kind: events.Removing, OpID: opID, PkgName: p.PkgName, PkgID: p.PkgID, Stage: events.StageCleaningDatabase})
	if err := c.Core.DeletePackage(p.ID); err != nil {
		return 0, err
	}

	c.Bus.Emit(events.Event{Kind: events.Removing, OpID: opID, PkgName: p.PkgName, PkgID: p.PkgID, Stage: events.StageComplete, Total: uint64(sizeFreed)})
	c.Bus.Emit(events.Event{Kind: events.OperationComplete, OpID: opID, PkgName: p.PkgName, PkgID: p.PkgID})
	return sizeFreed, nil
}

// unlinkBinaries deletes the primary bin symlink and every provide
// symlink, each only when it points into this install.
func (c *Ctx) unlinkBinaries(p *db.InstalledPackage) {
	names := []string{p.PkgName}
	for _, pr := range p.Provides {
		if n := pr.LinkName(); n != "" {
			names = append(names, n)
		} else if pr.SymlinkToBin {
			names = append(names, pr.Name)
		}
	}
	for _, name := range names {
		link := filepath.Join(c.Paths.Bin(), name)
		if fsutil.ResolvesInto(link, p.InstalledPath) {
			os.Remove(link)
		}
	}
}

// unlinkResolvingInto walks dir and deletes -soar symlinks whose readlink
// resolves into installDir.
func unlinkResolvingInto(dir, installDir string) {
	fsutil.WalkDir(dir, func(path string, d os.DirEntry) error {
		if d.IsDir() {
			return nil
		}
		stem := strings.TrimSuffix(d.Name(), filepath.Ext(d.Name()))
		if !strings.HasSuffix(stem, "-soar") {
			return nil
		}
		if fsutil.ResolvesInto(path, installDir) {
			os.Remove(path)
		}
		return nil
	})
}
