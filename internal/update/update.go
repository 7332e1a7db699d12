// Package update diffs installed packages against the metadata plane and
// reinstalls what changed; it also reconciles declared manifests (apply).
package update

import (
	"context"
	"log"
	"os"

	"golang.org/x/sync/errgroup"

	"github.com/pkgforge/soar/internal/db"
	"github.com/pkgforge/soar/internal/events"
	"github.com/pkgforge/soar/internal/fsutil"
	"github.com/pkgforge/soar/internal/install"
	"github.com/pkgforge/soar/internal/remove"
)

// Ctx is the update context.
type Ctx struct {
	Install *install.Ctx
	Remove  *remove.Ctx
	Core    *db.Core
	Meta    *db.Manager
	Bus     *events.Bus
}

// Outcome summarizes one package's update.
type Outcome struct {
	PkgName    string
	PkgID      string
	OldVersion string
	NewVersion string
	Err        error
}

// Check returns the outdated subset of installed packages, each mapped to
// its remote counterpart looked up by (repo_name, pkg_id, pkg_name).
func (c *Ctx) Check() (map[*db.InstalledPackage]*db.RemotePackage, error) {
	installed, err := c.Core.ListAll()
	if err != nil {
		return nil, err
	}
	out := make(map[*db.InstalledPackage]*db.RemotePackage)
	for _, p := range installed {
		if !p.IsInstalled || p.Pinned {
			continue
		}
		remotes, err := c.Meta.QueryRepo(p.RepoName, db.RemoteFilter{Name: p.PkgName, PkgID: p.PkgID})
		if err != nil {
			return nil, err
		}
		for _, rp := range remotes {
			status := "up-to-date"
			if rp.Version != p.Version {
				status = "outdated"
				out[p] = rp
			}
			c.Bus.Emit(events.Event{Kind: events.UpdateCheck, PkgName: p.PkgName, PkgID: p.PkgID, Stage: status})
			break
		}
	}
	return out, nil
}

// Run updates every outdated package (or the named subset), deleting old
// on-disk versions and purging their rows after a successful install.
func (c *Ctx) Run(ctx context.Context, only map[string]bool) ([]Outcome, error) {
	outdated, err := c.Check()
	if err != nil {
		return nil, err
	}
	var outcomes []Outcome
	var eg errgroup.Group
	results := make(chan Outcome, len(outdated))
	for p, rp := range outdated {
		if only != nil && !only[p.PkgName] {
			continue
		}
		p, rp := p, rp
		eg.Go(func() error {
			o := Outcome{PkgName: p.PkgName, PkgID: p.PkgID, OldVersion: p.Version, NewVersion: rp.Version}
			rec, err := c.Install.Install(ctx, rp)
			if err != nil {
				o.Err = err
				results <- o
				return nil
			}
			c.cleanupOld(rec)
			results <- o
			return nil
		})
	}
	eg.Wait()
	close(results)
	for o := range results {
		outcomes = append(outcomes, o)
	}
	return outcomes, nil
}

// cleanupOld deletes superseded on-disk versions that still exist and
// purges their rows.
func (c *Ctx) cleanupOld(kept *db.InstalledPackage) {
	opID := events.NextOperationID()
	deleted, err := c.Core.DeleteOldPackages(kept.ID, kept.PkgID, kept.PkgName, kept.RepoName)
	if err != nil {
		log.Printf("cleaning up old versions of %s: %v", kept.PkgName, err)
		return
	}
	for _, d := range deleted {
		c.Bus.Emit(events.Event{Kind: events.UpdateCleanup, OpID: opID, PkgName: d.PkgName, PkgID: d.PkgID, Message: d.Version})
		if d.InstalledPath == kept.InstalledPath {
			continue
		}
		if _, err := os.Stat(d.InstalledPath); err == nil {
			if err := fsutil.SafeRemove(d.InstalledPath); err != nil {
				log.Printf("removing old version at %s: %v", d.InstalledPath, err)
			}
		}
	}
}
