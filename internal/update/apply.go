package update

import (
	"context"
	"os"

	"golang.org/x/xerrors"
	"gopkg.in/yaml.v3"

	soar "github.com/pkgforge/soar"
	"github.com/pkgforge/soar/internal/db"
)

// ManifestEntry is one declared package in an apply manifest.
type ManifestEntry struct {
	Name    string `yaml:"name"`
	PkgID   string `yaml:"pkg_id,omitempty"`
	Version string `yaml:"version,omitempty"`
	Repo    string `yaml:"repo,omitempty"`
}

// Ref implements soar.Package.
func (e ManifestEntry) Ref() soar.PackageRef {
	return soar.PackageRef{Name: e.Name, ID: e.PkgID, Version: e.Version, Repo: e.Repo}
}

// Manifest is a declared package set.
type Manifest struct {
	Packages []ManifestEntry `yaml:"packages"`
}

// LoadManifest reads a YAML manifest.
func LoadManifest(path string) (*Manifest, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var m Manifest
	if err := yaml.Unmarshal(b, &m); err != nil {
		return nil, xerrors.Errorf("parsing manifest %s: %w", path, err)
	}
	return &m, nil
}

// Plan buckets the manifest against installed state.
type Plan struct {
	ToInstall []ManifestEntry
	ToUpdate  []ManifestEntry
	ToRemove  []*db.InstalledPackage
	InSync    []ManifestEntry
	NotFound  []ManifestEntry
}

// ApplyReport carries per-bucket counts and failures.
type ApplyReport struct {
	Installed int
	Updated   int
	Removed   int
	InSync    int
	NotFound  []string
	Failures  []Outcome
}

// PlanApply computes the reconciliation plan. With prune, installed
// packages absent from the manifest land in ToRemove.
func (c *Ctx) PlanApply(m *Manifest, prune bool) (*Plan, error) {
	installed, err := c.Core.ListAll()
	if err != nil {
		return nil, err
	}
	byName := make(map[string]*db.InstalledPackage)
	for _, p := range installed {
		if p.IsInstalled && !p.Unlinked {
			byName[p.PkgName] = p
		}
	}

	plan := &Plan{}
	declared := make(map[string]bool)
	for _, e := range m.Packages {
		declared[e.Name] = true
		f := db.RemoteFilter{Name: e.Name, PkgID: e.PkgID, Version: e.Version}
		var found *db.RemotePackage
		if e.Repo != "" {
			pkgs, err := c.Meta.QueryRepo(e.Repo, f)
			if err != nil {
				return nil, err
			}
			if len(pkgs) > 0 {
				found = pkgs[0]
			}
		} else {
			found, err = c.Meta.FindFirst(f)
			if err != nil {
				return nil, err
			}
		}
		if found == nil {
			plan.NotFound = append(plan.NotFound, e)
			continue
		}
		cur, ok := byName[e.Name]
		switch {
		case !ok:
			plan.ToInstall = append(plan.ToInstall, e)
		case e.Version != "" && cur.Version != e.Version,
			e.Version == "" && cur.Version != found.Version:
			plan.ToUpdate = append(plan.ToUpdate, e)
		default:
			plan.InSync = append(plan.InSync, e)
		}
	}
	if prune {
		for name, p := range byName {
			if !declared[name] {
				plan.ToRemove = append(plan.ToRemove, p)
			}
		}
	}
	return plan, nil
}

// Apply executes the plan: install, update, remove, in that order.
func (c *Ctx) Apply(ctx context.Context, m *Manifest, prune bool) (*ApplyReport, error) {
	plan, err := c.PlanApply(m, prune)
	if err != nil {
		return nil, err
	}
	report := &ApplyReport{InSync: len(plan.InSync)}
	for _, e := range plan.NotFound {
		report.NotFound = append(report.NotFound, e.Ref().Name)
	}

	mutate := func(entries []ManifestEntry, update bool) {
		for _, e := range entries {
			q := soar.Query{Name: e.Name, PkgID: e.PkgID, Version: e.Version, RepoName: e.Repo}
			results := c.Install.Packages(ctx, []string{q.String()})
			for _, r := range results {
				if r.Err != nil {
					report.Failures = append(report.Failures, Outcome{PkgName: e.Name, PkgID: e.PkgID, Err: r.Err})
					continue
				}
				if update {
					report.Updated++
					c.cleanupOld(r.Pkg)
				} else {
					report.Installed++
				}
			}
		}
	}
	mutate(plan.ToInstall, false)
	mutate(plan.ToUpdate, true)

	for _, p := range plan.ToRemove {
		if _, err := c.Remove.Remove(ctx, p); err != nil {
			report.Failures = append(report.Failures, Outcome{PkgName: p.PkgName, PkgID: p.PkgID, Err: err})
			continue
		}
		report.Removed++
	}
	return report, nil
}

// RewritePins rewrites the manifest's declared version pins to the
// versions now installed. Entries without a pin stay unpinned.
func (c *Ctx) RewritePins(path string, m *Manifest) error {
	installed, err := c.Core.ListAll()
	if err != nil {
		return err
	}
	byName := make(map[string]string)
	for _, p := range installed {
		if p.IsInstalled && !p.Unlinked {
			byName[p.PkgName] = p.Version
		}
	}
	changed := false
	for i := range m.Packages {
		e := &m.Packages[i]
		if e.Version == "" {
			continue
		}
		if v, ok := byName[e.Name]; ok && v != e.Version {
			e.Version = v
			changed = true
		}
	}
	if !changed {
		return nil
	}
	b, err := yaml.Marshal(m)
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0644)
}
