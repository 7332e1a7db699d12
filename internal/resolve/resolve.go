// Package resolve maps parsed package queries onto the metadata plane and
// the installed-state plane.
package resolve

import (
	soar "github.com/pkgforge/soar"
	"github.com/pkgforge/soar/internal/db"
)

// Candidate is one remote match, annotated with the matching installed
// record when one exists.
type Candidate struct {
	Remote    *db.RemotePackage
	Installed *db.InstalledPackage
}

// Resolver joins the two planes.
type Resolver struct {
	Meta *db.Manager
	Core *db.Core
}

// Remote resolves a query against the metadata plane. With a repo
// component only that repo is queried; the version is post-filtered by the
// db layer. Results arrive in repo-registration order.
func (r *Resolver) Remote(q *soar.Query) ([]Candidate, error) {
	f := db.RemoteFilter{Name: q.Name, Version: q.Version}
	if q.PkgID != "" && q.PkgID != "all" {
		f.PkgID = q.PkgID
	}
	var (
		remotes []*db.RemotePackage
		err     error
	)
	if q.RepoName != "" {
		remotes, err = r.Meta.QueryRepo(q.RepoName, f)
	} else {
		remotes, err = r.Meta.QueryAllFlat(f)
	}
	if err != nil {
		return nil, err
	}

	installed, err := r.Core.FindFiltered(db.Filter{Name: q.Name, PkgID: f.PkgID})
	if err != nil {
		return nil, err
	}
	byIdentity := make(map[[3]string]*db.InstalledPackage, len(installed))
	for _, p := range installed {
		byIdentity[[3]string{p.RepoName, p.PkgID, p.PkgName}] = p
	}

	out := make([]Candidate, 0, len(remotes))
	for _, rp := range remotes {
		out = append(out, Candidate{
			Remote:    rp,
			Installed: byIdentity[[3]string{rp.RepoName, rp.PkgID, rp.PkgName}],
		})
	}
	return out, nil
}

// One resolves a query to exactly one remote candidate. With several
// matches: pickFirst selects the first in repo-registration order,
// otherwise a soar.AmbiguousError carrying every candidate is returned
// for the CLI to turn into a prompt.
func (r *Resolver) One(q *soar.Query, pickFirst bool) (*Candidate, error) {
	cands, err := r.Remote(q)
	if err != nil {
		return nil, err
	}
	switch {
	case len(cands) == 0:
		return nil, &soar.ErrPackageNotFound{Query: q.String()}
	case len(cands) == 1 || pickFirst:
		return &cands[0], nil
	}
	pkgs := make([]soar.Package, len(cands))
	for i := range cands {
		pkgs[i] = cands[i].Remote
	}
	return nil, &soar.AmbiguousError{Query: q.String(), Candidates: pkgs}
}

// Installed resolves a query against the installed-state plane. `name#all`
// expands to every installed variant of the name.
func (r *Resolver) Installed(q *soar.Query) ([]*db.InstalledPackage, error) {
	f := db.Filter{Name: q.Name, Version: q.Version, RepoName: q.RepoName}
	if q.PkgID != "" && q.PkgID != "all" {
		f.PkgID = q.PkgID
	}
	pkgs, err := r.Core.FindFiltered(f)
	if err != nil {
		return nil, err
	}
	if len(pkgs) == 0 {
		return nil, &soar.ErrPackageNotFound{Query: q.String()}
	}
	return pkgs, nil
}
