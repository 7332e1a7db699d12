package main

import (
	"context"
	"log"

	"github.com/pkgforge/soar/internal/config"
	"github.com/pkgforge/soar/internal/db"
	"github.com/pkgforge/soar/internal/events"
	"github.com/pkgforge/soar/internal/fsutil"
	"github.com/pkgforge/soar/internal/health"
	installpkg "github.com/pkgforge/soar/internal/install"
	removepkg "github.com/pkgforge/soar/internal/remove"
	"github.com/pkgforge/soar/internal/resolve"
	"github.com/pkgforge/soar/internal/swap"
	syncer "github.com/pkgforge/soar/internal/sync"
	"github.com/pkgforge/soar/internal/update"
)

// app bundles the per-invocation handles every verb needs.
type app struct {
	cfg      *config.Config
	paths    config.Paths
	profile  string
	core     *db.Core
	nests    *db.Nests
	meta     *db.Manager
	bus      *events.Bus
	resolver *resolve.Resolver
}

func newApp() (*app, error) {
	cfg, err := config.Load(*configFlag)
	if err != nil {
		return nil, err
	}
	profile := *profileFlag
	if profile == "" {
		profile = cfg.DefaultProfile
	}
	root, err := cfg.ProfileRoot(profile)
	if err != nil {
		return nil, err
	}
	paths := config.Paths{Root: root}
	for _, dir := range []string{paths.Bin(), paths.DB(), paths.Repos(), paths.Packages(), paths.Cache()} {
		if err := fsutil.EnsureDir(dir); err != nil {
			return nil, err
		}
	}

	core, err := db.OpenCore(paths.CoreDB())
	if err != nil {
		return nil, err
	}
	nests, err := db.OpenNests(paths.NestsDB())
	if err != nil {
		core.Close()
		return nil, err
	}

	repos, err := allRepos(cfg, nests, paths)
	if err != nil {
		core.Close()
		nests.Close()
		return nil, err
	}
	var refs []db.RepoRef
	for _, r := range repos {
		refs = append(refs, db.RepoRef{Name: r.Name, Path: paths.RepoDB(r.Name)})
	}
	meta, err := db.NewManager(refs)
	if err != nil {
		core.Close()
		nests.Close()
		return nil, err
	}

	a := &app{
		cfg:     cfg,
		paths:   paths,
		profile: profile,
		core:    core,
		nests:   nests,
		meta:    meta,
		bus:     events.NewBus(newSink()),
	}
	a.resolver = &resolve.Resolver{Meta: meta, Core: core}
	return a, nil
}

func (a *app) Close() {
	a.meta.Close()
	a.nests.Close()
	a.core.Close()
}

// allRepos is the enabled configured repositories plus every nest, in
// registration order.
func allRepos(cfg *config.Config, nests *db.Nests, paths config.Paths) ([]config.Repository, error) {
	var repos []config.Repository
	for _, r := range cfg.Repositories {
		if r.IsEnabled() {
			repos = append(repos, r)
		}
	}
	nn, err := nests.List()
	if err != nil {
		return nil, err
	}
	for _, n := range nn {
		repos = append(repos, config.Repository{
			Name: db.NestPrefix + n.Name,
			URL:  n.URL,
		})
	}
	return repos, nil
}

func (a *app) installCtx() *installpkg.Ctx {
	return &installpkg.Ctx{
		Config:   a.cfg,
		Paths:    a.paths,
		Core:     a.core,
		Meta:     a.meta,
		Bus:      a.bus,
		Resolver: a.resolver,
		Yes:      *yes,
		Profile:  a.profile,
	}
}

func (a *app) removeCtx() *removepkg.Ctx {
	return &removepkg.Ctx{Config: a.cfg, Paths: a.paths, Core: a.core, Bus: a.bus}
}

func (a *app) swapCtx() *swap.Ctx {
	return &swap.Ctx{Config: a.cfg, Paths: a.paths, Core: a.core, Bus: a.bus}
}

func (a *app) updateCtx() *update.Ctx {
	return &update.Ctx{
		Install: a.installCtx(),
		Remove:  a.removeCtx(),
		Core:    a.core,
		Meta:    a.meta,
		Bus:     a.bus,
	}
}

func (a *app) healthCtx() *health.Ctx {
	return &health.Ctx{Paths: a.paths, Core: a.core, Remove: a.removeCtx()}
}

func (a *app) syncer() *syncer.Syncer {
	return &syncer.Syncer{Paths: a.paths, Bus: a.bus}
}

// syncIfStale synchronizes catalogs that are past their interval before a
// read operation; failures degrade to a warning.
func (a *app) syncIfStale(ctx context.Context) {
	repos, err := allRepos(a.cfg, a.nests, a.paths)
	if err != nil {
		log.Printf("warning: %v", err)
		return
	}
	if err := a.syncer().All(ctx, repos, false); err != nil {
		log.Printf("warning: %v", err)
	}
	// Reopen catalogs that appeared during the sync.
	var refs []db.RepoRef
	for _, r := range repos {
		refs = append(refs, db.RepoRef{Name: r.Name, Path: a.paths.RepoDB(r.Name)})
	}
	meta, err := db.NewManager(refs)
	if err != nil {
		log.Printf("warning: reopening catalogs: %v", err)
		return
	}
	a.meta.Close()
	a.meta = meta
	a.resolver.Meta = meta
}
