package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"golang.org/x/xerrors"

	soar "github.com/pkgforge/soar"
	"github.com/pkgforge/soar/internal/db"
	"github.com/pkgforge/soar/internal/fsutil"
	"github.com/pkgforge/soar/internal/httpclient"
)

func list(ctx context.Context, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()
	a.syncIfStale(ctx)

	var pkgs []*db.RemotePackage
	if len(args) > 0 {
		pkgs, err = a.meta.QueryRepo(args[0], db.RemoteFilter{})
	} else {
		pkgs, err = a.meta.QueryAllFlat(db.RemoteFilter{})
	}
	if err != nil {
		return err
	}
	for _, p := range pkgs {
		fmt.Printf("%s#%s@%s:%s\t%s\n", p.PkgName, p.PkgID, p.Version, p.RepoName, p.Description)
	}
	return nil
}

func listInstalled(ctx context.Context, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()
	pkgs, err := a.core.ListAll()
	if err != nil {
		return err
	}
	var total uint64
	for _, p := range pkgs {
		if !p.IsInstalled {
			continue
		}
		marker := ""
		if p.Unlinked {
			marker = " (unlinked)"
		}
		if p.Pinned {
			marker += " (pinned)"
		}
		fmt.Printf("%s#%s@%s:%s\t%s%s\n", p.PkgName, p.PkgID, p.Version, p.RepoName,
			fsutil.FormatBytes(uint64(p.Size), 2), marker)
		total += uint64(p.Size)
	}
	fmt.Printf("total: %s\n", fsutil.FormatBytes(total, 2))
	return nil
}

func search(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return xerrors.New("search: a search term is required")
	}
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()
	a.syncIfStale(ctx)

	limit := a.cfg.SearchLimit
	if limit <= 0 {
		limit = 20
	}
	pkgs, err := a.meta.QueryAllFlat(db.RemoteFilter{Search: strings.Join(args, " "), Limit: limit})
	if err != nil {
		return err
	}
	if len(pkgs) == 0 {
		fmt.Println("no packages found")
		return nil
	}
	installed, err := a.core.ListAll()
	if err != nil {
		return err
	}
	have := make(map[[3]string]bool)
	for _, p := range installed {
		if p.IsInstalled {
			have[[3]string{p.RepoName, p.PkgID, p.PkgName}] = true
		}
	}
	for _, p := range pkgs {
		marker := " "
		if have[[3]string{p.RepoName, p.PkgID, p.PkgName}] {
			marker = "+"
		}
		fmt.Printf("[%s] %s#%s@%s:%s\t%s\n", marker, p.PkgName, p.PkgID, p.Version, p.RepoName, p.Description)
	}
	return nil
}

func queryVerb(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return xerrors.New("query: exactly one package query required")
	}
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()
	a.syncIfStale(ctx)

	q, err := soar.ParseQuery(args[0])
	if err != nil {
		return err
	}
	cands, err := a.resolver.Remote(q)
	if err != nil {
		return err
	}
	if len(cands) == 0 {
		return &soar.ErrPackageNotFound{Query: args[0]}
	}
	for _, c := range cands {
		p := c.Remote
		fmt.Printf("name: %s\npkg_id: %s\nrepo: %s\nversion: %s\n", p.PkgName, p.PkgID, p.RepoName, p.Version)
		if p.Description != "" {
			fmt.Printf("description: %s\n", p.Description)
		}
		if p.Size > 0 {
			fmt.Printf("size: %s\n", fsutil.FormatBytes(uint64(p.Size), 2))
		}
		if p.Bsum != "" {
			fmt.Printf("bsum: %s\n", p.Bsum)
		}
		if len(p.Homepages) > 0 {
			fmt.Printf("homepage: %s\n", strings.Join(p.Homepages, ", "))
		}
		if len(p.Licenses) > 0 {
			fmt.Printf("licenses: %s\n", strings.Join(p.Licenses, ", "))
		}
		if p.BuildDate != "" {
			fmt.Printf("build_date: %s\n", p.BuildDate)
		}
		if md := a.meta.Repo(p.RepoName); md != nil {
			if maintainers, err := md.Maintainers(p.PkgID, p.PkgName); err == nil && len(maintainers) > 0 {
				fmt.Printf("maintainers: %s\n", strings.Join(maintainers, ", "))
			}
		}
		if c.Installed != nil {
			fmt.Printf("installed: %s (%s)\n", c.Installed.Version, c.Installed.InstalledDate)
		}
		fmt.Println()
	}
	return nil
}

// inspect prints a package's build log (default) or build script.
func inspect(ctx context.Context, args []string) error {
	script := false
	var rest []string
	for _, arg := range args {
		if arg == "--script" {
			script = true
			continue
		}
		rest = append(rest, arg)
	}
	if len(rest) != 1 {
		return xerrors.New("inspect: exactly one package query required")
	}
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	q, err := soar.ParseQuery(rest[0])
	if err != nil {
		return err
	}
	cand, err := a.resolver.One(q, *yes)
	if err != nil {
		return err
	}
	url := cand.Remote.BuildLog
	kind := "build log"
	if script {
		url = cand.Remote.BuildScript
		kind = "build script"
	}
	if url == "" {
		return xerrors.Errorf("%s has no %s", cand.Remote.PkgName, kind)
	}
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return err
	}
	resp, err := httpclient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return xerrors.Errorf("%s: HTTP status %v", url, resp.Status)
	}
	_, err = io.Copy(os.Stdout, resp.Body)
	return err
}
