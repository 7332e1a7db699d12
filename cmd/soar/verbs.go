package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"golang.org/x/xerrors"

	soar "github.com/pkgforge/soar"
	"github.com/pkgforge/soar/internal/config"
	"github.com/pkgforge/soar/internal/download"
	"github.com/pkgforge/soar/internal/fsutil"
	"github.com/pkgforge/soar/internal/httpclient"
	"github.com/pkgforge/soar/internal/run"
	"github.com/pkgforge/soar/internal/selfupdate"
	"github.com/pkgforge/soar/internal/update"
)

func install(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return xerrors.New("install: at least one package query required")
	}
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()
	a.syncIfStale(ctx)

	results := a.installCtx().Packages(ctx, args)
	var failed int
	for _, r := range results {
		if r.Err != nil {
			failed++
			fmt.Fprintf(os.Stderr, "%s: %v\n", r.Query, r.Err)
			if amb, ok := r.Err.(*soar.AmbiguousError); ok {
				for i, c := range amb.Candidates {
					ref := c.Ref()
					fmt.Fprintf(os.Stderr, "  [%d] %s#%s@%s:%s\n", i+1, ref.Name, ref.ID, ref.Version, ref.Repo)
				}
			}
		}
	}
	if failed > 0 {
		return xerrors.Errorf("%d of %d packages failed", failed, len(results))
	}
	return nil
}

func remove(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return xerrors.New("remove: at least one package query required")
	}
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()
	rc := a.removeCtx()
	for _, arg := range args {
		q, err := soar.ParseQuery(arg)
		if err != nil {
			return err
		}
		pkgs, err := a.resolver.Installed(q)
		if err != nil {
			return err
		}
		for _, p := range pkgs {
			freed, err := rc.Remove(ctx, p)
			if err != nil {
				return err
			}
			fmt.Printf("removed %s#%s (%s freed)\n", p.PkgName, p.PkgID, fsutil.FormatBytes(uint64(freed), 2))
		}
	}
	return nil
}

func updateVerb(ctx context.Context, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()
	a.syncIfStale(ctx)

	var only map[string]bool
	if len(args) > 0 {
		only = make(map[string]bool)
		for _, name := range args {
			only[name] = true
		}
	}
	outcomes, err := a.updateCtx().Run(ctx, only)
	if err != nil {
		return err
	}
	if len(outcomes) == 0 {
		fmt.Println("everything is up to date")
		return nil
	}
	var failed int
	for _, o := range outcomes {
		if o.Err != nil {
			failed++
			fmt.Fprintf(os.Stderr, "%s: %v\n", o.PkgName, o.Err)
			continue
		}
		fmt.Printf("%s: %s -> %s\n", o.PkgName, o.OldVersion, o.NewVersion)
	}
	if failed > 0 {
		return xerrors.Errorf("%d updates failed", failed)
	}
	return nil
}

func syncRepos(ctx context.Context, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()
	repos, err := allRepos(a.cfg, a.nests, a.paths)
	if err != nil {
		return err
	}
	return a.syncer().All(ctx, repos, true)
}

func useVerb(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return xerrors.New("use: exactly one package name required")
	}
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()
	sc := a.swapCtx()
	variants, err := sc.Variants(args[0])
	if err != nil {
		return err
	}
	if len(variants) == 0 {
		return &soar.ErrPackageNotFound{Query: args[0]}
	}
	if len(variants) == 1 {
		fmt.Printf("%s has a single installed variant\n", args[0])
		return nil
	}
	idx := 0
	if !*yes {
		for i, p := range variants {
			marker := " "
			if !p.Unlinked {
				marker = "*"
			}
			fmt.Printf("%s [%d] %s#%s@%s:%s\n", marker, i+1, p.PkgName, p.PkgID, p.Version, p.RepoName)
		}
		fmt.Print("Select variant: ")
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil && err != io.EOF {
			return err
		}
		if _, err := fmt.Sscanf(strings.TrimSpace(line), "%d", &idx); err != nil {
			return xerrors.New("use: invalid selection")
		}
		idx--
		if idx < 0 || idx >= len(variants) {
			return xerrors.New("use: selection out of range")
		}
	}
	return sc.Use(ctx, variants[idx])
}

func downloadVerb(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("download", flag.ContinueOnError)
	output := fs.String("o", "", "output path (- for stdout, trailing / for a directory)")
	force := fs.Bool("force", false, "overwrite existing files")
	extract := fs.Bool("extract", false, "extract downloaded archives")
	extractDir := fs.String("extract-dir", "", "extraction directory")
	regex := fs.String("regexp", "", "asset filter: regular expression")
	glob := fs.String("glob", "", "asset filter: glob")
	include := fs.String("include", "", "asset filter: comma-separated keywords to require")
	exclude := fs.String("exclude", "", "asset filter: comma-separated keywords to reject")
	gitlab := fs.Bool("gitlab", false, "treat project arguments as GitLab projects")
	tag := fs.String("tag", "", "release tag (default: latest)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		return xerrors.New("download: at least one URL or project required")
	}

	applyTokens()
	overwrite := download.OverwritePrompt
	if *force {
		overwrite = download.OverwriteForce
	}
	if *yes {
		overwrite = download.OverwriteSkip
	}

	for _, arg := range fs.Args() {
		if strings.HasPrefix(arg, "http://") || strings.HasPrefix(arg, "https://") {
			out, err := download.Run(ctx, &download.Request{
				URL:        arg,
				Output:     *output,
				Overwrite:  overwrite,
				Extract:    *extract,
				ExtractDir: *extractDir,
			})
			if err != nil {
				return err
			}
			fmt.Println(out)
			continue
		}
		platform := "github"
		if *gitlab {
			platform = "gitlab"
		}
		paths, err := download.RunRelease(ctx, platform, &download.ReleaseRequest{
			Project: arg,
			Tag:     *tag,
			Filter: download.AssetFilter{
				Regex:   *regex,
				Glob:    *glob,
				Include: splitComma(*include),
				Exclude: splitComma(*exclude),
			},
			OutputDir: *output,
			Overwrite: overwrite,
		})
		if err != nil {
			return err
		}
		for _, p := range paths {
			fmt.Println(p)
		}
	}
	return nil
}

func runVerb(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return xerrors.New("run: a package query is required")
	}
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()
	a.syncIfStale(ctx)
	rc := &run.Ctx{Paths: a.paths, Resolver: a.resolver, Bus: a.bus, Yes: *yes}
	return rc.Run(ctx, args[0], args[1:])
}

func healthVerb(ctx context.Context, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()
	report, err := a.healthCtx().Check()
	if err != nil {
		return err
	}
	pkgs, links := report.Counts()
	fmt.Printf("broken packages: %d\n", pkgs)
	for _, p := range report.Broken {
		fmt.Printf("  %s#%s@%s:%s (%s)\n", p.PkgName, p.PkgID, p.Version, p.RepoName, p.InstalledPath)
	}
	fmt.Printf("broken symlinks: %d\n", links)
	for _, l := range report.BrokenSymlinks {
		fmt.Printf("  %s\n", l)
	}
	return nil
}

func clean(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("clean", flag.ContinueOnError)
	cache := fs.Bool("cache", false, "empty the download cache")
	broken := fs.Bool("broken", false, "remove broken packages")
	brokenSymlinks := fs.Bool("broken-symlinks", false, "unlink dangling symlinks")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if !*cache && !*broken && !*brokenSymlinks {
		return xerrors.New("clean: one of --cache, --broken, --broken-symlinks required")
	}
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()
	hc := a.healthCtx()
	if *broken {
		n, err := hc.CleanBroken(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("removed %d broken packages\n", n)
	}
	if *brokenSymlinks {
		n, err := hc.CleanBrokenSymlinks()
		if err != nil {
			return err
		}
		fmt.Printf("unlinked %d broken symlinks\n", n)
	}
	if *cache {
		if err := hc.CleanCache(); err != nil {
			return err
		}
		fmt.Println("cache emptied")
	}
	return nil
}

func selfVerb(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return xerrors.New("self: update or uninstall required")
	}
	switch args[0] {
	case "update":
		applyTokens()
		tag, err := selfupdate.Run(ctx, selfupdate.DetectChannel())
		if err != nil {
			return err
		}
		if tag == "" {
			fmt.Println("soar is up to date")
		} else {
			fmt.Printf("updated to %s\n", tag)
		}
		return nil
	case "uninstall":
		return selfupdate.Uninstall()
	}
	return xerrors.Errorf("self: unknown action %q", args[0])
}

func nest(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return xerrors.New("nest: add, remove or list required")
	}
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()
	switch args[0] {
	case "add":
		if len(args) != 3 {
			return xerrors.New("nest add: name and url required")
		}
		return a.nests.Add(args[1], args[2])
	case "remove":
		if len(args) != 2 {
			return xerrors.New("nest remove: name required")
		}
		return a.nests.Remove(args[1])
	case "list":
		nn, err := a.nests.List()
		if err != nil {
			return err
		}
		for _, n := range nn {
			fmt.Printf("%s\t%s\n", n.Name, n.URL)
		}
		return nil
	}
	return xerrors.Errorf("nest: unknown action %q", args[0])
}

func apply(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("apply", flag.ContinueOnError)
	prune := fs.Bool("prune", false, "remove installed packages absent from the manifest")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return xerrors.New("apply: a manifest path is required")
	}
	path := fs.Arg(0)

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()
	a.syncIfStale(ctx)

	m, err := update.LoadManifest(path)
	if err != nil {
		return err
	}
	uc := a.updateCtx()
	report, err := uc.Apply(ctx, m, *prune)
	if err != nil {
		return err
	}
	if err := uc.RewritePins(path, m); err != nil {
		return err
	}
	fmt.Printf("installed %d, updated %d, removed %d, in sync %d\n",
		report.Installed, report.Updated, report.Removed, report.InSync)
	for _, name := range report.NotFound {
		fmt.Printf("not found: %s\n", name)
	}
	for _, f := range report.Failures {
		fmt.Fprintf(os.Stderr, "failed: %s: %v\n", f.PkgName, f.Err)
	}
	if len(report.Failures) > 0 {
		return xerrors.Errorf("%d operations failed", len(report.Failures))
	}
	return nil
}

func defConfig(ctx context.Context, args []string) error {
	path := *configFlag
	if path == "" {
		path = config.DefaultPath()
	}
	if _, err := os.Stat(path); err == nil {
		return xerrors.Errorf("%s already exists", path)
	}
	if err := config.Default().Save(path); err != nil {
		return err
	}
	fmt.Println(path)
	return nil
}

func envVerb(ctx context.Context, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()
	fmt.Printf("profile: %s\n", a.profile)
	fmt.Printf("root: %s\n", a.paths.Root)
	fmt.Printf("bin: %s\n", a.paths.Bin())
	fmt.Printf("db: %s\n", a.paths.DB())
	fmt.Printf("repos: %s\n", a.paths.Repos())
	fmt.Printf("packages: %s\n", a.paths.Packages())
	fmt.Printf("cache: %s\n", a.paths.Cache())
	fmt.Printf("desktop: %s\n", config.DesktopDir())
	fmt.Printf("icons: %s\n", config.IconsDir())
	return nil
}

func configVerb(ctx context.Context, args []string) error {
	path := *configFlag
	if path == "" {
		path = config.DefaultPath()
	}
	if len(args) > 0 && args[0] == "--edit" {
		editor := os.Getenv("EDITOR")
		if editor == "" {
			editor = "vi"
		}
		cmd := exec.CommandContext(ctx, editor, path)
		cmd.Stdin, cmd.Stdout, cmd.Stderr = os.Stdin, os.Stdout, os.Stderr
		return cmd.Run()
	}
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			fmt.Printf("no config at %s; using defaults\n", path)
			return nil
		}
		return err
	}
	os.Stdout.Write(b)
	return nil
}

// applyTokens injects forge credentials into the shared agent before a
// long operation.
func applyTokens() {
	for _, key := range []string{"GITHUB_TOKEN", "GH_TOKEN"} {
		if tok := os.Getenv(key); tok != "" {
			httpclient.SetHeader("Authorization", "Bearer "+tok)
			break
		}
	}
}

func splitComma(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}
