// soar is a user-space package manager for self-contained Linux binaries.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	soar "github.com/pkgforge/soar"
	"github.com/pkgforge/soar/internal/oninterrupt"
)

var (
	profileFlag = flag.String("profile", "", "profile to operate on (default: config's default_profile)")
	configFlag  = flag.String("config", "", "path to the configuration file")
	quiet       = flag.Bool("quiet", false, "suppress progress output")
	verbose     = flag.Bool("v", false, "verbose output")
	jsonOut     = flag.Bool("json", false, "machine-readable event output")
	noColor     = flag.Bool("no-color", false, "disable colored output")
	yes         = flag.Bool("yes", false, "non-interactive: ambiguity picks the first candidate, a checksum mismatch fails, download keeps existing files")
)

func usage() {
	fmt.Fprintf(flag.CommandLine.Output(), `soar - a package manager for self-contained Linux binaries

Usage: soar [flags] <verb> [args]

Verbs:
  install <query>...      install packages (query: name#pkg_id@version:repo)
  remove <query>...       remove installed packages
  update [name...]        update outdated packages
  sync                    synchronize repository catalogs
  list [repo]             list available packages
  list-installed          list installed packages
  search <term>           search available packages
  query <query>           show details for one package
  inspect [--script] <q>  print a package's build log or build script
  log <query>             alias for inspect
  run <query> [args...]   run a package without installing it
  use <name>              switch the active variant of a name
  download <url>...       download files or release assets
  health                  report broken packages and symlinks
  clean                   --cache | --broken | --broken-symlinks
  self <update|uninstall> manage the soar binary itself
  nest <add|remove|list>  manage user-added repositories
  apply <manifest>        reconcile a declared manifest (--prune)
  def-config              write the default configuration
  env                     print effective paths
  config [--edit]         show or edit the configuration

Flags:
`)
	flag.PrintDefaults()
}

func funcmain() error {
	flag.Usage = usage
	flag.Parse()
	if *quiet {
		log.SetOutput(os.Stderr)
	}

	args := flag.Args()
	if len(args) == 0 {
		usage()
		os.Exit(2)
	}

	type cmd struct {
		fn func(ctx context.Context, args []string) error
	}
	verbs := map[string]cmd{
		"install":        {install},
		"add":            {install},
		"remove":         {remove},
		"del":            {remove},
		"update":         {updateVerb},
		"sync":           {syncRepos},
		"list":           {list},
		"list-installed": {listInstalled},
		"search":         {search},
		"query":          {queryVerb},
		"inspect":        {inspect},
		"log":            {inspect},
		"run":            {runVerb},
		"use":            {useVerb},
		"download":       {downloadVerb},
		"health":         {healthVerb},
		"clean":          {clean},
		"self":           {selfVerb},
		"nest":           {nest},
		"apply":          {apply},
		"def-config":     {defConfig},
		"env":            {envVerb},
		"config":         {configVerb},
		"sandbox-exec":   {sandboxExec},
	}
	verb, ok := verbs[args[0]]
	if !ok {
		usage()
		return fmt.Errorf("unknown verb %q", args[0])
	}

	ctx := oninterrupt.Context()
	return verb.fn(ctx, args[1:])
}

func main() {
	if err := funcmain(); err != nil {
		if w, ok := err.(*soar.Warning); ok {
			log.Printf("warning: %v", w)
			return
		}
		log.Fatalf("%v", err)
	}
}
