// Package run executes a package without installing it: the artifact is
// materialized in the profile's run cache, verified, and exec'd.
package run

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"

	"golang.org/x/xerrors"

	soar "github.com/pkgforge/soar"
	"github.com/pkgforge/soar/internal/config"
	"github.com/pkgforge/soar/internal/download"
	"github.com/pkgforge/soar/internal/events"
	"github.com/pkgforge/soar/internal/hash"
	"github.com/pkgforge/soar/internal/resolve"
)

// Ctx is the run context.
type Ctx struct {
	Paths    config.Paths
	Resolver *resolve.Resolver
	Bus      *events.Bus
	Yes      bool
}

// Run resolves query, fetches the artifact into the run cache (reusing a
// cached copy whose checksum still matches), and executes it with args.
func (c *Ctx) Run(ctx context.Context, query string, args []string) error {
	q, err := soar.ParseQuery(query)
	if err != nil {
		return err
	}
	cand, err := c.Resolver.One(q, c.Yes)
	if err != nil {
		return err
	}
	rp := cand.Remote

	// An installed variant runs in place.
	if cand.Installed != nil && cand.Installed.IsInstalled {
		return execBinary(ctx, filepath.Join(cand.Installed.InstalledPath, rp.PkgName), args)
	}

	cached := filepath.Join(c.Paths.RunCache(), rp.PkgID+"-"+rp.PkgName)
	if sum, err := hash.Blake3File(cached); err == nil && rp.Bsum != "" && sum == rp.Bsum {
		return execBinary(ctx, cached, args)
	}

	opID := events.NextOperationID()
	c.Bus.Emit(events.Event{Kind: events.Running, OpID: opID, PkgName: rp.PkgName, PkgID: rp.PkgID, Stage: "fetching"})
	if rp.GhcrBlob != "" {
		if _, err := download.RunOCI(ctx, &download.OCIRequest{
			Reference: rp.GhcrBlob,
			Output:    cached,
			Size:      uint64(rp.GhcrSize),
		}); err != nil {
			return err
		}
	} else {
		if _, err := download.Run(ctx, &download.Request{
			URL:       rp.DownloadURL,
			Output:    cached,
			Overwrite: download.OverwriteForce,
		}); err != nil {
			return err
		}
	}
	if rp.Bsum != "" {
		sum, err := hash.Blake3File(cached)
		if err != nil {
			return err
		}
		if sum != rp.Bsum {
			os.Remove(cached)
			return xerrors.Errorf("%s: checksum mismatch: got %s, want %s", rp.PkgName, sum, rp.Bsum)
		}
	}
	if err := os.Chmod(cached, 0755); err != nil {
		return err
	}
	c.Bus.Emit(events.Event{Kind: events.Running, OpID: opID, PkgName: rp.PkgName, PkgID: rp.PkgID, Stage: "executing"})
	return execBinary(ctx, cached, args)
}

func execBinary(ctx context.Context, path string, args []string) error {
	cmd := exec.CommandContext(ctx, path, args...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}
