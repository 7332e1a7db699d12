// Package install drives the per-package install state machine: plan,
// download, verify, place, integrate, hook, commit.
package install

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/xerrors"

	soar "github.com/pkgforge/soar"
	"github.com/pkgforge/soar/internal/config"
	"github.com/pkgforge/soar/internal/db"
	"github.com/pkgforge/soar/internal/download"
	"github.com/pkgforge/soar/internal/events"
	"github.com/pkgforge/soar/internal/format"
	"github.com/pkgforge/soar/internal/fsutil"
	"github.com/pkgforge/soar/internal/hash"
	"github.com/pkgforge/soar/internal/integrate"
	"github.com/pkgforge/soar/internal/lock"
	"github.com/pkgforge/soar/internal/resolve"
)

// Marker left in the install directory until the install commits; its
// presence plus is_installed = false marks a broken install.
const Marker = ".soar_install"

// Ctx is the install context: configuration and shared handles.
type Ctx struct {
	Config   *config.Config
	Paths    config.Paths
	Core     *db.Core
	Meta     *db.Manager
	Bus      *events.Bus
	Resolver *resolve.Resolver

	// Yes answers every prompt affirmatively where allowed and makes
	// checksum mismatches fatal.
	Yes bool
	// Profile is the active profile name recorded on new rows.
	Profile string
	// InstallPatterns is the declared allow/deny glob list applied to
	// extracted archive contents.
	InstallPatterns []string
	// Portable* override the portable-directory targets for this run.
	PortablePath   string
	PortableHome   string
	PortableConfig string
	PortableShare  string
	PortableCache  string
}

// Result reports one target's outcome.
type Result struct {
	Query string
	Pkg   *db.InstalledPackage
	Err   error
}

// Packages resolves and installs each query, overlapping downloads up to
// the configured parallel limit. Failures do not abort the batch.
func (c *Ctx) Packages(ctx context.Context, queries []string) []Result {
	results := make([]Result, len(queries))
	var eg errgroup.Group
	limit := c.Config.ParallelLimit
	if limit <= 0 {
		limit = 4
	}
	eg.SetLimit(limit)
	for i, q := range queries {
		i, q := i, q
		eg.Go(func() error {
			pkg, err := c.one(ctx, q)
			results[i] = Result{Query: q, Pkg: pkg, Err: err}
			return nil
		})
	}
	eg.Wait()
	return results
}

func (c *Ctx) one(ctx context.Context, query string) (*db.InstalledPackage, error) {
	q, err := soar.ParseQuery(query)
	if err != nil {
		return nil, err
	}
	cand, err := c.Resolver.One(q, c.Yes)
	if err != nil {
		return nil, err
	}
	if cand.Installed != nil && cand.Installed.IsInstalled && cand.Installed.Version == cand.Remote.Version {
		log.Printf("%s is already installed", cand.Remote.PkgName)
		return cand.Installed, nil
	}
	return c.Install(ctx, cand.Remote)
}

// Install runs the full state machine for one resolved remote package.
func (c *Ctx) Install(ctx context.Context, rp *db.RemotePackage) (*db.InstalledPackage, error) {
	opID := events.NextOperationID()
	lk, err := lock.Acquire(fmt.Sprintf("%s-%s-%s", rp.RepoName, rp.PkgID, rp.PkgName))
	if err != nil {
		return nil, err
	}
	defer lk.Unlock()

	installDir := c.Paths.InstallDir(rp.RepoName, rp.PkgID, rp.PkgName)
	if err := fsutil.EnsureDir(installDir); err != nil {
		return nil, err
	}

	// The row and the marker go in before any bytes move so an abort
	// anywhere later leaves a reapable "broken" entry.
	rec := &db.InstalledPackage{
		RepoName:      rp.RepoName,
		PkgID:         rp.PkgID,
		PkgName:       rp.PkgName,
		PkgType:       rp.PkgType,
		Version:       rp.Version,
		Size:          rp.Size,
		InstalledPath: installDir,
		InstalledDate: time.Now().Format(time.RFC3339),
		Profile:         c.Profile,
		Provides:        rp.Provides,
		InstallPatterns: c.InstallPatterns,
	}
	if _, err := c.Core.Insert(rec); err != nil {
		return nil, err
	}
	if err := os.WriteFile(filepath.Join(installDir, Marker), nil, 0644); err != nil {
		return rec, err
	}

	fail := func(err error) (*db.InstalledPackage, error) {
		c.Bus.Emit(events.Event{Kind: events.OperationFailed, OpID: opID, PkgName: rp.PkgName, PkgID: rp.PkgID, Err: err})
		return rec, err
	}

	binPath, err := c.fetch(ctx, opID, rp, installDir)
	if err != nil {
		return fail(err)
	}
	if err := FilterInstallDir(installDir, rp.PkgName, c.InstallPatterns); err != nil {
		return fail(err)
	}

	if err := c.verifyChecksum(opID, rp, binPath); err != nil {
		return fail(err)
	}

	ft, err := format.DetectFile(binPath)
	if err != nil {
		return fail(err)
	}
	switch ft {
	case format.ELF, format.AppImage, format.FlatImage, format.RunImage:
		if err := os.Chmod(binPath, 0755); err != nil {
			return fail(err)
		}
	}

	portable := c.portableOverrides(rec.ID)
	in := &integrate.Integrator{Paths: c.Paths, Bus: c.Bus, Icons: c.Config.Icons}
	target := &integrate.Target{
		OpID:       opID,
		PkgName:    rp.PkgName,
		PkgID:      rp.PkgID,
		InstallDir: installDir,
		BinaryPath: binPath,
		Format:     ft,
		Remote:     rp,
		Portable:   portable,
	}
	if err := in.IntegrateResources(ctx, target); err != nil {
		return fail(err)
	}

	if err := c.runHooks(ctx, opID, rp, installDir); err != nil {
		return fail(err)
	}

	// Commit: checksum + is_installed in one transaction, then clear the
	// marker and publish the bin symlinks (never before the flip).
	sum, err := hash.Blake3File(binPath)
	if err != nil {
		return fail(err)
	}
	size := fsutil.DirSize(installDir)
	c.Bus.Emit(events.Event{Kind: events.Installing, OpID: opID, PkgName: rp.PkgName, PkgID: rp.PkgID, Stage: events.StageRecordingDatabase})
	if err := c.Core.Commit(rec.ID, sum, size); err != nil {
		return fail(err)
	}
	// The fresh install becomes the active variant of its name.
	if err := c.Core.SwitchActive(rp.PkgName, rp.PkgID, sum); err != nil {
		return fail(err)
	}
	rec.Checksum, rec.Size, rec.IsInstalled = sum, size, true
	if portable != nil {
		portable.PackageID = rec.ID
		if err := c.Core.UpsertPortable(portable); err != nil {
			return fail(err)
		}
	}
	if err := os.Remove(filepath.Join(installDir, Marker)); err != nil && !os.IsNotExist(err) {
		return fail(err)
	}
	c.Bus.Emit(events.Event{Kind: events.Installing, OpID: opID, PkgName: rp.PkgName, PkgID: rp.PkgID, Stage: events.StageLinkingBinaries})
	if err := in.LinkBinaries(rp.PkgName, installDir, rp.Provides); err != nil {
		return fail(err)
	}

	c.Bus.Emit(events.Event{Kind: events.Installing, OpID: opID, PkgName: rp.PkgName, PkgID: rp.PkgID, Stage: events.StageComplete})
	c.Bus.Emit(events.Event{Kind: events.OperationComplete, OpID: opID, PkgName: rp.PkgName, PkgID: rp.PkgID})
	return rec, nil
}

// fetch downloads the artifact, preferring the OCI blob when the metadata
// carries ghcr coordinates. Generic archives extract through a staging
// directory filtered by install_patterns.
func (c *Ctx) fetch(ctx context.Context, opID events.OperationID, rp *db.RemotePackage, installDir string) (string, error) {
	binPath := filepath.Join(installDir, rp.PkgName)
	progress := c.progressFunc(opID, rp)

	if rp.GhcrBlob != "" {
		_, err := download.RunOCI(ctx, &download.OCIRequest{
			Reference:  rp.GhcrBlob,
			Output:     binPath,
			Size:       uint64(rp.GhcrSize),
			OnProgress: progress,
		})
		return binPath, err
	}

	if isArchiveURL(rp.DownloadURL) {
		staging := filepath.Join(c.Paths.Cache(), fmt.Sprintf("staging-%s-%s", rp.PkgName, rp.PkgID))
		if err := fsutil.SafeRemove(staging); err != nil {
			return "", err
		}
		c.Bus.Emit(events.Event{Kind: events.Installing, OpID: opID, PkgName: rp.PkgName, PkgID: rp.PkgID, Stage: events.StageExtracting})
		if _, err := download.Run(ctx, &download.Request{
			URL:        rp.DownloadURL,
			Output:     staging + "/",
			Overwrite:  download.OverwriteForce,
			Extract:    true,
			ExtractDir: staging,
			OnProgress: progress,
		}); err != nil {
			return "", err
		}
		if err := moveStaging(staging, installDir); err != nil {
			return "", err
		}
		if err := fsutil.SafeRemove(staging); err != nil {
			return "", err
		}
		return binPath, nil
	}

	_, err := download.Run(ctx, &download.Request{
		URL:        rp.DownloadURL,
		Output:     binPath,
		Overwrite:  download.OverwriteForce,
		OnProgress: progress,
	})
	return binPath, err
}

func (c *Ctx) progressFunc(opID events.OperationID, rp *db.RemotePackage) func(download.Progress) {
	return func(p download.Progress) {
		c.Bus.Emit(events.Event{
			Kind:    progressKinds[p.Kind],
			OpID:    opID,
			PkgName: rp.PkgName,
			PkgID:   rp.PkgID,
			Current: p.Current,
			Total:   p.Total,
			Err:     p.Err,
		})
	}
}

var progressKinds = map[download.ProgressKind]events.Kind{
	download.ProgressStarting:  events.DownloadStarting,
	download.ProgressResuming:  events.DownloadResuming,
	download.ProgressChunk:     events.DownloadProgress,
	download.ProgressComplete:  events.DownloadComplete,
	download.ProgressError:     events.DownloadRetry,
	download.ProgressAborted:   events.DownloadAborted,
	download.ProgressRecovered: events.DownloadRecovered,
}

// moveStaging moves extracted archive contents into the install
// directory. The archive's download itself lands in staging too; the
// staging copy of the artifact is skipped.
func moveStaging(staging, installDir string) error {
	entries, err := os.ReadDir(staging)
	if err != nil {
		return err
	}
	// An archive with one top-level directory unwraps it.
	if len(entries) == 1 && entries[0].IsDir() {
		staging = filepath.Join(staging, entries[0].Name())
		if entries, err = os.ReadDir(staging); err != nil {
			return err
		}
	}
	for _, e := range entries {
		if isArchiveURL(e.Name()) {
			continue
		}
		dest := filepath.Join(installDir, e.Name())
		if err := fsutil.SafeRemove(dest); err != nil {
			return err
		}
		if err := os.Rename(filepath.Join(staging, e.Name()), dest); err != nil {
			return err
		}
	}
	return nil
}

// FilterInstallDir applies the declared install_patterns allow/deny list
// (widened with .sig variants) to the extracted files, removing entries
// that do not survive.
func FilterInstallDir(installDir, pkgName string, patterns []string) error {
	if len(patterns) == 0 {
		return nil
	}
	widened := fsutil.SigVariants(patterns)
	entries, err := os.ReadDir(installDir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		name := e.Name()
		if name == pkgName || name == Marker {
			continue
		}
		if !fsutil.MatchesPatterns(name, widened) {
			if err := fsutil.SafeRemove(filepath.Join(installDir, name)); err != nil {
				return err
			}
		}
	}
	return nil
}

func (c *Ctx) verifyChecksum(opID events.OperationID, rp *db.RemotePackage, binPath string) error {
	if rp.Bsum == "" {
		return nil
	}
	c.Bus.Emit(events.Event{Kind: events.Verifying, OpID: opID, PkgName: rp.PkgName, PkgID: rp.PkgID, Stage: events.VerifyChecksum})
	sum, err := hash.Blake3File(binPath)
	if err != nil {
		return err
	}
	if sum != rp.Bsum {
		c.Bus.Emit(events.Event{Kind: events.Verifying, OpID: opID, PkgName: rp.PkgName, PkgID: rp.PkgID, Stage: events.VerifyFailed})
		if c.Yes || !promptContinue(rp.PkgName) {
			return xerrors.Errorf("%s: checksum mismatch: got %s, want %s", rp.PkgName, sum, rp.Bsum)
		}
		return nil
	}
	c.Bus.Emit(events.Event{Kind: events.Verifying, OpID: opID, PkgName: rp.PkgName, PkgID: rp.PkgID, Stage: events.VerifyPassed})
	return nil
}

func (c *Ctx) portableOverrides(packageID int64) *db.PortablePackage {
	if c.PortablePath == "" && c.PortableHome == "" && c.PortableConfig == "" &&
		c.PortableShare == "" && c.PortableCache == "" {
		return nil
	}
	return &db.PortablePackage{
		PackageID:      packageID,
		PortablePath:   c.PortablePath,
		PortableHome:   c.PortableHome,
		PortableConfig: c.PortableConfig,
		PortableShare:  c.PortableShare,
		PortableCache:  c.PortableCache,
	}
}

func isArchiveURL(url string) bool {
	u := strings.ToLower(url)
	for _, suffix := range []string{".tar.gz", ".tgz", ".tar.zst", ".tar", ".zip"} {
		if strings.HasSuffix(u, suffix) {
			return true
		}
	}
	return false
}
