// Package selfupdate replaces the running soar binary with the newest
// release asset matching the current architecture.
package selfupdate

import (
	"context"
	"log"
	"os"
	"runtime"
	"strings"

	"github.com/Masterminds/semver"
	"github.com/google/renameio"
	"golang.org/x/xerrors"

	soar "github.com/pkgforge/soar"
	"github.com/pkgforge/soar/internal/download"
)

const project = "pkgforge/soar"

// Channel selects which releases are eligible.
type Channel string

const (
	Stable  Channel = "stable"
	Nightly Channel = "nightly"
)

// DetectChannel picks the channel from environment overrides, falling
// back to the current version's prefix.
func DetectChannel() Channel {
	if os.Getenv("SOAR_NIGHTLY") != "" {
		return Nightly
	}
	if os.Getenv("SOAR_RELEASE") != "" {
		return Stable
	}
	if strings.HasPrefix(soar.Version, "nightly") {
		return Nightly
	}
	return Stable
}

func archToken() string {
	switch runtime.GOARCH {
	case "amd64":
		return "x86_64"
	case "arm64":
		return "aarch64"
	}
	return runtime.GOARCH
}

// Run checks the release feed and overwrites the current binary when a
// newer release exists. It returns the tag updated to, or "" when already
// current.
func Run(ctx context.Context, channel Channel) (string, error) {
	rels, err := download.GithubReleases(ctx, project)
	if err != nil {
		return "", err
	}

	var target *download.Release
	switch channel {
	case Nightly:
		for i := range rels {
			if strings.HasPrefix(rels[i].Tag, "nightly") && rels[i].Tag != soar.Version {
				target = &rels[i]
				break
			}
		}
	default:
		current, err := semver.NewVersion(strings.TrimPrefix(soar.Version, "v"))
		if err != nil {
			return "", xerrors.Errorf("current version %q is not semver: %w", soar.Version, err)
		}
		var best *semver.Version
		for i := range rels {
			if rels[i].Prerelease || strings.HasPrefix(rels[i].Tag, "nightly") {
				continue
			}
			v, err := semver.NewVersion(strings.TrimPrefix(rels[i].Tag, "v"))
			if err != nil {
				continue
			}
			if v.GreaterThan(current) && (best == nil || v.GreaterThan(best)) {
				best = v
				target = &rels[i]
			}
		}
	}
	if target == nil {
		return "", nil
	}

	arch := archToken()
	var asset *download.Asset
	for i := range target.Assets {
		name := strings.ToLower(target.Assets[i].Name)
		if strings.Contains(name, arch) && !strings.Contains(name, "tar") && !strings.Contains(name, "sum") {
			asset = &target.Assets[i]
			break
		}
	}
	if asset == nil {
		return "", xerrors.Errorf("release %s has no asset for %s", target.Tag, arch)
	}

	self, err := os.Executable()
	if err != nil {
		return "", err
	}
	tmpDir := os.TempDir()
	out, err := download.Run(ctx, &download.Request{
		URL:       asset.URL,
		Output:    tmpDir + "/",
		Overwrite: download.OverwriteForce,
	})
	if err != nil {
		return "", err
	}
	b, err := os.ReadFile(out)
	if err != nil {
		return "", err
	}
	if err := renameio.WriteFile(self, b, 0755); err != nil {
		return "", err
	}
	os.Remove(out)
	log.Printf("updated %s to %s", self, target.Tag)
	return target.Tag, nil
}

// Uninstall removes the running binary.
func Uninstall() error {
	self, err := os.Executable()
	if err != nil {
		return err
	}
	return os.Remove(self)
}
