// Package integrate turns a freshly materialized package directory into a
// usable desktop application: embedded resource extraction, icon
// normalization, desktop-file rewriting, bin and provides symlinks,
// portable directories.
package integrate

import (
	"context"
	"os"
	"path/filepath"

	soar "github.com/pkgforge/soar"
	"github.com/pkgforge/soar/internal/config"
	"github.com/pkgforge/soar/internal/db"
	"github.com/pkgforge/soar/internal/download"
	"github.com/pkgforge/soar/internal/events"
	"github.com/pkgforge/soar/internal/format"
	"github.com/pkgforge/soar/internal/fsutil"
)

// Integrator wires one profile's paths.
type Integrator struct {
	Paths config.Paths
	Bus   *events.Bus
	// Icons disables hicolor/desktop integration when false (config knob).
	Icons bool
}

// Target is what the install engine hands over.
type Target struct {
	OpID       events.OperationID
	PkgName    string
	PkgID      string
	InstallDir string
	BinaryPath string
	Format     format.Format
	Remote     *db.RemotePackage
	Portable   *db.PortablePackage
}

// IntegrateResources extracts and links desktop resources and sets up
// portable directories. Bin symlinks are published separately via
// LinkBinaries after the database record commits.
func (in *Integrator) IntegrateResources(ctx context.Context, t *Target) error {
	desktopWanted := in.Icons && (t.Remote == nil || t.Remote.DesktopIntegration || t.Format == format.AppImage ||
		t.Format == format.FlatImage || t.Format == format.RunImage)

	switch t.Format {
	case format.AppImage, format.FlatImage, format.RunImage:
		if desktopWanted {
			in.emit(t, events.StageDesktopIntegration)
			if err := in.integrateAppImage(t); err != nil {
				return &soar.IntegrationError{Msg: err.Error()}
			}
		}
	default:
		if desktopWanted && t.Remote != nil && (t.Remote.Icon != "" || t.Remote.Desktop != "") {
			in.emit(t, events.StageDesktopIntegration)
			if err := in.integrateRemote(ctx, t); err != nil {
				return &soar.IntegrationError{Msg: err.Error()}
			}
		}
	}

	if t.Portable != nil || (t.Remote != nil && t.Remote.Portable) || t.Format == format.Wrappe {
		in.emit(t, events.StageSetupPortable)
		if err := in.setupPortable(t); err != nil {
			return err
		}
	}
	return nil
}

func (in *Integrator) emit(t *Target, stage string) {
	in.Bus.Emit(events.Event{Kind: events.Installing, OpID: t.OpID, PkgName: t.PkgName, PkgID: t.PkgID, Stage: stage})
}

// LinkBinaries publishes the primary binary and every provide entry in the
// profile bin directory.
func (in *Integrator) LinkBinaries(pkgName, installDir string, provides []soar.Provide) error {
	bin := in.Paths.Bin()
	if err := os.MkdirAll(bin, 0755); err != nil {
		return err
	}
	primary := filepath.Join(installDir, pkgName)
	if _, err := os.Stat(primary); err == nil {
		if err := atomicLink(primary, filepath.Join(bin, pkgName)); err != nil {
			return err
		}
	}
	for _, p := range provides {
		if name := p.LinkName(); name != "" {
			if err := atomicLink(filepath.Join(installDir, p.Name), filepath.Join(bin, name)); err != nil {
				return err
			}
		} else if p.SymlinkToBin && p.Name != pkgName {
			if err := atomicLink(filepath.Join(installDir, p.Name), filepath.Join(bin, p.Name)); err != nil {
				return err
			}
		}
	}
	return nil
}

func atomicLink(target, link string) error {
	return fsutil.AtomicSymlink(target, link)
}

// integrateRemote fetches icon/desktop assets named by the metadata, or
// synthesizes a minimal desktop entry.
func (in *Integrator) integrateRemote(ctx context.Context, t *Target) error {
	var iconPath string
	if t.Remote.Icon != "" {
		out := filepath.Join(t.InstallDir, ".DirIcon")
		if _, err := download.Run(ctx, &download.Request{
			URL:       t.Remote.Icon,
			Output:    out,
			Overwrite: download.OverwriteForce,
		}); err != nil {
			return err
		}
		var err error
		iconPath, err = finalizeIcon(out, t.InstallDir, t.PkgName)
		if err != nil {
			return err
		}
	}

	desktopPath := filepath.Join(t.InstallDir, t.PkgName+".desktop")
	if t.Remote.Desktop != "" {
		if _, err := download.Run(ctx, &download.Request{
			URL:       t.Remote.Desktop,
			Output:    desktopPath,
			Overwrite: download.OverwriteForce,
		}); err != nil {
			return err
		}
	} else {
		if err := os.WriteFile(desktopPath, defaultDesktopEntry(t.PkgName, t.Remote.Categories), 0644); err != nil {
			return err
		}
	}

	if iconPath != "" {
		if err := in.symlinkIcon(iconPath, t.PkgName); err != nil {
			return err
		}
	}
	return in.symlinkDesktop(desktopPath, t.PkgName)
}
