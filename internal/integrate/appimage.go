package integrate

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/xerrors"

	"github.com/pkgforge/soar/internal/squashfs"
)

// integrateAppImage mounts the embedded SquashFS read-only and extracts
// the .DirIcon, the .desktop file and the AppStream metadata into the
// install directory, then links them into the desktop environment.
func (in *Integrator) integrateAppImage(t *Target) error {
	rd, f, err := squashfs.OpenAppImage(t.BinaryPath)
	if err != nil {
		return err
	}
	defer f.Close()

	if inode, ok := findIcon(rd); ok {
		tmp := filepath.Join(t.InstallDir, t.PkgName+".DirIcon")
		if err := extractFile(rd, inode, tmp); err != nil {
			return xerrors.Errorf("extracting icon: %w", err)
		}
		iconPath, err := finalizeIcon(tmp, t.InstallDir, t.PkgName)
		if err != nil {
			return err
		}
		if err := in.symlinkIcon(iconPath, t.PkgName); err != nil {
			return err
		}
	}

	if inode, ok := findBySuffix(rd, ".desktop"); ok {
		dest := filepath.Join(t.InstallDir, t.PkgName+".desktop")
		if err := extractFile(rd, inode, dest); err != nil {
			return xerrors.Errorf("extracting desktop file: %w", err)
		}
		if err := in.symlinkDesktop(dest, t.PkgName); err != nil {
			return err
		}
	}

	if inode, name, ok := findAppstream(rd); ok {
		kind := "metainfo"
		if strings.Contains(name, "appdata") {
			kind = "appdata"
		}
		dest := filepath.Join(t.InstallDir, t.PkgName+"."+kind+".xml")
		if err := extractFile(rd, inode, dest); err != nil {
			return xerrors.Errorf("extracting appstream: %w", err)
		}
	}
	return nil
}

// findIcon prefers the conventional /.DirIcon, falling back to any root
// .png/.svg.
func findIcon(rd *squashfs.Reader) (squashfs.Inode, bool) {
	if inode, err := rd.LookupPath(".DirIcon"); err == nil {
		if resolved, ok := resolveRootLink(rd, inode); ok {
			return resolved, true
		}
	}
	for _, ext := range []string{".png", ".svg"} {
		if inode, ok := findBySuffix(rd, ext); ok {
			return inode, true
		}
	}
	return 0, false
}

// resolveRootLink follows a chain of root-level symlinks (AppImages often
// point .DirIcon at the real icon).
func resolveRootLink(rd *squashfs.Reader, inode squashfs.Inode) (squashfs.Inode, bool) {
	for i := 0; i < 8; i++ {
		fi, err := rd.Stat("", inode)
		if err != nil {
			return 0, false
		}
		if fi.Mode()&os.ModeSymlink == 0 {
			return inode, true
		}
		target, err := rd.ReadLink(inode)
		if err != nil {
			return 0, false
		}
		inode, err = rd.LookupPath(strings.TrimPrefix(target, "/"))
		if err != nil {
			return 0, false
		}
	}
	return 0, false
}

func findBySuffix(rd *squashfs.Reader, suffix string) (squashfs.Inode, bool) {
	fis, err := rd.Readdir(rd.RootInode())
	if err != nil {
		return 0, false
	}
	for _, fi := range fis {
		if fi.Mode().IsRegular() && strings.HasSuffix(fi.Name(), suffix) {
			return fi.Sys().(*squashfs.FileInfo).Inode, true
		}
	}
	return 0, false
}

// findAppstream looks in the usr/share locations AppStream files live at.
func findAppstream(rd *squashfs.Reader) (squashfs.Inode, string, bool) {
	for _, dir := range []string{"usr/share/metainfo", "usr/share/appdata"} {
		dirInode, err := rd.LookupPath(dir)
		if err != nil {
			continue
		}
		fis, err := rd.Readdir(dirInode)
		if err != nil {
			continue
		}
		for _, fi := range fis {
			if fi.Mode().IsRegular() && strings.HasSuffix(fi.Name(), ".xml") {
				return fi.Sys().(*squashfs.FileInfo).Inode, fi.Name(), true
			}
		}
	}
	return 0, "", false
}

func extractFile(rd *squashfs.Reader, inode squashfs.Inode, dest string) error {
	fr, err := rd.FileReader(inode)
	if err != nil {
		return err
	}
	f, err := os.OpenFile(dest, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, fr); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
