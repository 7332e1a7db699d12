package integrate

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/disintegration/imaging"

	"github.com/pkgforge/soar/internal/config"
)

var pngMagic = []byte{0x89, 0x50, 0x4e, 0x47, 0x0d, 0x0a, 0x1a, 0x0a}

// hicolor theme sizes integrated icons may use.
var supportedDimensions = [][2]int{
	{16, 16}, {24, 24}, {32, 32}, {48, 48}, {64, 64}, {72, 72},
	{80, 80}, {96, 96}, {128, 128}, {192, 192}, {256, 256}, {512, 512},
}

func nearestSupportedDimension(w, h int) (int, int) {
	best := supportedDimensions[0]
	bestDiff := -1
	for _, d := range supportedDimensions {
		diff := abs(d[0]-w) + abs(d[1]-h)
		if bestDiff < 0 || diff < bestDiff {
			best, bestDiff = d, diff
		}
	}
	return best[0], best[1]
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

// finalizeIcon renames an extracted .DirIcon to {pkg_name}.{png|svg} based
// on its magic bytes.
func finalizeIcon(tmpPath, installDir, pkgName string) (string, error) {
	f, err := os.Open(tmpPath)
	if err != nil {
		return "", err
	}
	head := make([]byte, 8)
	n, _ := f.Read(head)
	f.Close()
	ext := "svg"
	if bytes.Equal(head[:n], pngMagic) {
		ext = "png"
	}
	final := filepath.Join(installDir, pkgName+"."+ext)
	if err := os.Rename(tmpPath, final); err != nil {
		return "", err
	}
	return final, nil
}

// symlinkIcon normalizes a raster icon to the nearest hicolor size and
// links it under the theme directory. SVG icons go to scalable.
func (in *Integrator) symlinkIcon(iconPath, pkgName string) error {
	ext := filepath.Ext(iconPath)
	var themeDir string
	if ext == ".svg" {
		themeDir = filepath.Join(config.IconsDir(), "scalable", "apps")
	} else {
		img, err := imaging.Open(iconPath)
		if err != nil {
			return err
		}
		b := img.Bounds()
		w, h := b.Dx(), b.Dy()
		nw, nh := nearestSupportedDimension(w, h)
		if w != nw || h != nh {
			img = imaging.Resize(img, nw, nh, imaging.Lanczos)
			if err := imaging.Save(img, iconPath); err != nil {
				return err
			}
		}
		themeDir = filepath.Join(config.IconsDir(), fmt.Sprintf("%dx%d", nw, nh), "apps")
	}
	if err := os.MkdirAll(themeDir, 0755); err != nil {
		return err
	}
	return atomicLink(iconPath, filepath.Join(themeDir, pkgName+"-soar"+ext))
}
