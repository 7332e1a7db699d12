package integrate

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/pkgforge/soar/internal/config"
)

var desktopKeyRe = regexp.MustCompile(`(?m)^(Icon|Exec|TryExec)=(.*)$`)

// symlinkDesktop rewrites the Icon/Exec/TryExec keys of a desktop file to
// point at the integrated icon and the bin-directory entry, then links it
// under the applications directory.
func (in *Integrator) symlinkDesktop(desktopPath, pkgName string) error {
	content, err := os.ReadFile(desktopPath)
	if err != nil {
		return err
	}
	binEntry := filepath.Join(in.Paths.Bin(), pkgName)
	rewritten := desktopKeyRe.ReplaceAllStringFunc(string(content), func(line string) string {
		key, _, _ := strings.Cut(line, "=")
		switch key {
		case "Icon":
			return "Icon=" + pkgName + "-soar"
		default: // Exec, TryExec
			return key + "=" + binEntry
		}
	})
	if err := os.WriteFile(desktopPath, []byte(rewritten), 0644); err != nil {
		return err
	}
	appsDir := config.DesktopDir()
	if err := os.MkdirAll(appsDir, 0755); err != nil {
		return err
	}
	return atomicLink(desktopPath, filepath.Join(appsDir, pkgName+"-soar.desktop"))
}

// defaultDesktopEntry synthesizes a minimal desktop file for formats
// without embedded resources.
func defaultDesktopEntry(pkgName string, categories []string) []byte {
	cats := strings.Join(categories, ";")
	if cats == "" {
		cats = "Utility"
	}
	return []byte(fmt.Sprintf(
		"[Desktop Entry]\nType=Application\nName=%s\nIcon=%s\nExec=%s\nCategories=%s;\n",
		pkgName, pkgName, pkgName, cats))
}
