package integrate

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	soar "github.com/pkgforge/soar"
	"github.com/pkgforge/soar/internal/config"
)

func TestSymlinkDesktopRewrites(t *testing.T) {
	root := t.TempDir()
	t.Setenv("XDG_DATA_HOME", filepath.Join(root, "share"))
	in := &Integrator{Paths: config.Paths{Root: root}, Icons: true}

	desktopPath := filepath.Join(root, "app.desktop")
	if err := os.WriteFile(desktopPath, []byte(`[Desktop Entry]
Type=Application
Name=App
Icon=app-old
Exec=/usr/bin/app %U
TryExec=/usr/bin/app
Categories=Utility;
`), 0644); err != nil {
		t.Fatal(err)
	}

	if err := in.symlinkDesktop(desktopPath, "app"); err != nil {
		t.Fatal(err)
	}
	b, err := os.ReadFile(desktopPath)
	if err != nil {
		t.Fatal(err)
	}
	content := string(b)
	binEntry := filepath.Join(root, "bin", "app")
	if !strings.Contains(content, "Icon=app-soar\n") {
		t.Errorf("Icon not rewritten:\n%s", content)
	}
	if !strings.Contains(content, "Exec="+binEntry+"\n") {
		t.Errorf("Exec not rewritten:\n%s", content)
	}
	if !strings.Contains(content, "TryExec="+binEntry+"\n") {
		t.Errorf("TryExec not rewritten:\n%s", content)
	}
	if !strings.Contains(content, "Name=App") {
		t.Errorf("unrelated keys must survive:\n%s", content)
	}

	link := filepath.Join(root, "share", "applications", "app-soar.desktop")
	target, err := os.Readlink(link)
	if err != nil {
		t.Fatalf("desktop symlink missing: %v", err)
	}
	if target != desktopPath {
		t.Errorf("link -> %q, want %q", target, desktopPath)
	}
}

func TestDefaultDesktopEntry(t *testing.T) {
	got := string(defaultDesktopEntry("tool", []string{"Network", "Utility"}))
	for _, want := range []string{"[Desktop Entry]", "Name=tool", "Categories=Network;Utility;"} {
		if !strings.Contains(got, want) {
			t.Errorf("missing %q in:\n%s", want, got)
		}
	}
	if !strings.Contains(string(defaultDesktopEntry("tool", nil)), "Categories=Utility;") {
		t.Error("empty categories must default to Utility")
	}
}

func TestNearestSupportedDimension(t *testing.T) {
	for _, tt := range []struct {
		w, h, wantW, wantH int
	}{
		{16, 16, 16, 16},
		{100, 100, 96, 96},
		{1000, 1000, 512, 512},
		{20, 20, 16, 16},
	} {
		w, h := nearestSupportedDimension(tt.w, tt.h)
		if w != tt.wantW || h != tt.wantH {
			t.Errorf("nearest(%d, %d) = (%d, %d), want (%d, %d)", tt.w, tt.h, w, h, tt.wantW, tt.wantH)
		}
	}
}

func TestLinkBinariesProvides(t *testing.T) {
	root := t.TempDir()
	in := &Integrator{Paths: config.Paths{Root: root}}
	installDir := filepath.Join(root, "packages", "repox", "bin", "rg")
	if err := os.MkdirAll(installDir, 0755); err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"rg", "ripgrep"} {
		if err := os.WriteFile(filepath.Join(installDir, name), []byte("x"), 0755); err != nil {
			t.Fatal(err)
		}
	}
	if err := in.LinkBinaries("rg", installDir, []soar.Provide{soar.ParseProvide("rg==ripgrep")}); err != nil {
		t.Fatal(err)
	}
	for _, link := range []string{"rg", "ripgrep"} {
		if _, err := os.Readlink(filepath.Join(root, "bin", link)); err != nil {
			t.Errorf("bin/%s missing: %v", link, err)
		}
	}
}
