package download

import (
	"os"
	"path/filepath"
	"testing"
)

func TestResolveOutputPath(t *testing.T) {
	dir := t.TempDir()
	for _, tt := range []struct {
		output     string
		url        string
		headerName string
		want       string
	}{
		{"", "https://example.com/a/file.txt", "", "file.txt"},
		{"", "https://example.com/a/file.txt", "hdr.txt", "hdr.txt"},
		{"downloads/", "https://example.com/a/file.txt", "hdr.txt", filepath.Join("downloads", "hdr.txt")},
		{dir, "https://example.com/a/file.txt", "", filepath.Join(dir, "file.txt")},
		{filepath.Join(dir, "explicit.bin"), "https://example.com/", "", filepath.Join(dir, "explicit.bin")},
	} {
		got, err := resolveOutputPath(tt.output, tt.url, tt.headerName)
		if err != nil {
			t.Fatalf("resolveOutputPath(%q, %q, %q): %v", tt.output, tt.url, tt.headerName, err)
		}
		if got != tt.want {
			t.Errorf("resolveOutputPath(%q, %q, %q) = %q, want %q", tt.output, tt.url, tt.headerName, got, tt.want)
		}
	}
}

func TestResolveOutputPathNoFilename(t *testing.T) {
	if _, err := resolveOutputPath("", "https://example.com/path/", ""); err == nil {
		t.Fatal("expected NoFilenameError")
	} else if _, ok := err.(*NoFilenameError); !ok {
		t.Fatalf("got %T, want *NoFilenameError", err)
	}
}

func TestFilenameFromHeader(t *testing.T) {
	for _, tt := range []struct {
		in   string
		want string
	}{
		{`attachment; filename="example.txt"`, "example.txt"},
		{`attachment; filename=plain.bin`, "plain.bin"},
		{`inline`, ""},
		{``, ""},
	} {
		if got := filenameFromHeader(tt.in); got != tt.want {
			t.Errorf("filenameFromHeader(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestIsELF(t *testing.T) {
	dir := t.TempDir()
	elf := filepath.Join(dir, "elf")
	if err := os.WriteFile(elf, []byte{0x7f, 'E', 'L', 'F', 0, 0}, 0644); err != nil {
		t.Fatal(err)
	}
	if !isELF(elf) {
		t.Error("isELF = false for an ELF header")
	}
	txt := filepath.Join(dir, "txt")
	if err := os.WriteFile(txt, []byte("hello"), 0644); err != nil {
		t.Fatal(err)
	}
	if isELF(txt) {
		t.Error("isELF = true for text")
	}
}

func TestResumeXattrRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "partial")
	if err := os.WriteFile(path, []byte("data"), 0644); err != nil {
		t.Fatal(err)
	}
	info := &ResumeInfo{Downloaded: 3145728, Total: 10 << 20, ETag: "e1"}
	if err := writeResume(path, info); err != nil {
		t.Skipf("filesystem without xattr support: %v", err)
	}
	got := readResume(path)
	if got == nil {
		t.Fatal("readResume = nil after write")
	}
	if got.Downloaded != info.Downloaded || got.ETag != info.ETag || got.Total != info.Total {
		t.Errorf("readResume = %+v, want %+v", got, info)
	}
	removeResume(path)
	if readResume(path) != nil {
		t.Error("checkpoint still present after removal")
	}
}
