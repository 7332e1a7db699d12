package format_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/pkgforge/soar/internal/format"
)

func write(t *testing.T, name string, b []byte) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, b, 0644); err != nil {
		t.Fatal(err)
	}
	return p
}

func elfHeader(magic8 []byte) []byte {
	b := make([]byte, 16)
	copy(b, []byte{0x7f, 'E', 'L', 'F', 2, 1, 1})
	copy(b[8:], magic8)
	return b
}

func TestDetectImageFormats(t *testing.T) {
	for _, tt := range []struct {
		magic []byte
		want  format.Format
	}{
		{[]byte{0x41, 0x49, 0x02, 0x00}, format.AppImage},
		{[]byte{0x46, 0x49, 0x01, 0x00}, format.FlatImage},
		{[]byte{0x52, 0x49, 0x02, 0x00}, format.RunImage},
	} {
		p := write(t, "pkg", elfHeader(tt.magic))
		got, err := format.DetectFile(p)
		if err != nil {
			t.Fatal(err)
		}
		if got != tt.want {
			t.Errorf("Detect(%x) = %v, want %v", tt.magic, got, tt.want)
		}
	}
}

func TestDetectELF(t *testing.T) {
	p := write(t, "bin", elfHeader(nil))
	got, err := format.DetectFile(p)
	if err != nil {
		t.Fatal(err)
	}
	if got != format.ELF {
		t.Errorf("Detect = %v, want ELF", got)
	}
}

func TestDetectWrappe(t *testing.T) {
	// The Wrappe magic sits 801 bytes before the end of the file.
	b := make([]byte, 2048)
	copy(b, []byte("MZ")) // not an ELF
	copy(b[2048-801:], []byte{0x50, 0x45, 0x33, 0x44, 0x41, 0x54, 0x41, 0x00})
	p := write(t, "wrapped.exe", b)
	got, err := format.DetectFile(p)
	if err != nil {
		t.Fatal(err)
	}
	if got != format.Wrappe {
		t.Errorf("Detect = %v, want Wrappe", got)
	}
}

func TestDetectUnknown(t *testing.T) {
	p := write(t, "blob", make([]byte, 64))
	got, err := format.DetectFile(p)
	if err != nil {
		t.Fatal(err)
	}
	if got != format.Unknown {
		t.Errorf("Detect = %v, want Unknown", got)
	}
}

func TestDetectShortFile(t *testing.T) {
	p := write(t, "tiny", []byte{1, 2, 3})
	if _, err := format.DetectFile(p); err == nil {
		t.Fatal("expected error for a file shorter than the magic window")
	}
}
