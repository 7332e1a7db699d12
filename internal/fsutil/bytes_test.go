package fsutil_test

import (
	"testing"

	"github.com/pkgforge/soar/internal/fsutil"
)

func TestFormatBytes(t *testing.T) {
	for _, tt := range []struct {
		n         uint64
		precision int
		want      string
	}{
		{0, 0, "0 B"},
		{0, 3, "0.000 B"},
		{1023, 0, "1023 B"},
		{1024, 0, "1 KiB"},
		{1024, 1, "1.0 KiB"},
		{1536, 2, "1.50 KiB"},
		{1 << 20, 0, "1 MiB"},
		{3 << 19, 2, "1.50 MiB"},
		{1 << 30, 2, "1.00 GiB"},
		{1 << 40, 3, "1.000 TiB"},
	} {
		if got := fsutil.FormatBytes(tt.n, tt.precision); got != tt.want {
			t.Errorf("FormatBytes(%d, %d) = %q, want %q", tt.n, tt.precision, got, tt.want)
		}
	}
}

func TestParseBytes(t *testing.T) {
	for _, tt := range []struct {
		in   string
		want uint64
	}{
		{"0", 0},
		{"1024", 1024},
		{"1 KiB", 1024},
		{"1.50 KiB", 1536},
		{"1KB", 1000},
		{"1 MiB", 1 << 20},
		{"2.5 GiB", 5 << 29},
		{"1MB", 1000 * 1000},
		{"1 B", 1},
	} {
		got, err := fsutil.ParseBytes(tt.in)
		if err != nil {
			t.Fatalf("ParseBytes(%q): %v", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("ParseBytes(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestParseBytesErrors(t *testing.T) {
	for _, in := range []string{"", "abc", "1X", "12 QiB"} {
		if _, err := fsutil.ParseBytes(in); err == nil {
			t.Errorf("ParseBytes(%q): expected error", in)
		}
	}
}

// format(parse(s)) equals s modulo precision normalization for sizes soar
// itself produces.
func TestBytesRoundTrip(t *testing.T) {
	for _, n := range []uint64{0, 1, 512, 1024, 1536, 1 << 20, 3 << 19, 1 << 30} {
		s := fsutil.FormatBytes(n, 2)
		back, err := fsutil.ParseBytes(s)
		if err != nil {
			t.Fatalf("ParseBytes(%q): %v", s, err)
		}
		if fsutil.FormatBytes(back, 2) != s {
			t.Errorf("round trip %d: %q -> %d -> %q", n, s, back, fsutil.FormatBytes(back, 2))
		}
	}
}
