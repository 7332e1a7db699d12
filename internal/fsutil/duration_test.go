package fsutil_test

import (
	"testing"

	"github.com/pkgforge/soar/internal/fsutil"
)

func TestParseDuration(t *testing.T) {
	const (
		second = int64(1000)
		minute = 60 * second
		hour   = 60 * minute
		day    = 24 * hour
	)
	for _, tt := range []struct {
		in   string
		want int64
	}{
		{"", 0},
		{"1s", second},
		{"1m", minute},
		{"1h", hour},
		{"1d", day},
		{"1d1h", day + hour},
		{"1d1h1m1s", day + hour + minute + second},
		{"90s", 90 * second},
	} {
		got, err := fsutil.ParseDuration(tt.in)
		if err != nil {
			t.Fatalf("ParseDuration(%q): %v", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("ParseDuration(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestParseDurationErrors(t *testing.T) {
	for _, in := range []string{
		"1d1h1m1s1", // trailing digits
		"1d1h1m1s1a",
		"fail",
		"s",
		"1w",
		"340282366920938463463374607431768211456s",
	} {
		if _, err := fsutil.ParseDuration(in); err == nil {
			t.Errorf("ParseDuration(%q): expected error", in)
		}
	}
}

func TestFormatDuration(t *testing.T) {
	for _, tt := range []struct {
		ms   int64
		want string
	}{
		{0, "0s"},
		{1000, "1s"},
		{61000, "1m1s"},
		{90061000, "1d1h1m1s"},
	} {
		if got := fsutil.FormatDuration(tt.ms); got != tt.want {
			t.Errorf("FormatDuration(%d) = %q, want %q", tt.ms, got, tt.want)
		}
	}
}
