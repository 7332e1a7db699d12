package fsutil

import (
	"fmt"
	"strings"

	"golang.org/x/xerrors"
)

// ParseDuration parses a `1d1h1m1s` string into milliseconds. Trailing
// digits without a unit are rejected.
func ParseDuration(s string) (int64, error) {
	var total int64
	rest := s
	for rest != "" {
		i := 0
		for i < len(rest) && rest[i] >= '0' && rest[i] <= '9' {
			i++
		}
		if i == 0 || i == len(rest) {
			return 0, xerrors.Errorf("parse duration %q: expected <number><unit> groups", s)
		}
		var n int64
		for _, c := range rest[:i] {
			d := int64(c - '0')
			if n > (1<<63-1-d)/10 {
				return 0, xerrors.Errorf("parse duration %q: overflow", s)
			}
			n = n*10 + d
		}
		var mult int64
		switch rest[i] {
		case 's':
			mult = 1000
		case 'm':
			mult = 60 * 1000
		case 'h':
			mult = 60 * 60 * 1000
		case 'd':
			mult = 24 * 60 * 60 * 1000
		default:
			return 0, xerrors.Errorf("parse duration %q: unknown unit %q", s, rest[i])
		}
		total += n * mult
		rest = rest[i+1:]
	}
	return total, nil
}

// FormatDuration renders milliseconds back into `1d1h1m1s` form, omitting
// zero components.
func FormatDuration(ms int64) string {
	if ms == 0 {
		return "0s"
	}
	secs := ms / 1000
	var sb strings.Builder
	for _, u := range []struct {
		n    int64
		unit string
	}{
		{24 * 60 * 60, "d"},
		{60 * 60, "h"},
		{60, "m"},
		{1, "s"},
	} {
		if v := secs / u.n; v > 0 {
			fmt.Fprintf(&sb, "%d%s", v, u.unit)
			secs %= u.n
		}
	}
	return sb.String()
}
