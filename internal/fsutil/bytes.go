package fsutil

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"golang.org/x/xerrors"
)

var byteSizes = []string{"B", "KiB", "MiB", "GiB", "TiB", "PiB", "EiB"}

// FormatBytes renders n as a human-readable size with binary prefixes.
func FormatBytes(n uint64, precision int) string {
	if n == 0 {
		return fmt.Sprintf("%.*f B", precision, 0.0)
	}
	idx := int(math.Floor(math.Log(float64(n)) / math.Log(1024)))
	if idx >= len(byteSizes) {
		idx = len(byteSizes) - 1
	}
	return fmt.Sprintf("%.*f %s", precision, float64(n)/math.Pow(1024, float64(idx)), byteSizes[idx])
}

var bytePrefixes = []string{"", "K", "M", "G", "T", "P", "E"}

// ParseBytes parses a size string with either binary (KiB) or decimal (KB)
// prefixes. A bare number is taken as a byte count.
func ParseBytes(s string) (uint64, error) {
	size := strings.ToUpper(strings.TrimSpace(s))
	if v, err := strconv.ParseUint(size, 10, 64); err == nil {
		return v, nil
	}
	var base float64
	switch {
	case strings.HasSuffix(size, "IB"):
		size = size[:len(size)-2]
		base = 1024
	case strings.HasSuffix(size, "B"):
		size = size[:len(size)-1]
		base = 1000
	default:
		return 0, xerrors.Errorf("parse bytes %q: invalid suffix", s)
	}
	for i := len(bytePrefixes) - 1; i >= 0; i-- {
		num, ok := strings.CutSuffix(size, bytePrefixes[i])
		if !ok {
			continue
		}
		n, err := strconv.ParseFloat(strings.TrimSpace(num), 64)
		if err != nil {
			continue
		}
		return uint64(math.Round(n * math.Pow(base, float64(i)))), nil
	}
	return 0, xerrors.Errorf("parse bytes %q: unrecognized size", s)
}
