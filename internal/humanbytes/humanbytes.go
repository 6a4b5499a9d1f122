// Package humanbytes converts between byte counts and strings like "1.5G" or
// "512MiB".
package humanbytes

import (
	"fmt"
	"strconv"
	"strings"
)

type unit struct {
	suffix string
	factor int64
}

const (
	kibi = 1 << 10
	mebi = 1 << 20
	gibi = 1 << 30
	tebi = 1 << 40
	pebi = 1 << 50
)

// units is ordered longest suffix first so that "MiB" is not parsed as "B".
var units = []unit{
	{"KiB", kibi}, {"MiB", mebi}, {"GiB", gibi}, {"TiB", tebi}, {"PiB", pebi},
	{"KB", 1e3}, {"MB", 1e6}, {"GB", 1e9}, {"TB", 1e12}, {"PB", 1e15},
	{"K", kibi}, {"M", mebi}, {"G", gibi}, {"T", tebi}, {"P", pebi},
	{"B", 1},
}

// formatUnits is ordered largest first.
var formatUnits = []unit{
	{"P", pebi}, {"T", tebi}, {"G", gibi}, {"M", mebi}, {"K", kibi},
}

// Format renders b using binary prefixes, e.g. 1536 → "1.50K".
func Format(b int64) string {
	for _, u := range formatUnits {
		if b >= u.factor {
			return fmt.Sprintf("%.2f%s", float64(b)/float64(u.factor), u.suffix)
		}
	}
	return fmt.Sprintf("%dB", b)
}

// Parse is the inverse of Format. It also accepts SI suffixes (KB, MB, …),
// IEC suffixes (KiB, MiB, …), fractional values and plain byte counts.
func Parse(s string) (int64, error) {
	s = strings.TrimSpace(s)
	for _, u := range units {
		if !strings.HasSuffix(s, u.suffix) {
			continue
		}
		num := strings.TrimSpace(strings.TrimSuffix(s, u.suffix))
		if i, err := strconv.ParseInt(num, 0, 64); err == nil {
			return i * u.factor, nil
		}
		f, err := strconv.ParseFloat(num, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid size %q: %w", s, err)
		}
		return int64(f * float64(u.factor)), nil
	}
	i, err := strconv.ParseInt(s, 0, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid size %q: %w", s, err)
	}
	return i, nil
}
