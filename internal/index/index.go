// Package index holds the build-ID data model and the compact lookup file
// generated from it.
package index

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Record is one ELF file found inside a package: its installed path and
// its GNU build ID (40 hex characters).
type Record struct {
	Path    string
	BuildID string
}

// MarshalJSON encodes r as a [path, buildid] pair, the format of
// existing index files.
func (r Record) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]string{r.Path, r.BuildID})
}

func (r *Record) UnmarshalJSON(b []byte) error {
	var pair []string
	if err := json.Unmarshal(b, &pair); err != nil {
		return err
	}
	if got, want := len(pair), 2; got != want {
		return fmt.Errorf("malformed record %s: got %d elements, want %d", b, got, want)
	}
	r.Path, r.BuildID = pair[0], pair[1]
	return nil
}

// Entry lists the records found in one package. An empty Entry means the
// package was processed and contained no ELF files with build IDs.
type Entry []Record

func (e Entry) MarshalJSON() ([]byte, error) {
	if e == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]Record(e))
}

// Location is the value stored in a lookup file: where a build ID can be
// found.
type Location struct {
	DebURL string
	Path   string
}

func (l Location) String() string {
	return l.DebURL + "\t" + l.Path
}

// storable reports whether s can be part of a lookup file value, which
// separates fields by tab and values by line.
func storable(s string) bool {
	return !strings.ContainsAny(s, "\t\r\n")
}

func parseLocation(val string) (Location, error) {
	parts := strings.Split(strings.TrimSuffix(val, "\n"), "\t")
	if got, want := len(parts), 2; got != want {
		return Location{}, fmt.Errorf(`corrupt index: len(Split(%q, "\t")) = %d, want %d`, val, got, want)
	}
	return Location{DebURL: parts[0], Path: parts[1]}, nil
}

// BlockLocation describes the location (including the size) of a same-length
// block within an index file.
type BlockLocation struct {
	BlockOffset uint32
	BlockLength uint32
}

const debugPrefix = "/usr/lib/debug/"

// better reports whether a should be preferred over b for the same build ID:
// separate debug info first, then the smallest package URL, then path.
func better(a, b Location) bool {
	ad, bd := strings.HasPrefix(a.Path, debugPrefix), strings.HasPrefix(b.Path, debugPrefix)
	if ad != bd {
		return ad
	}
	if a.DebURL != b.DebURL {
		return a.DebURL < b.DebURL
	}
	return a.Path < b.Path
}

// Locations inverts entries (keyed by package URL) into one Location per
// build ID. Records whose package URL or path contain a tab or line break are
// skipped, as the lookup file cannot represent them.
func Locations(entries map[string]Entry) map[string]Location {
	locs := make(map[string]Location)
	for debURL, entry := range entries {
		if !storable(debURL) {
			continue
		}
		for _, rec := range entry {
			if !storable(rec.Path) || !storable(rec.BuildID) {
				continue
			}
			loc := Location{DebURL: debURL, Path: rec.Path}
			if existing, ok := locs[rec.BuildID]; !ok || better(loc, existing) {
				locs[rec.BuildID] = loc
			}
		}
	}
	return locs
}
