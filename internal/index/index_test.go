package index

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

const (
	lsID    = "99c2106c44189e354e1826aa285a0ccf7cbdf726"
	catID   = "0123456789abcdef0123456789abcdef01234567"
	debugID = "fedcba9876543210fedcba9876543210fedcba98"
)

func TestEntryJSON(t *testing.T) {
	t.Parallel()

	// Format written by earlier versions of the index.
	const stored = `{"http://ddebs.example/pool/main/c/coreutils/coreutils-dbgsym_8.28_amd64.ddeb":[["/usr/lib/debug/.build-id/99/c2106c44189e354e1826aa285a0ccf7cbdf726.debug","99c2106c44189e354e1826aa285a0ccf7cbdf726"]],"http://ddebs.example/pool/main/e/empty/empty_1_amd64.deb":[]}`

	var entries map[string]Entry
	if err := json.Unmarshal([]byte(stored), &entries); err != nil {
		t.Fatal(err)
	}
	want := map[string]Entry{
		"http://ddebs.example/pool/main/c/coreutils/coreutils-dbgsym_8.28_amd64.ddeb": {
			{Path: "/usr/lib/debug/.build-id/99/c2106c44189e354e1826aa285a0ccf7cbdf726.debug", BuildID: lsID},
		},
		"http://ddebs.example/pool/main/e/empty/empty_1_amd64.deb": {},
	}
	if diff := cmp.Diff(want, entries); diff != "" {
		t.Fatalf("unexpected entries (-want +got):\n%s", diff)
	}

	b, err := json.Marshal(entries)
	if err != nil {
		t.Fatal(err)
	}
	if got, want := string(b), stored; got != want {
		t.Fatalf("unexpected encoding:\ngot  %s\nwant %s", got, want)
	}

	b, err = json.Marshal(Entry(nil))
	if err != nil {
		t.Fatal(err)
	}
	if got, want := string(b), "[]"; got != want {
		t.Fatalf("nil Entry: got %s, want %s", got, want)
	}
}

func TestRecordUnmarshalMalformed(t *testing.T) {
	t.Parallel()

	var r Record
	if err := json.Unmarshal([]byte(`["/bin/ls"]`), &r); err == nil {
		t.Fatal("expected an error for a one-element record")
	}
}

func TestLocations(t *testing.T) {
	t.Parallel()

	locs := Locations(map[string]Entry{
		"http://archive.example/pool/main/c/coreutils/coreutils_8.28_amd64.deb": {
			{Path: "/bin/ls", BuildID: lsID},
			{Path: "/bin/cat", BuildID: catID},
		},
		"http://ddebs.example/pool/main/c/coreutils/coreutils-dbgsym_8.28_amd64.ddeb": {
			{Path: "/usr/lib/debug/.build-id/99/c2106c44189e354e1826aa285a0ccf7cbdf726.debug", BuildID: lsID},
		},
		"http://b.example/cat_1_amd64.deb": {{Path: "/bin/cat", BuildID: catID}},
	})
	want := map[string]Location{
		lsID: {
			DebURL: "http://ddebs.example/pool/main/c/coreutils/coreutils-dbgsym_8.28_amd64.ddeb",
			Path:   "/usr/lib/debug/.build-id/99/c2106c44189e354e1826aa285a0ccf7cbdf726.debug",
		},
		catID: {
			DebURL: "http://archive.example/pool/main/c/coreutils/coreutils_8.28_amd64.deb",
			Path:   "/bin/cat",
		},
	}
	if diff := cmp.Diff(want, locs); diff != "" {
		t.Fatalf("unexpected locations (-want +got):\n%s", diff)
	}
}

func TestLocationsUnstorable(t *testing.T) {
	t.Parallel()

	locs := Locations(map[string]Entry{
		"http://archive.example/pool/main/c/coreutils/coreutils_8.28_amd64.deb": {
			{Path: "/usr/lib/debug/evil\n/ls.debug", BuildID: lsID},
			{Path: "/bin/ls", BuildID: lsID},
			{Path: "/bin/c\tat", BuildID: catID},
		},
		"http://archive.example/pool/main/t/tab/tab\t_1_amd64.deb": {
			{Path: "/bin/tab", BuildID: debugID},
		},
	})
	want := map[string]Location{
		lsID: {
			DebURL: "http://archive.example/pool/main/c/coreutils/coreutils_8.28_amd64.deb",
			Path:   "/bin/ls",
		},
	}
	if diff := cmp.Diff(want, locs); diff != "" {
		t.Fatalf("unexpected locations (-want +got):\n%s", diff)
	}

	var buf bytes.Buffer
	if err := Encode(&buf, locs); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "build-ids.index")
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		t.Fatal(err)
	}
	got, err := Lookup(path, lsID)
	if err != nil {
		t.Fatal(err)
	}
	if got != want[lsID] {
		t.Fatalf("Lookup(%q): got %+v, want %+v", lsID, got, want[lsID])
	}
}

func TestEncodeLookup(t *testing.T) {
	t.Parallel()

	locs := map[string]Location{
		lsID:    {DebURL: "http://archive.example/coreutils_8.28_amd64.deb", Path: "/bin/ls"},
		catID:   {DebURL: "http://archive.example/coreutils_8.28_amd64.deb", Path: "/bin/cat"},
		debugID: {DebURL: "http://ddebs.example/libc6-dbg_2.27_i386.ddeb", Path: "/usr/lib/debug/lib/libc.so.6 "},
	}
	path := filepath.Join(t.TempDir(), "build-ids.index")
	var buf bytes.Buffer
	if err := Encode(&buf, locs); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		t.Fatal(err)
	}

	for id, want := range locs {
		got, err := Lookup(path, id)
		if err != nil {
			t.Fatalf("Lookup(%q): %v", id, err)
		}
		if got != want {
			t.Fatalf("Lookup(%q): got %+v, want %+v", id, got, want)
		}
	}

	for _, missing := range []string{
		"1111111111111111111111111111111111111111",
		"abc",
		lsID + "00",
	} {
		if _, err := Lookup(path, missing); !errors.Is(err, ErrNotFound) {
			t.Fatalf("Lookup(%q): got %v, want %v", missing, err, ErrNotFound)
		}
	}
}

func TestLookupEmptyIndex(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "build-ids.index")
	var buf bytes.Buffer
	if err := Encode(&buf, nil); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Lookup(path, lsID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Lookup: got %v, want %v", err, ErrNotFound)
	}
}
