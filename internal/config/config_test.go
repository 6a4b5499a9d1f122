package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "buildidx.deb822")
	if err := os.WriteFile(path, []byte(contents), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, `Workers: 3
Cache-Dir: /var/cache/buildidx
Temp-Dir: /srv/scratch
Max-Deb-Size: 512M
Requests-Per-Second: 2.5
Architectures: amd64, arm64
Unpacker: dpkg-deb
Inspector: readelf
Listing-Max-Age: 6h
Timeout: 90s
Index-URL: gs://ubuntu-build-ids/ddebs.json
Public: yes
Credentials-File: /etc/buildidx/key.json

Root: http://ddebs.ubuntu.com/pool/universe/

Root: http://archive.ubuntu.com/ubuntu/pool/universe/
Filter: dbg
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	want := Config{
		Roots: []Root{
			{URL: "http://ddebs.ubuntu.com/pool/universe/"},
			{URL: "http://archive.ubuntu.com/ubuntu/pool/universe/", Filter: "dbg"},
		},
		Workers:           3,
		CacheDir:          "/var/cache/buildidx",
		TempDir:           "/srv/scratch",
		MaxDebSize:        512 * 1024 * 1024,
		RequestsPerSecond: 2.5,
		Architectures:     []string{"amd64", "arm64"},
		Unpacker:          "dpkg-deb",
		Inspector:         "readelf",
		ListingMaxAge:     6 * time.Hour,
		Timeout:           90 * time.Second,
		IndexURL:          "gs://ubuntu-build-ids/ddebs.json",
		Public:            true,
		CredentialsFile:   "/etc/buildidx/key.json",
	}
	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Fatalf("unexpected config (-want +got):\n%s", diff)
	}
	if got, want := cfg.BuildIDsPath(), "/var/cache/buildidx/build-ids.json"; got != want {
		t.Fatalf("BuildIDsPath: got %q, want %q", got, want)
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	for _, entry := range []struct {
		name string
		path string
	}{
		{"Missing", filepath.Join(t.TempDir(), "buildidx.deb822")},
		{"Empty", writeConfig(t, "\n")},
	} {
		cfg, err := Load(entry.path)
		if err != nil {
			t.Fatalf("%s: %v", entry.name, err)
		}
		if diff := cmp.Diff(Default(), cfg); diff != "" {
			t.Fatalf("%s: unexpected config (-want +got):\n%s", entry.name, diff)
		}
		if diff := cmp.Diff(DefaultRoots, cfg.Roots); diff != "" {
			t.Fatalf("%s: unexpected roots (-want +got):\n%s", entry.name, diff)
		}
	}
}

func TestLoadGlobalsOnly(t *testing.T) {
	t.Parallel()

	cfg, err := Load(writeConfig(t, "Workers: 2\n"))
	if err != nil {
		t.Fatal(err)
	}
	if got, want := cfg.Workers, 2; got != want {
		t.Fatalf("Workers: got %d, want %d", got, want)
	}
	if diff := cmp.Diff(DefaultRoots, cfg.Roots); diff != "" {
		t.Fatalf("unexpected roots (-want +got):\n%s", diff)
	}
}

func TestLoadInvalid(t *testing.T) {
	t.Parallel()

	for _, contents := range []string{
		"Workers: many\n",
		"Workers: 0\n",
		"Max-Deb-Size: huge\n",
		"Requests-Per-Second: fast\n",
		"Listing-Max-Age: 1 day\n",
		"Timeout: forever\n",
		"Timeout: -1m\n",
		"Public: perhaps\n",
		"Unpacker: ar\n",
		"Inspector: objdump\n",
		"Architectures: ,\n",
		"Filter: dbg\n",
		"Root: http://ddebs.ubuntu.com/pool/main/\nFilter: symbols\n",
	} {
		if _, err := Load(writeConfig(t, contents)); err == nil {
			t.Errorf("Load(%q) unexpectedly succeeded", contents)
		}
	}
}
