// Package config reads the buildidx configuration file, a deb822 file with
// one paragraph of global settings and one paragraph per repository root:
//
//	Workers: 8
//	Max-Deb-Size: 2G
//	Index-URL: gs://ubuntu-build-ids/ddebs.json
//
//	Root: http://ddebs.ubuntu.com/pool/main/
//
//	Root: http://us.archive.ubuntu.com/ubuntu/pool/main/
//	Filter: dbg
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"pault.ag/go/debian/control"

	"github.com/Debian/buildidx/internal/debs"
	"github.com/Debian/buildidx/internal/humanbytes"
	"github.com/Debian/buildidx/internal/inspect"
	"github.com/Debian/buildidx/internal/unpack"
)

const name = "buildidx"

// Root is a repository tree to crawl.
type Root struct {
	URL string

	// Filter names a debs.Classifier, see debs.ClassifierByName.
	Filter string
}

// DefaultRoots are crawled when the configuration file declares none.
var DefaultRoots = []Root{
	{URL: "http://ddebs.ubuntu.com/pool/main/"},
	{URL: "http://us.archive.ubuntu.com/ubuntu/pool/main/", Filter: "dbg"},
}

type Config struct {
	Roots             []Root
	Workers           int
	CacheDir          string
	TempDir           string // empty means $TMPDIR
	MaxDebSize        int64  // 0 means unlimited
	RequestsPerSecond float64
	Architectures     []string
	Unpacker          string
	Inspector         string
	ListingMaxAge     time.Duration
	Timeout           time.Duration // per HTTP request, 0 means unlimited

	// IndexURL is where pull and push transfer the index, see blob.Open.
	IndexURL        string
	Public          bool
	CredentialsFile string
}

// Default returns the configuration used in the absence of a configuration
// file.
func Default() Config {
	return Config{
		Roots:         append([]Root(nil), DefaultRoots...),
		Workers:       runtime.NumCPU(),
		CacheDir:      filepath.Join(xdg.CacheHome, name),
		MaxDebSize:    4 << 30,
		Architectures: append([]string(nil), debs.DefaultArchitectures...),
		ListingMaxAge: 24 * time.Hour,
		Timeout:       30 * time.Minute,
	}
}

// Path returns the default location of the configuration file.
func Path() string {
	return filepath.Join(xdg.ConfigHome, name, name+".deb822")
}

// BuildIDsPath is the index, mapping package URLs to their build IDs.
func (c *Config) BuildIDsPath() string { return filepath.Join(c.CacheDir, "build-ids.json") }

// ProcessedPath is the set of completely crawled directories.
func (c *Config) ProcessedPath() string { return filepath.Join(c.CacheDir, "processed-dirs.json") }

// LookupPath is the lookup file written by generate-index.
func (c *Config) LookupPath() string { return filepath.Join(c.CacheDir, "build-ids.index") }

type paragraph struct {
	Root   string `control:"Root"`
	Filter string `control:"Filter"`

	Workers           string `control:"Workers"`
	CacheDir          string `control:"Cache-Dir"`
	TempDir           string `control:"Temp-Dir"`
	MaxDebSize        string `control:"Max-Deb-Size"`
	RequestsPerSecond string `control:"Requests-Per-Second"`
	Architectures     string `control:"Architectures"`
	Unpacker          string `control:"Unpacker"`
	Inspector         string `control:"Inspector"`
	ListingMaxAge     string `control:"Listing-Max-Age"`
	Timeout           string `control:"Timeout"`
	IndexURL          string `control:"Index-URL"`
	Public            string `control:"Public"`
	CredentialsFile   string `control:"Credentials-File"`
}

// Load returns Default() overridden by the settings in the file at path.
// A missing file is not an error.
func Load(path string) (Config, error) {
	cfg := Default()
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, err
	}
	if err := cfg.parse(b); err != nil {
		return cfg, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) parse(b []byte) error {
	if len(bytes.TrimSpace(b)) == 0 {
		return c.Validate()
	}
	var paragraphs []paragraph
	if err := control.Unmarshal(&paragraphs, bytes.NewReader(b)); err != nil {
		return err
	}
	var roots []Root
	for _, p := range paragraphs {
		if p.Root != "" {
			if _, err := debs.ClassifierByName(p.Filter); err != nil {
				return fmt.Errorf("root %s: %w", p.Root, err)
			}
			roots = append(roots, Root{URL: p.Root, Filter: p.Filter})
			continue
		}
		if p.Filter != "" {
			return fmt.Errorf("paragraph with Filter %q lacks a Root", p.Filter)
		}
		if err := c.apply(p); err != nil {
			return err
		}
	}
	if len(roots) > 0 {
		c.Roots = roots
	}
	return c.Validate()
}

func (c *Config) apply(p paragraph) error {
	if p.Workers != "" {
		n, err := strconv.Atoi(p.Workers)
		if err != nil {
			return fmt.Errorf("invalid Workers value %q: %v", p.Workers, err)
		}
		c.Workers = n
	}
	if p.CacheDir != "" {
		c.CacheDir = p.CacheDir
	}
	if p.TempDir != "" {
		c.TempDir = p.TempDir
	}
	if p.MaxDebSize != "" {
		n, err := humanbytes.Parse(p.MaxDebSize)
		if err != nil {
			return fmt.Errorf("invalid Max-Deb-Size value %q: %v", p.MaxDebSize, err)
		}
		c.MaxDebSize = n
	}
	if p.RequestsPerSecond != "" {
		f, err := strconv.ParseFloat(p.RequestsPerSecond, 64)
		if err != nil {
			return fmt.Errorf("invalid Requests-Per-Second value %q: %v", p.RequestsPerSecond, err)
		}
		c.RequestsPerSecond = f
	}
	if p.Architectures != "" {
		c.Architectures = strings.Fields(strings.ReplaceAll(p.Architectures, ",", " "))
	}
	if p.Unpacker != "" {
		c.Unpacker = p.Unpacker
	}
	if p.Inspector != "" {
		c.Inspector = p.Inspector
	}
	if p.ListingMaxAge != "" {
		d, err := time.ParseDuration(p.ListingMaxAge)
		if err != nil {
			return fmt.Errorf("invalid Listing-Max-Age value %q: %v", p.ListingMaxAge, err)
		}
		c.ListingMaxAge = d
	}
	if p.Timeout != "" {
		d, err := time.ParseDuration(p.Timeout)
		if err != nil {
			return fmt.Errorf("invalid Timeout value %q: %v", p.Timeout, err)
		}
		c.Timeout = d
	}
	if p.IndexURL != "" {
		c.IndexURL = p.IndexURL
	}
	if p.Public != "" {
		v, err := strconv.ParseBool(strings.ToLower(p.Public))
		if err != nil {
			switch strings.ToLower(p.Public) {
			case "yes":
				v = true
			case "no":
				v = false
			default:
				return fmt.Errorf("invalid Public value %q", p.Public)
			}
		}
		c.Public = v
	}
	if p.CredentialsFile != "" {
		c.CredentialsFile = p.CredentialsFile
	}
	return nil
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if c.Workers < 1 {
		return fmt.Errorf("invalid Workers value %d: must be at least 1", c.Workers)
	}
	if c.MaxDebSize < 0 {
		return fmt.Errorf("invalid Max-Deb-Size value %d: must not be negative", c.MaxDebSize)
	}
	if c.RequestsPerSecond < 0 {
		return fmt.Errorf("invalid Requests-Per-Second value %v: must not be negative", c.RequestsPerSecond)
	}
	if c.Timeout < 0 {
		return fmt.Errorf("invalid Timeout value %v: must not be negative", c.Timeout)
	}
	if len(c.Architectures) == 0 {
		return errors.New("no architectures configured")
	}
	if _, err := unpack.ByName(c.Unpacker); err != nil {
		return err
	}
	if _, err := inspect.ByName(c.Inspector); err != nil {
		return err
	}
	return nil
}
