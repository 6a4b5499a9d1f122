// Package debs finds the packages of a repository directory that are worth
// inspecting and extracts the build IDs of the ELF files they install.
package debs

import (
	"context"
	"fmt"
	"net/url"
	"path"
	"sort"
	"strings"

	"pault.ag/go/debian/version"
)

// DefaultArchitectures are the architectures whose packages are processed
// unless configured otherwise.
var DefaultArchitectures = []string{"amd64", "i386"}

// Classifier decides whether a package is relevant, e.g. whether it
// contains debug symbols.
type Classifier interface {
	Relevant(debURL string) bool
}

// ClassifierFunc adapts an ordinary function to the Classifier interface.
type ClassifierFunc func(debURL string) bool

func (f ClassifierFunc) Relevant(debURL string) bool { return f(debURL) }

// AnyPackage considers every package relevant.
type AnyPackage struct{}

func (AnyPackage) Relevant(string) bool { return true }

// NameSuffix considers packages relevant whose name ends in Suffix.
type NameSuffix struct {
	Suffix string
}

func (n NameSuffix) Relevant(debURL string) bool {
	fn, err := ParseFilename(debURL)
	if err != nil {
		return false
	}
	return strings.HasSuffix(fn.Package, n.Suffix)
}

// ClassifierByName returns the Classifier configured by name: "" or "any"
// for AnyPackage, "dbg" or "dbgsym" for the respective package name suffix.
func ClassifierByName(name string) (Classifier, error) {
	switch name {
	case "", "any":
		return AnyPackage{}, nil
	case "dbg", "dbgsym":
		return NameSuffix{Suffix: "-" + name}, nil
	}
	return nil, fmt.Errorf("unknown filter %q (want one of any, dbg, dbgsym)", name)
}

// Filename is the decomposition of a package file name of the form
// <package>_<version>_<architecture>.<ext>.
type Filename struct {
	Package      string
	Version      string
	Architecture string
	Ext          string
}

var packageExts = map[string]bool{
	".deb":  true,
	".ddeb": true,
	".udeb": true,
}

// ParseFilename decomposes the last path element of debURL.
func ParseFilename(debURL string) (Filename, error) {
	u, err := url.Parse(debURL)
	if err != nil {
		return Filename{}, err
	}
	base := path.Base(u.Path)
	ext := path.Ext(base)
	if !packageExts[ext] {
		return Filename{}, fmt.Errorf("%q is not a package file name", base)
	}
	stem := strings.TrimSuffix(base, ext)
	first, last := strings.Index(stem, "_"), strings.LastIndex(stem, "_")
	if first == -1 {
		return Filename{}, fmt.Errorf("%q lacks an architecture", base)
	}
	fn := Filename{
		Package:      stem[:first],
		Architecture: stem[last+1:],
		Ext:          ext,
	}
	if first != last {
		fn.Version = stem[first+1 : last]
	}
	return fn, nil
}

// Lister returns the absolute URLs linked from a directory listing.
type Lister interface {
	Links(ctx context.Context, uri string) ([]string, error)
}

// Locator finds the relevant packages of a directory.
type Locator struct {
	Lister Lister

	// Architectures defaults to DefaultArchitectures.
	Architectures []string

	// Classifier defaults to AnyPackage.
	Classifier Classifier
}

// kernelImage reports whether fn names a linux-image package. These are
// huge and never carry useful build IDs.
func kernelImage(fn Filename) bool {
	return strings.HasPrefix(fn.Package, "linux-image")
}

// RelevantDebs returns the packages linked from dirURL which are built for
// one of the configured architectures, are accepted by the classifier and are
// not kernel images. The result is ordered by package name and version.
func (l *Locator) RelevantDebs(ctx context.Context, dirURL string) ([]string, error) {
	links, err := l.Lister.Links(ctx, dirURL)
	if err != nil {
		return nil, err
	}
	archs := l.Architectures
	if len(archs) == 0 {
		archs = DefaultArchitectures
	}
	allowed := make(map[string]bool, len(archs))
	for _, arch := range archs {
		allowed[arch] = true
	}
	classifier := l.Classifier
	if classifier == nil {
		classifier = AnyPackage{}
	}

	type candidate struct {
		url string
		fn  Filename
	}
	var candidates []candidate
	for _, link := range links {
		fn, err := ParseFilename(link)
		if err != nil {
			continue // not a package, e.g. a .dsc or a subdirectory
		}
		if !allowed[fn.Architecture] {
			continue
		}
		if kernelImage(fn) || !classifier.Relevant(link) {
			continue
		}
		candidates = append(candidates, candidate{link, fn})
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i].fn, candidates[j].fn
		if a.Package != b.Package {
			return a.Package < b.Package
		}
		if c := compareVersions(a.Version, b.Version); c != 0 {
			return c < 0
		}
		return candidates[i].url < candidates[j].url
	})
	debs := make([]string, 0, len(candidates))
	for _, c := range candidates {
		debs = append(debs, c.url)
	}
	return debs, nil
}

// compareVersions orders Debian versions, falling back to a string
// comparison for versions which do not parse.
func compareVersions(a, b string) int {
	va, erra := version.Parse(a)
	vb, errb := version.Parse(b)
	if erra != nil || errb != nil {
		return strings.Compare(a, b)
	}
	return version.Compare(va, vb)
}
