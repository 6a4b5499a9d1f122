// Package scrape walks HTML directory listings as served by Apache, nginx and
// similar web servers in front of Debian package pools.
package scrape

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/html"
)

// ParseError is returned when a listing could not be read or parsed.
type ParseError struct {
	URL string
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parsing listing %s: %v", e.URL, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Scraper lists the links of directory listings.
type Scraper struct {
	Fetcher *Fetcher
	Log     *slog.Logger

	// CacheDir holds the memoized trees written by Tree. Memoization is
	// disabled when empty.
	CacheDir string

	// MaxAge bounds how long a memoized tree is reused. Zero means forever.
	MaxAge time.Duration
}

func (s *Scraper) log() *slog.Logger {
	if s.Log == nil {
		return slog.Default()
	}
	return s.Log
}

// Links returns the absolute URL of every entry of the listing at uri. Only
// anchors whose text equals their href are considered entries, which skips
// the parent directory link and the column sort links.
func (s *Scraper) Links(ctx context.Context, uri string) ([]string, error) {
	base, err := url.Parse(uri)
	if err != nil {
		return nil, &FetchError{URL: uri, Err: err}
	}
	resp, err := s.Fetcher.Get(ctx, uri)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	links, err := parseLinks(base, resp.Body)
	if err != nil {
		return nil, &ParseError{URL: uri, Err: err}
	}
	return links, nil
}

// ChildDirectories returns the entries of the listing at uri which are
// directories themselves.
func (s *Scraper) ChildDirectories(ctx context.Context, uri string) ([]string, error) {
	links, err := s.Links(ctx, uri)
	if err != nil {
		return nil, err
	}
	dirs := links[:0]
	for _, link := range links {
		if strings.HasSuffix(link, "/") {
			dirs = append(dirs, link)
		}
	}
	return dirs, nil
}

func parseLinks(base *url.URL, r io.Reader) ([]string, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, err
	}
	var (
		links []string
		seen  = make(map[string]bool)
		walk  func(*html.Node)
	)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "a" {
			if href, ok := attr(n, "href"); ok && href != "" && href == text(n) {
				if ref, err := url.Parse(href); err == nil {
					abs := base.ResolveReference(ref).String()
					if !seen[abs] {
						seen[abs] = true
						links = append(links, abs)
					}
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return links, nil
}

func attr(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

// text returns the first text child of n.
func text(n *html.Node) string {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.TextNode {
			return c.Data
		}
	}
	return ""
}
