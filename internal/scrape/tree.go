package scrape

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Debian/buildidx/internal/write"
)

// Tree returns the package directories two levels below root, e.g.
// pool/main/ → pool/main/c/ → pool/main/c/coreutils/.
//
// A failure to list root is returned. A failure to list one of the first
// level directories is logged and its subtree skipped; such an incomplete
// tree is not memoized.
func (s *Scraper) Tree(ctx context.Context, root string) ([]string, error) {
	memo := s.memoPath(root)
	if dirs, ok := s.loadMemo(memo); ok {
		s.log().Info("using cached package listing", "root", root, "path", memo, "directories", len(dirs))
		return dirs, nil
	}

	s.log().Info("scraping package listing", "root", root)
	tops, err := s.ChildDirectories(ctx, root)
	if err != nil {
		return nil, err
	}
	var (
		dirs     = make([]string, 0)
		complete = true
	)
	for _, top := range tops {
		children, err := s.ChildDirectories(ctx, top)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			s.log().Warn("skipping unlistable directory", "url", top, "err", err)
			complete = false
			continue
		}
		s.log().Debug("discovered package directories", "url", top, "count", len(children))
		dirs = append(dirs, children...)
	}

	if memo != "" && complete {
		if err := os.MkdirAll(filepath.Dir(memo), 0755); err != nil {
			return nil, err
		}
		if err := write.Atomically(memo, func(w io.Writer) error {
			return json.NewEncoder(w).Encode(dirs)
		}); err != nil {
			return nil, err
		}
	}
	return dirs, nil
}

func (s *Scraper) memoPath(root string) string {
	if s.CacheDir == "" {
		return ""
	}
	return filepath.Join(s.CacheDir, "listings", alnum(root)+".json")
}

func (s *Scraper) loadMemo(path string) ([]string, bool) {
	if path == "" {
		return nil, false
	}
	fi, err := os.Stat(path)
	if err != nil {
		return nil, false
	}
	if s.MaxAge > 0 && time.Since(fi.ModTime()) > s.MaxAge {
		s.log().Debug("cached package listing expired", "path", path, "modified", fi.ModTime())
		return nil, false
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, false
	}
	var dirs []string
	if err := json.Unmarshal(b, &dirs); err != nil {
		s.log().Warn("ignoring corrupt package listing cache", "path", path, "err", err)
		return nil, false
	}
	return dirs, true
}

// alnum keeps only the letters and digits of s, turning a URL into a file
// name.
func alnum(s string) string {
	return strings.Map(func(r rune) rune {
		if ('a' <= r && r <= 'z') || ('A' <= r && r <= 'Z') || ('0' <= r && r <= '9') {
			return r
		}
		return -1
	}, s)
}
