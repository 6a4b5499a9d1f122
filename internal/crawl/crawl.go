// Package crawl walks a package repository and records the build IDs of all
// relevant packages it has not seen before.
//
// Progress is kept in two caches: the index (package URL to build IDs) and
// the set of processed directories. A directory is only marked processed
// once every package located in it was attempted, so an interrupted run
// resumes where it stopped.
package crawl

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Debian/buildidx/internal/cache"
	"github.com/Debian/buildidx/internal/index"
)

// TreeWalker lists the package directories below a repository root.
type TreeWalker interface {
	Tree(ctx context.Context, root string) ([]string, error)
}

// Locator lists the relevant packages of one directory.
type Locator interface {
	RelevantDebs(ctx context.Context, dirURL string) ([]string, error)
}

// Processor extracts the build IDs of one package.
type Processor interface {
	Process(ctx context.Context, debURL string) ([]index.Record, error)
}

// Scheduler drives a crawl. Directories are handled in batches of Workers
// directories; batch N+1 only starts once every directory of batch N was
// either marked processed or given up on.
type Scheduler struct {
	Tree      TreeWalker
	Locator   Locator
	Processor Processor

	Index     *cache.Cache[index.Entry]
	Processed *cache.Cache[bool]

	// Workers bounds both the number of concurrent directory listings and
	// the number of concurrent package downloads. Defaults to
	// runtime.NumCPU().
	Workers int

	Log *slog.Logger
}

// Stats summarizes a Run.
type Stats struct {
	Directories int // directories found below the root
	Skipped     int // already processed in an earlier run
	Completed   int // marked processed by this run
	Unlisted    int // listing failed, retried next run

	Debs    int // packages submitted for processing
	Indexed int
	Failed  int
	Records int
}

func (s *Scheduler) log() *slog.Logger {
	if s.Log == nil {
		return slog.Default()
	}
	return s.Log
}

func (s *Scheduler) workers() int {
	if s.Workers > 0 {
		return s.Workers
	}
	return runtime.NumCPU()
}

// Run crawls root. Failures of individual packages or directory listings are
// logged and do not fail the run. An unreachable root, a cache write error or
// the cancellation of ctx do; in that case the directories whose packages
// were not all attempted stay unmarked.
func (s *Scheduler) Run(ctx context.Context, root string) (Stats, error) {
	var stats Stats
	dirs, err := s.Tree.Tree(ctx, root)
	if err != nil {
		return stats, fmt.Errorf("listing %s: %w", root, err)
	}
	stats.Directories = len(dirs)

	var todo []string
	for _, dir := range dirs {
		if s.Processed.Contains(dir) {
			stats.Skipped++
			continue
		}
		todo = append(todo, dir)
	}
	s.log().Info("discovered directories",
		"root", root,
		"total", len(dirs),
		"unprocessed", len(todo))

	// attempted holds the packages submitted by earlier batches of this run,
	// so that a failed package linked from several directories is only
	// downloaded once.
	attempted := make(map[string]bool)
	workers := s.workers()
	for start := 0; start < len(todo); start += workers {
		end := min(start+workers, len(todo))
		s.log().Info("processing next batch", "directories", end-start)
		if err := s.batch(ctx, todo[start:end], attempted, &stats); err != nil {
			return stats, err
		}
		s.log().Info("batch done",
			"done", end,
			"total", len(todo),
			"indexed", stats.Indexed,
			"failed", stats.Failed)
	}
	return stats, nil
}

func (s *Scheduler) batch(ctx context.Context, dirs []string, attempted map[string]bool, stats *Stats) error {
	located := make([][]string, len(dirs))
	errs := make([]error, len(dirs))
	var leg errgroup.Group
	leg.SetLimit(s.workers())
	for idx, dir := range dirs {
		idx, dir := idx, dir // copy
		leg.Go(func() error {
			located[idx], errs[idx] = s.Locator.RelevantDebs(ctx, dir)
			return nil
		})
	}
	leg.Wait()
	if err := ctx.Err(); err != nil {
		return err
	}

	// remaining counts the outstanding packages per directory, owners maps
	// each pending package to the directories linking to it.
	remaining := make(map[string]int)
	owners := make(map[string][]string)
	var pending []string
	for idx, dir := range dirs {
		if err := errs[idx]; err != nil {
			s.log().Warn("listing directory failed", "dir", dir, "err", err)
			directoriesCounter.WithLabelValues("unlisted").Inc()
			stats.Unlisted++
			continue
		}
		n := 0
		for _, deb := range located[idx] {
			if s.Index.Contains(deb) || attempted[deb] {
				continue
			}
			if _, ok := owners[deb]; !ok {
				pending = append(pending, deb)
			}
			owners[deb] = append(owners[deb], dir)
			n++
		}
		s.log().Info("located packages",
			"dir", dir,
			"relevant", len(located[idx]),
			"new", n)
		remaining[dir] = n
		if n == 0 {
			if err := s.markProcessed(dir, stats); err != nil {
				return err
			}
		}
	}
	stats.Debs += len(pending)
	for _, deb := range pending {
		attempted[deb] = true
	}

	var mu sync.Mutex // guards remaining and stats
	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(s.workers())
	for _, deb := range pending {
		deb := deb // copy
		eg.Go(func() error {
			start := time.Now()
			records, err := s.Processor.Process(ctx, deb)
			debDuration.Observe(time.Since(start).Seconds())
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err() // not really attempted
				}
				s.log().Warn("processing package failed", "deb", deb, "err", err)
				debsCounter.WithLabelValues("failed").Inc()
			} else {
				if err := s.Index.Set(deb, index.Entry(records)); err != nil {
					return err
				}
				s.log().Info("processed package", "deb", deb, "build_ids", len(records))
				debsCounter.WithLabelValues("indexed").Inc()
				recordsCounter.Add(float64(len(records)))
			}

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				stats.Failed++
			} else {
				stats.Indexed++
				stats.Records += len(records)
			}
			for _, dir := range owners[deb] {
				remaining[dir]--
				if remaining[dir] == 0 {
					if err := s.markProcessed(dir, stats); err != nil {
						return err
					}
				}
			}
			return nil
		})
	}
	return eg.Wait()
}

// markProcessed must be called with exclusive access to stats.
func (s *Scheduler) markProcessed(dir string, stats *Stats) error {
	if err := s.Processed.Set(dir, true); err != nil {
		return err
	}
	directoriesCounter.WithLabelValues("completed").Inc()
	stats.Completed++
	return nil
}
