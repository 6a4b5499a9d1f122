package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/Debian/buildidx/internal/cache"
	"github.com/Debian/buildidx/internal/config"
	"github.com/Debian/buildidx/internal/crawl"
	"github.com/Debian/buildidx/internal/debs"
	"github.com/Debian/buildidx/internal/inspect"
	"github.com/Debian/buildidx/internal/scrape"
	"github.com/Debian/buildidx/internal/unpack"
)

func newScanCmd(inv *invocation) *cobra.Command {
	var (
		filter        string
		metricsListen string
	)
	cmd := &cobra.Command{
		Use:   "scan [root-url...]",
		Short: "Crawl repository roots and index packages not seen before",
		Long: `scan walks the package directories two levels below each root URL
(e.g. pool/main/ → pool/main/c/ → pool/main/c/coreutils/), downloads every
relevant package which is not in the index yet and records its build IDs.

Without arguments, the roots of the configuration file are crawled.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			roots := inv.cfg.Roots
			if len(args) > 0 {
				if _, err := debs.ClassifierByName(filter); err != nil {
					return err
				}
				roots = nil
				for _, arg := range args {
					roots = append(roots, config.Root{URL: arg, Filter: filter})
				}
			}
			if metricsListen != "" {
				srv, err := inv.serveMetrics(metricsListen)
				if err != nil {
					return err
				}
				defer srv.Close()
			}
			return inv.scan(ctx, roots)
		},
	}
	cmd.Flags().StringVar(&filter, "filter",
		"",
		"Only index packages accepted by this filter (any, dbg or dbgsym); applies to the roots given as arguments")
	cmd.Flags().StringVar(&metricsListen, "metrics-listen",
		"",
		"If non-empty, serve Prometheus metrics on /metrics at this address, e.g. :9100")
	return cmd
}

func (i *invocation) serveMetrics(addr string) (*http.Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Handler: mux}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			i.log.Error("serving metrics failed", "addr", addr, "err", err)
		}
	}()
	i.log.Info("serving metrics", "addr", ln.Addr().String())
	return srv, nil
}

// scan crawls roots one after the other. A fatal error in one root aborts
// the remaining roots.
func (i *invocation) scan(ctx context.Context, roots []config.Root) error {
	idx, err := i.openIndex()
	if err != nil {
		return err
	}
	processed, err := cache.Open[bool](i.cfg.ProcessedPath())
	if err != nil {
		return err
	}
	unpacker, err := unpack.ByName(i.cfg.Unpacker)
	if err != nil {
		return err
	}
	inspector, err := inspect.ByName(i.cfg.Inspector)
	if err != nil {
		return err
	}

	fetcher := i.fetcher()
	scraper := &scrape.Scraper{
		Fetcher:  fetcher,
		Log:      i.log,
		CacheDir: i.cfg.CacheDir,
		MaxAge:   i.cfg.ListingMaxAge,
	}
	processor := &debs.Processor{
		Fetcher:   fetcher,
		Unpacker:  unpacker,
		Inspector: inspector,
		Log:       i.log,
		TempDir:   i.cfg.TempDir,
		MaxSize:   i.cfg.MaxDebSize,
	}
	for _, root := range roots {
		classifier, err := debs.ClassifierByName(root.Filter)
		if err != nil {
			return err
		}
		s := &crawl.Scheduler{
			Tree: scraper,
			Locator: &debs.Locator{
				Lister:        scraper,
				Architectures: i.cfg.Architectures,
				Classifier:    classifier,
			},
			Processor: processor,
			Index:     idx,
			Processed: processed,
			Workers:   i.cfg.Workers,
			Log:       i.log.With("root", root.URL),
		}
		stats, err := s.Run(ctx, root.URL)
		i.log.Info("scan finished",
			"root", root.URL,
			"directories", stats.Directories,
			"skipped", stats.Skipped,
			"completed", stats.Completed,
			"unlisted", stats.Unlisted,
			"indexed", stats.Indexed,
			"failed", stats.Failed,
			"build_ids", stats.Records)
		if err != nil {
			return err
		}
	}
	i.log.Info("index updated", "path", idx.Path(), "debs", idx.Len())
	return nil
}
