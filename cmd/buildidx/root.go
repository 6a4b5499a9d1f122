package main

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"github.com/Debian/buildidx/internal/cache"
	"github.com/Debian/buildidx/internal/config"
	"github.com/Debian/buildidx/internal/index"
	"github.com/Debian/buildidx/internal/scrape"
)

type invocation struct {
	configPath string
	verbose    bool
	logFile    string
	cacheDir   string
	workers    int

	cfg    config.Config
	log    *slog.Logger
	closer io.Closer // log file

	client *http.Client // for testing
}

// NewRootCmd returns the buildidx command with all subcommands.
func NewRootCmd() *cobra.Command {
	inv := &invocation{}
	cmd := &cobra.Command{
		Use:   "buildidx",
		Short: "Index the ELF build IDs of Debian packages",
		Long: `buildidx crawls the HTML directory listings of package repositories,
downloads the relevant .deb files and records the build ID of every ELF file
they contain.

Progress is kept in the cache directory, so an interrupted crawl resumes
where it stopped.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return inv.setup(cmd)
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return inv.close()
		},
	}

	cmd.PersistentFlags().StringVar(&inv.configPath, "config",
		config.Path(),
		"Path to the deb822 configuration file")
	cmd.PersistentFlags().BoolVarP(&inv.verbose, "verbose", "v",
		false,
		"Whether to log debug messages")
	cmd.PersistentFlags().StringVar(&inv.logFile, "log-file",
		"",
		"Append log messages to this file instead of stderr")
	cmd.PersistentFlags().StringVar(&inv.cacheDir, "cache-dir",
		"",
		"Directory holding the index and the crawl progress (default: Cache-Dir from the config file)")
	cmd.PersistentFlags().IntVarP(&inv.workers, "workers", "j",
		0,
		"Number of concurrent downloads (default: Workers from the config file)")

	cmd.AddCommand(newScanCmd(inv))
	cmd.AddCommand(newCronCmd(inv))
	cmd.AddCommand(newGenerateIndexCmd(inv))
	cmd.AddCommand(newLookupCmd(inv))
	cmd.AddCommand(newPullCmd(inv))
	cmd.AddCommand(newPushCmd(inv))
	cmd.AddCommand(newExportCmd(inv))
	return cmd
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func (i *invocation) setup(cmd *cobra.Command) error {
	var w io.Writer = cmd.ErrOrStderr()
	if i.logFile != "" {
		f, err := os.OpenFile(i.logFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return err
		}
		i.closer = f
		w = f
	}
	level := slog.LevelInfo
	if i.verbose {
		level = slog.LevelDebug
	}
	i.log = slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(i.log)

	cfg, err := config.Load(resolveTilde(i.configPath))
	if err != nil {
		return err
	}
	if i.cacheDir != "" {
		cfg.CacheDir = resolveTilde(i.cacheDir)
	}
	if i.workers != 0 {
		cfg.Workers = i.workers
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	i.cfg = cfg
	i.log.Debug("configuration loaded", "path", i.configPath, "config", fmt.Sprintf("%+v", cfg))
	return os.MkdirAll(cfg.CacheDir, 0755)
}

func (i *invocation) close() error {
	if i.closer == nil {
		return nil
	}
	return i.closer.Close()
}

func (i *invocation) fetcher() *scrape.Fetcher {
	f := &scrape.Fetcher{
		Client:  i.client,
		Timeout: i.cfg.Timeout,
	}
	if rps := i.cfg.RequestsPerSecond; rps > 0 {
		f.Limiter = rate.NewLimiter(rate.Limit(rps), 1)
	}
	return f
}

func (i *invocation) openIndex() (*cache.Cache[index.Entry], error) {
	return cache.Open[index.Entry](i.cfg.BuildIDsPath())
}

func resolveTilde(s string) string {
	if !strings.HasPrefix(s, "~") {
		return s
	}
	// bash passes paths with a tilde prefix unexpanded in --flag=~/… form.
	homedir, err := os.UserHomeDir()
	if err != nil {
		return s
	}
	return filepath.Join(homedir, strings.TrimPrefix(s, "~"))
}
