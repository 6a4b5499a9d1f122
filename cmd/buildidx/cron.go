package main

import (
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Debian/buildidx/internal/blob"
)

func newCronCmd(inv *invocation) *cobra.Command {
	return &cobra.Command{
		Use:   "cron",
		Short: "Pull the published index, scan all configured roots, push the index",
		Long: `cron is the unattended job: it merges the published index (Index-URL)
into the local index, crawls every root of the configuration file, refreshes
the lookup file and publishes the updated index.

The index is only published when every root was crawled without a fatal
error.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			store, key, err := inv.openStore(ctx, nil)
			if err != nil {
				return err
			}
			defer store.Close()

			if err := inv.pull(ctx, store, key, false); err != nil {
				if !errors.Is(err, blob.ErrNotExist) {
					return err
				}
				inv.log.Warn("no published index yet, starting from the local index", "key", key)
			}
			if err := inv.scan(ctx, inv.cfg.Roots); err != nil {
				return err
			}
			if _, err := inv.generateIndex(inv.cfg.LookupPath()); err != nil {
				return err
			}
			return inv.push(ctx, store, key)
		},
	}
}
