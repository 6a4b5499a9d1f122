package main

import (
	"context"
	"errors"
	"os"

	"github.com/spf13/cobra"

	"github.com/Debian/buildidx/internal/blob"
	"github.com/Debian/buildidx/internal/cache"
	"github.com/Debian/buildidx/internal/index"
)

func newPullCmd(inv *invocation) *cobra.Command {
	var replace bool
	cmd := &cobra.Command{
		Use:   "pull [index-url]",
		Short: "Download the published index and merge it into the local index",
		Long: `pull downloads the gzip-compressed index from index-url (default:
Index-URL from the config file), e.g. gs://bucket/ddebs.json or
file:///srv/www/ddebs.json.

Packages missing from the local index are added; local entries are kept.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, key, err := inv.openStore(cmd.Context(), args)
			if err != nil {
				return err
			}
			defer store.Close()
			return inv.pull(cmd.Context(), store, key, replace)
		},
	}
	cmd.Flags().BoolVar(&replace, "replace",
		false,
		"Replace the local index instead of merging")
	return cmd
}

func newPushCmd(inv *invocation) *cobra.Command {
	return &cobra.Command{
		Use:   "push [index-url]",
		Short: "Upload the local index, gzip-compressed",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, key, err := inv.openStore(cmd.Context(), args)
			if err != nil {
				return err
			}
			defer store.Close()
			return inv.push(cmd.Context(), store, key)
		},
	}
}

func (i *invocation) openStore(ctx context.Context, args []string) (blob.Store, string, error) {
	uri := i.cfg.IndexURL
	if len(args) > 0 {
		uri = args[0]
	}
	if uri == "" {
		return nil, "", errors.New("no index URL given and no Index-URL configured")
	}
	return blob.Open(ctx, uri, blob.Options{
		CredentialsFile: i.cfg.CredentialsFile,
		Public:          i.cfg.Public,
	})
}

func (i *invocation) pull(ctx context.Context, store blob.Store, key string, replace bool) error {
	dest := i.cfg.BuildIDsPath()
	if replace {
		n, err := blob.Pull(ctx, store, key, dest)
		if err != nil {
			return err
		}
		i.log.Info("replaced index", "key", key, "path", dest, "bytes", n)
		return nil
	}

	tmp := dest + ".pulled"
	defer os.Remove(tmp)
	if _, err := blob.Pull(ctx, store, key, tmp); err != nil {
		return err
	}
	remote, err := cache.Open[index.Entry](tmp)
	if err != nil {
		return err
	}
	idx, err := i.openIndex()
	if err != nil {
		return err
	}
	added, err := idx.Merge(remote.Snapshot())
	if err != nil {
		return err
	}
	i.log.Info("merged published index", "key", key, "published", remote.Len(), "added", added, "debs", idx.Len())
	return nil
}

func (i *invocation) push(ctx context.Context, store blob.Store, key string) error {
	if err := blob.Push(ctx, store, key, i.cfg.BuildIDsPath()); err != nil {
		return err
	}
	i.log.Info("published index", "key", key)
	return nil
}
