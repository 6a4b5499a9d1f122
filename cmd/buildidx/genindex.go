package main

import (
	"io"

	"github.com/spf13/cobra"

	"github.com/Debian/buildidx/internal/index"
	"github.com/Debian/buildidx/internal/write"
)

// The lookup file supports one operation:
// <build-id> → <deb-url>\t<path>
//
// top-level index:
// uint32(<block-offset>), uint32(<block-len>) per key length
// in each same-len-block, keys are sorted and yield an uint32(<value-offset>),
// where one can read one line (<deb-url>\t<path>)

func newGenerateIndexCmd(inv *invocation) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "generate-index",
		Short: "Write the build ID lookup file used by lookup",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if output == "" {
				output = inv.cfg.LookupPath()
			}
			_, err := inv.generateIndex(output)
			return err
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o",
		"",
		"Path of the lookup file (default: build-ids.index in the cache directory)")
	return cmd
}

func (i *invocation) generateIndex(dest string) (int, error) {
	idx, err := i.openIndex()
	if err != nil {
		return 0, err
	}
	locs := index.Locations(idx.Snapshot())
	if err := write.Atomically(dest, func(w io.Writer) error {
		return index.Encode(w, locs)
	}); err != nil {
		return 0, err
	}
	i.log.Info("lookup file written", "path", dest, "debs", idx.Len(), "build_ids", len(locs))
	return len(locs), nil
}
