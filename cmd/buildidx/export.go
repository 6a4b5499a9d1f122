package main

import (
	"github.com/spf13/cobra"

	"github.com/Debian/buildidx/internal/sqlexport"
)

func newExportCmd(inv *invocation) *cobra.Command {
	return &cobra.Command{
		Use:   "export <database>",
		Short: "Export the index into an SQLite database",
		Long: `export replaces the SQLite database at the given path with the contents
of the index: table debs(deb_url, build_ids) lists every indexed package,
table build_ids(build_id, path, deb_url) every file with a build ID.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			idx, err := inv.openIndex()
			if err != nil {
				return err
			}
			stats, err := sqlexport.Export(cmd.Context(), args[0], idx.Snapshot())
			if err != nil {
				return err
			}
			inv.log.Info("exported index", "path", args[0], "debs", stats.Debs, "build_ids", stats.Records)
			return nil
		},
	}
}
