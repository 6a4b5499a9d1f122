package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Debian/buildidx/internal/index"
)

func newLookupCmd(inv *invocation) *cobra.Command {
	var indexPath string
	cmd := &cobra.Command{
		Use:   "lookup <build-id>...",
		Short: "Print the package providing each build ID",
		Long: `lookup prints one line per build ID in the format
<build-id>\t<deb-url>\t<path>, using the lookup file written by
generate-index.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if indexPath == "" {
				indexPath = inv.cfg.LookupPath()
			}
			if _, err := os.Stat(indexPath); os.IsNotExist(err) {
				return fmt.Errorf("lookup file %s not found, run generate-index first", indexPath)
			}
			var missing []string
			for _, arg := range args {
				id := strings.ToLower(arg)
				loc, err := index.Lookup(indexPath, id)
				if err != nil {
					if errors.Is(err, index.ErrNotFound) {
						inv.log.Debug("build ID not found", "build_id", id)
						missing = append(missing, arg)
						continue
					}
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n", id, loc.DebURL, loc.Path)
			}
			if len(missing) > 0 {
				return fmt.Errorf("build IDs not found: %s", strings.Join(missing, ", "))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&indexPath, "index",
		"",
		"Path of the lookup file (default: build-ids.index in the cache directory)")
	return cmd
}
