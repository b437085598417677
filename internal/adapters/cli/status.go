package cli

import (
	"strconv"

	"github.com/spf13/cobra"
)

func newStatusCmd(opts *rootOptions) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the stored datasets and cache freshness",
		Args:  cobra.NoArgs,
		RunE: withApp(opts, func(cmd *cobra.Command, _ []string, a *app) error {
			st, err := a.svc.Status(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if asJSON {
				return writeJSON(out, st)
			}
			rows := make([][]string, 0, len(st.Blobs))
			for _, b := range st.Blobs {
				rows = append(rows, []string{b.Key, strconv.FormatInt(b.Size, 10), b.LastModified.Format("2006-01-02 15:04:05Z07:00")})
			}
			renderTable(out, []string{"Key", "Bytes", "Modified"}, rows)
			freshness := "stale"
			switch {
			case st.ArtifactDigest == "":
				freshness = "absent"
			case st.ArtifactFresh:
				freshness = "fresh"
			}
			note(out, "driver "+string(st.Driver)+", cache "+freshness)
			return nil
		}),
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func newCacheCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the cache artifact",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Delete the cache artifact so reads recompute until the next run",
		Args:  cobra.NoArgs,
		RunE: withApp(opts, func(cmd *cobra.Command, _ []string, a *app) error {
			removed, err := a.svc.ClearCache(cmd.Context())
			if err != nil {
				return err
			}
			if removed {
				note(cmd.OutOrStdout(), "cache artifact removed")
			} else {
				note(cmd.OutOrStdout(), "no cache artifact present")
			}
			return nil
		}),
	})
	return cmd
}
