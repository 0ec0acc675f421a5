package cmd

import (
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	indexForce   bool
	indexVolumes []string
)

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Build or rebuild the file index",
	Long: `Scan the configured volumes and build the search index. When a
snapshot already loads and no volumes are named, the command keeps it and
does not scan; pass --force to rescan, or name specific volumes to scan
only those.

Examples:
  glint index
  glint index --volumes C: --volumes D:
  glint index --force`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}

		if !indexForce {
			if err := a.LoadIndex(); err == nil && len(indexVolumes) == 0 {
				log.Info().Msg("snapshot is present; use --force to rescan")
				return nil
			}
		}

		if err := a.BuildIndex(cmd.Context(), indexVolumes); err != nil {
			return err
		}
		st := a.Stats()
		log.Info().Uint64("files", st.Files).Uint64("dirs", st.Dirs).
			Int("volumes", st.Volumes).Msg("index built")
		return nil
	},
}

func init() {
	indexCmd.Flags().BoolVarP(&indexForce, "force", "f", false, "rescan even if a snapshot exists")
	indexCmd.Flags().StringArrayVarP(&indexVolumes, "volumes", "V", nil, "only index these volumes (e.g. C:)")
}
