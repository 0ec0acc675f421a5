package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show index statistics and journal positions",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		if err := a.LoadIndex(); err != nil {
			return err
		}

		st := a.Stats()
		fmt.Printf("Snapshot: %s\n", a.SnapshotPath())
		if info, err := os.Stat(a.SnapshotPath()); err == nil {
			fmt.Printf("Snapshot size: %d bytes\n", info.Size())
		}
		fmt.Printf("Records: %d (%d files, %d directories)\n", st.Records, st.Files, st.Dirs)
		fmt.Printf("Tombstones awaiting compaction: %d\n", st.Tombstones)
		fmt.Printf("Generation: %d\n\n", st.Generation)

		w := tabwriter.NewWriter(os.Stdout, 2, 4, 2, ' ', 0)
		fmt.Fprintln(w, "VOLUME\tLABEL\tSERIAL\tLAST USN")
		for _, v := range a.Volumes() {
			fmt.Fprintf(w, "%s\t%s\t%08X\t%d\n", v.Info.Mount, v.Info.Label, v.Info.Serial, v.LastUSN)
		}
		return w.Flush()
	},
}
