package cmd

import (
	"os"
	"os/signal"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var watchForeground bool

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Apply live filesystem changes to the index",
	Long: `Tail the USN change journal of every indexed volume and fold the
changes into the index. The snapshot is loaded first; when none loads, a full scan builds the index.
On journal loss the affected volume is rescanned automatically. The
updated snapshot is written on shutdown.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		if err := a.LoadOrBuild(cmd.Context()); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		log.Info().Msg("watching for changes, interrupt to stop")
		return a.Watch(ctx)
	},
}

func init() {
	watchCmd.Flags().BoolVarP(&watchForeground, "foreground", "f", true, "run in the foreground")
}
