package cmd

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/glintsearch/glint/pkg/app"
)

var (
	// Global flags
	configPath string
	indexPath  string
	limit      int
	extFilters []string
	filesOnly  bool
	dirsOnly   bool
	verbose    bool
	quiet      bool
)

var rootCmd = &cobra.Command{
	Use:   "glint",
	Short: "Near-instant file name search over NTFS volumes",
	Long: `glint indexes every file name on your NTFS volumes by reading the
Master File Table directly and keeps the index fresh by tailing the USN
change journal. Queries over millions of entries return in milliseconds.

Commands:
  index        Build or rebuild the file index
  query        Search for files matching a pattern
  interactive  Prompt loop for repeated queries
  watch        Apply live filesystem changes to the index
  status       Show index statistics and journal positions
  clear        Delete the index and all persisted data`,
	Version:       "0.1.0",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the CLI and exits with the documented code contract.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(app.ExitCode(err))
	}
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&configPath, "config", "", "path to the configuration file")
	pf.StringVar(&indexPath, "index", "", "path to the index snapshot file")
	pf.IntVar(&limit, "limit", 0, "maximum number of results (0 = config default)")
	pf.StringArrayVarP(&extFilters, "ext", "e", nil, "filter by extension (repeatable)")
	pf.BoolVar(&filesOnly, "files-only", false, "only show files")
	pf.BoolVar(&dirsOnly, "dirs-only", false, "only show directories")
	pf.BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	pf.BoolVarP(&quiet, "quiet", "q", false, "suppress output except errors")

	rootCmd.AddCommand(
		indexCmd,
		queryCmd,
		interactiveCmd,
		watchCmd,
		statusCmd,
		clearCmd,
	)
}

// newApp assembles the application handle with logging configured from
// the config file and the verbosity flags.
func newApp() (*app.App, error) {
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	a, err := app.New(app.Options{
		ConfigPath: configPath,
		IndexPath:  indexPath,
		Logger:     logger,
	})
	if err != nil {
		return nil, err
	}

	level := levelFor(a.Config.General.LogLevel)
	if verbose {
		level = zerolog.DebugLevel
	}
	if quiet {
		level = zerolog.ErrorLevel
	}
	zerolog.SetGlobalLevel(level)
	log.Logger = logger.Level(level)
	return a, nil
}

func levelFor(name string) zerolog.Level {
	switch name {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

func queryFilters() app.QueryFilters {
	return app.QueryFilters{
		Extensions: extFilters,
		FilesOnly:  filesOnly,
		DirsOnly:   dirsOnly,
	}
}

func resultLimit() int {
	if limit > 0 {
		return limit
	}
	return 0
}
