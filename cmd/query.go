package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/glintsearch/glint/pkg/app"
)

var queryOutput string

var queryCmd = &cobra.Command{
	Use:   "query <pattern>",
	Short: "Search for files matching a pattern",
	Long: `Search the index. Patterns support substrings, wildcards (* and ?),
regular expressions (r/…/), and filter terms (ext:, file:, dir:, path:,
in:).

Examples:
  glint query readme
  glint query "*.rs" --limit 50
  glint query "config ext:toml,ini"
  glint query "r/test_\d+/" --files-only`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		if err := a.LoadOrBuild(cmd.Context()); err != nil {
			return err
		}

		rows, err := a.Query(cmd.Context(), args[0], queryFilters(), resultLimit())
		if err != nil {
			return err
		}
		return printRows(rows)
	},
}

func init() {
	queryCmd.Flags().StringVarP(&queryOutput, "output", "o", "text", "output format (text, json)")
}

func printRows(rows []app.ResultRow) error {
	switch queryOutput {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(rows)
	default:
		w := tabwriter.NewWriter(os.Stdout, 2, 4, 2, ' ', 0)
		for _, r := range rows {
			kind := "file"
			if r.IsDir {
				kind = "dir"
			}
			fmt.Fprintf(w, "%s\t%s\t%d\n", r.FullPath, kind, r.Size)
		}
		return w.Flush()
	}
}
