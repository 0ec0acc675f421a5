package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var interactiveCmd = &cobra.Command{
	Use:     "interactive",
	Aliases: []string{"i"},
	Short:   "Prompt loop for repeated queries",
	Long: `Read queries from standard input and print matches until EOF or an
"exit"/"quit" line; empty lines are skipped. The index is loaded once up front, so every
query hits the in-memory index.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		if err := a.LoadOrBuild(cmd.Context()); err != nil {
			return err
		}

		scanner := bufio.NewScanner(os.Stdin)
		for {
			fmt.Print("glint> ")
			if !scanner.Scan() {
				fmt.Println()
				return scanner.Err()
			}
			line := strings.TrimSpace(scanner.Text())
			if line == "exit" || line == "quit" {
				return nil
			}
			if line == "" {
				continue
			}

			rows, err := a.Query(cmd.Context(), line, queryFilters(), resultLimit())
			if err != nil {
				fmt.Fprintf(os.Stderr, "error: %v\n", err)
				continue
			}
			for _, r := range rows {
				fmt.Println(r.FullPath)
			}
			fmt.Printf("%d results\n", len(rows))
		}
	},
}
