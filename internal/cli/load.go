package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var loadCmd = &cobra.Command{
	Use:   "load",
	Short: "Scan the registry root and report the result",
	Long: `Perform a full directory scan and print how many definitions loaded
and which files could not be parsed. Unparseable files never block their
valid neighbors.`,
	RunE: runLoad,
}

func init() {
	rootCmd.AddCommand(loadCmd)
}

func runLoad(cmd *cobra.Command, args []string) error {
	store, report, err := openStore()
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Loaded %d definition(s) from %s\n", report.Loaded, store.Root())
	if len(report.Failures) > 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "%d file(s) failed to parse:\n", len(report.Failures))
		for _, f := range report.Failures {
			fmt.Fprintf(cmd.OutOrStdout(), "  %s: %v\n", f.Path, f.Err)
		}
	}
	return nil
}
