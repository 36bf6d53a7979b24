package cli

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var listJSON bool

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered service definitions",
	Long:  `List all service definitions found under the registry root.`,
	RunE:  runList,
}

func init() {
	listCmd.Flags().BoolVar(&listJSON, "json", false, "Output in JSON format")
	rootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	store, report, err := openStore()
	if err != nil {
		return err
	}

	defs := store.Definitions()
	if listJSON {
		out, err := json.MarshalIndent(defs, "", "  ")
		if err != nil {
			return fmt.Errorf("marshaling definitions: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(out))
		return nil
	}

	if len(defs) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No service definitions registered yet.")
		return nil
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tORDER\tPATTERN")
	for _, d := range defs {
		fmt.Fprintf(w, "%d\t%s\t%d\t%s\n", d.ID, d.Name, d.EvaluationOrder, d.ServiceIDPattern)
	}
	w.Flush()

	if len(report.Failures) > 0 {
		fmt.Fprintf(cmd.ErrOrStderr(), "\n%d file(s) could not be parsed; run '%s load' for details.\n",
			len(report.Failures), rootCmd.Use)
	}
	return nil
}
