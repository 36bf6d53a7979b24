package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var findCmd = &cobra.Command{
	Use:   "find <serviceID>",
	Short: "Resolve the definition matching a service identifier",
	Long: `Evaluate all definitions whose pattern matches the given service
identifier and print the winner: lowest evaluation order, ties broken by id.`,
	Args: cobra.ExactArgs(1),
	RunE: runFind,
}

func init() {
	rootCmd.AddCommand(findCmd)
}

func runFind(cmd *cobra.Command, args []string) error {
	store, _, err := openStore()
	if err != nil {
		return err
	}

	def, ok := store.FindService(args[0])
	if !ok {
		return fmt.Errorf("no service definition matches %q", args[0])
	}

	out, err := json.MarshalIndent(def, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling definition: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return nil
}
