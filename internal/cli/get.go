package cli

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

var getCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Show a service definition by id",
	Args:  cobra.ExactArgs(1),
	RunE:  runGet,
}

func init() {
	rootCmd.AddCommand(getCmd)
}

func runGet(cmd *cobra.Command, args []string) error {
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid id %q: %w", args[0], err)
	}

	store, _, err := openStore()
	if err != nil {
		return err
	}

	def, ok := store.FindByID(id)
	if !ok {
		return fmt.Errorf("no service definition with id %d", id)
	}

	out, err := json.MarshalIndent(def, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling definition: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return nil
}
