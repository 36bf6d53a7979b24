package cli

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/svcreg-labs/svcreg/internal/registry"
)

var deleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Remove a service definition",
	Args:  cobra.ExactArgs(1),
	RunE:  runDelete,
}

func init() {
	rootCmd.AddCommand(deleteCmd)
}

func runDelete(cmd *cobra.Command, args []string) error {
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid id %q: %w", args[0], err)
	}

	store, _, err := openStore()
	if err != nil {
		return err
	}

	removed, err := store.Delete(id)
	if errors.Is(err, registry.ErrReplication) {
		fmt.Fprintf(cmd.ErrOrStderr(), "Warning: %v\n", err)
	} else if err != nil {
		return err
	}

	if !removed {
		fmt.Fprintf(cmd.OutOrStdout(), "No service definition with id %d.\n", id)
		return nil
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Deleted definition %d\n", id)
	return nil
}
