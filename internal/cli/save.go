package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/svcreg-labs/svcreg/internal/registry"
	"github.com/svcreg-labs/svcreg/internal/serializer"
)

var saveCmd = &cobra.Command{
	Use:   "save <file>",
	Short: "Register or update a service definition from a file",
	Long: `Parse the given definition file (format chosen by its extension) and
save it into the registry under its canonical file name.`,
	Args: cobra.ExactArgs(1),
	RunE: runSave,
}

func init() {
	rootCmd.AddCommand(saveCmd)
}

func runSave(cmd *cobra.Command, args []string) error {
	path := args[0]
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	ser, err := serializer.Default().ForPath(path)
	if err != nil {
		return err
	}
	def, err := ser.Decode(data)
	if err != nil {
		return err
	}

	store, _, err := openStore()
	if err != nil {
		return err
	}

	saved, err := store.Save(def)
	if errors.Is(err, registry.ErrReplication) {
		fmt.Fprintf(cmd.ErrOrStderr(), "Warning: %v\n", err)
	} else if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Saved definition %d (%s)\n", saved.ID, saved.Name)
	return nil
}
