package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/svcreg-labs/svcreg/internal/branding"
	"github.com/svcreg-labs/svcreg/internal/config"
	"github.com/svcreg-labs/svcreg/internal/registry"
	"github.com/svcreg-labs/svcreg/internal/replication"
	"github.com/svcreg-labs/svcreg/internal/serializer"
	"github.com/svcreg-labs/svcreg/internal/service"
)

var (
	buildVersion string
	buildCommit  string
	buildDate    string

	rootFlag     string
	snapshotFlag string
	verboseFlag  bool
)

var rootCmd = &cobra.Command{
	Use:   branding.CLIName(),
	Short: branding.Description(),
	Long: branding.DisplayName() + ` keeps the authoritative set of relying-party service
definitions for an authentication deployment in a directory tree, with an
in-memory index, hot reload, and pluggable serialization per file extension.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		config.Load()

		level := slog.LevelWarn
		if verboseFlag {
			level = slog.LevelDebug
		}
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&rootFlag, "root", "", "Registry root directory (overrides config)")
	rootCmd.PersistentFlags().StringVar(&snapshotFlag, "snapshot", "", "Replicate mutations into a shared snapshot file")
	rootCmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false, "Verbose logging")
}

// Execute runs the root command with build info injected via ldflags.
func Execute(version, commit, date string) error {
	buildVersion = version
	buildCommit = commit
	buildDate = date
	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	return err
}

// buildStore assembles a registry store from the resolved settings:
// serializers restricted to the configured extension allow-list, and the
// snapshot replication strategy when a snapshot path is set.
func buildStore(settings config.Settings, publisher registry.Publisher) (*registry.Store, error) {
	var store *registry.Store
	opts := registry.Options{
		Serializers: serializer.Default().Restrict(settings.Extensions),
		Publisher:   publisher,
	}
	if snapshotFlag != "" {
		opts.Replication = replication.NewSnapshotStrategy(snapshotFlag, func() []*service.Definition {
			if store == nil {
				return nil
			}
			return store.Definitions()
		}, nil)
	}

	store, err := registry.New(settings.Root, opts)
	if err != nil {
		return nil, err
	}
	return store, nil
}

// openStore builds a registry store, honoring the --root override, and
// loads the directory contents.
func openStore() (*registry.Store, *registry.ScanReport, error) {
	settings := config.Current()
	if rootFlag != "" {
		settings.Root = rootFlag
	}

	store, err := buildStore(settings, nil)
	if err != nil {
		return nil, nil, err
	}
	report, err := store.Load()
	if err != nil {
		return nil, nil, err
	}
	return store, report, nil
}
