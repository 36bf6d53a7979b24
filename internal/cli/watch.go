package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/svcreg-labs/svcreg/internal/config"
	"github.com/svcreg-labs/svcreg/internal/registry"
	"github.com/svcreg-labs/svcreg/internal/watcher"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Run the registry with live reload until interrupted",
	Long: `Load the registry, then watch the root directory for changes and
print lifecycle events as definitions are added, modified, or removed.`,
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	settings := config.Current()
	if rootFlag != "" {
		settings.Root = rootFlag
	}

	out := cmd.OutOrStdout()
	store, err := buildStore(settings, registry.PublisherFunc(func(e registry.Event) {
		fmt.Fprintf(out, "[%s] id=%d name=%s path=%s\n", e.Kind, e.ID, e.Name, e.Path)
	}))
	if err != nil {
		return err
	}

	report, err := store.Load()
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Loaded %d definition(s) from %s (%d failures)\n",
		report.Loaded, store.Root(), len(report.Failures))

	if !settings.Watch {
		return fmt.Errorf("the watcher is disabled in configuration (set %s=true)", config.KeyWatch)
	}

	w := watcher.New(store.Root(), store.Extensions(), settings.Debounce, store, nil)
	if err := w.Start(); err != nil {
		return err
	}
	defer w.Stop()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	fmt.Fprintln(out, "Watching for changes, Ctrl+C to stop.")
	<-sig
	fmt.Fprintln(out, "Stopping.")
	return nil
}
