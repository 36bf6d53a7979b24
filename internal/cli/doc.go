// Package cli defines the Cobra command tree for the svcreg CLI. Each file
// in this package registers one top-level command with the root command.
// Command implementations delegate to internal packages for registry logic
// and only handle flag parsing, I/O formatting, and user interaction.
package cli
