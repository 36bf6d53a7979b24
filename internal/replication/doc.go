// Package replication defines the extension point through which local
// registry mutations are propagated to peer instances. The registry core
// invokes a strategy exactly once per successful mutation, synchronously;
// convergence guarantees belong to the strategy, not the core.
package replication
