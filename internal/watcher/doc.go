// Package watcher observes the registry root directory tree and feeds
// debounced change notifications into the registry. Editors and network
// filesystems emit bursts of events for a single logical change; the
// watcher waits for a per-path quiet period and lets the registry compare
// content fingerprints before doing any work.
package watcher
