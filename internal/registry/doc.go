// Package registry implements the directory-backed service definition
// registry: an in-memory index kept in sync with a directory tree of
// definition files. Parsing and file I/O always happen outside the index
// lock; only the in-memory mutation itself is a critical section, so
// lookups stay responsive during reloads.
package registry
