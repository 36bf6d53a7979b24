// Package service defines the registered service definition record, its
// matching and selection semantics, and JSON Schema validation of the
// definition envelope. The definition body is carried opaquely; only the
// identity fields (id, pattern, evaluation order) are interpreted here.
package service
