package registry

import "errors"

var (
	// ErrNamingCollision means two definitions resolved to the same file
	// name. The save that detected it did not proceed.
	ErrNamingCollision = errors.New("naming collision")

	// ErrReplication marks a replication hook failure accompanying an
	// otherwise-successful local mutation. Callers that only need local
	// durability may treat it as a warning; check with errors.Is.
	ErrReplication = errors.New("replication hook failed")
)
