package replication

import "github.com/svcreg-labs/svcreg/internal/service"

// Strategy receives notifications after successful local mutations.
// Hooks run synchronously before the mutating call returns; a strategy
// doing network I/O should hand off internally rather than block.
// Hook failures are surfaced as warnings by the caller — the local
// mutation is never rolled back.
type Strategy interface {
	// OnSave is invoked once after a definition is durably written.
	OnSave(def *service.Definition) error
	// OnDelete is invoked once after a definition is removed, with its id
	// as a tombstone.
	OnDelete(id int64) error
	// OnStartupReconcile is invoked after a full directory scan with the
	// loaded definitions, so the strategy can converge with peer state.
	OnStartupReconcile(defs []*service.Definition) error
}

// NoOp is the default strategy for single-node deployments.
type NoOp struct{}

func (NoOp) OnSave(*service.Definition) error { return nil }

func (NoOp) OnDelete(int64) error { return nil }

func (NoOp) OnStartupReconcile([]*service.Definition) error { return nil }
