package replication

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/Masterminds/semver/v3"

	"github.com/svcreg-labs/svcreg/internal/service"
)

// FormatVersion is the snapshot file format version. Readers reject
// snapshots whose major version differs.
const FormatVersion = "1.0.0"

// Snapshot is the JSON document a SnapshotStrategy maintains. Peers
// converging through a shared backing store read and write this file.
type Snapshot struct {
	FormatVersion string                `json:"formatVersion"`
	TakenAt       time.Time             `json:"takenAt"`
	Definitions   []*service.Definition `json:"definitions"`
}

// ReadSnapshot loads and version-checks a snapshot file.
func ReadSnapshot(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading snapshot %s: %w", path, err)
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("parsing snapshot %s: %w", path, err)
	}
	if err := checkFormatVersion(snap.FormatVersion); err != nil {
		return nil, fmt.Errorf("snapshot %s: %w", path, err)
	}
	return &snap, nil
}

// checkFormatVersion rejects snapshots written by an incompatible major
// format version.
func checkFormatVersion(version string) error {
	if version == "" {
		return fmt.Errorf("snapshot has no format version")
	}
	got, err := semver.NewVersion(version)
	if err != nil {
		return fmt.Errorf("parsing snapshot format version %q: %w", version, err)
	}
	want := semver.MustParse(FormatVersion)
	if got.Major() != want.Major() {
		return fmt.Errorf("snapshot format v%s is incompatible with v%s", version, FormatVersion)
	}
	return nil
}

// Lister supplies the current full definition set. The registry store
// satisfies this with its own snapshot accessor.
type Lister func() []*service.Definition

// SnapshotStrategy converges registry state through a shared snapshot
// file: every local mutation rewrites it atomically, and startup
// reconciliation reports drift against what a peer last wrote.
type SnapshotStrategy struct {
	path   string
	list   Lister
	logger *slog.Logger
}

// NewSnapshotStrategy returns a strategy maintaining the snapshot at path.
func NewSnapshotStrategy(path string, list Lister, logger *slog.Logger) *SnapshotStrategy {
	if logger == nil {
		logger = slog.Default()
	}
	return &SnapshotStrategy{path: path, list: list, logger: logger}
}

// OnSave rewrites the snapshot after a save.
func (s *SnapshotStrategy) OnSave(def *service.Definition) error {
	return s.write()
}

// OnDelete rewrites the snapshot after a delete.
func (s *SnapshotStrategy) OnDelete(id int64) error {
	return s.write()
}

// OnStartupReconcile compares the loaded definitions against the existing
// snapshot, logs definitions a peer knows about that are missing locally,
// then writes a fresh snapshot of local state.
func (s *SnapshotStrategy) OnStartupReconcile(defs []*service.Definition) error {
	prev, err := ReadSnapshot(s.path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		// First node up; nothing to reconcile against.
	case err != nil:
		return err
	default:
		local := make(map[int64]bool, len(defs))
		for _, d := range defs {
			local[d.ID] = true
		}
		for _, d := range prev.Definitions {
			if !local[d.ID] {
				s.logger.Warn("definition present in peer snapshot but missing locally",
					"id", d.ID, "name", d.Name, "snapshotTakenAt", prev.TakenAt)
			}
		}
	}
	return s.write()
}

// write serializes the current definition set to the snapshot path using
// the same write-temp-then-rename discipline the registry uses for
// definition files.
func (s *SnapshotStrategy) write() error {
	snap := Snapshot{
		FormatVersion: FormatVersion,
		TakenAt:       time.Now().UTC(),
		Definitions:   s.list(),
	}
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding snapshot: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating snapshot directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".snapshot-*.tmp")
	if err != nil {
		return fmt.Errorf("creating snapshot temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("writing snapshot: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("syncing snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("closing snapshot temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("replacing snapshot: %w", err)
	}
	return nil
}
