package registry

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/svcreg-labs/svcreg/internal/naming"
	"github.com/svcreg-labs/svcreg/internal/replication"
	"github.com/svcreg-labs/svcreg/internal/serializer"
	"github.com/svcreg-labs/svcreg/internal/service"
)

// DefaultExtension is the format used for definitions saved without an
// existing backing file.
const DefaultExtension = "json"

// Options configures a Store. Zero-value fields fall back to defaults:
// JSON+YAML serializers, the default naming strategy, no-op replication,
// a no-op publisher, and slog.Default().
type Options struct {
	Serializers *serializer.Registry
	Naming      naming.Strategy
	Replication replication.Strategy
	Publisher   Publisher
	Logger      *slog.Logger
}

// Store is the registry façade: a directory tree of definition files
// mirrored by an in-memory index. It is safe for concurrent use; the
// directory tree is considered owned by the store while it is active.
type Store struct {
	root        string
	serializers *serializer.Registry
	naming      naming.Strategy
	replication replication.Strategy
	publisher   Publisher
	logger      *slog.Logger
	index       *index
}

// New creates a store rooted at the given directory. The directory is
// created if missing. No scan happens until Load is called.
func New(root string, opts Options) (*Store, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving registry root %s: %w", root, err)
	}
	if err := os.MkdirAll(abs, 0755); err != nil {
		return nil, fmt.Errorf("creating registry root %s: %w", abs, err)
	}

	s := &Store{
		root:        abs,
		serializers: opts.Serializers,
		naming:      opts.Naming,
		replication: opts.Replication,
		publisher:   opts.Publisher,
		logger:      opts.Logger,
		index:       newIndex(),
	}
	if s.serializers == nil {
		s.serializers = serializer.Default()
	}
	if s.naming == nil {
		s.naming = naming.Default{}
	}
	if s.replication == nil {
		s.replication = replication.NoOp{}
	}
	if s.publisher == nil {
		s.publisher = nopPublisher{}
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s, nil
}

// Root returns the absolute registry root directory.
func (s *Store) Root() string { return s.root }

// Extensions returns the recognized extension allow-list.
func (s *Store) Extensions() []string { return s.serializers.Extensions() }

// ScanFailure records one file the startup scan could not parse.
type ScanFailure struct {
	Path string
	Err  error
}

// ScanReport summarizes a Load: how many definitions were indexed and
// which files failed. A failed file never aborts the scan.
type ScanReport struct {
	Loaded   int
	Failures []ScanFailure
}

// Load scans the root directory recursively, parses every file whose
// extension is recognized, and replaces the index contents with the
// result. Parsing happens entirely outside the index lock; the swap is a
// single critical section. Loading an unchanged directory twice yields an
// identical index.
func (s *Store) Load() (*ScanReport, error) {
	report := &ScanReport{}
	var entries []*entry

	err := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !s.serializers.Recognizes(path) {
			return nil
		}
		e, perr := s.parseFile(path)
		if perr != nil {
			s.logger.Warn("skipping unparseable definition file", "path", path, "error", perr)
			report.Failures = append(report.Failures, ScanFailure{Path: path, Err: perr})
			return nil
		}
		entries = append(entries, e)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scanning registry root %s: %w", s.root, err)
	}

	s.index.replace(entries)
	report.Loaded = len(entries)

	for _, e := range entries {
		s.publish(Event{Kind: EventLoaded, ID: e.def.ID, Name: e.def.Name, Path: e.sourcePath})
	}

	if rerr := s.replication.OnStartupReconcile(s.index.all()); rerr != nil {
		s.logger.Warn("startup replication reconcile failed", "error", rerr)
	}
	return report, nil
}

// Save validates and durably writes a definition, then updates the index
// and invokes the replication hook. The file write is atomic (temp file,
// fsync, rename); when the naming strategy moves a definition to a new
// file, the old file is removed only after the new one is in place.
//
// The collision check and the index update are separate critical sections
// with the file write in between, so two concurrent Saves of different ids
// that a custom naming strategy maps to the same file are not mutually
// excluded; the loser's entry is evicted when the winner's path is indexed.
// The default strategy qualifies names with the id, which makes such
// overlap impossible.
//
// The returned error wraps ErrReplication when the local mutation
// succeeded but the replication hook failed; the returned definition is
// valid in that case.
func (s *Store) Save(def *service.Definition) (*service.Definition, error) {
	if def == nil {
		return nil, fmt.Errorf("cannot save a nil definition")
	}
	saved := def.Clone()
	if err := saved.Validate(); err != nil {
		return nil, err
	}

	target, err := s.targetPath(saved)
	if err != nil {
		return nil, err
	}
	if otherID, ok := s.index.idFor(target); ok && otherID != saved.ID {
		return nil, fmt.Errorf("%w: definitions %d and %d both resolve to %s",
			ErrNamingCollision, saved.ID, otherID, target)
	}

	ser, err := s.serializers.ForPath(target)
	if err != nil {
		return nil, err
	}
	data, err := ser.Encode(saved)
	if err != nil {
		return nil, err
	}

	if err := writeFileAtomic(target, data); err != nil {
		return nil, fmt.Errorf("writing definition %d: %w", saved.ID, err)
	}
	modTime := time.Now()
	if fi, err := os.Stat(target); err == nil {
		modTime = fi.ModTime()
	}

	previousPath := s.index.put(newEntry(saved.Clone(), target, modTime, fingerprint(data)))
	if previousPath != "" {
		// New file is durable; now the stale one can go.
		if err := os.Remove(previousPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
			s.logger.Warn("could not remove superseded definition file",
				"id", saved.ID, "path", previousPath, "error", err)
		}
	}

	s.publish(Event{Kind: EventSaved, ID: saved.ID, Name: saved.Name, Path: target})

	if rerr := s.replication.OnSave(saved.Clone()); rerr != nil {
		s.logger.Warn("replication hook failed on save", "id", saved.ID, "error", rerr)
		return saved, fmt.Errorf("definition %d saved locally, but %w: %v", saved.ID, ErrReplication, rerr)
	}
	return saved, nil
}

// Delete removes a definition's backing file and index entry and invokes
// the replication tombstone hook. Deleting an unknown id reports
// (false, nil) rather than failing. As with Save, an error wrapping
// ErrReplication accompanies a successful local delete whose hook failed.
func (s *Store) Delete(id int64) (bool, error) {
	path, ok := s.index.pathFor(id)
	if !ok {
		return false, nil
	}

	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return false, fmt.Errorf("removing definition file %s: %w", path, err)
	}
	e, ok := s.index.remove(id)
	if !ok {
		// Raced with a watcher removal; nothing left to do.
		return false, nil
	}

	s.publish(Event{Kind: EventDeleted, ID: id, Name: e.def.Name, Path: e.sourcePath})

	if rerr := s.replication.OnDelete(id); rerr != nil {
		s.logger.Warn("replication hook failed on delete", "id", id, "error", rerr)
		return true, fmt.Errorf("definition %d deleted locally, but %w: %v", id, ErrReplication, rerr)
	}
	return true, nil
}

// FindByID returns a copy of the definition with the given id.
func (s *Store) FindByID(id int64) (*service.Definition, bool) {
	return s.index.get(id)
}

// FindService returns the definition selected for a service identifier:
// among all whose pattern matches, the one with the lowest evaluation
// order, ties broken by ascending id.
func (s *Store) FindService(serviceID string) (*service.Definition, bool) {
	return s.index.match(serviceID)
}

// Definitions returns copies of all indexed definitions, ordered by id.
func (s *Store) Definitions() []*service.Definition {
	return s.index.all()
}

// Size returns the number of indexed definitions.
func (s *Store) Size() int {
	return s.index.size()
}

// targetPath computes the file a definition should live in. An already
// indexed definition keeps its current extension; new ones get the
// default format.
func (s *Store) targetPath(def *service.Definition) (string, error) {
	ext := DefaultExtension
	if current, ok := s.index.pathFor(def.ID); ok {
		if cur := filepath.Ext(current); cur != "" {
			ext = cur[1:]
		}
	}
	name, err := s.naming.FileName(def, ext)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.root, name), nil
}

// parseFile reads, envelope-validates, and decodes one definition file.
func (s *Store) parseFile(path string) (*entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return s.parseBytes(path, data)
}

func (s *Store) parseBytes(path string, data []byte) (*entry, error) {
	result, err := service.Validate(data)
	if err != nil {
		return nil, fmt.Errorf("validating %s: %w", path, err)
	}
	if !result.Valid {
		return nil, fmt.Errorf("%s: %w", path, result.Err())
	}

	ser, err := s.serializers.ForPath(path)
	if err != nil {
		return nil, err
	}
	def, err := ser.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	if err := def.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	modTime := time.Now()
	if fi, err := os.Stat(path); err == nil {
		modTime = fi.ModTime()
	}
	return newEntry(def, path, modTime, fingerprint(data)), nil
}

// publish delivers an event fire-and-forget; a panicking listener never
// affects registry state.
func (s *Store) publish(event Event) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Warn("event listener panicked", "kind", event.Kind, "id", event.ID, "panic", r)
		}
	}()
	s.publisher.Publish(event)
}

// fingerprint hashes raw file bytes so no-op watcher events can be
// discarded without reparsing.
func fingerprint(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// writeFileAtomic writes data to a temp file in the target's directory,
// fsyncs it, and renames it over the final path. A concurrent reader of
// the target sees either the complete old content or the complete new
// content. The temp name carries no recognized extension, so the scanner
// and watcher never index it.
func writeFileAtomic(target string, data []byte) error {
	dir := filepath.Dir(target)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".svcreg-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("syncing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Chmod(tmpName, 0644); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("setting permissions: %w", err)
	}
	if err := os.Rename(tmpName, target); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replacing %s: %w", target, err)
	}
	return nil
}
