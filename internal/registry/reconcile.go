package registry

import (
	"errors"
	"io/fs"
	"os"
)

// FileChanged reconciles the index with a created or modified file. It is
// the watcher's entry point after debouncing. The file is read and parsed
// before any lock is taken; only the index update is a critical section.
// A parse failure keeps the previous entry for the path, so a transient
// partial write never evicts a previously good definition.
func (s *Store) FileChanged(path string) {
	if !s.serializers.Recognizes(path) {
		return
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		s.FileRemoved(path)
		return
	}
	if err != nil {
		s.logger.Warn("could not read changed definition file", "path", path, "error", err)
		return
	}

	fp := fingerprint(data)
	if current, ok := s.index.fingerprintFor(path); ok && current == fp {
		s.logger.Debug("ignoring no-op change event", "path", path)
		return
	}

	e, err := s.parseBytes(path, data)
	if err != nil {
		s.logger.Warn("changed definition file does not parse, keeping previous entry",
			"path", path, "error", err)
		return
	}

	s.index.put(e)
	s.logger.Info("definition reloaded", "id", e.def.ID, "name", e.def.Name, "path", path)
	s.publish(Event{Kind: EventLoaded, ID: e.def.ID, Name: e.def.Name, Path: path})
}

// FileRemoved drops the index entry backed by path, if any.
func (s *Store) FileRemoved(path string) {
	e, ok := s.index.removeByPath(path)
	if !ok {
		return
	}
	s.logger.Info("definition removed from disk", "id", e.def.ID, "name", e.def.Name, "path", path)
	s.publish(Event{Kind: EventDeleted, ID: e.def.ID, Name: e.def.Name, Path: path})
}
