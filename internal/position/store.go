package position

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/vpntrail/vpntrail/internal/dedup"
	"github.com/vpntrail/vpntrail/internal/logging"
	"github.com/vpntrail/vpntrail/pkg/types"
)

// state is the on-disk shape of the durable state file.
type state struct {
	Positions        map[string]types.FilePosition `json:"positions"`
	NotifiedSessions []string                      `json:"notified_sessions"`
}

// Store owns the durable read offsets for every monitored file and the
// bounded set of already-notified session identifiers. It is read once at
// startup and rewritten atomically after each batch; a crash between a
// mutation and Save re-delivers that batch on the next start.
type Store struct {
	mu        sync.RWMutex
	path      string
	logger    *logging.Logger
	positions map[string]types.FilePosition
	notified  *dedup.Cache
}

// Open loads the state file at path, failing open: a missing or corrupt
// file yields empty state with a warning, never an error. maxTracked
// bounds the notified-session set.
func Open(path string, maxTracked int, logger *logging.Logger) *Store {
	s := &Store{
		path:      path,
		logger:    logger.WithComponent("position"),
		positions: make(map[string]types.FilePosition),
		notified:  dedup.New(maxTracked),
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warn().Err(err).Str("path", path).Msg("Cannot read state file, starting empty")
		}
		return s
	}

	var st state
	if err := json.Unmarshal(data, &st); err != nil {
		s.logger.Warn().Err(err).Str("path", path).Msg("Corrupt state file, starting empty")
		return s
	}

	if st.Positions != nil {
		s.positions = st.Positions
	}
	s.notified = dedup.Restore(st.NotifiedSessions, maxTracked)

	s.logger.Info().
		Int("files", len(s.positions)).
		Int("notified", s.notified.Len()).
		Msg("Recovered durable state")
	return s
}

// Position returns the last recorded position for a monitored file.
func (s *Store) Position(path string) (types.FilePosition, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	pos, ok := s.positions[path]
	return pos, ok
}

// SetPosition records the position for a monitored file. The change is not
// durable until Save.
func (s *Store) SetPosition(pos types.FilePosition) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.positions[pos.Path] = pos
}

// IsNotified reports whether an event identifier has already been emitted.
func (s *Store) IsNotified(id string) bool {
	return s.notified.Contains(id)
}

// RecordNotified marks an event identifier as emitted, evicting the oldest
// entries if the bound is exceeded.
func (s *Store) RecordNotified(id string) {
	s.notified.Record(id)
}

// NotifiedCount returns the current size of the notified-session set.
func (s *Store) NotifiedCount() int {
	return s.notified.Len()
}

// Save writes the state file atomically: the new content goes to a
// temporary file in the same directory which is then renamed over the
// old one, so a crash mid-write cannot corrupt the durable state.
func (s *Store) Save() error {
	s.mu.RLock()
	st := state{
		Positions:        make(map[string]types.FilePosition, len(s.positions)),
		NotifiedSessions: s.notified.Snapshot(),
	}
	for k, v := range s.positions {
		st.Positions[k] = v
	}
	s.mu.RUnlock()

	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write state file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("failed to rename state file: %w", err)
	}
	return nil
}
