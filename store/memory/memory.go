// Package memory provides a process-local session store.
package memory

import (
	"context"
	"sync"

	"github.com/smallnest/crewgraph/store"
	"github.com/smallnest/crewgraph/transcript"
)

// Store keeps session records in a map. Records are copied on the way in
// and out so callers never share state with the store.
type Store struct {
	mu        sync.RWMutex
	sessions  map[string]*store.SessionRecord
	clearMode store.ClearMode
}

var _ store.Store = (*Store)(nil)

// New creates an empty in-memory store.
func New(mode store.ClearMode) *Store {
	return &Store{
		sessions:  make(map[string]*store.SessionRecord),
		clearMode: mode,
	}
}

// Load returns a copy of the record for id.
func (s *Store) Load(ctx context.Context, id string) (*store.SessionRecord, error) {
	if err := store.CheckID(id); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	if rec, ok := s.sessions[id]; ok {
		return rec.Clone(), nil
	}
	return store.NewRecord(id, store.Now()), nil
}

// Append adds msgs to the session.
func (s *Store) Append(ctx context.Context, id string, msgs ...transcript.Message) error {
	if err := store.CheckID(id); err != nil {
		return err
	}
	if len(msgs) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := store.Now()
	rec, ok := s.sessions[id]
	if !ok {
		rec = store.NewRecord(id, now)
		s.sessions[id] = rec
	}
	for _, msg := range msgs {
		rec.Append(msg, now)
	}
	return nil
}

// Clear empties or removes the session depending on the clear mode.
func (s *Store) Clear(ctx context.Context, id string) error {
	if err := store.CheckID(id); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.sessions[id]
	if !ok {
		return nil
	}
	if s.clearMode == store.ClearRemoveRecord {
		delete(s.sessions, id)
		return nil
	}
	rec.Clear(store.Now())
	return nil
}

// Stats returns the session metadata.
func (s *Store) Stats(ctx context.Context, id string) (store.SessionStats, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.sessions[id]
	if !ok {
		return store.SessionStats{}, false, nil
	}
	return rec.Stats(), true, nil
}

// AllStats returns metadata for every session.
func (s *Store) AllStats(ctx context.Context) (map[string]store.SessionStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]store.SessionStats, len(s.sessions))
	for id, rec := range s.sessions {
		out[id] = rec.Stats()
	}
	return out, nil
}

// Close is a no-op.
func (s *Store) Close() error {
	return nil
}
