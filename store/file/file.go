// Package file provides a session store persisted as a single JSON document.
//
// The document maps each session id to its metadata and messages:
//
//	{
//	  "user_123": {
//	    "meta": {"session_id": "user_123", "created_at": "...", "updated_at": "...", "message_count": 2},
//	    "messages": [{"role": "human", "content": "hi", "timestamp": "..."}]
//	  }
//	}
//
// Every mutation reads the whole document, changes one record and writes the
// whole document back through a temporary file and a rename, so a crash never
// leaves a half-written store. A missing or empty file is an empty store.
// Malformed content is logged, moved aside to a unique <path>.corrupt-*
// file and the store continues empty.
//
// Writes are serialized inside one process only. Two processes appending to
// the same file can still lose each other's updates; use the sqlite, redis
// or postgres backend for concurrent writers.
package file

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/smallnest/crewgraph/log"
	"github.com/smallnest/crewgraph/store"
	"github.com/smallnest/crewgraph/transcript"
)

// Options configures a file store.
type Options struct {
	Path      string
	ClearMode store.ClearMode
	Logger    log.Logger
}

// Store is the JSON file backend.
type Store struct {
	mu        sync.Mutex
	path      string
	clearMode store.ClearMode
	logger    log.Logger
}

var _ store.Store = (*Store)(nil)

type meta struct {
	SessionID    string    `json:"session_id"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	MessageCount int       `json:"message_count"`
}

type entry struct {
	Meta     meta                  `json:"meta"`
	Messages transcript.Transcript `json:"messages"`
}

type document map[string]*entry

// New creates a file store, creating the parent directory if needed.
func New(opts Options) (*Store, error) {
	if opts.Path == "" {
		return nil, errors.New("file store path is required")
	}
	if err := os.MkdirAll(filepath.Dir(opts.Path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}
	return &Store{
		path:      opts.Path,
		clearMode: opts.ClearMode,
		logger:    log.OrDefault(opts.Logger),
	}, nil
}

// Path returns the backing file path.
func (s *Store) Path() string {
	return s.path
}

// Load returns the record for id. Malformed backing data yields a fresh
// record and a *store.CorruptionError.
func (s *Store) Load(ctx context.Context, id string) (*store.SessionRecord, error) {
	if err := store.CheckID(id); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.read()
	if err != nil {
		s.logger.Warn("session store %s unreadable, treating as empty: %v", s.path, err)
		return store.NewRecord(id, store.Now()), err
	}
	if e, ok := doc[id]; ok {
		return e.record(id), nil
	}
	return store.NewRecord(id, store.Now()), nil
}

// Append adds msgs to the session and rewrites the document once.
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

	doc, err := s.readForUpdate(id)
	if err != nil {
		return err
	}

	now := store.Now()
	rec := store.NewRecord(id, now)
	if e, ok := doc[id]; ok {
		rec = e.record(id)
	}
	for _, msg := range msgs {
		rec.Append(msg, now)
	}
	doc[id] = fromRecord(rec)

	if err := s.write(doc); err != nil {
		return &store.WriteError{SessionID: id, Err: err}
	}
	s.logger.Debug("appended %s message to session %s (%d total)", msg.Role, id, rec.MessageCount)
	return nil
}

// Clear empties or removes the session depending on the clear mode.
func (s *Store) Clear(ctx context.Context, id string) error {
	if err := store.CheckID(id); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.readForUpdate(id)
	if err != nil {
		return err
	}
	e, ok := doc[id]
	if !ok {
		return nil
	}

	if s.clearMode == store.ClearRemoveRecord {
		delete(doc, id)
	} else {
		rec := e.record(id)
		rec.Clear(store.Now())
		doc[id] = fromRecord(rec)
	}

	if err := s.write(doc); err != nil {
		return &store.WriteError{SessionID: id, Err: err}
	}
	return nil
}

// Stats returns the session metadata.
func (s *Store) Stats(ctx context.Context, id string) (store.SessionStats, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.read()
	if err != nil {
		s.logger.Warn("session store %s unreadable: %v", s.path, err)
		return store.SessionStats{}, false, err
	}
	e, ok := doc[id]
	if !ok {
		return store.SessionStats{}, false, nil
	}
	return e.record(id).Stats(), true, nil
}

// AllStats returns metadata for every session. An unreadable store is
// logged and reported as empty.
func (s *Store) AllStats(ctx context.Context) (map[string]store.SessionStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]store.SessionStats)
	doc, err := s.read()
	if err != nil {
		s.logger.Warn("session store %s unreadable, reporting no sessions: %v", s.path, err)
		return out, nil
	}
	for id, e := range doc {
		out[id] = e.record(id).Stats()
	}
	return out, nil
}

// Close is a no-op; the file is not held open between calls.
func (s *Store) Close() error {
	return nil
}

func (s *Store) read() (document, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return document{}, nil
	}
	if err != nil {
		return document{}, &store.CorruptionError{Source: s.path, Err: err}
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return document{}, nil
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return document{}, &store.CorruptionError{Source: s.path, Err: err}
	}
	if doc == nil {
		doc = document{}
	}
	for id, e := range doc {
		if e == nil {
			delete(doc, id)
		}
	}
	return doc, nil
}

// readForUpdate reads the document before a mutation. Unreadable content
// is moved aside so the following write cannot destroy it.
func (s *Store) readForUpdate(id string) (document, error) {
	doc, err := s.read()
	if err == nil {
		return doc, nil
	}

	s.logger.Warn("session store %s unreadable, starting empty: %v", s.path, err)
	target, err := s.quarantine()
	if err != nil {
		return nil, &store.WriteError{SessionID: id, Err: fmt.Errorf("quarantine corrupt store: %w", err)}
	}
	if target != "" {
		s.logger.Warn("moved corrupt session store to %s", target)
	}
	return document{}, nil
}

// quarantine renames the store file onto a freshly reserved name, so
// repeated corruption never overwrites an earlier copy. It returns "" when
// the file is already gone.
func (s *Store) quarantine() (string, error) {
	f, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".corrupt-*")
	if err != nil {
		return "", err
	}
	target := f.Name()
	f.Close()

	if err := os.Rename(s.path, target); err != nil {
		os.Remove(target)
		if errors.Is(err, fs.ErrNotExist) {
			return "", nil
		}
		return "", err
	}
	return target, nil
}

func (s *Store) write(doc document) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal store: %w", err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace store file: %w", err)
	}
	return nil
}

func (e *entry) record(id string) *store.SessionRecord {
	msgs := e.Messages.Clone()
	if msgs == nil {
		msgs = transcript.Transcript{}
	}
	return &store.SessionRecord{
		ID:           id,
		CreatedAt:    e.Meta.CreatedAt,
		UpdatedAt:    e.Meta.UpdatedAt,
		MessageCount: len(msgs),
		Messages:     msgs,
	}
}

func fromRecord(rec *store.SessionRecord) *entry {
	return &entry{
		Meta: meta{
			SessionID:    rec.ID,
			CreatedAt:    rec.CreatedAt,
			UpdatedAt:    rec.UpdatedAt,
			MessageCount: rec.MessageCount,
		},
		Messages: rec.Messages,
	}
}
