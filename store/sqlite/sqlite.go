package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/smallnest/crewgraph/log"
	"github.com/smallnest/crewgraph/store"
	"github.com/smallnest/crewgraph/transcript"
)

// Store implements store.Store using SQLite
type Store struct {
	db            *sql.DB
	tableName     string
	messagesTable string
	clearMode     store.ClearMode
	logger        log.Logger
}

var _ store.Store = (*Store)(nil)

// Options configuration for SQLite connection
type Options struct {
	Path      string
	TableName string // Default "sessions"
	ClearMode store.ClearMode
	Logger    log.Logger
}

// New opens the database and creates the schema.
func New(opts Options) (*Store, error) {
	db, err := sql.Open("sqlite3", opts.Path)
	if err != nil {
		return nil, fmt.Errorf("unable to open database: %w", err)
	}
	// One connection keeps ":memory:" databases shared and avoids SQLITE_BUSY
	// between transactions of the same process.
	db.SetMaxOpenConns(1)

	tableName := opts.TableName
	if tableName == "" {
		tableName = "sessions"
	}

	s := &Store{
		db:            db,
		tableName:     tableName,
		messagesTable: tableName + "_messages",
		clearMode:     opts.ClearMode,
		logger:        log.OrDefault(opts.Logger),
	}

	if err := s.InitSchema(context.Background()); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

// InitSchema creates the necessary tables if they don't exist
func (s *Store) InitSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL,
			message_count INTEGER NOT NULL
		);
		CREATE TABLE IF NOT EXISTS %s (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL,
			id TEXT NOT NULL,
			role TEXT NOT NULL,
			payload TEXT NOT NULL,
			timestamp DATETIME NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_%s_session_id ON %s (session_id, seq);
	`, s.tableName, s.messagesTable, s.messagesTable, s.messagesTable)

	_, err := s.db.ExecContext(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// Load returns the session record, or a fresh one when the id is unknown.
func (s *Store) Load(ctx context.Context, id string) (*store.SessionRecord, error) {
	if err := store.CheckID(id); err != nil {
		return nil, err
	}

	rec, found, err := s.meta(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if !found {
		return store.NewRecord(id, store.Now()), nil
	}

	query := fmt.Sprintf(`SELECT payload FROM %s WHERE session_id = ? ORDER BY seq ASC`, s.messagesTable)
	rows, err := s.db.QueryContext(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load messages: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("failed to scan message row: %w", err)
		}
		var msg transcript.Message
		if err := json.Unmarshal([]byte(payload), &msg); err != nil {
			s.logger.Warn("session %s has a malformed message row: %v", id, err)
			return store.NewRecord(id, store.Now()), &store.CorruptionError{Source: s.messagesTable, Err: err}
		}
		rec.Messages = append(rec.Messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating message rows: %w", err)
	}

	rec.MessageCount = len(rec.Messages)
	return rec, nil
}

// Append adds msgs inside a single transaction.
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

	err := s.inTx(ctx, func(tx *sql.Tx) error {
		rec, found, err := s.meta(ctx, tx, id)
		if err != nil {
			return err
		}

		now := store.Now()
		if !found {
			rec = store.NewRecord(id, now)
		}
		insert := fmt.Sprintf(`INSERT INTO %s (session_id, id, role, payload, timestamp) VALUES (?, ?, ?, ?, ?)`, s.messagesTable)
		last := rec.UpdatedAt
		for _, msg := range msgs {
			stamped := store.Stamp(msg, last, now)
			last = stamped.Timestamp

			payload, err := json.Marshal(stamped)
			if err != nil {
				return fmt.Errorf("failed to marshal message: %w", err)
			}
			if _, err := tx.ExecContext(ctx, insert, id, stamped.ID, string(stamped.Role), string(payload), stamped.Timestamp); err != nil {
				return fmt.Errorf("failed to insert message: %w", err)
			}
		}

		upsert := fmt.Sprintf(`
			INSERT INTO %s (id, created_at, updated_at, message_count)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				updated_at = excluded.updated_at,
				message_count = message_count + excluded.message_count
		`, s.tableName)
		if _, err := tx.ExecContext(ctx, upsert, id, rec.CreatedAt, last, len(msgs)); err != nil {
			return fmt.Errorf("failed to update session: %w", err)
		}
		return nil
	})
	if err != nil {
		return &store.WriteError{SessionID: id, Err: err}
	}
	return nil
}

// Clear empties or removes the session depending on the clear mode.
func (s *Store) Clear(ctx context.Context, id string) error {
	if err := store.CheckID(id); err != nil {
		return err
	}

	err := s.inTx(ctx, func(tx *sql.Tx) error {
		del := fmt.Sprintf(`DELETE FROM %s WHERE session_id = ?`, s.messagesTable)
		if _, err := tx.ExecContext(ctx, del, id); err != nil {
			return fmt.Errorf("failed to delete messages: %w", err)
		}

		if s.clearMode == store.ClearRemoveRecord {
			query := fmt.Sprintf(`DELETE FROM %s WHERE id = ?`, s.tableName)
			if _, err := tx.ExecContext(ctx, query, id); err != nil {
				return fmt.Errorf("failed to delete session: %w", err)
			}
			return nil
		}

		rec, found, err := s.meta(ctx, tx, id)
		if err != nil || !found {
			return err
		}
		rec.Clear(store.Now())
		query := fmt.Sprintf(`UPDATE %s SET message_count = 0, updated_at = ? WHERE id = ?`, s.tableName)
		if _, err := tx.ExecContext(ctx, query, rec.UpdatedAt, id); err != nil {
			return fmt.Errorf("failed to reset session: %w", err)
		}
		return nil
	})
	if err != nil {
		return &store.WriteError{SessionID: id, Err: err}
	}
	return nil
}

// Stats returns the session metadata.
func (s *Store) Stats(ctx context.Context, id string) (store.SessionStats, bool, error) {
	rec, found, err := s.meta(ctx, s.db, id)
	if err != nil || !found {
		return store.SessionStats{}, false, err
	}
	return rec.Stats(), true, nil
}

// AllStats returns metadata for every session. Query failures are logged
// and reported as an empty result.
func (s *Store) AllStats(ctx context.Context) (map[string]store.SessionStats, error) {
	out := make(map[string]store.SessionStats)

	query := fmt.Sprintf(`SELECT id, created_at, updated_at, message_count FROM %s`, s.tableName)
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		s.logger.Warn("failed to list sessions: %v", err)
		return out, nil
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		var st store.SessionStats
		if err := rows.Scan(&id, &st.CreatedAt, &st.UpdatedAt, &st.MessageCount); err != nil {
			s.logger.Warn("failed to scan session row: %v", err)
			return make(map[string]store.SessionStats), nil
		}
		out[id] = st
	}
	if err := rows.Err(); err != nil {
		s.logger.Warn("error iterating session rows: %v", err)
	}
	return out, nil
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Store) meta(ctx context.Context, q queryer, id string) (*store.SessionRecord, bool, error) {
	query := fmt.Sprintf(`SELECT created_at, updated_at, message_count FROM %s WHERE id = ?`, s.tableName)

	rec := &store.SessionRecord{ID: id, Messages: transcript.Transcript{}}
	var createdAt, updatedAt time.Time
	err := q.QueryRowContext(ctx, query, id).Scan(&createdAt, &updatedAt, &rec.MessageCount)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to load session: %w", err)
	}
	rec.CreatedAt = createdAt.UTC()
	rec.UpdatedAt = updatedAt.UTC()
	return rec, true, nil
}

func (s *Store) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	return nil
}
