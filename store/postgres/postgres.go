package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/smallnest/crewgraph/log"
	"github.com/smallnest/crewgraph/store"
	"github.com/smallnest/crewgraph/transcript"
)

// DBPool defines the interface for database connection pool
type DBPool interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// Store implements store.Store using PostgreSQL
type Store struct {
	pool          DBPool
	tableName     string
	messagesTable string
	clearMode     store.ClearMode
	logger        log.Logger
}

var _ store.Store = (*Store)(nil)

// Options configuration for Postgres connection
type Options struct {
	ConnString string
	TableName  string // Default "sessions"
	ClearMode  store.ClearMode
	Logger     log.Logger
}

// New creates a Postgres session store with its own pool
func New(ctx context.Context, opts Options) (*Store, error) {
	pool, err := pgxpool.New(ctx, opts.ConnString)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}
	return NewWithPool(pool, opts), nil
}

// NewWithPool creates a Postgres session store with an existing pool.
// Useful for testing with mocks
func NewWithPool(pool DBPool, opts Options) *Store {
	tableName := opts.TableName
	if tableName == "" {
		tableName = "sessions"
	}
	return &Store{
		pool:          pool,
		tableName:     tableName,
		messagesTable: tableName + "_messages",
		clearMode:     opts.ClearMode,
		logger:        log.OrDefault(opts.Logger),
	}
}

// InitSchema creates the necessary tables if they don't exist
func (s *Store) InitSchema(ctx context.Context) error {
	query := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL,
			message_count INTEGER NOT NULL
		);
		CREATE TABLE IF NOT EXISTS %s (
			seq BIGSERIAL PRIMARY KEY,
			session_id TEXT NOT NULL REFERENCES %s (id) ON DELETE CASCADE,
			id TEXT NOT NULL,
			role TEXT NOT NULL,
			payload JSONB NOT NULL,
			timestamp TIMESTAMPTZ NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_%s_session_id ON %s (session_id, seq);
	`, s.tableName, s.messagesTable, s.tableName, s.messagesTable, s.messagesTable)

	_, err := s.pool.Exec(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Close closes the connection pool
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// Load returns the session record, or a fresh one when the id is unknown.
func (s *Store) Load(ctx context.Context, id string) (*store.SessionRecord, error) {
	if err := store.CheckID(id); err != nil {
		return nil, err
	}

	rec, found, err := s.meta(ctx, id)
	if err != nil {
		return nil, err
	}
	if !found {
		return store.NewRecord(id, store.Now()), nil
	}

	query := fmt.Sprintf(`SELECT payload, timestamp FROM %s WHERE session_id = $1 ORDER BY seq ASC`, s.messagesTable)
	rows, err := s.pool.Query(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load messages: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var payload []byte
		var ts time.Time
		if err := rows.Scan(&payload, &ts); err != nil {
			return nil, fmt.Errorf("failed to scan message row: %w", err)
		}
		var msg transcript.Message
		if err := json.Unmarshal(payload, &msg); err != nil {
			s.logger.Warn("session %s has a malformed message row: %v", id, err)
			return store.NewRecord(id, store.Now()), &store.CorruptionError{Source: s.messagesTable, Err: err}
		}
		msg.Timestamp = ts.UTC()
		rec.Messages = append(rec.Messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating message rows: %w", err)
	}

	rec.MessageCount = len(rec.Messages)
	return rec, nil
}

// Append upserts the session metadata and inserts msgs in one statement.
// Stored timestamps never precede the session's previous updated_at.
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

	now := store.Now()
	args := []any{id, now, len(msgs)}
	rows := make([]string, 0, len(msgs))
	for i, msg := range msgs {
		stamped := store.Stamp(msg, time.Time{}, now)
		payload, err := json.Marshal(stamped)
		if err != nil {
			return &store.WriteError{SessionID: id, Err: fmt.Errorf("failed to marshal message: %w", err)}
		}
		n := len(args)
		rows = append(rows, fmt.Sprintf("($%d::text, $%d::text, $%d::jsonb, %d)", n+1, n+2, n+3, i))
		args = append(args, stamped.ID, string(stamped.Role), payload)
	}

	// rows keep their batch order through the seq column
	query := fmt.Sprintf(`WITH meta AS (
			INSERT INTO %s (id, created_at, updated_at, message_count)
			VALUES ($1, $2, $2, $3)
			ON CONFLICT (id) DO UPDATE SET
				updated_at = GREATEST(%s.updated_at, EXCLUDED.updated_at),
				message_count = %s.message_count + EXCLUDED.message_count
			RETURNING updated_at
		)
		INSERT INTO %s (session_id, id, role, payload, timestamp)
		SELECT $1, v.id, v.role, v.payload, meta.updated_at
		FROM meta, (VALUES %s) AS v(id, role, payload, ord)
		ORDER BY v.ord
	`, s.tableName, s.tableName, s.tableName, s.messagesTable, strings.Join(rows, ", "))

	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return &store.WriteError{SessionID: id, Err: fmt.Errorf("failed to append message: %w", err)}
	}
	return nil
}

// Clear empties or removes the session depending on the clear mode.
func (s *Store) Clear(ctx context.Context, id string) error {
	if err := store.CheckID(id); err != nil {
		return err
	}

	var query string
	args := []any{id}
	if s.clearMode == store.ClearRemoveRecord {
		query = fmt.Sprintf(`WITH cleared AS (DELETE FROM %s WHERE session_id = $1)
			DELETE FROM %s WHERE id = $1`, s.messagesTable, s.tableName)
	} else {
		query = fmt.Sprintf(`WITH cleared AS (DELETE FROM %s WHERE session_id = $1)
			UPDATE %s SET message_count = 0, updated_at = GREATEST(updated_at, $2) WHERE id = $1`,
			s.messagesTable, s.tableName)
		args = append(args, store.Now())
	}

	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return &store.WriteError{SessionID: id, Err: fmt.Errorf("failed to clear session: %w", err)}
	}
	return nil
}

// Stats returns the session metadata.
func (s *Store) Stats(ctx context.Context, id string) (store.SessionStats, bool, error) {
	rec, found, err := s.meta(ctx, id)
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
	rows, err := s.pool.Query(ctx, query)
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
		st.CreatedAt = st.CreatedAt.UTC()
		st.UpdatedAt = st.UpdatedAt.UTC()
		out[id] = st
	}
	if err := rows.Err(); err != nil {
		s.logger.Warn("error iterating session rows: %v", err)
	}
	return out, nil
}

func (s *Store) meta(ctx context.Context, id string) (*store.SessionRecord, bool, error) {
	query := fmt.Sprintf(`SELECT created_at, updated_at, message_count FROM %s WHERE id = $1`, s.tableName)

	rec := &store.SessionRecord{ID: id, Messages: transcript.Transcript{}}
	var createdAt, updatedAt time.Time
	err := s.pool.QueryRow(ctx, query, id).Scan(&createdAt, &updatedAt, &rec.MessageCount)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to load session: %w", err)
	}
	rec.CreatedAt = createdAt.UTC()
	rec.UpdatedAt = updatedAt.UTC()
	return rec, true, nil
}
