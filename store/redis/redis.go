package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/smallnest/crewgraph/log"
	"github.com/smallnest/crewgraph/store"
	"github.com/smallnest/crewgraph/transcript"
)

const maxTxRetries = 5

// Store implements store.Store using Redis
type Store struct {
	client    *redis.Client
	prefix    string
	ttl       time.Duration
	clearMode store.ClearMode
	logger    log.Logger
}

var _ store.Store = (*Store)(nil)

// Options configuration for Redis connection
type Options struct {
	Addr      string
	Password  string
	DB        int
	Prefix    string        // Key prefix, default "crewgraph:"
	TTL       time.Duration // Expiration for sessions, default 0 (no expiration)
	ClearMode store.ClearMode
	Logger    log.Logger
}

// New creates a Redis session store
func New(opts Options) *Store {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	prefix := opts.Prefix
	if prefix == "" {
		prefix = "crewgraph:"
	}

	return &Store{
		client:    client,
		prefix:    prefix,
		ttl:       opts.TTL,
		clearMode: opts.ClearMode,
		logger:    log.OrDefault(opts.Logger),
	}
}

func (s *Store) metaKey(id string) string {
	return fmt.Sprintf("%ssession:%s:meta", s.prefix, id)
}

func (s *Store) messagesKey(id string) string {
	return fmt.Sprintf("%ssession:%s:messages", s.prefix, id)
}

func (s *Store) indexKey() string {
	return s.prefix + "sessions"
}

// Close closes the client
func (s *Store) Close() error {
	return s.client.Close()
}

// Load returns the session record, or a fresh one when the id is unknown.
func (s *Store) Load(ctx context.Context, id string) (*store.SessionRecord, error) {
	if err := store.CheckID(id); err != nil {
		return nil, err
	}

	fields, err := s.client.HGetAll(ctx, s.metaKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load session from redis: %w", err)
	}
	if len(fields) == 0 {
		return store.NewRecord(id, store.Now()), nil
	}

	rec, err := parseMeta(id, fields)
	if err != nil {
		s.logger.Warn("session %s has malformed metadata: %v", id, err)
		return store.NewRecord(id, store.Now()), &store.CorruptionError{Source: s.metaKey(id), Err: err}
	}

	items, err := s.client.LRange(ctx, s.messagesKey(id), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load messages from redis: %w", err)
	}
	for _, item := range items {
		var msg transcript.Message
		if err := json.Unmarshal([]byte(item), &msg); err != nil {
			s.logger.Warn("session %s has a malformed message: %v", id, err)
			return store.NewRecord(id, store.Now()), &store.CorruptionError{Source: s.messagesKey(id), Err: err}
		}
		rec.Messages = append(rec.Messages, msg)
	}
	rec.MessageCount = len(rec.Messages)
	return rec, nil
}

// Append adds msgs using an optimistic WATCH/MULTI transaction.
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

	metaKey := s.metaKey(id)
	txf := func(tx *redis.Tx) error {
		fields, err := tx.HGetAll(ctx, metaKey).Result()
		if err != nil {
			return err
		}

		now := store.Now()
		rec := store.NewRecord(id, now)
		if len(fields) > 0 {
			if parsed, perr := parseMeta(id, fields); perr == nil {
				rec = parsed
			} else {
				s.logger.Warn("session %s has malformed metadata, resetting: %v", id, perr)
			}
		}

		last := rec.UpdatedAt
		payloads := make([]any, 0, len(msgs))
		for _, msg := range msgs {
			stamped := store.Stamp(msg, last, now)
			last = stamped.Timestamp
			payload, err := json.Marshal(stamped)
			if err != nil {
				return fmt.Errorf("failed to marshal message: %w", err)
			}
			payloads = append(payloads, payload)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.RPush(ctx, s.messagesKey(id), payloads...)
			pipe.HSet(ctx, metaKey,
				"created_at", rec.CreatedAt.Format(time.RFC3339Nano),
				"updated_at", last.Format(time.RFC3339Nano),
			)
			pipe.HIncrBy(ctx, metaKey, "message_count", int64(len(msgs)))
			pipe.SAdd(ctx, s.indexKey(), id)
			if s.ttl > 0 {
				pipe.Expire(ctx, metaKey, s.ttl)
				pipe.Expire(ctx, s.messagesKey(id), s.ttl)
			}
			return nil
		})
		return err
	}

	var err error
	for i := 0; i < maxTxRetries; i++ {
		err = s.client.Watch(ctx, txf, metaKey)
		if !errors.Is(err, redis.TxFailedErr) {
			break
		}
	}
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

	metaKey := s.metaKey(id)
	exists, err := s.client.Exists(ctx, metaKey).Result()
	if err != nil {
		return &store.WriteError{SessionID: id, Err: err}
	}
	if exists == 0 {
		return nil
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.messagesKey(id))
		if s.clearMode == store.ClearRemoveRecord {
			pipe.Del(ctx, metaKey)
			pipe.SRem(ctx, s.indexKey(), id)
			return nil
		}
		pipe.HSet(ctx, metaKey,
			"updated_at", store.Now().Format(time.RFC3339Nano),
			"message_count", 0,
		)
		return nil
	})
	if err != nil {
		return &store.WriteError{SessionID: id, Err: err}
	}
	return nil
}

// Stats returns the session metadata.
func (s *Store) Stats(ctx context.Context, id string) (store.SessionStats, bool, error) {
	fields, err := s.client.HGetAll(ctx, s.metaKey(id)).Result()
	if err != nil {
		return store.SessionStats{}, false, fmt.Errorf("failed to load session stats: %w", err)
	}
	if len(fields) == 0 {
		return store.SessionStats{}, false, nil
	}
	rec, err := parseMeta(id, fields)
	if err != nil {
		return store.SessionStats{}, false, &store.CorruptionError{Source: s.metaKey(id), Err: err}
	}
	return rec.Stats(), true, nil
}

// AllStats returns metadata for every indexed session. Redis failures are
// logged and reported as an empty result.
func (s *Store) AllStats(ctx context.Context) (map[string]store.SessionStats, error) {
	out := make(map[string]store.SessionStats)

	ids, err := s.client.SMembers(ctx, s.indexKey()).Result()
	if err != nil {
		s.logger.Warn("failed to list sessions from redis: %v", err)
		return out, nil
	}
	if len(ids) == 0 {
		return out, nil
	}

	pipe := s.client.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.HGetAll(ctx, s.metaKey(id))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		s.logger.Warn("failed to fetch session metadata: %v", err)
		return out, nil
	}

	for i, cmd := range cmds {
		fields := cmd.Val()
		if len(fields) == 0 {
			// expired
			continue
		}
		rec, err := parseMeta(ids[i], fields)
		if err != nil {
			s.logger.Warn("skipping session %s with malformed metadata: %v", ids[i], err)
			continue
		}
		out[ids[i]] = rec.Stats()
	}
	return out, nil
}

func parseMeta(id string, fields map[string]string) (*store.SessionRecord, error) {
	createdAt, err := time.Parse(time.RFC3339Nano, fields["created_at"])
	if err != nil {
		return nil, fmt.Errorf("created_at: %w", err)
	}
	updatedAt, err := time.Parse(time.RFC3339Nano, fields["updated_at"])
	if err != nil {
		return nil, fmt.Errorf("updated_at: %w", err)
	}
	count, err := strconv.Atoi(fields["message_count"])
	if err != nil {
		return nil, fmt.Errorf("message_count: %w", err)
	}
	return &store.SessionRecord{
		ID:           id,
		CreatedAt:    createdAt.UTC(),
		UpdatedAt:    updatedAt.UTC(),
		MessageCount: count,
		Messages:     transcript.Transcript{},
	}, nil
}
