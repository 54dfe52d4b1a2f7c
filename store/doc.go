// Package store defines the session transcript store: a durable mapping
// from session id to a SessionRecord holding that session's messages.
//
// Every backend implements the same Store interface:
//
//   - file: one JSON document holding every session, rewritten atomically
//   - memory: process-local map, useful in tests and one-shot runs
//   - sqlite: embedded database, one transaction per append
//   - redis: list + hash per session, MULTI/EXEC appends
//   - postgres: single-statement upsert + insert through a pgx pool
//
// # Semantics
//
// Load never fails for an unknown session id; it returns a fresh empty
// record. When the backing data is malformed, Load returns a fresh record
// together with a *CorruptionError so callers can log and continue.
//
// Append stamps the message with the current time (never earlier than the
// previous message of the session), assigns an id when the message has
// none, refreshes UpdatedAt and MessageCount and persists before returning.
// A failure to persist is reported as a *WriteError.
//
// Clear empties the session. With ClearKeepRecord (the default) the record
// stays in the store with zero messages; with ClearRemoveRecord it is
// deleted entirely.
//
// Example:
//
//	s, err := file.New(file.Options{Path: "./chat_history.json"})
//	if err != nil {
//		return err
//	}
//	defer s.Close()
//
//	if err := s.Append(ctx, "user_123", transcript.Human("hello")); err != nil {
//		return err
//	}
//	stats, ok, err := s.Stats(ctx, "user_123")
package store
