// Package sqlite provides a SQLite-backed session store.
//
// Sessions live in two tables: one row of metadata per session and one row
// per message. Each append runs in its own transaction, so writers to
// different sessions never lose each other's updates the way whole-file
// rewrites can.
//
// # Basic Usage
//
//	s, err := sqlite.New(sqlite.Options{
//		Path:      "./sessions.db",
//		TableName: "sessions", // Optional, messages go to "sessions_messages"
//	})
//	if err != nil {
//		return err
//	}
//	defer s.Close()
//
//	err = s.Append(ctx, "user_123", transcript.Human("hello"))
//
// Use ":memory:" as Path for a throwaway database in tests.
package sqlite
