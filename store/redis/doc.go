// Package redis provides a Redis-backed session store.
//
// Each session uses three keys under a configurable prefix:
//
//	<prefix>session:<id>:meta      hash: created_at, updated_at, message_count
//	<prefix>session:<id>:messages  list of JSON-encoded messages
//	<prefix>sessions               set of known session ids
//
// Appends read the metadata under WATCH and commit the message and the new
// metadata in one MULTI/EXEC, so concurrent writers never interleave a
// half-applied append.
//
// # Basic Usage
//
//	s := redis.New(redis.Options{
//		Addr:   "localhost:6379",
//		Prefix: "crewgraph:", // Optional key prefix
//		TTL:    24 * time.Hour, // Optional expiry, refreshed on every append
//	})
//	defer s.Close()
package redis
