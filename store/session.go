package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/smallnest/crewgraph/transcript"
)

// ErrEmptySessionID is returned when an operation is given an empty id.
var ErrEmptySessionID = errors.New("session id must not be empty")

// ClearMode selects what Clear does with the session record.
type ClearMode int

const (
	// ClearKeepRecord empties the messages and keeps the record.
	ClearKeepRecord ClearMode = iota
	// ClearRemoveRecord deletes the record entirely.
	ClearRemoveRecord
)

// ParseClearMode maps "keep" and "remove" to a ClearMode.
func ParseClearMode(s string) (ClearMode, error) {
	switch s {
	case "", "keep":
		return ClearKeepRecord, nil
	case "remove", "delete":
		return ClearRemoveRecord, nil
	}
	return ClearKeepRecord, errors.New("unknown clear mode " + s)
}

// SessionRecord is the persisted unit of the store.
type SessionRecord struct {
	ID           string                `json:"session_id"`
	CreatedAt    time.Time             `json:"created_at"`
	UpdatedAt    time.Time             `json:"updated_at"`
	MessageCount int                   `json:"message_count"`
	Messages     transcript.Transcript `json:"messages"`
}

// SessionStats is a read-only snapshot of a record's metadata.
type SessionStats struct {
	MessageCount int       `json:"message_count"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Store persists session transcripts.
type Store interface {
	// Load returns the record for id, or a fresh empty record when the
	// session is unknown.
	Load(ctx context.Context, id string) (*SessionRecord, error)

	// Append adds msgs to the session in order and persists them. Either
	// every message is stored or none is.
	Append(ctx context.Context, id string, msgs ...transcript.Message) error

	// Clear empties the session's messages.
	Clear(ctx context.Context, id string) error

	// Stats returns the session metadata. The bool is false when the
	// session has no record.
	Stats(ctx context.Context, id string) (SessionStats, bool, error)

	// AllStats returns metadata for every stored session.
	AllStats(ctx context.Context) (map[string]SessionStats, error)

	// Close releases backend resources.
	Close() error
}

// Now is the clock used to stamp records.
func Now() time.Time {
	return time.Now().UTC()
}

// NewRecord returns an empty record created at now.
func NewRecord(id string, now time.Time) *SessionRecord {
	return &SessionRecord{
		ID:        id,
		CreatedAt: now,
		UpdatedAt: now,
		Messages:  transcript.Transcript{},
	}
}

// Append stamps msg and adds it to the record. The stamped message is
// returned.
func (r *SessionRecord) Append(msg transcript.Message, now time.Time) transcript.Message {
	notBefore := r.CreatedAt
	if last, ok := r.Messages.Last(); ok && last.Timestamp.After(notBefore) {
		notBefore = last.Timestamp
	}
	msg = Stamp(msg, notBefore, now)

	r.Messages = r.Messages.Append(msg)
	r.MessageCount = len(r.Messages)
	r.UpdatedAt = msg.Timestamp
	return msg
}

// Stamp returns a copy of msg timestamped with now, clamped so it never
// precedes notBefore. A uuid is assigned when msg has no id.
func Stamp(msg transcript.Message, notBefore, now time.Time) transcript.Message {
	msg = msg.Clone()
	if now.Before(notBefore) {
		now = notBefore
	}
	msg.Timestamp = now
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	return msg
}

// Clear empties the record's messages.
func (r *SessionRecord) Clear(now time.Time) {
	r.Messages = transcript.Transcript{}
	r.MessageCount = 0
	if now.After(r.UpdatedAt) {
		r.UpdatedAt = now
	}
}

// Stats returns the record's metadata.
func (r *SessionRecord) Stats() SessionStats {
	return SessionStats{
		MessageCount: r.MessageCount,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
}

// Clone deep-copies the record.
func (r *SessionRecord) Clone() *SessionRecord {
	if r == nil {
		return nil
	}
	cp := *r
	cp.Messages = r.Messages.Clone()
	if cp.Messages == nil {
		cp.Messages = transcript.Transcript{}
	}
	return &cp
}

// CheckID validates a session id.
func CheckID(id string) error {
	if id == "" {
		return ErrEmptySessionID
	}
	return nil
}
