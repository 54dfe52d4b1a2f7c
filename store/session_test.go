package store

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/smallnest/crewgraph/transcript"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordAppendStampsAndCounts(t *testing.T) {
	t0 := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)
	rec := NewRecord("user_123", t0)

	m1 := rec.Append(transcript.Human("hi"), t0.Add(time.Second))
	m2 := rec.Append(transcript.AI("hello"), t0.Add(2*time.Second))

	assert.NotEmpty(t, m1.ID)
	assert.NotEqual(t, m1.ID, m2.ID)
	assert.Equal(t, 2, rec.MessageCount)
	assert.Equal(t, t0.Add(2*time.Second), rec.UpdatedAt)
	assert.Equal(t, t0, rec.CreatedAt)
	assert.Equal(t, "hi", rec.Messages[0].Content)
	assert.Equal(t, "hello", rec.Messages[1].Content)
}

func TestRecordAppendClampsClockSkew(t *testing.T) {
	t0 := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)
	rec := NewRecord("s", t0)

	rec.Append(transcript.Human("a"), t0.Add(time.Minute))
	late := rec.Append(transcript.Human("b"), t0)

	assert.Equal(t, t0.Add(time.Minute), late.Timestamp)
	assert.False(t, rec.Messages[1].Timestamp.Before(rec.Messages[0].Timestamp))
}

func TestRecordAppendKeepsExistingID(t *testing.T) {
	rec := NewRecord("s", Now())
	msg := transcript.Human("a")
	msg.ID = "fixed"

	stamped := rec.Append(msg, Now())
	assert.Equal(t, "fixed", stamped.ID)
}

func TestRecordClear(t *testing.T) {
	t0 := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)
	rec := NewRecord("s", t0)
	rec.Append(transcript.Human("a"), t0)

	rec.Clear(t0.Add(time.Hour))
	assert.Empty(t, rec.Messages)
	assert.NotNil(t, rec.Messages)
	assert.Equal(t, 0, rec.MessageCount)
	assert.Equal(t, t0.Add(time.Hour), rec.UpdatedAt)
	assert.Equal(t, SessionStats{CreatedAt: t0, UpdatedAt: t0.Add(time.Hour)}, rec.Stats())
}

func TestRecordClone(t *testing.T) {
	rec := NewRecord("s", Now())
	rec.Append(transcript.Human("a"), Now())

	cp := rec.Clone()
	cp.Messages[0].Content = "changed"
	assert.Equal(t, "a", rec.Messages[0].Content)

	var nilRec *SessionRecord
	assert.Nil(t, nilRec.Clone())
}

func TestParseClearMode(t *testing.T) {
	m, err := ParseClearMode("")
	require.NoError(t, err)
	assert.Equal(t, ClearKeepRecord, m)

	m, err = ParseClearMode("remove")
	require.NoError(t, err)
	assert.Equal(t, ClearRemoveRecord, m)

	_, err = ParseClearMode("shred")
	assert.Error(t, err)
}

func TestErrorsUnwrap(t *testing.T) {
	base := errors.New("disk full")

	werr := fmt.Errorf("append: %w", &WriteError{SessionID: "s", Err: base})
	var target *WriteError
	require.True(t, errors.As(werr, &target))
	assert.Equal(t, "s", target.SessionID)
	assert.ErrorIs(t, werr, base)

	cerr := &CorruptionError{Source: "/tmp/x.json", Err: base}
	assert.Contains(t, cerr.Error(), "/tmp/x.json")
	assert.ErrorIs(t, cerr, base)

	assert.ErrorIs(t, CheckID(""), ErrEmptySessionID)
	assert.NoError(t, CheckID("s"))
}

func TestStamp(t *testing.T) {
	t0 := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)

	m := Stamp(transcript.Human("a"), t0.Add(time.Hour), t0)
	assert.Equal(t, t0.Add(time.Hour), m.Timestamp)
	assert.NotEmpty(t, m.ID)

	m = Stamp(transcript.Human("b"), t0, t0.Add(time.Second))
	assert.Equal(t, t0.Add(time.Second), m.Timestamp)
}
