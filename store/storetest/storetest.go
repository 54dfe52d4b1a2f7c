// Package storetest holds behaviour checks shared by every store backend.
package storetest

import (
	"context"
	"fmt"
	"testing"

	"github.com/smallnest/crewgraph/store"
	"github.com/smallnest/crewgraph/transcript"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Factory opens a fresh, empty store for one subtest.
type Factory func(t *testing.T, mode store.ClearMode) store.Store

// Run exercises the Store contract against the backend built by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Run("LoadUnknownSession", func(t *testing.T) {
		s := newStore(t, store.ClearKeepRecord)
		ctx := context.Background()

		rec, err := s.Load(ctx, "nobody")
		require.NoError(t, err)
		assert.Equal(t, "nobody", rec.ID)
		assert.Empty(t, rec.Messages)
		assert.Equal(t, 0, rec.MessageCount)

		_, ok, err := s.Stats(ctx, "nobody")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("AppendPreservesOrder", func(t *testing.T) {
		s := newStore(t, store.ClearKeepRecord)
		ctx := context.Background()

		want := []transcript.Message{
			transcript.Human("hello"),
			transcript.AI("hi there"),
			transcript.Human("what is 6*7?"),
			transcript.AI("42"),
		}
		for _, m := range want {
			require.NoError(t, s.Append(ctx, "user_123", m))
		}

		rec, err := s.Load(ctx, "user_123")
		require.NoError(t, err)
		require.Len(t, rec.Messages, len(want))
		assert.Equal(t, len(want), rec.MessageCount)
		for i, m := range want {
			assert.Equal(t, m.Role, rec.Messages[i].Role)
			assert.Equal(t, m.Content, rec.Messages[i].Content)
			assert.NotEmpty(t, rec.Messages[i].ID)
			if i > 0 {
				assert.False(t, rec.Messages[i].Timestamp.Before(rec.Messages[i-1].Timestamp))
			}
		}
		assert.False(t, rec.UpdatedAt.Before(rec.CreatedAt))
	})

	t.Run("ToolMetadataRoundTrip", func(t *testing.T) {
		s := newStore(t, store.ClearKeepRecord)
		ctx := context.Background()

		ai := transcript.AI("")
		ai.ToolCalls = []transcript.ToolCall{{ID: "call_1", Name: "multiply", Arguments: `{"input":"6,7"}`}}
		require.NoError(t, s.Append(ctx, "tools", ai))
		require.NoError(t, s.Append(ctx, "tools", transcript.ToolResult("call_1", "multiply", "42")))

		rec, err := s.Load(ctx, "tools")
		require.NoError(t, err)
		require.Len(t, rec.Messages, 2)
		assert.Equal(t, ai.ToolCalls, rec.Messages[0].ToolCalls)
		assert.Equal(t, "call_1", rec.Messages[1].ToolCallID)
		assert.Equal(t, "multiply", rec.Messages[1].Name)
	})

	t.Run("SessionIsolation", func(t *testing.T) {
		s := newStore(t, store.ClearKeepRecord)
		ctx := context.Background()

		require.NoError(t, s.Append(ctx, "a", transcript.Human("a1")))
		before, ok, err := s.Stats(ctx, "a")
		require.NoError(t, err)
		require.True(t, ok)

		for i := 0; i < 3; i++ {
			require.NoError(t, s.Append(ctx, "b", transcript.Human(fmt.Sprintf("b%d", i))))
		}

		after, ok, err := s.Stats(ctx, "a")
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, before.MessageCount, after.MessageCount)
		assert.True(t, before.UpdatedAt.Equal(after.UpdatedAt))

		rec, err := s.Load(ctx, "a")
		require.NoError(t, err)
		require.Len(t, rec.Messages, 1)
		assert.Equal(t, "a1", rec.Messages[0].Content)
	})

	t.Run("ClearKeepsRecord", func(t *testing.T) {
		s := newStore(t, store.ClearKeepRecord)
		ctx := context.Background()

		require.NoError(t, s.Append(ctx, "s", transcript.Human("x")))
		require.NoError(t, s.Append(ctx, "other", transcript.Human("y")))
		require.NoError(t, s.Clear(ctx, "s"))

		stats, ok, err := s.Stats(ctx, "s")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, 0, stats.MessageCount)

		rec, err := s.Load(ctx, "s")
		require.NoError(t, err)
		assert.Empty(t, rec.Messages)

		other, err := s.Load(ctx, "other")
		require.NoError(t, err)
		assert.Len(t, other.Messages, 1)

		require.NoError(t, s.Append(ctx, "s", transcript.Human("again")))
		rec, err = s.Load(ctx, "s")
		require.NoError(t, err)
		assert.Len(t, rec.Messages, 1)
	})

	t.Run("ClearRemovesRecord", func(t *testing.T) {
		s := newStore(t, store.ClearRemoveRecord)
		ctx := context.Background()

		require.NoError(t, s.Append(ctx, "s", transcript.Human("x")))
		require.NoError(t, s.Clear(ctx, "s"))

		_, ok, err := s.Stats(ctx, "s")
		require.NoError(t, err)
		assert.False(t, ok)

		all, err := s.AllStats(ctx)
		require.NoError(t, err)
		assert.NotContains(t, all, "s")
	})

	t.Run("ClearUnknownSession", func(t *testing.T) {
		s := newStore(t, store.ClearKeepRecord)
		assert.NoError(t, s.Clear(context.Background(), "ghost"))
	})

	t.Run("AppendBatch", func(t *testing.T) {
		s := newStore(t, store.ClearKeepRecord)
		ctx := context.Background()

		require.NoError(t, s.Append(ctx, "turns", transcript.Human("first")))
		require.NoError(t, s.Append(ctx, "turns",
			transcript.Human("what is 6*7?"),
			transcript.AI("42"),
		))
		require.NoError(t, s.Append(ctx, "turns"))

		rec, err := s.Load(ctx, "turns")
		require.NoError(t, err)
		require.Len(t, rec.Messages, 3)
		assert.Equal(t, 3, rec.MessageCount)
		assert.Equal(t, "first", rec.Messages[0].Content)
		assert.Equal(t, "what is 6*7?", rec.Messages[1].Content)
		assert.Equal(t, transcript.RoleAI, rec.Messages[2].Role)
		assert.Equal(t, "42", rec.Messages[2].Content)
		assert.NotEqual(t, rec.Messages[1].ID, rec.Messages[2].ID)
		assert.False(t, rec.Messages[2].Timestamp.Before(rec.Messages[1].Timestamp))

		stats, ok, err := s.Stats(ctx, "turns")
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, 3, stats.MessageCount)
	})

	t.Run("AllStats", func(t *testing.T) {
		s := newStore(t, store.ClearKeepRecord)
		ctx := context.Background()

		all, err := s.AllStats(ctx)
		require.NoError(t, err)
		assert.Empty(t, all)

		require.NoError(t, s.Append(ctx, "a", transcript.Human("1")))
		require.NoError(t, s.Append(ctx, "a", transcript.AI("2")))
		require.NoError(t, s.Append(ctx, "b", transcript.Human("3")))

		all, err = s.AllStats(ctx)
		require.NoError(t, err)
		require.Len(t, all, 2)
		assert.Equal(t, 2, all["a"].MessageCount)
		assert.Equal(t, 1, all["b"].MessageCount)
	})

	t.Run("EmptySessionID", func(t *testing.T) {
		s := newStore(t, store.ClearKeepRecord)
		ctx := context.Background()

		assert.ErrorIs(t, s.Append(ctx, "", transcript.Human("x")), store.ErrEmptySessionID)
		_, err := s.Load(ctx, "")
		assert.ErrorIs(t, err, store.ErrEmptySessionID)
	})

	t.Run("CanceledContext", func(t *testing.T) {
		s := newStore(t, store.ClearKeepRecord)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		err := s.Append(ctx, "s", transcript.Human("x"))
		assert.ErrorIs(t, err, context.Canceled)
	})
}
