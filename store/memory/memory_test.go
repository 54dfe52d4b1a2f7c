package memory

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/smallnest/crewgraph/store"
	"github.com/smallnest/crewgraph/store/storetest"
	"github.com/smallnest/crewgraph/transcript"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_Contract(t *testing.T) {
	storetest.Run(t, func(t *testing.T, mode store.ClearMode) store.Store {
		return New(mode)
	})
}

func TestMemoryStore_LoadReturnsCopy(t *testing.T) {
	s := New(store.ClearKeepRecord)
	ctx := context.Background()
	require.NoError(t, s.Append(ctx, "s", transcript.Human("original")))

	rec, err := s.Load(ctx, "s")
	require.NoError(t, err)
	rec.Messages[0].Content = "mutated"

	again, err := s.Load(ctx, "s")
	require.NoError(t, err)
	assert.Equal(t, "original", again.Messages[0].Content)
}

func TestMemoryStore_ConcurrentAppends(t *testing.T) {
	s := New(store.ClearKeepRecord)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 25; j++ {
				_ = s.Append(ctx, fmt.Sprintf("session-%d", i%2), transcript.Human("m"))
			}
		}(i)
	}
	wg.Wait()

	all, err := s.AllStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 100, all["session-0"].MessageCount)
	assert.Equal(t, 100, all["session-1"].MessageCount)
}
