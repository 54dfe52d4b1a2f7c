package prebuilt

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/smallnest/crewgraph/adapter"
	"github.com/smallnest/crewgraph/graph"
	"github.com/smallnest/crewgraph/log"
	"github.com/smallnest/crewgraph/transcript"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
)

const article = "Go generics make reusable containers simple." // 44 runes

// scriptedCompleter replies with the scripted answers in order, repeating
// the last one, and records every prompt.
type scriptedCompleter struct {
	mu      sync.Mutex
	replies []string
	errs    []error
	prompts [][]transcript.Message
}

func (c *scriptedCompleter) Complete(ctx context.Context, msgs []transcript.Message, options ...llms.CallOption) (transcript.Message, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := len(c.prompts)
	c.prompts = append(c.prompts, msgs)
	if n < len(c.errs) && c.errs[n] != nil {
		return transcript.Message{}, c.errs[n]
	}
	if len(c.replies) == 0 {
		return transcript.AI(""), nil
	}
	return transcript.AI(c.replies[min(n, len(c.replies)-1)]), nil
}

func (c *scriptedCompleter) calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.prompts)
}

func staticSearch(result string) adapter.Searcher {
	return adapter.SearcherFunc(func(ctx context.Context, q string) (string, error) {
		return result + " about " + q, nil
	})
}

func quietTeam(t *testing.T, cfg TeamConfig) *graph.StateRunnable[graph.MessagesState] {
	t.Helper()
	cfg.Logger = &log.NoOpLogger{}
	if cfg.WriteRetry == nil {
		cfg.WriteRetry = &graph.RetryPolicy{MaxRetries: 2, BaseDelay: time.Millisecond}
	}
	team, err := NewTeam(cfg)
	require.NoError(t, err)
	return team
}

func contents(msgs transcript.Transcript) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.Content
	}
	return out
}

func TestTeam_ApprovesLongDraftInOnePass(t *testing.T) {
	writer := &scriptedCompleter{replies: []string{article}}
	team := quietTeam(t, TeamConfig{Searcher: staticSearch("three articles"), Writer: writer})

	final, err := team.Invoke(context.Background(), NewTeamState("topic X"))
	require.NoError(t, err)

	require.Len(t, final.Messages, 4)
	assert.Equal(t, transcript.RoleHuman, final.Messages[0].Role)
	assert.Equal(t, "topic X", final.Messages[0].Content)
	assert.True(t, strings.HasPrefix(final.Messages[1].Content, ResearchMarker))
	assert.Contains(t, final.Messages[1].Content, "three articles about topic X")
	assert.Equal(t, article, final.Messages[2].Content)
	assert.Equal(t, "approved", final.Messages[3].Content)
	assert.Equal(t, StageReview, final.Messages[3].Name)

	draft, ok := LatestDraft(final)
	require.True(t, ok)
	assert.Equal(t, article, draft.Content)

	v, ok := VerdictOf(final)
	require.True(t, ok)
	assert.Equal(t, Approved, v.Kind)

	require.Equal(t, 1, writer.calls())
	prompt := writer.prompts[0]
	require.Len(t, prompt, 1)
	assert.Contains(t, prompt[0].Content, DefaultPersona)
	assert.Contains(t, prompt[0].Content, "three articles about topic X")
}

func TestTeam_ShortDraftsDoNotConverge(t *testing.T) {
	writer := &scriptedCompleter{replies: []string{"short"}}
	team := quietTeam(t, TeamConfig{Searcher: staticSearch("r"), Writer: writer, MaxRevisions: 3})

	final, err := team.Invoke(context.Background(), NewTeamState("topic X"))
	require.Error(t, err)
	assert.ErrorIs(t, err, graph.ErrGraphDidNotConverge)

	var dnc *graph.GraphDidNotConvergeError
	require.ErrorAs(t, err, &dnc)
	assert.Equal(t, TeamMaxSteps(3), dnc.MaxSteps)
	assert.Equal(t, StageReview, dnc.LastNode)
	assert.Equal(t, StageWrite, dnc.NextNode)

	// one draft plus three rewrites
	assert.Equal(t, 4, writer.calls())
	last, _ := final.Messages.Last()
	assert.Equal(t, "rejected: too short", last.Content)
	assert.Len(t, final.Messages, 2+4*2)
	draft, ok := LatestDraft(final)
	require.True(t, ok)
	assert.Equal(t, "short", draft.Content)

	// rewrites carry the rejection reason
	assert.NotContains(t, writer.prompts[0][0].Content, "rejected")
	assert.Contains(t, writer.prompts[1][0].Content, "The previous draft was rejected: too short")
}

func TestTeam_ReworkThenApprove(t *testing.T) {
	writer := &scriptedCompleter{replies: []string{"short", article}}
	team := quietTeam(t, TeamConfig{Searcher: staticSearch("r"), Writer: writer})

	final, err := team.Invoke(context.Background(), NewTeamState("topic X"))
	require.NoError(t, err)
	assert.Equal(t, []string{
		"topic X",
		ResearchMarker + "\nr about topic X",
		"short",
		"rejected: too short",
		article,
		"approved",
	}, contents(final.Messages))
	_, hasVerdict := final.Get(AuxVerdict)
	assert.True(t, hasVerdict)
}

func TestTeam_SearchFailureDegrades(t *testing.T) {
	searcher := adapter.SearcherFunc(func(ctx context.Context, q string) (string, error) {
		return "", errors.New("network unreachable")
	})
	writer := &scriptedCompleter{replies: []string{article}}
	team := quietTeam(t, TeamConfig{Searcher: searcher, Writer: writer})

	final, err := team.Invoke(context.Background(), NewTeamState("topic X"))
	require.NoError(t, err)
	assert.Equal(t, ResearchMarker+" search failed: network unreachable", final.Messages[1].Content)
	assert.Contains(t, writer.prompts[0][0].Content, "search failed: network unreachable")
}

func TestTeam_WriterRetriesTransientFailures(t *testing.T) {
	transient := &adapter.CapabilityError{Capability: adapter.CapabilityCompletion, Transient: true, Err: errors.New("429")}
	writer := &scriptedCompleter{replies: []string{article}, errs: []error{transient, transient}}
	team := quietTeam(t, TeamConfig{Searcher: staticSearch("r"), Writer: writer})

	final, err := team.Invoke(context.Background(), NewTeamState("topic X"))
	require.NoError(t, err)
	assert.Equal(t, 3, writer.calls())
	assert.Equal(t, "approved", final.Messages[3].Content)
}

func TestTeam_WriterFailureDegradesDraft(t *testing.T) {
	permanent := &adapter.CapabilityError{Capability: adapter.CapabilityCompletion, Err: errors.New("invalid api key")}
	writer := &scriptedCompleter{errs: []error{permanent, nil}, replies: []string{"", article}}
	team := quietTeam(t, TeamConfig{Searcher: staticSearch("r"), Writer: writer})

	final, err := team.Invoke(context.Background(), NewTeamState("topic X"))
	require.NoError(t, err)

	msgs := contents(final.Messages)
	require.Len(t, msgs, 6)
	assert.Contains(t, msgs[2], "draft unavailable")
	assert.Equal(t, "rejected: draft unavailable", msgs[3])
	assert.Equal(t, article, msgs[4])
	assert.Equal(t, "approved", msgs[5])

	_, flagged := final.Get(AuxDraftError)
	assert.False(t, flagged)
}

func TestTeam_ModelReviewer(t *testing.T) {
	writer := &scriptedCompleter{replies: []string{article, article + " Revised."}}
	reviewer := &scriptedCompleter{replies: []string{"REJECTED: needs a conclusion", "APPROVED"}}
	team := quietTeam(t, TeamConfig{Searcher: staticSearch("r"), Writer: writer, Reviewer: reviewer})

	final, err := team.Invoke(context.Background(), NewTeamState("topic X"))
	require.NoError(t, err)
	assert.Equal(t, 2, reviewer.calls())
	assert.Contains(t, contents(final.Messages), "rejected: needs a conclusion")
	assert.Contains(t, writer.prompts[1][0].Content, "needs a conclusion")
	last, _ := final.Messages.Last()
	assert.Equal(t, "approved", last.Content)
}

func TestTeam_AmbiguousPolicies(t *testing.T) {
	t.Run("treat as approved", func(t *testing.T) {
		team := quietTeam(t, TeamConfig{
			Searcher:        staticSearch("r"),
			Writer:          &scriptedCompleter{replies: []string{article}},
			Reviewer:        &scriptedCompleter{replies: []string{"hmm, not sure"}},
			AmbiguousPolicy: TreatAsApproved,
		})
		final, err := team.Invoke(context.Background(), NewTeamState("topic X"))
		require.NoError(t, err)
		last, _ := final.Messages.Last()
		assert.Equal(t, "approved", last.Content)
	})

	t.Run("treat as rejected", func(t *testing.T) {
		team := quietTeam(t, TeamConfig{
			Searcher:     staticSearch("r"),
			Writer:       &scriptedCompleter{replies: []string{article}},
			Reviewer:     &scriptedCompleter{replies: []string{"hmm, not sure", "approved"}},
			MaxRevisions: 1,
		})
		final, err := team.Invoke(context.Background(), NewTeamState("topic X"))
		require.NoError(t, err)
		assert.Contains(t, contents(final.Messages), "rejected: review contains no verdict")
	})

	t.Run("fail run", func(t *testing.T) {
		team := quietTeam(t, TeamConfig{
			Searcher:        staticSearch("r"),
			Writer:          &scriptedCompleter{replies: []string{article}},
			Reviewer:        &scriptedCompleter{replies: []string{"hmm, not sure"}},
			AmbiguousPolicy: FailRun,
		})
		final, err := team.Invoke(context.Background(), NewTeamState("topic X"))
		assert.ErrorIs(t, err, ErrAmbiguousVerdict)
		var nodeErr *graph.NodeError
		require.ErrorAs(t, err, &nodeErr)
		assert.Equal(t, StageEscalate, nodeErr.Node)
		last, _ := final.Messages.Last()
		assert.Equal(t, "ambiguous: review contains no verdict", last.Content)
	})
}

func TestTeam_StreamMatchesInvoke(t *testing.T) {
	writer := &scriptedCompleter{replies: []string{"short", article}}
	team := quietTeam(t, TeamConfig{Searcher: staticSearch("r"), Writer: writer})

	exec := team.Stream(context.Background(), NewTeamState("topic X"))
	var stages []string
	for ev := range exec.Events() {
		if ev.Event == graph.NodeEventComplete {
			stages = append(stages, ev.NodeName)
		}
	}
	final, err := exec.Wait()
	require.NoError(t, err)

	assert.Equal(t, []string{StageResearch, StageWrite, StageReview, StageWrite, StageReview}, stages)
	assert.Equal(t, 2, writer.calls())
	assert.Len(t, final.Messages, 6)
}

func TestTeam_StageTimeout(t *testing.T) {
	slow := adapter.SearcherFunc(func(ctx context.Context, q string) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	})
	team := quietTeam(t, TeamConfig{
		Searcher:     slow,
		Writer:       &scriptedCompleter{replies: []string{article}},
		StageTimeout: 20 * time.Millisecond,
		StageRetry:   &graph.RetryPolicy{MaxRetries: 1, BaseDelay: time.Millisecond},
	})

	_, err := team.Invoke(context.Background(), NewTeamState("topic X"))
	var timeoutErr *graph.NodeTimeoutError
	require.ErrorAs(t, err, &timeoutErr)
	assert.Equal(t, StageResearch, timeoutErr.Node)
}

func TestNewTeam_Validation(t *testing.T) {
	_, err := NewTeam(TeamConfig{Writer: &scriptedCompleter{}})
	assert.Error(t, err)
	_, err = NewTeam(TeamConfig{Searcher: staticSearch("r")})
	assert.Error(t, err)
	assert.Equal(t, 9, TeamMaxSteps(3))
}
