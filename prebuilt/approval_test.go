package prebuilt

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/smallnest/crewgraph/adapter"
	"github.com/smallnest/crewgraph/graph"
	"github.com/smallnest/crewgraph/log"
	"github.com/smallnest/crewgraph/tool"
	"github.com/smallnest/crewgraph/transcript"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/tools"
)

// multiplyingAgent asks for the multiply tool once, then answers with the
// tool result, appending any reviewer feedback it was given.
type multiplyingAgent struct {
	mu      sync.Mutex
	prompts [][]transcript.Message
	opts    []llms.CallOptions
}

func (a *multiplyingAgent) Complete(ctx context.Context, msgs []transcript.Message, options ...llms.CallOption) (transcript.Message, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.prompts = append(a.prompts, msgs)
	var opts llms.CallOptions
	for _, o := range options {
		o(&opts)
	}
	a.opts = append(a.opts, opts)

	var toolResult *transcript.Message
	for i := range msgs {
		if msgs[i].Role == transcript.RoleTool {
			toolResult = &msgs[i]
		}
	}
	if toolResult == nil {
		reply := transcript.AI("")
		reply.ToolCalls = []transcript.ToolCall{{ID: "call_1", Name: "multiply", Arguments: `{"a":6,"b":7}`}}
		return reply, nil
	}

	answer := "6 times 7 is " + toolResult.Content
	if last := msgs[len(msgs)-1]; last.Role == transcript.RoleSystem {
		answer += " (revised)"
	}
	return transcript.AI(answer), nil
}

func (a *multiplyingAgent) calls() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.prompts)
}

// scriptedHuman answers reviews from a fixed list.
type scriptedHuman struct {
	inputs  []string
	answers []string
}

func (h *scriptedHuman) Review(ctx context.Context, answer transcript.Message) (string, error) {
	h.answers = append(h.answers, answer.Content)
	if len(h.inputs) == 0 {
		return "", errors.New("no more input")
	}
	in := h.inputs[0]
	h.inputs = h.inputs[1:]
	return in, nil
}

func quietApproval(t *testing.T, cfg ApprovalConfig) *graph.StateRunnable[graph.MessagesState] {
	t.Helper()
	cfg.Logger = &log.NoOpLogger{}
	if cfg.Tools == nil {
		cfg.Tools = []tools.Tool{tool.Multiply{}}
	}
	agent, err := NewApprovalAgent(cfg)
	require.NoError(t, err)
	return agent
}

func TestApproval_ToolCallThenApprove(t *testing.T) {
	agent := &multiplyingAgent{}
	human := &scriptedHuman{inputs: []string{"ok"}}
	runnable := quietApproval(t, ApprovalConfig{Agent: agent, Human: human})

	final, err := runnable.Invoke(context.Background(), graph.NewMessagesState(transcript.Human("what is 6 times 7?")))
	require.NoError(t, err)

	roles := make([]transcript.Role, len(final.Messages))
	for i, m := range final.Messages {
		roles[i] = m.Role
	}
	assert.Equal(t, []transcript.Role{
		transcript.RoleHuman,
		transcript.RoleAI,
		transcript.RoleTool,
		transcript.RoleAI,
		transcript.RoleHuman,
	}, roles)

	toolMsg := final.Messages[2]
	assert.Equal(t, "42", toolMsg.Content)
	assert.Equal(t, "call_1", toolMsg.ToolCallID)
	assert.Equal(t, "multiply", toolMsg.Name)
	assert.Equal(t, "6 times 7 is 42", final.Messages[3].Content)
	assert.Equal(t, []string{"6 times 7 is 42"}, human.answers)

	v, ok := VerdictOf(final)
	require.True(t, ok)
	assert.Equal(t, Approved, v.Kind)

	// the agent is offered the tool definitions and sees the system prompt first
	require.Equal(t, 2, agent.calls())
	require.Len(t, agent.opts[0].Tools, 1)
	assert.Equal(t, "multiply", agent.opts[0].Tools[0].Function.Name)
	assert.Equal(t, transcript.RoleSystem, agent.prompts[0][0].Role)
	assert.Equal(t, DefaultAgentPrompt, agent.prompts[0][0].Content)
}

func TestApproval_FeedbackLoop(t *testing.T) {
	agent := &multiplyingAgent{}
	human := &scriptedHuman{inputs: []string{"show your work", "ok"}}
	runnable := quietApproval(t, ApprovalConfig{Agent: agent, Human: human})

	final, err := runnable.Invoke(context.Background(), graph.NewMessagesState(transcript.Human("what is 6 times 7?")))
	require.NoError(t, err)

	assert.Equal(t, []string{"6 times 7 is 42", "6 times 7 is 42 (revised)"}, human.answers)
	require.Equal(t, 3, agent.calls())

	revision := agent.prompts[2]
	feedback := revision[len(revision)-1]
	assert.Equal(t, transcript.RoleSystem, feedback.Role)
	assert.Contains(t, feedback.Content, "show your work")

	_, pending := final.Get(AuxHumanFeedback)
	assert.False(t, pending, "feedback is cleared once the agent consumed it")

	last, _ := final.Messages.Last()
	assert.Equal(t, transcript.RoleHuman, last.Role)
	assert.Equal(t, "ok", last.Content)
}

func TestApproval_EmptyInput(t *testing.T) {
	seed := graph.NewMessagesState(transcript.Human("what is 6 times 7?"))

	t.Run("treated as rejection by default", func(t *testing.T) {
		human := &scriptedHuman{inputs: []string{"", "ok"}}
		runnable := quietApproval(t, ApprovalConfig{Agent: &multiplyingAgent{}, Human: human})
		final, err := runnable.Invoke(context.Background(), seed)
		require.NoError(t, err)
		assert.Len(t, human.answers, 2)
		for _, m := range final.Messages {
			if m.Role == transcript.RoleHuman {
				assert.NotEmpty(t, m.Content)
			}
		}
	})

	t.Run("treated as approval", func(t *testing.T) {
		human := &scriptedHuman{inputs: []string{""}}
		runnable := quietApproval(t, ApprovalConfig{Agent: &multiplyingAgent{}, Human: human, AmbiguousPolicy: TreatAsApproved})
		final, err := runnable.Invoke(context.Background(), seed)
		require.NoError(t, err)
		assert.Len(t, human.answers, 1)
		assert.Len(t, final.Messages, 4)
	})

	t.Run("fails the run", func(t *testing.T) {
		human := &scriptedHuman{inputs: []string{""}}
		runnable := quietApproval(t, ApprovalConfig{Agent: &multiplyingAgent{}, Human: human, AmbiguousPolicy: FailRun})
		_, err := runnable.Invoke(context.Background(), seed)
		assert.ErrorIs(t, err, ErrAmbiguousVerdict)
	})
}

func TestApproval_MaxSteps(t *testing.T) {
	reviewer := HumanReviewerFunc(func(ctx context.Context, answer transcript.Message) (string, error) {
		return "try again", nil
	})
	runnable := quietApproval(t, ApprovalConfig{Agent: &multiplyingAgent{}, Human: reviewer, MaxSteps: 6})

	final, err := runnable.Invoke(context.Background(), graph.NewMessagesState(transcript.Human("what is 6 times 7?")))
	var dnc *graph.GraphDidNotConvergeError
	require.ErrorAs(t, err, &dnc)
	assert.Equal(t, 6, dnc.MaxSteps)
	assert.NotEmpty(t, final.Messages)
}

func TestApproval_ReviewerError(t *testing.T) {
	reviewer := HumanReviewerFunc(func(ctx context.Context, answer transcript.Message) (string, error) {
		return "", errors.New("stdin closed")
	})
	runnable := quietApproval(t, ApprovalConfig{Agent: &multiplyingAgent{}, Human: reviewer})

	_, err := runnable.Invoke(context.Background(), graph.NewMessagesState(transcript.Human("q")))
	var nodeErr *graph.NodeError
	require.ErrorAs(t, err, &nodeErr)
	assert.Equal(t, StageHuman, nodeErr.Node)
	assert.Contains(t, err.Error(), "stdin closed")
}

func TestApproval_SlowReviewerIsNotTimedOut(t *testing.T) {
	reviewer := HumanReviewerFunc(func(ctx context.Context, answer transcript.Message) (string, error) {
		select {
		case <-time.After(150 * time.Millisecond):
			return "ok", nil
		case <-ctx.Done():
			return "", ctx.Err()
		}
	})
	runnable := quietApproval(t, ApprovalConfig{
		Agent:        &multiplyingAgent{},
		Human:        reviewer,
		StageTimeout: 50 * time.Millisecond,
	})

	final, err := runnable.Invoke(context.Background(), graph.NewMessagesState(transcript.Human("what is 6 times 7?")))
	require.NoError(t, err)
	v, ok := VerdictOf(final)
	require.True(t, ok)
	assert.Equal(t, Approved, v.Kind)
}

func TestApproval_AgentStageStillTimesOut(t *testing.T) {
	agent := adapter.CompleterFunc(func(ctx context.Context, msgs []transcript.Message, options ...llms.CallOption) (transcript.Message, error) {
		<-ctx.Done()
		return transcript.Message{}, ctx.Err()
	})
	runnable := quietApproval(t, ApprovalConfig{
		Agent:        agent,
		Human:        &scriptedHuman{inputs: []string{"ok"}},
		StageTimeout: 20 * time.Millisecond,
	})

	_, err := runnable.Invoke(context.Background(), graph.NewMessagesState(transcript.Human("q")))
	var timeout *graph.NodeTimeoutError
	require.ErrorAs(t, err, &timeout)
	assert.Equal(t, StageAgent, timeout.Node)
}

func TestApproval_AgentFailureDegrades(t *testing.T) {
	var calls int
	agent := adapter.CompleterFunc(func(ctx context.Context, msgs []transcript.Message, options ...llms.CallOption) (transcript.Message, error) {
		calls++
		if calls <= 2 {
			return transcript.Message{}, &adapter.CapabilityError{
				Capability: adapter.CapabilityCompletion,
				Transient:  true,
				Err:        errors.New("503"),
			}
		}
		return transcript.AI("42"), nil
	})
	human := &scriptedHuman{inputs: []string{"try again", "ok"}}
	runnable := quietApproval(t, ApprovalConfig{
		Agent:      agent,
		Human:      human,
		AgentRetry: &graph.RetryPolicy{MaxRetries: 1, BaseDelay: time.Millisecond},
	})

	final, err := runnable.Invoke(context.Background(), graph.NewMessagesState(transcript.Human("what is 6 times 7?")))
	require.NoError(t, err)
	assert.Equal(t, 3, calls)

	require.Len(t, human.answers, 2)
	assert.Contains(t, human.answers[0], "answer unavailable")
	assert.Contains(t, human.answers[0], "503")
	assert.Equal(t, "42", human.answers[1])

	degraded := final.Messages[1]
	assert.Equal(t, transcript.RoleAI, degraded.Role)
	assert.Equal(t, StageAgent, degraded.Name)
}

func TestApproval_AgentFailureIsBoundedBySteps(t *testing.T) {
	agent := adapter.CompleterFunc(func(ctx context.Context, msgs []transcript.Message, options ...llms.CallOption) (transcript.Message, error) {
		return transcript.Message{}, &adapter.CapabilityError{Capability: adapter.CapabilityCompletion, Transient: true, Err: errors.New("503")}
	})
	reviewer := HumanReviewerFunc(func(ctx context.Context, answer transcript.Message) (string, error) {
		return "try again", nil
	})
	runnable := quietApproval(t, ApprovalConfig{
		Agent:      agent,
		Human:      reviewer,
		MaxSteps:   4,
		AgentRetry: &graph.RetryPolicy{BaseDelay: time.Millisecond},
	})

	_, err := runnable.Invoke(context.Background(), graph.NewMessagesState(transcript.Human("q")))
	assert.ErrorIs(t, err, graph.ErrGraphDidNotConverge)
}

func TestApproval_UnknownToolIsReported(t *testing.T) {
	var seen []transcript.Message
	agent := adapter.CompleterFunc(func(ctx context.Context, msgs []transcript.Message, options ...llms.CallOption) (transcript.Message, error) {
		last := msgs[len(msgs)-1]
		if last.Role == transcript.RoleTool {
			seen = append(seen, last)
			return transcript.AI("sorry"), nil
		}
		reply := transcript.AI("")
		reply.ToolCalls = []transcript.ToolCall{{ID: "c1", Name: "weather", Arguments: "{}"}}
		return reply, nil
	})
	runnable := quietApproval(t, ApprovalConfig{Agent: agent, Human: &scriptedHuman{inputs: []string{"ok"}}})

	_, err := runnable.Invoke(context.Background(), graph.NewMessagesState(transcript.Human("weather?")))
	require.NoError(t, err)
	require.Len(t, seen, 1)
	assert.Contains(t, seen[0].Content, "tool not found: weather")
}

func TestNewApprovalAgent_Validation(t *testing.T) {
	_, err := NewApprovalAgent(ApprovalConfig{Human: &scriptedHuman{}})
	assert.Error(t, err)
	_, err = NewApprovalAgent(ApprovalConfig{Agent: &multiplyingAgent{}})
	assert.Error(t, err)
}
