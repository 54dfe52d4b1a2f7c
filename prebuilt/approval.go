package prebuilt

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/smallnest/crewgraph/adapter"
	"github.com/smallnest/crewgraph/graph"
	"github.com/smallnest/crewgraph/log"
	"github.com/smallnest/crewgraph/tool"
	"github.com/smallnest/crewgraph/transcript"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/tools"
)

// Stage names of the approval agent.
const (
	StageAgent = "agent"
	StageTools = "tools"
	StageHuman = "human"
)

const (
	// DefaultApproveToken is the reviewer input that approves an answer.
	DefaultApproveToken = "ok"

	DefaultAgentPrompt = "You are a helpful company assistant. Use the tools when they help. " +
		"Answer the user's question concisely."
)

// HumanReviewer asks a person to review the agent's answer and returns
// their raw input.
type HumanReviewer interface {
	Review(ctx context.Context, answer transcript.Message) (string, error)
}

// HumanReviewerFunc adapts a function to HumanReviewer.
type HumanReviewerFunc func(ctx context.Context, answer transcript.Message) (string, error)

// Review calls f.
func (f HumanReviewerFunc) Review(ctx context.Context, answer transcript.Message) (string, error) {
	return f(ctx, answer)
}

// ApprovalConfig configures NewApprovalAgent.
type ApprovalConfig struct {
	// Agent produces answers and tool calls. Required.
	Agent adapter.Completer
	// Human reviews plain answers. Required.
	Human HumanReviewer
	// Tools are offered to the agent.
	Tools []tools.Tool

	// SystemPrompt defaults to DefaultAgentPrompt.
	SystemPrompt string
	// ApproveToken defaults to "ok".
	ApproveToken string
	// AmbiguousPolicy applies to empty reviewer input.
	AmbiguousPolicy AmbiguousPolicy
	// MaxSteps bounds stage executions per run. Defaults to
	// graph.DefaultMaxSteps.
	MaxSteps int

	// AgentRetry retries transient agent failures. Defaults to two retries
	// with exponential backoff from 500ms.
	AgentRetry   *graph.RetryPolicy
	StageTimeout time.Duration
	StageRetry   *graph.RetryPolicy

	Logger    log.Logger
	Listeners []graph.NodeListener
}

func (c *ApprovalConfig) withDefaults() error {
	if c.Agent == nil {
		return errors.New("approval: agent is required")
	}
	if c.Human == nil {
		return errors.New("approval: human reviewer is required")
	}
	if c.SystemPrompt == "" {
		c.SystemPrompt = DefaultAgentPrompt
	}
	if c.ApproveToken == "" {
		c.ApproveToken = DefaultApproveToken
	}
	if c.MaxSteps <= 0 {
		c.MaxSteps = graph.DefaultMaxSteps
	}
	if c.AgentRetry == nil {
		c.AgentRetry = &graph.RetryPolicy{
			MaxRetries:      2,
			BackoffStrategy: graph.ExponentialBackoff,
			BaseDelay:       500 * time.Millisecond,
			MaxDelay:        5 * time.Second,
		}
	}
	if c.AgentRetry.Retryable == nil {
		policy := *c.AgentRetry
		policy.Retryable = adapter.IsTransient
		c.AgentRetry = &policy
	}
	c.Logger = log.OrDefault(c.Logger)
	return nil
}

type approvalAgent struct {
	cfg      ApprovalConfig
	executor *ToolExecutor
	toolDefs []llms.Tool
}

// NewApprovalAgent builds the agent, tools and human graph.
//
// The agent stage calls the model with the transcript. If the reply asks for
// tools, the tools stage runs them and hands back to the agent; otherwise
// the human stage asks the reviewer. The approve token ends the run, any
// other input returns to the agent with the input as feedback.
func NewApprovalAgent(cfg ApprovalConfig) (*graph.StateRunnable[graph.MessagesState], error) {
	if err := cfg.withDefaults(); err != nil {
		return nil, err
	}
	a := &approvalAgent{
		cfg:      cfg,
		executor: NewToolExecutor(cfg.Tools),
	}
	a.toolDefs = tool.Definitions(a.executor.Tools())

	g := graph.NewStateGraph[graph.MessagesState]()
	g.SetSchema(graph.MessagesSchema{})
	g.SetLogger(cfg.Logger)
	g.SetRetryPolicy(cfg.StageRetry)
	g.SetMaxSteps(cfg.MaxSteps)
	for _, l := range cfg.Listeners {
		g.AddListener(l)
	}

	// the reviewer is a person, so only the capability stages are limited
	g.AddNodeWithTimeout(StageAgent, "Answer or call tools", a.agent, cfg.StageTimeout)
	g.AddNodeWithTimeout(StageTools, "Execute requested tools", a.runTools, cfg.StageTimeout)
	g.AddNode(StageHuman, "Ask a person to approve the answer", a.human)
	g.SetEntryPoint(StageAgent)

	g.AddConditionalEdge(StageAgent, routeAgent, StageTools, StageHuman)
	g.AddEdge(StageTools, StageAgent)

	targets := []string{StageAgent, graph.END}
	if cfg.AmbiguousPolicy == FailRun {
		g.AddNode(StageEscalate, "Stop on an ambiguous review", escalate)
		g.AddEdge(StageEscalate, graph.END)
		targets = append(targets, StageEscalate)
	}
	g.AddConditionalEdge(StageHuman, routeVerdict(StageAgent), targets...)

	return g.Compile()
}

func (a *approvalAgent) agent(ctx context.Context, s graph.MessagesState) (graph.MessagesState, error) {
	msgs := make([]transcript.Message, 0, len(s.Messages)+2)
	msgs = append(msgs, transcript.System(a.cfg.SystemPrompt))
	msgs = append(msgs, s.Messages...)

	feedback := s.GetString(AuxHumanFeedback)
	if feedback != "" {
		msgs = append(msgs, transcript.System(fmt.Sprintf(
			"The reviewer rejected your previous answer with this feedback: %s\nRevise your answer accordingly.", feedback)))
	}

	var opts []llms.CallOption
	if len(a.toolDefs) > 0 {
		opts = append(opts, llms.WithTools(a.toolDefs))
	}

	reply, attempts, err := graph.Retry(ctx, a.cfg.AgentRetry, func(ctx context.Context) (transcript.Message, error) {
		return a.cfg.Agent.Complete(ctx, msgs, opts...)
	})
	if err != nil {
		if ctx.Err() != nil {
			return graph.MessagesState{}, ctx.Err()
		}
		// the reviewer sees the failure and can ask for another attempt;
		// pending feedback stays for that attempt
		a.cfg.Logger.Error("agent failed after %d attempts: %v", attempts, err)
		return graph.Update(stageMessage(StageAgent, fmt.Sprintf("answer unavailable: %v", err))).
			With(AuxVerdict, nil), nil
	}
	reply.Role = transcript.RoleAI

	update := graph.Update(reply).With(AuxVerdict, nil)
	if feedback != "" {
		update = update.With(AuxHumanFeedback, nil)
	}
	return update, nil
}

func (a *approvalAgent) runTools(ctx context.Context, s graph.MessagesState) (graph.MessagesState, error) {
	last, ok := s.Messages.Last()
	if !ok || !last.HasToolCalls() {
		return graph.MessagesState{}, errors.New("tools: last message has no tool calls")
	}
	results, err := a.executor.ExecuteCalls(ctx, last.ToolCalls)
	if err != nil {
		return graph.MessagesState{}, err
	}
	for _, r := range results {
		a.cfg.Logger.Debug("tool %s returned %d bytes", r.Name, len(r.Content))
	}
	return graph.Update(results...), nil
}

func (a *approvalAgent) human(ctx context.Context, s graph.MessagesState) (graph.MessagesState, error) {
	answer, _ := s.Messages.Last()
	input, err := a.cfg.Human.Review(ctx, answer)
	if err != nil {
		return graph.MessagesState{}, fmt.Errorf("human review: %w", err)
	}

	v := a.cfg.AmbiguousPolicy.Resolve(HumanVerdict(input, a.cfg.ApproveToken))
	a.cfg.Logger.Info("human verdict: %s", v)

	update := graph.MessagesState{}.With(AuxVerdict, v)
	if input != "" {
		update.Messages = transcript.Transcript{transcript.Human(input)}
	}
	if v.Kind == Rejected {
		update = update.With(AuxHumanFeedback, v.Reason)
	}
	return update, nil
}

// routeAgent sends tool requests to the tools stage and plain answers to
// the human.
func routeAgent(ctx context.Context, s graph.MessagesState) string {
	if last, ok := s.Messages.Last(); ok && last.HasToolCalls() {
		return StageTools
	}
	return StageHuman
}
