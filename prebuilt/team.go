package prebuilt

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/smallnest/crewgraph/adapter"
	"github.com/smallnest/crewgraph/graph"
	"github.com/smallnest/crewgraph/log"
	"github.com/smallnest/crewgraph/transcript"
)

// Stage names of the review team.
const (
	StageResearch = "research"
	StageWrite    = "write"
	StageReview   = "review"
	StageEscalate = "escalate"
)

const (
	// ResearchMarker prefixes the research stage output. The write stage
	// looks for it to find the material to write from.
	ResearchMarker = "research findings:"

	DefaultMinLength    = 10
	DefaultMaxRevisions = 3

	DefaultPersona = "You are a professional technology writer. Write a clear, " +
		"well-structured short article in Markdown based on the research material you are given."

	reviewerPrompt = "You are a strict editor. Review the article below. Answer with APPROVED " +
		"if it is ready to publish, or REJECTED followed by the main reason if it is not."
)

// TeamConfig configures NewTeam.
type TeamConfig struct {
	// Searcher backs the research stage. Required.
	Searcher adapter.Searcher
	// Writer backs the write stage. Required.
	Writer adapter.Completer
	// Reviewer, when set, is asked for a verdict on drafts that pass the
	// length gate.
	Reviewer adapter.Completer

	// Persona is the writer's system directive. Defaults to DefaultPersona.
	Persona string
	// MinLength is the minimum draft length in runes. Defaults to 10.
	MinLength int
	// MaxRevisions bounds how many times a rejected draft is rewritten.
	// Defaults to 3.
	MaxRevisions int
	// AmbiguousPolicy applies to ambiguous reviewer answers.
	AmbiguousPolicy AmbiguousPolicy

	// WriteRetry retries transient writer failures. Defaults to two
	// retries with exponential backoff from 500ms.
	WriteRetry *graph.RetryPolicy
	// StageTimeout limits each stage attempt. Zero means no limit.
	StageTimeout time.Duration
	// StageRetry is the graph retry policy, applied to stage timeouts.
	StageRetry *graph.RetryPolicy

	Logger    log.Logger
	Listeners []graph.NodeListener
}

func (c *TeamConfig) withDefaults() error {
	if c.Searcher == nil {
		return errors.New("team: searcher is required")
	}
	if c.Writer == nil {
		return errors.New("team: writer is required")
	}
	if c.Persona == "" {
		c.Persona = DefaultPersona
	}
	if c.MinLength <= 0 {
		c.MinLength = DefaultMinLength
	}
	if c.MaxRevisions <= 0 {
		c.MaxRevisions = DefaultMaxRevisions
	}
	if c.WriteRetry == nil {
		c.WriteRetry = &graph.RetryPolicy{
			MaxRetries:      2,
			BackoffStrategy: graph.ExponentialBackoff,
			BaseDelay:       500 * time.Millisecond,
			MaxDelay:        5 * time.Second,
		}
	}
	if c.WriteRetry.Retryable == nil {
		policy := *c.WriteRetry
		policy.Retryable = adapter.IsTransient
		c.WriteRetry = &policy
	}
	c.Logger = log.OrDefault(c.Logger)
	return nil
}

// TeamMaxSteps is the step budget for a team allowed maxRevisions rewrites:
// one research step plus a write and a review per draft.
func TeamMaxSteps(maxRevisions int) int {
	return 1 + 2*(maxRevisions+1)
}

// NewTeamState seeds a run with the topic as the first human message.
func NewTeamState(topic string) graph.MessagesState {
	return graph.NewMessagesState(transcript.Human(topic))
}

type team struct {
	cfg TeamConfig
}

// NewTeam builds the research, write and review graph.
func NewTeam(cfg TeamConfig) (*graph.StateRunnable[graph.MessagesState], error) {
	if err := cfg.withDefaults(); err != nil {
		return nil, err
	}
	t := &team{cfg: cfg}

	g := graph.NewStateGraph[graph.MessagesState]()
	g.SetSchema(graph.MessagesSchema{})
	g.SetLogger(cfg.Logger)
	g.SetNodeTimeout(cfg.StageTimeout)
	g.SetRetryPolicy(cfg.StageRetry)
	for _, l := range cfg.Listeners {
		g.AddListener(l)
	}

	g.AddNode(StageResearch, "Search the web for the topic", t.research)
	g.AddNode(StageWrite, "Draft an article from the research", t.write)
	g.AddNode(StageReview, "Check the draft", t.review)
	g.SetEntryPoint(StageResearch)
	g.AddEdge(StageResearch, StageWrite)
	g.AddEdge(StageWrite, StageReview)

	maxSteps := TeamMaxSteps(cfg.MaxRevisions)
	targets := []string{StageWrite, graph.END}
	if cfg.AmbiguousPolicy == FailRun {
		g.AddNode(StageEscalate, "Stop on an ambiguous review", escalate)
		g.AddEdge(StageEscalate, graph.END)
		targets = append(targets, StageEscalate)
		maxSteps++
	}
	g.AddConditionalEdge(StageReview, routeVerdict(StageWrite), targets...)
	g.SetMaxSteps(maxSteps)

	return g.Compile()
}

func (t *team) research(ctx context.Context, s graph.MessagesState) (graph.MessagesState, error) {
	first, ok := s.Messages.First()
	if !ok || strings.TrimSpace(first.Content) == "" {
		return graph.MessagesState{}, errors.New("research: transcript has no topic")
	}

	results, err := t.cfg.Searcher.Search(ctx, first.Content)
	if err != nil {
		if ctx.Err() != nil {
			return graph.MessagesState{}, ctx.Err()
		}
		t.cfg.Logger.Warn("research search failed for %q: %v", first.Content, err)
		return graph.Update(stageMessage(StageResearch, fmt.Sprintf("%s search failed: %v", ResearchMarker, err))), nil
	}
	return graph.Update(stageMessage(StageResearch, ResearchMarker+"\n"+results)), nil
}

func (t *team) write(ctx context.Context, s graph.MessagesState) (graph.MessagesState, error) {
	material, ok := s.Messages.FindLast(func(m transcript.Message) bool {
		return strings.Contains(strings.ToLower(m.Content), ResearchMarker)
	})
	if !ok {
		material, _ = s.Messages.First()
	}

	var instruction strings.Builder
	instruction.WriteString(t.cfg.Persona)
	instruction.WriteString("\n\n")
	instruction.WriteString(material.Content)
	if v, ok := VerdictOf(s); ok && v.Kind == Rejected {
		fmt.Fprintf(&instruction, "\n\nThe previous draft was rejected: %s. Address this in the new draft.", v.Reason)
	}

	draft, attempts, err := graph.Retry(ctx, t.cfg.WriteRetry, func(ctx context.Context) (transcript.Message, error) {
		return t.cfg.Writer.Complete(ctx, []transcript.Message{transcript.Human(instruction.String())})
	})
	if err != nil {
		if ctx.Err() != nil {
			return graph.MessagesState{}, ctx.Err()
		}
		t.cfg.Logger.Error("write failed after %d attempts: %v", attempts, err)
		return graph.Update(stageMessage(StageWrite, fmt.Sprintf("draft unavailable: %v", err))).
			With(AuxDraftError, true).
			With(AuxVerdict, nil), nil
	}

	draft.Role = transcript.RoleAI
	draft.Name = StageWrite
	draft.ToolCalls = nil
	return graph.Update(draft).
		With(AuxDraftError, nil).
		With(AuxVerdict, nil), nil
}

func (t *team) review(ctx context.Context, s graph.MessagesState) (graph.MessagesState, error) {
	v := t.judge(ctx, s)
	if ctx.Err() != nil {
		return graph.MessagesState{}, ctx.Err()
	}
	v = t.cfg.AmbiguousPolicy.Resolve(v)
	t.cfg.Logger.Info("review verdict: %s", v)
	return graph.Update(stageMessage(StageReview, v.String())).With(AuxVerdict, v), nil
}

func (t *team) judge(ctx context.Context, s graph.MessagesState) Verdict {
	if failed, _ := s.Aux[AuxDraftError].(bool); failed {
		return Reject("draft unavailable")
	}

	last, _ := s.Messages.Last()
	if utf8.RuneCountInString(strings.TrimSpace(last.Content)) < t.cfg.MinLength {
		return Reject("too short")
	}
	if t.cfg.Reviewer == nil {
		return Approve()
	}

	answer, err := t.cfg.Reviewer.Complete(ctx, []transcript.Message{
		transcript.System(reviewerPrompt),
		transcript.Human(last.Content),
	})
	if err != nil {
		t.cfg.Logger.Warn("reviewer failed: %v", err)
		return Unclear(fmt.Sprintf("reviewer unavailable: %v", err))
	}
	return ParseReview(answer.Content)
}

// stageMessage is an AI message attributed to the stage that produced it.
func stageMessage(stage, content string) transcript.Message {
	m := transcript.AI(content)
	m.Name = stage
	return m
}

// LatestDraft returns the most recent output of the write stage.
func LatestDraft(s graph.MessagesState) (transcript.Message, bool) {
	return s.Messages.FindLast(func(m transcript.Message) bool {
		return m.Role == transcript.RoleAI && m.Name == StageWrite
	})
}

// routeVerdict routes on the stored verdict: approval ends the run, a
// rejection returns to rework, and an ambiguous verdict escalates. A
// missing verdict counts as ambiguous.
func routeVerdict(rework string) graph.Router[graph.MessagesState] {
	return func(ctx context.Context, s graph.MessagesState) string {
		v, ok := VerdictOf(s)
		if !ok {
			return StageEscalate
		}
		switch v.Kind {
		case Approved:
			return graph.END
		case Rejected:
			return rework
		default:
			return StageEscalate
		}
	}
}

func escalate(ctx context.Context, s graph.MessagesState) (graph.MessagesState, error) {
	v, _ := VerdictOf(s)
	return graph.MessagesState{}, fmt.Errorf("%w: %s", ErrAmbiguousVerdict, v.Reason)
}
