package memory

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/smallnest/crewgraph/adapter"
	"github.com/smallnest/crewgraph/log"
	"github.com/smallnest/crewgraph/store"
	"github.com/smallnest/crewgraph/transcript"
)

const (
	// DefaultWindow is the number of history messages sent to the model.
	DefaultWindow = 20
	// DefaultTopK is the number of retrieved snippets added per turn.
	DefaultTopK = 2

	DefaultSystemPrompt = "You are a helpful assistant. Answer using the context and the chat history. " +
		"If you do not know the answer, say that you do not know instead of making one up."
)

// ErrEmptyInput is returned by Send for blank input.
var ErrEmptyInput = errors.New("input must not be empty")

// Conversation is a completer with per-session memory.
type Conversation struct {
	store        store.Store
	completer    adapter.Completer
	retriever    adapter.Retriever
	topK         int
	window       int
	systemPrompt string
	logger       log.Logger
}

// Option configures a Conversation.
type Option func(*Conversation)

// WithWindow limits the history sent to the model to the last n messages.
// Zero or less sends the whole transcript.
func WithWindow(n int) Option {
	return func(c *Conversation) {
		c.window = n
	}
}

// WithRetriever adds the top k snippets for every input as context.
func WithRetriever(r adapter.Retriever, k int) Option {
	return func(c *Conversation) {
		c.retriever = r
		if k > 0 {
			c.topK = k
		}
	}
}

// WithSystemPrompt replaces DefaultSystemPrompt.
func WithSystemPrompt(prompt string) Option {
	return func(c *Conversation) {
		c.systemPrompt = prompt
	}
}

// WithLogger sets the logger.
func WithLogger(l log.Logger) Option {
	return func(c *Conversation) {
		c.logger = l
	}
}

// NewConversation returns a Conversation persisting to st.
func NewConversation(st store.Store, completer adapter.Completer, opts ...Option) *Conversation {
	c := &Conversation{
		store:        st,
		completer:    completer,
		topK:         DefaultTopK,
		window:       DefaultWindow,
		systemPrompt: DefaultSystemPrompt,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = log.OrDefault(c.logger)
	return c
}

// Send answers input in the context of the session and records both the
// input and the reply as one append, so a turn is stored whole or not at
// all. Nothing is recorded when the completion fails. A failure to persist
// is returned together with the reply.
func (c *Conversation) Send(ctx context.Context, sessionID, input string) (transcript.Message, error) {
	if strings.TrimSpace(input) == "" {
		return transcript.Message{}, ErrEmptyInput
	}

	history, err := c.History(ctx, sessionID)
	if err != nil {
		return transcript.Message{}, err
	}

	prompt := make([]transcript.Message, 0, len(history)+2)
	if c.systemPrompt != "" {
		prompt = append(prompt, transcript.System(c.systemPrompt))
	}
	prompt = append(prompt, history.Window(c.window)...)
	prompt = append(prompt, transcript.Human(c.question(ctx, input)))

	reply, err := c.completer.Complete(ctx, prompt)
	if err != nil {
		return transcript.Message{}, fmt.Errorf("session %s: %w", sessionID, err)
	}
	reply.Role = transcript.RoleAI

	if err := c.store.Append(ctx, sessionID, transcript.Human(input), reply); err != nil {
		return reply, err
	}
	return reply, nil
}

// question adds retrieved context to input. Retrieval failures leave the
// input unchanged.
func (c *Conversation) question(ctx context.Context, input string) string {
	if c.retriever == nil {
		return input
	}
	snippets, err := c.retriever.Retrieve(ctx, input, c.topK)
	if err != nil {
		c.logger.Warn("retrieval failed, answering without context: %v", err)
		return input
	}
	if len(snippets) == 0 {
		return input
	}
	return fmt.Sprintf("Context:\n%s\n\nQuestion: %s", strings.Join(snippets, "\n\n"), input)
}

// History returns the session transcript. Corrupt backing data is logged
// and read as an empty transcript.
func (c *Conversation) History(ctx context.Context, sessionID string) (transcript.Transcript, error) {
	rec, err := c.store.Load(ctx, sessionID)
	if err != nil {
		var corrupt *store.CorruptionError
		if !errors.As(err, &corrupt) {
			return nil, err
		}
		c.logger.Warn("session %s: %v", sessionID, err)
	}
	if rec == nil {
		return nil, nil
	}
	return rec.Messages, nil
}

// Clear forgets the session history.
func (c *Conversation) Clear(ctx context.Context, sessionID string) error {
	return c.store.Clear(ctx, sessionID)
}

// MergeRun appends the messages of a finished run to a session. Messages
// whose id the session already holds are skipped, so merging a run twice
// writes it once. It returns how many messages
// were written.
func MergeRun(ctx context.Context, st store.Store, sessionID string, run transcript.Transcript) (int, error) {
	rec, err := st.Load(ctx, sessionID)
	var corrupt *store.CorruptionError
	if err != nil && !errors.As(err, &corrupt) {
		return 0, err
	}

	seen := make(map[string]bool)
	if rec != nil {
		for _, m := range rec.Messages {
			seen[m.ID] = true
		}
	}

	written := 0
	for _, m := range run {
		if m.ID != "" && seen[m.ID] {
			continue
		}
		if err := st.Append(ctx, sessionID, m); err != nil {
			return written, err
		}
		written++
	}
	return written, nil
}
