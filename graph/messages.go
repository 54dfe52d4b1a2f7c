package graph

import (
	"maps"

	"github.com/smallnest/crewgraph/transcript"
)

// MessagesState is the state shared by conversational graphs: the run
// transcript plus a small map of auxiliary routing fields.
type MessagesState struct {
	Messages transcript.Transcript
	Aux      map[string]any
}

// NewMessagesState seeds a state with msgs.
func NewMessagesState(msgs ...transcript.Message) MessagesState {
	return MessagesState{Messages: transcript.Transcript(msgs).Clone()}
}

// Get returns an auxiliary field.
func (s MessagesState) Get(key string) (any, bool) {
	v, ok := s.Aux[key]
	return v, ok
}

// GetString returns an auxiliary field as a string, or "".
func (s MessagesState) GetString(key string) string {
	v, _ := s.Aux[key].(string)
	return v
}

// Update builds a node result appending msgs.
func Update(msgs ...transcript.Message) MessagesState {
	return MessagesState{Messages: msgs}
}

// With returns s with an auxiliary field set. A nil value deletes the key
// when the update is merged. The receiver's map is not modified.
func (s MessagesState) With(key string, value any) MessagesState {
	aux := make(map[string]any, len(s.Aux)+1)
	maps.Copy(aux, s.Aux)
	aux[key] = value
	s.Aux = aux
	return s
}

// MessagesSchema merges node results into a MessagesState: messages are
// appended, auxiliary keys overwrite, and a nil value removes the key.
type MessagesSchema struct{}

var _ StateSchema[MessagesState] = MessagesSchema{}

// Init returns an empty state.
func (MessagesSchema) Init() MessagesState {
	return MessagesState{Messages: transcript.Transcript{}, Aux: map[string]any{}}
}

// Update merges update into current without modifying either.
func (MessagesSchema) Update(current, update MessagesState) (MessagesState, error) {
	aux := make(map[string]any, len(current.Aux)+len(update.Aux))
	maps.Copy(aux, current.Aux)
	for k, v := range update.Aux {
		if v == nil {
			delete(aux, k)
			continue
		}
		aux[k] = v
	}

	return MessagesState{
		Messages: current.Messages.Append(update.Messages...),
		Aux:      aux,
	}, nil
}
