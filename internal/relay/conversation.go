package relay

import "github.com/seanblong/folio/internal/ai"

// Conversation is the turn history shared by the model calls of one relay.
// It is a value: With returns a new Conversation and never changes the
// receiver, so earlier snapshots stay valid.
type Conversation struct {
	turns []ai.Message
}

// NewConversation starts a conversation with a system turn. An empty system
// prompt yields an empty conversation.
func NewConversation(system string) Conversation {
	if system == "" {
		return Conversation{}
	}
	return Conversation{turns: []ai.Message{{Role: ai.RoleSystem, Content: system}}}
}

// With returns a copy of c extended by msgs.
func (c Conversation) With(msgs ...ai.Message) Conversation {
	turns := make([]ai.Message, 0, len(c.turns)+len(msgs))
	turns = append(turns, c.turns...)
	turns = append(turns, msgs...)
	return Conversation{turns: turns}
}

// Messages returns a copy of the turns in order.
func (c Conversation) Messages() []ai.Message {
	out := make([]ai.Message, len(c.turns))
	copy(out, c.turns)
	return out
}

func (c Conversation) Len() int { return len(c.turns) }
