package relay

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/seanblong/folio/internal/ai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyToolCall(t *testing.T) {
	var offered []ai.Tool
	client := &MockAIClient{
		ChatFunc: func(ctx context.Context, messages []ai.Message, tools []ai.Tool) (ai.Message, error) {
			offered = tools
			return toolCallReply(`{"query": "projects using Next.js"}`), nil
		},
	}
	c := NewClassifier(client, time.Second, zerolog.Nop())

	base := NewConversation("persona")
	d, conv, err := c.Classify(context.Background(), base, "Show me your projects involving NextJS")
	require.NoError(t, err)

	assert.Equal(t, NeedsProjects, d.Kind)
	assert.Equal(t, "projects using Next.js", d.Hint)
	require.Len(t, offered, 1)
	assert.Equal(t, "fetch_projects", offered[0].Name)

	msgs := conv.Messages()
	require.Len(t, msgs, 4)
	assert.Equal(t, ai.RoleUser, msgs[1].Role)
	assert.Equal(t, "Show me your projects involving NextJS", msgs[1].Content)
	assert.Len(t, msgs[2].ToolCalls, 1)
	assert.Equal(t, ai.Message{Role: ai.RoleTool, Content: "projects using Next.js", ToolCallID: "call-1", Name: "fetch_projects"}, msgs[3])

	assert.Equal(t, 1, base.Len(), "input conversation is not modified")
}

func TestClassifyDirectAnswer(t *testing.T) {
	client := &MockAIClient{
		ChatFunc: func(ctx context.Context, messages []ai.Message, tools []ai.Tool) (ai.Message, error) {
			return ai.Message{Role: ai.RoleAssistant, Content: "  I'm studying.  "}, nil
		},
	}
	d, conv, err := NewClassifier(client, 0, zerolog.Nop()).Classify(context.Background(), NewConversation("persona"), "What are you doing currently")
	require.NoError(t, err)
	assert.Equal(t, Decision{Kind: DirectAnswer, Text: "I'm studying."}, d)
	assert.Equal(t, 3, conv.Len())
}

func TestClassifyHintFallback(t *testing.T) {
	for _, args := range []string{``, `{}`, `{"query": "   "}`, `not json`, `{"query": 42}`} {
		client := &MockAIClient{
			ChatFunc: func(ctx context.Context, messages []ai.Message, tools []ai.Tool) (ai.Message, error) {
				return toolCallReply(args), nil
			},
		}
		d, _, err := NewClassifier(client, time.Second, zerolog.Nop()).Classify(context.Background(), Conversation{}, " Go projects ")
		require.NoError(t, err, args)
		assert.Equal(t, NeedsProjects, d.Kind, args)
		assert.Equal(t, "Go projects", d.Hint, args)
	}
}

func TestClassifyFailures(t *testing.T) {
	tests := []struct {
		name  string
		reply ai.Message
		err   error
	}{
		{name: "transport", err: errors.New("connection refused")},
		{name: "empty response", reply: ai.Message{Role: ai.RoleAssistant}},
		{name: "unknown tool", reply: ai.Message{Role: ai.RoleAssistant, ToolCalls: []ai.ToolCall{{Name: "other"}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &MockAIClient{
				ChatFunc: func(ctx context.Context, messages []ai.Message, tools []ai.Tool) (ai.Message, error) {
					return tt.reply, tt.err
				},
			}
			d, _, err := NewClassifier(client, time.Second, zerolog.Nop()).Classify(context.Background(), Conversation{}, "hi")
			assert.Error(t, err)
			assert.Equal(t, Decision{Kind: DirectAnswer, Text: Apology}, d)
		})
	}
}

func TestClassifyTimeout(t *testing.T) {
	client := &MockAIClient{
		ChatFunc: func(ctx context.Context, messages []ai.Message, tools []ai.Tool) (ai.Message, error) {
			<-ctx.Done()
			return ai.Message{}, ctx.Err()
		},
	}
	d, _, err := NewClassifier(client, 10*time.Millisecond, zerolog.Nop()).Classify(context.Background(), Conversation{}, "hi")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, Apology, d.Text)
}

func TestConversationIsImmutable(t *testing.T) {
	a := NewConversation("sys")
	b := a.With(ai.Message{Role: ai.RoleUser, Content: "one"})
	c := a.With(ai.Message{Role: ai.RoleUser, Content: "two"})

	assert.Equal(t, 1, a.Len())
	assert.Equal(t, "one", b.Messages()[1].Content)
	assert.Equal(t, "two", c.Messages()[1].Content)

	msgs := b.Messages()
	msgs[1].Content = "changed"
	assert.Equal(t, "one", b.Messages()[1].Content)

	assert.Equal(t, 0, NewConversation("").Len())
}
