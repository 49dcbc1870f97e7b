package ai

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
)

// Client provides chat, structured generation and embedding capabilities
type Client interface {
	// Chat runs one chat completion. When tools are given the model may
	// answer with tool calls instead of (or in addition to) content.
	Chat(ctx context.Context, messages []Message, tools []Tool) (Message, error)
	// GenerateJSON asks the model for a single JSON document.
	GenerateJSON(ctx context.Context, prompt string) (string, error)
	Embed(ctx context.Context, text string) ([]float32, error)
	Dim() int
}

// Role is the author of a chat message
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is one turn of a conversation
type Message struct {
	Role    Role
	Content string
	// ToolCalls is set on assistant turns that invoked tools.
	ToolCalls []ToolCall
	// ToolCallID and Name identify the call a tool turn answers.
	ToolCallID string
	Name       string
}

// ToolCall is a model request to invoke a tool. Arguments is a JSON object.
type ToolCall struct {
	ID        string
	Name      string
	Arguments string
}

// Tool describes a function the model may call. All parameters are strings.
type Tool struct {
	Name        string
	Description string
	Parameters  []ToolParam
}

type ToolParam struct {
	Name        string
	Description string
	Required    bool
}

// Provider is enumeration of supported AI providers
type Provider string

const (
	ProviderOpenAI   Provider = "openai"
	ProviderVertexAI Provider = "vertexai"
	ProviderStub     Provider = "stub"
)

// ClientConfig holds configuration for AI clients
type ClientConfig struct {
	APIKey     string
	ChatModel  string
	EmbedModel string
	Dim        int
	ProjectID  string
	Provider   Provider
	Location   string
}

// NewClient creates a new AI client based on configuration
func NewClient(ctx context.Context, config *ClientConfig) (Client, error) {
	if config == nil {
		return nil, errors.New("client config is required")
	}

	switch config.Provider {
	case ProviderOpenAI:
		return NewOpenAIClient(config), nil
	case ProviderVertexAI:
		return NewVertexAIClient(ctx, config)
	case ProviderStub:
		return NewStubClient(config.Dim), nil
	default:
		return nil, errors.New("unsupported provider: " + string(config.Provider))
	}
}

// ParseProvider maps a configured provider name to a Provider.
func ParseProvider(name string) (Provider, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "openai":
		return ProviderOpenAI, nil
	case "vertexai", "google", "gemini":
		return ProviderVertexAI, nil
	case "stub", "":
		return ProviderStub, nil
	default:
		return "", errors.New("unsupported provider: " + name)
	}
}

// StubClient is an offline implementation of the Client interface. It calls
// the first offered tool whenever the latest user turn looks like a question
// about projects, and otherwise echoes a canned answer.
type StubClient struct {
	dim int
}

// DefaultStubDim is the embedding size of a StubClient created without one.
const DefaultStubDim = 768

// NewStubClient creates a new StubClient
func NewStubClient(dim int) *StubClient {
	if dim <= 0 {
		dim = DefaultStubDim
	}
	return &StubClient{dim: dim}
}

var projectWords = []string{"project", "built", "portfolio", "skill", "stack", "work"}

// Chat implements the chat functionality
func (s *StubClient) Chat(ctx context.Context, messages []Message, tools []Tool) (Message, error) {
	var last string
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == RoleUser {
			last = messages[i].Content
			break
		}
	}

	if len(tools) > 0 && len(tools[0].Parameters) > 0 {
		lq := strings.ToLower(last)
		for _, w := range projectWords {
			if strings.Contains(lq, w) {
				args, _ := json.Marshal(map[string]string{
					tools[0].Parameters[0].Name: "projects relevant to: " + last,
				})
				return Message{
					Role:      RoleAssistant,
					ToolCalls: []ToolCall{{ID: "stub-call-1", Name: tools[0].Name, Arguments: string(args)}},
				}, nil
			}
		}
	}
	if len(tools) == 0 {
		return Message{Role: RoleAssistant, Content: "Those are the projects that best match your question."}, nil
	}
	return Message{Role: RoleAssistant, Content: "Thanks for asking! I'm happy to talk about my background."}, nil
}

// GenerateJSON returns an empty project list
func (s *StubClient) GenerateJSON(ctx context.Context, prompt string) (string, error) {
	return `{"projects": []}`, nil
}

// Embed implements the embedding functionality
func (s *StubClient) Embed(ctx context.Context, text string) ([]float32, error) {
	return make([]float32, s.dim), nil
}

// Dim returns the embedding dimension
func (s *StubClient) Dim() int {
	return s.dim
}
