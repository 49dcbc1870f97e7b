package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/seanblong/folio/internal/ai"
)

// Apology is the answer given when the classification call fails.
const Apology = "Sorry, I couldn't process your question right now. Please try again in a moment."

// DefaultTimeout bounds every upstream model call when none is configured.
const DefaultTimeout = 30 * time.Second

// FetchProjectsTool is the single tool offered to the classifier. Calling it
// records the lookup description; nothing is fetched at that point.
var FetchProjectsTool = ai.Tool{
	Name:        "fetch_projects",
	Description: "Fetch portfolio projects tailored to the user's question. The query is used as the prompt for a second model, so be detailed about technologies, domains and goals.",
	Parameters: []ai.ToolParam{{
		Name:        "query",
		Description: "Detailed description of the projects that are relevant",
		Required:    true,
	}},
}

// DecisionKind tells which branch of the relay a query takes.
type DecisionKind int

const (
	DirectAnswer DecisionKind = iota
	NeedsProjects
)

func (k DecisionKind) String() string {
	switch k {
	case DirectAnswer:
		return "direct_answer"
	case NeedsProjects:
		return "needs_projects"
	default:
		return fmt.Sprintf("DecisionKind(%d)", int(k))
	}
}

// Decision is the classifier outcome. Text is set for DirectAnswer, Hint for
// NeedsProjects.
type Decision struct {
	Kind DecisionKind
	Text string
	Hint string
}

// Classifier decides whether a query needs project data.
type Classifier struct {
	Client  ai.Client
	Timeout time.Duration
	Logger  zerolog.Logger
}

// NewClassifier creates a Classifier. A non-positive timeout selects
// DefaultTimeout.
func NewClassifier(client ai.Client, timeout time.Duration, logger zerolog.Logger) *Classifier {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Classifier{Client: client, Timeout: timeout, Logger: logger}
}

// Classify runs one tool-enabled chat call over conv plus the user query.
// The returned Conversation carries the user turn, the model turn and, when
// the tool was called, a tool turn holding the hint. On failure the decision
// is the Apology direct answer and the error is returned alongside it.
func (c *Classifier) Classify(ctx context.Context, conv Conversation, query string) (Decision, Conversation, error) {
	conv = conv.With(ai.Message{Role: ai.RoleUser, Content: query})

	callCtx, cancel := context.WithTimeout(ctx, c.Timeout)
	defer cancel()

	reply, err := c.Client.Chat(callCtx, conv.Messages(), []ai.Tool{FetchProjectsTool})
	if err != nil {
		return apology(), conv, fmt.Errorf("classify: %w", err)
	}
	reply.Role = ai.RoleAssistant

	call, ok := toolCall(reply)
	if !ok {
		text := strings.TrimSpace(reply.Content)
		if text == "" {
			return apology(), conv, errors.New("classify: empty model response")
		}
		return Decision{Kind: DirectAnswer, Text: text}, conv.With(reply), nil
	}

	hint := hintFrom(call.Arguments)
	if hint == "" {
		c.Logger.Warn().Str("arguments", call.Arguments).Msg("tool call without usable query, using raw query")
		hint = strings.TrimSpace(query)
	}
	c.Logger.Debug().Str("hint", hint).Msg("classified as project lookup")

	conv = conv.With(reply, ai.Message{
		Role:       ai.RoleTool,
		Content:    hint,
		ToolCallID: call.ID,
		Name:       call.Name,
	})
	return Decision{Kind: NeedsProjects, Hint: hint}, conv, nil
}

func apology() Decision {
	return Decision{Kind: DirectAnswer, Text: Apology}
}

func toolCall(m ai.Message) (ai.ToolCall, bool) {
	for _, tc := range m.ToolCalls {
		if tc.Name == FetchProjectsTool.Name {
			return tc, true
		}
	}
	return ai.ToolCall{}, false
}

func hintFrom(arguments string) string {
	var args struct {
		Query string `json:"query"`
	}
	if err := json.Unmarshal([]byte(arguments), &args); err != nil {
		return ""
	}
	return strings.TrimSpace(args.Query)
}
