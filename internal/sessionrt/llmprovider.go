package sessionrt

import (
	"context"

	"github.com/haasonsaas/nexus/internal/agent"
	"github.com/haasonsaas/nexus/pkg/models"
)

// LLMAdapter adapts the teacher's multi-backend agent.LLMProvider (Anthropic,
// OpenAI, Bedrock, Ollama, ...) to the sessionrt.Provider interface an Actor
// needs. An earlier version of this adapter drained the provider's
// streaming chunks into one string and hard-errored on any ToolCall chunk;
// agent.LLMProvider.Complete already returns a <-chan *agent.CompletionChunk
// carrying Text, ToolCall, and Done/Error variants, which is exactly the
// shape the agent turn loop (Actor.runTurn) and ChatStream both need, so
// it's passed through unchanged instead.
type LLMAdapter struct {
	provider agent.LLMProvider
}

// NewLLMAdapter wraps provider for use as a sessionrt.Provider.
func NewLLMAdapter(provider agent.LLMProvider) *LLMAdapter {
	return &LLMAdapter{provider: provider}
}

// Stream implements Provider.
func (a *LLMAdapter) Stream(ctx context.Context, model, system string, history []models.Message, tools []agent.Tool) (<-chan *agent.CompletionChunk, error) {
	messages := make([]agent.CompletionMessage, 0, len(history))
	for _, m := range history {
		messages = append(messages, agent.CompletionMessage{
			Role:        string(m.Role),
			Content:     m.Content,
			ToolCalls:   m.ToolCalls,
			ToolResults: m.ToolResults,
			Attachments: m.Attachments,
		})
	}

	req := &agent.CompletionRequest{
		Model:    model,
		System:   system,
		Messages: messages,
		Tools:    tools,
	}

	return a.provider.Complete(ctx, req)
}
