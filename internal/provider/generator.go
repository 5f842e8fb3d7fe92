package provider

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/54b3r/folio-go/internal/rag"
)

// Generator turns a system prompt, prior turns and the current user message
// into a single answer using an eino chat model.
type Generator struct {
	model model.BaseChatModel
}

// NewGenerator wraps m.
func NewGenerator(m model.BaseChatModel) *Generator {
	return &Generator{model: m}
}

// Generate sends one non-streaming request. The returned string is the
// model's text, which may be empty.
func (g *Generator) Generate(ctx context.Context, system string, history []rag.Turn, user string) (string, error) {
	msgs := BuildMessages(system, history, user)
	out, err := g.model.Generate(ctx, msgs)
	if err != nil {
		return "", fmt.Errorf("provider: generate: %w", err)
	}
	if out == nil {
		return "", nil
	}
	return out.Content, nil
}

// BuildMessages lays out the conversation: system prompt, history in order,
// then the current user message.
func BuildMessages(system string, history []rag.Turn, user string) []*schema.Message {
	msgs := make([]*schema.Message, 0, len(history)+2)
	if system != "" {
		msgs = append(msgs, schema.SystemMessage(system))
	}
	for _, t := range history {
		if t.Role == rag.RoleUser {
			msgs = append(msgs, schema.UserMessage(t.Content))
		} else {
			msgs = append(msgs, schema.AssistantMessage(t.Content, nil))
		}
	}
	return append(msgs, schema.UserMessage(user))
}
