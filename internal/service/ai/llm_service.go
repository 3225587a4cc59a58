package ai

import (
	"context"
	"fmt"
	"log"

	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/lumenlabs/chat-starter/backend/internal/config"
	"github.com/lumenlabs/chat-starter/backend/internal/model/chat"
)

// Service owns the upstream chat model. It is stateless across requests;
// every call opens exactly one upstream invocation.
type Service struct {
	cfg   config.AIConfig
	chain compose.Runnable[map[string]any, *schema.Message]
}

// NewService builds the chat model and compiles the prompt chain once.
func NewService(ctx context.Context, cfg config.AIConfig) (*Service, error) {
	chatModel, err := cfg.NewChatModel(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat model: %w", err)
	}

	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage("{system}"),
		schema.MessagesPlaceholder("history", true),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile chat chain: %w", err)
	}

	return &Service{
		cfg:   cfg,
		chain: runnable,
	}, nil
}

// StreamingEnabled reports whether replies are streamed fragment by
// fragment or generated in one shot.
func (s *Service) StreamingEnabled() bool {
	return s.cfg.StreamResponse
}

// StreamReply opens a streaming completion for the supplied transcript.
// The caller owns the returned reader and must Close it.
func (s *Service) StreamReply(ctx context.Context, history []chat.Message) (*schema.StreamReader[*schema.Message], error) {
	stream, err := s.chain.Stream(ctx, s.buildChainInput(history))
	if err != nil {
		return nil, fmt.Errorf("failed to stream chat chain output: %w", err)
	}

	return stream, nil
}

// GenerateReply produces the full reply in a single upstream call. Used
// when streaming is disabled by configuration.
func (s *Service) GenerateReply(ctx context.Context, history []chat.Message) (*schema.Message, error) {
	response, err := s.chain.Invoke(ctx, s.buildChainInput(history))
	if err != nil {
		return nil, fmt.Errorf("failed to run chat chain: %w", err)
	}

	log.Printf("[ai] generated reply, history=%d length=%d", len(history), len(response.Content))
	return response, nil
}

func (s *Service) buildChainInput(history []chat.Message) map[string]any {
	return map[string]any{
		"system":  s.cfg.SystemPrompt,
		"history": toSchemaMessages(history),
	}
}

func toSchemaMessages(history []chat.Message) []*schema.Message {
	if len(history) == 0 {
		return nil
	}

	messages := make([]*schema.Message, 0, len(history))
	for _, msg := range history {
		switch msg.Role {
		case chat.RoleUser:
			messages = append(messages, schema.UserMessage(msg.Content))
		case chat.RoleAssistant:
			messages = append(messages, schema.AssistantMessage(msg.Content, nil))
		}
	}

	return messages
}
