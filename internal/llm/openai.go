package llm

import (
	"context"
	"errors"
	"fmt"

	openai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"pagewright/internal/conversation"
	"pagewright/internal/role"
)

// OpenAIClient implements [Client] against the chat-completions API.
type OpenAIClient struct {
	model string
	opts  []option.RequestOption
}

// NewOpenAIClient validates the settings and returns a client. baseURL is
// optional and supports OpenAI-compatible endpoints.
func NewOpenAIClient(apiKey, model, baseURL string) (*OpenAIClient, error) {
	if apiKey == "" {
		return nil, errors.New("api key is required")
	}
	if model == "" {
		return nil, errors.New("model is required")
	}
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &OpenAIClient{model: model, opts: opts}, nil
}

// GenerateReply sends the role's system prompt plus the flattened history
// and returns the first choice's content.
func (c *OpenAIClient) GenerateReply(ctx context.Context, def role.Definition, h conversation.History) (string, error) {
	client := openai.NewClient(c.opts...)

	msgs := []openai.ChatCompletionMessageParamUnion{
		openai.SystemMessage(def.SystemPrompt),
	}
	for _, turn := range FlattenHistory(conversation.Speaker(def.Name), h) {
		if turn.Assistant {
			msgs = append(msgs, openai.ChatCompletionMessageParamOfAssistant(turn.Content))
		} else {
			msgs = append(msgs, openai.UserMessage(turn.Content))
		}
	}

	resp, err := client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(c.model),
		Messages: msgs,
	})
	if err != nil {
		return "", fmt.Errorf("chat completion for role %q: %w", def.Name, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("chat completion for role %q: empty choices", def.Name)
	}
	return sanitizeReply(resp.Choices[0].Message.Content)
}
